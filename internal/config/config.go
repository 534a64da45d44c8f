// Package config loads and validates Haya's YAML/JSON5 configuration,
// resolving $include directives and ${ENV} references before decoding
// into typed structs.
package config

import "fmt"

// Config is the root configuration structure for the gateway process.
type Config struct {
	Gateway  GatewayConfig   `yaml:"gateway"`
	Agent    AgentConfig     `yaml:"agent"`
	Sessions SessionsConfig  `yaml:"sessions"`
	Profiles ProfilesConfig  `yaml:"profiles"`
	Memory   MemoryConfig    `yaml:"memory"`
	Tools    ToolsConfig     `yaml:"tools"`
	Cron     []CronJobConfig `yaml:"cron"`
	Logging  LoggingConfig   `yaml:"logging"`
	Plugins  []string        `yaml:"plugins"`
	Channels ChannelsConfig  `yaml:"channels"`
}

// ToolsConfig configures the tool registry's policy engine. Profile seeds
// the allow list (minimal|messaging|full); Allow/Deny are explicit
// "group:<name>" or tool-name entries layered on top, deny always winning.
type ToolsConfig struct {
	Profile string   `yaml:"profile"`
	Allow   []string `yaml:"allow"`
	Deny    []string `yaml:"deny"`
}

// GatewayConfig configures the WebSocket/HTTP surface.
type GatewayConfig struct {
	Port           int        `yaml:"port"`
	Bind           string     `yaml:"bind"` // loopback|lan|custom
	Interface      string     `yaml:"interface"`
	WSPath         string     `yaml:"ws_path"`
	Auth           AuthConfig `yaml:"auth"`
	TLS            TLSConfig  `yaml:"tls"`
	TrustedProxies []string   `yaml:"trusted_proxies"`
}

// AuthConfig configures the single-secret auth mode the gateway enforces
// on every inbound frame. The secret itself is resolved from
// TokenEnvVar/PasswordEnvVar at startup, never stored inline.
type AuthConfig struct {
	Mode           string `yaml:"mode"` // token|password
	TokenEnvVar    string `yaml:"token_env_var"`
	PasswordEnvVar string `yaml:"password_env_var"`
}

// TLSConfig configures optional TLS termination.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertPath string `yaml:"cert_path"`
	KeyPath  string `yaml:"key_path"`
}

// AgentConfig configures the default model and history limits handed to
// the AgentRuntime on every chat.send.
type AgentConfig struct {
	DefaultModel             string `yaml:"default_model"`
	DefaultProviderAPIKeyEnv string `yaml:"default_provider_api_key_env_var"`
	SystemPrompt             string `yaml:"system_prompt"`
	MaxHistoryMessages       int    `yaml:"max_history_messages"`

	// ContextWindowTokens, MemoryFlushReserveTokens, and
	// MemoryFlushSoftThresholdTokens feed the memory-flush trigger's
	// threshold calculation; they live alongside the other agent tunables
	// because the trigger fires per-session during chat turns.
	ContextWindowTokens            int `yaml:"context_window_tokens"`
	MemoryFlushReserveTokens       int `yaml:"memory_flush_reserve_tokens"`
	MemoryFlushSoftThresholdTokens int `yaml:"memory_flush_soft_threshold_tokens"`
}

// SessionsConfig configures the session history store. An empty DBPath
// keeps history in memory only (lost on restart); a non-empty path opens
// the durable sqlite-backed store there.
type SessionsConfig struct {
	DBPath string `yaml:"db_path"`
}

// ProfilesConfig configures the per-sender profile store. An empty
// DataDir disables profile tracking.
type ProfilesConfig struct {
	DataDir string `yaml:"data_dir"`
}

// MemoryConfig configures the hybrid memory subsystem.
type MemoryConfig struct {
	Enabled                    bool    `yaml:"enabled"`
	DBPath                     string  `yaml:"db_path"`
	EmbeddingProviderAPIKeyEnv string  `yaml:"embedding_provider_api_key_env_var"`
	VectorWeight               float64 `yaml:"vector_weight"`
	TextWeight                 float64 `yaml:"text_weight"`
}

// CronJobConfig declares one scheduled action.
type CronJobConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"`
	Action   string `yaml:"action"`
	Enabled  bool   `yaml:"enabled"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level         string `yaml:"level"` // silly|trace|debug|info|warn|error|fatal
	Format        string `yaml:"format"`
	RedactSecrets bool   `yaml:"redact_secrets"`
}

// ChannelsConfig groups the per-transport channel configs. Each entry is
// optional; a nil/zero-value entry means that channel is not started.
type ChannelsConfig struct {
	Discord []DiscordChannelConfig `yaml:"discord"`
	Slack   []SlackChannelConfig   `yaml:"slack"`
	IRC     []IRCChannelConfig     `yaml:"irc"`
	Line    *LineChannelConfig     `yaml:"line"`
	Kakao   *KakaoChannelConfig    `yaml:"kakao"`
	Webhook []WebhookChannelConfig `yaml:"webhook"`
}

type DiscordChannelConfig struct {
	ID          string `yaml:"id"`
	TokenEnvVar string `yaml:"token_env_var"`
	ChannelID   string `yaml:"channel_id"`
}

type SlackChannelConfig struct {
	ID               string `yaml:"id"`
	BotTokenEnvVar   string `yaml:"bot_token_env_var"`
	SigningSecretEnv string `yaml:"signing_secret_env_var"`
	ChannelID        string `yaml:"channel_id"`
}

type IRCChannelConfig struct {
	ID             string `yaml:"id"`
	Server         string `yaml:"server"`
	TLS            bool   `yaml:"tls"`
	Nick           string `yaml:"nick"`
	Channel        string `yaml:"channel"`
	PasswordEnvVar string `yaml:"password_env_var"`
}

type LineChannelConfig struct {
	ID                       string `yaml:"id"`
	ChannelAccessTokenEnvVar string `yaml:"channel_access_token_env_var"`
	ChannelSecretEnvVar      string `yaml:"channel_secret_env_var"`
}

type KakaoChannelConfig struct {
	ID              string `yaml:"id"`
	Port            int    `yaml:"port"`
	Path            string `yaml:"path"`
	BotName         string `yaml:"bot_name"`
	MaxPayloadBytes int    `yaml:"max_payload_bytes"`
}

type WebhookChannelConfig struct {
	ID          string `yaml:"id"`
	OutboundURL string `yaml:"outbound_url"`
}

// Validate checks the decoded config for internally-consistent values that
// decoding alone can't catch (ranges, enum membership, cross-field rules).
func (c *Config) Validate() error {
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port must be between 0 and 65535, got %d", c.Gateway.Port)
	}
	switch c.Gateway.Bind {
	case "", "loopback", "lan", "custom":
	default:
		return fmt.Errorf("gateway.bind must be one of loopback|lan|custom, got %q", c.Gateway.Bind)
	}
	switch c.Gateway.Auth.Mode {
	case "token", "password":
	default:
		return fmt.Errorf("gateway.auth.mode must be one of token|password, got %q", c.Gateway.Auth.Mode)
	}
	if c.Gateway.Bind == "custom" && c.Gateway.Interface == "" {
		return fmt.Errorf("gateway.interface is required when gateway.bind is custom")
	}
	return nil
}

// ApplyDefaults fills in zero-valued fields with the gateway's production
// defaults. Called after decode, before Validate.
func (c *Config) ApplyDefaults() {
	if c.Gateway.Port == 0 {
		c.Gateway.Port = 18789
	}
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = "loopback"
	}
	if c.Gateway.WSPath == "" {
		c.Gateway.WSPath = "/ws"
	}
	if c.Gateway.Auth.Mode == "" {
		c.Gateway.Auth.Mode = "token"
	}
	if c.Tools.Profile == "" {
		c.Tools.Profile = "full"
	}
	if c.Agent.MaxHistoryMessages == 0 {
		c.Agent.MaxHistoryMessages = 100
	}
	if c.Agent.ContextWindowTokens == 0 {
		c.Agent.ContextWindowTokens = 200000
	}
	if c.Agent.MemoryFlushReserveTokens == 0 {
		c.Agent.MemoryFlushReserveTokens = 4096
	}
	if c.Agent.MemoryFlushSoftThresholdTokens == 0 {
		c.Agent.MemoryFlushSoftThresholdTokens = 2000
	}
	if c.Memory.VectorWeight == 0 && c.Memory.TextWeight == 0 {
		c.Memory.VectorWeight = 0.7
		c.Memory.TextWeight = 0.3
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// ResolvedAuthSecret returns the auth secret for the configured mode,
// resolved from the environment and length-checked per the gateway's
// token(>=32)/password(>=16) rule.
func (c *Config) ResolvedAuthSecret() (string, error) {
	switch c.Gateway.Auth.Mode {
	case "token":
		envVar := c.Gateway.Auth.TokenEnvVar
		if envVar == "" {
			envVar = "HAYA_GATEWAY_TOKEN"
		}
		token, err := RequireEnv(envVar)
		if err != nil {
			return "", err
		}
		if len(token) < 32 {
			return "", fmt.Errorf("gateway auth token must be at least 32 characters")
		}
		return token, nil
	case "password":
		envVar := c.Gateway.Auth.PasswordEnvVar
		if envVar == "" {
			envVar = "HAYA_GATEWAY_PASSWORD"
		}
		password, err := RequireEnv(envVar)
		if err != nil {
			return "", err
		}
		if len(password) < 16 {
			return "", fmt.Errorf("gateway auth password must be at least 16 characters")
		}
		return password, nil
	default:
		return "", fmt.Errorf("unknown auth mode %q", c.Gateway.Auth.Mode)
	}
}
