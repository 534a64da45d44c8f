package line

// Config is the resolved configuration for a LINE Messaging API channel.
// Secrets are referenced by environment variable name, never by value.
type Config struct {
	ChannelAccessTokenEnvVar string `yaml:"channelAccessTokenEnvVar"`
	ChannelSecretEnvVar      string `yaml:"channelSecretEnvVar"`
}

const (
	defaultChannelAccessTokenEnvVar = "LINE_CHANNEL_ACCESS_TOKEN"
	defaultChannelSecretEnvVar      = "LINE_CHANNEL_SECRET"
)

// ResolveConfig fills in the standard LINE env var names for any field raw
// doesn't override.
func ResolveConfig(raw map[string]any) Config {
	cfg := Config{
		ChannelAccessTokenEnvVar: defaultChannelAccessTokenEnvVar,
		ChannelSecretEnvVar:      defaultChannelSecretEnvVar,
	}
	if v, ok := raw["channelAccessTokenEnvVar"].(string); ok && v != "" {
		cfg.ChannelAccessTokenEnvVar = v
	}
	if v, ok := raw["channelSecretEnvVar"].(string); ok && v != "" {
		cfg.ChannelSecretEnvVar = v
	}
	return cfg
}
