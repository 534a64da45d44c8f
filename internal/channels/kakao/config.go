package kakao

// Config is the resolved configuration for a KakaoTalk skill server
// channel.
type Config struct {
	Port            int    `yaml:"port"`
	Path            string `yaml:"path"`
	BotName         string `yaml:"botName"`
	MaxPayloadBytes int    `yaml:"maxPayloadBytes"`
}

const (
	defaultPort            = 9091
	defaultPath            = "/kakao/skill"
	defaultBotName         = "kakao-bot"
	defaultMaxPayloadBytes = 1 << 20
)

// ResolveConfig fills in defaults for any field raw doesn't supply with a
// valid value of the expected type. An unparseable "port" (e.g. a
// non-numeric string) falls back to the default rather than failing —
// KakaoTalk skill servers are provisioned from loosely-typed config
// sources.
func ResolveConfig(raw map[string]any) Config {
	cfg := Config{
		Port:            defaultPort,
		Path:            defaultPath,
		BotName:         defaultBotName,
		MaxPayloadBytes: defaultMaxPayloadBytes,
	}

	if v, ok := raw["port"]; ok {
		if port, ok := asInt(v); ok {
			cfg.Port = port
		}
	}
	if v, ok := raw["path"].(string); ok && v != "" {
		cfg.Path = v
	}
	if v, ok := raw["botName"].(string); ok && v != "" {
		cfg.BotName = v
	}
	if v, ok := raw["maxPayloadBytes"]; ok {
		if n, ok := asInt(v); ok {
			cfg.MaxPayloadBytes = n
		}
	}

	return cfg
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
