package kakao

import "testing"

func TestResolveConfigDefaults(t *testing.T) {
	cfg := ResolveConfig(map[string]any{})
	if cfg.Port != 9091 || cfg.Path != "/kakao/skill" || cfg.BotName != "kakao-bot" || cfg.MaxPayloadBytes != 1048576 {
		t.Errorf("ResolveConfig({}) = %+v, want defaults", cfg)
	}
}

func TestResolveConfigNonNumericPortFallsBackToDefault(t *testing.T) {
	cfg := ResolveConfig(map[string]any{"port": "not-a-number"})
	want := Config{Port: 9091, Path: "/kakao/skill", BotName: "kakao-bot", MaxPayloadBytes: 1048576}
	if cfg != want {
		t.Errorf("ResolveConfig() = %+v, want %+v", cfg, want)
	}
}

func TestResolveConfigOverrides(t *testing.T) {
	cfg := ResolveConfig(map[string]any{
		"port":            float64(8080),
		"path":            "/custom/path",
		"botName":         "my-bot",
		"maxPayloadBytes": float64(2048),
	})
	if cfg.Port != 8080 || cfg.Path != "/custom/path" || cfg.BotName != "my-bot" || cfg.MaxPayloadBytes != 2048 {
		t.Errorf("ResolveConfig() = %+v, want overrides applied", cfg)
	}
}

func TestResolveConfigIntPort(t *testing.T) {
	cfg := ResolveConfig(map[string]any{"port": 7000})
	if cfg.Port != 7000 {
		t.Errorf("Port = %d, want 7000", cfg.Port)
	}
}
