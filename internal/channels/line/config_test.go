package line

import "testing"

func TestResolveConfigDefaults(t *testing.T) {
	cfg := ResolveConfig(map[string]any{})
	want := Config{ChannelAccessTokenEnvVar: "LINE_CHANNEL_ACCESS_TOKEN", ChannelSecretEnvVar: "LINE_CHANNEL_SECRET"}
	if cfg != want {
		t.Errorf("ResolveConfig({}) = %+v, want %+v", cfg, want)
	}
}

func TestResolveConfigPartialOverride(t *testing.T) {
	cfg := ResolveConfig(map[string]any{"channelAccessTokenEnvVar": "MY_T"})
	want := Config{ChannelAccessTokenEnvVar: "MY_T", ChannelSecretEnvVar: "LINE_CHANNEL_SECRET"}
	if cfg != want {
		t.Errorf("ResolveConfig() = %+v, want %+v", cfg, want)
	}
}

func TestResolveConfigFullOverride(t *testing.T) {
	cfg := ResolveConfig(map[string]any{
		"channelAccessTokenEnvVar": "A",
		"channelSecretEnvVar":      "B",
	})
	want := Config{ChannelAccessTokenEnvVar: "A", ChannelSecretEnvVar: "B"}
	if cfg != want {
		t.Errorf("ResolveConfig() = %+v, want %+v", cfg, want)
	}
}
