package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, document string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(document), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("expected the default sample rate, got %d", cfg.Audio.SampleRate)
	}
	if cfg.LLM.MaxMessages != 10 {
		t.Fatalf("expected the default history cap, got %d", cfg.LLM.MaxMessages)
	}
	if cfg.TTS.Language != "zh" {
		t.Fatalf("expected the default language, got %q", cfg.TTS.Language)
	}
	if cfg.AutoChat.Prompt == "" {
		t.Fatal("expected a default idle prompt")
	}
}

func TestLoadParsesDurationsAndOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"audio": {"sample_rate": 48000, "block_size": 1024},
		"auto_chat": {"enabled": true, "min_interval": "30s", "max_interval": "2m"}
	}`))
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if cfg.Audio.SampleRate != 48000 || cfg.Audio.BlockSize != 1024 {
		t.Fatalf("expected overridden audio settings, got %+v", cfg.Audio)
	}
	if time.Duration(cfg.AutoChat.MinInterval) != 30*time.Second {
		t.Fatalf("expected 30s min interval, got %v", time.Duration(cfg.AutoChat.MinInterval))
	}
	if time.Duration(cfg.AutoChat.MaxInterval) != 2*time.Minute {
		t.Fatalf("expected 2m max interval, got %v", time.Duration(cfg.AutoChat.MaxInterval))
	}
}

func TestLoadPrefersAPIKeyFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")

	cfg, err := Load(writeConfig(t, `{"llm": {"api_key": "file-key"}}`))
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Fatalf("expected the environment key to win, got %q", cfg.LLM.APIKey)
	}
}

func TestLoadRejectsBadDurations(t *testing.T) {
	_, err := Load(writeConfig(t, `{"auto_chat": {"min_interval": "soon"}}`))
	if err == nil {
		t.Fatal("expected an error for an unparsable duration")
	}
}

func TestLoadValidates(t *testing.T) {
	cases := []struct {
		name     string
		document string
	}{
		{"zero sample rate", `{"audio": {"sample_rate": 0}}`},
		{"inverted intervals", `{"auto_chat": {"enabled": true, "min_interval": "2m", "max_interval": "30s"}}`},
		{"rag without url", `{"rag": {"enabled": true}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.document)); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
