package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
[server]
port = 8000

[recognition]
model_path = "models/ggml-base.bin"
`

func TestLoadAndValidateDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("sample rate = %d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 2 {
		t.Errorf("channels = %d, want 2", cfg.Audio.Channels)
	}
	if cfg.Audio.ChunkSeconds != 5 {
		t.Errorf("chunk seconds = %d, want 5", cfg.Audio.ChunkSeconds)
	}
	if cfg.Audio.FileSliceSeconds != 30 {
		t.Errorf("file slice seconds = %d, want 30", cfg.Audio.FileSliceSeconds)
	}
	if len(cfg.Recognition.Languages) != 2 || cfg.Recognition.Languages[0] != "en" || cfg.Recognition.Languages[1] != "uk" {
		t.Errorf("languages = %v, want [en uk]", cfg.Recognition.Languages)
	}
	if cfg.Recognition.DefaultLanguage != "en" {
		t.Errorf("default language = %q, want en", cfg.Recognition.DefaultLanguage)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("logging defaults = %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Storage.Type != "sqlite" {
		t.Errorf("storage type = %q, want sqlite", cfg.Storage.Type)
	}
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[server]
port = 9000
host = "127.0.0.1"
additional_ports = [9001]

[audio]
sample_rate = 16000
channels = 1
chunk_seconds = 3

[[audio.devices]]
id = "mic0"
name = "USB microphone"
input = "hw:1"

[recognition]
model_path = "models/ggml-small.bin"
threads = 2
languages = ["en"]
default_language = "en"

[post_processing]
enabled = true
gemini_api_key = "test-key"
`))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	if cfg.Server.Port != 9000 || len(cfg.Server.AdditionalPorts) != 1 {
		t.Errorf("server config = %+v", cfg.Server)
	}
	if len(cfg.Audio.Devices) != 1 || cfg.Audio.Devices[0].Input != "hw:1" {
		t.Errorf("devices = %+v", cfg.Audio.Devices)
	}
	if cfg.PostProcessing.Model != "gemini-2.0-flash" {
		t.Errorf("post-processing model default = %q", cfg.PostProcessing.Model)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing model path",
			body: `
[server]
port = 8000
`,
		},
		{
			name: "bad port",
			body: `
[server]
port = 70000

[recognition]
model_path = "m.bin"
`,
		},
		{
			name: "duplicate ports",
			body: `
[server]
port = 8000
additional_ports = [8000]

[recognition]
model_path = "m.bin"
`,
		},
		{
			name: "default language not offered",
			body: `
[server]
port = 8000

[recognition]
model_path = "m.bin"
languages = ["en"]
default_language = "de"
`,
		},
		{
			name: "device without input",
			body: `
[server]
port = 8000

[recognition]
model_path = "m.bin"

[[audio.devices]]
id = "mic0"
name = "broken"
`,
		},
		{
			name: "post processing without key",
			body: `
[server]
port = 8000

[recognition]
model_path = "m.bin"

[post_processing]
enabled = true
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.body))
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}
			if err := cfg.Validate(); err == nil {
				t.Error("validate accepted a bad config")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadWithFallback(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	cfg, err := LoadWithFallback(path)
	if err != nil {
		t.Fatalf("fallback load failed: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("port = %d, want 8000", cfg.Server.Port)
	}
}
