package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Speech.Model != "tts-1-hd" {
		t.Errorf("speech model = %q", cfg.Speech.Model)
	}
	if cfg.Music.Volume != 0.3 {
		t.Errorf("music volume = %v, want 0.3", cfg.Music.Volume)
	}
	if cfg.Music.Required {
		t.Error("music must default to optional")
	}
	if cfg.Images.Source != "ai" {
		t.Errorf("image source = %q, want ai", cfg.Images.Source)
	}
	if !cfg.Queue.PackageOnCompletion {
		t.Error("queue should package on completion by default")
	}
}

func TestResolveEnvVars(t *testing.T) {
	os.Setenv("STORYMILL_TEST_KEY", "secret123")
	defer os.Unsetenv("STORYMILL_TEST_KEY")

	tests := []struct {
		input string
		want  string
	}{
		{"${STORYMILL_TEST_KEY}", "secret123"},
		{"prefix-${STORYMILL_TEST_KEY}-suffix", "prefix-secret123-suffix"},
		{"no-vars-here", "no-vars-here"},
		{"", ""},
		{"${UNSET_VAR_XYZ}", ""},
	}
	for _, tt := range tests {
		if got := ResolveEnvVars(tt.input); got != tt.want {
			t.Errorf("ResolveEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestResolved(t *testing.T) {
	os.Setenv("STORYMILL_TEST_OR_KEY", "or-key")
	defer os.Unsetenv("STORYMILL_TEST_OR_KEY")

	cfg := DefaultConfig()
	cfg.Script.APIKey = "${STORYMILL_TEST_OR_KEY}"
	resolved := cfg.Resolved()

	if resolved.Script.APIKey != "or-key" {
		t.Errorf("resolved script key = %q", resolved.Script.APIKey)
	}
	// Original must keep the reference so reloads re-resolve.
	if cfg.Script.APIKey != "${STORYMILL_TEST_OR_KEY}" {
		t.Errorf("original mutated: %q", cfg.Script.APIKey)
	}
}

func TestWriteDefaultAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	cm, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	cfg := cm.Get()
	if cfg.Server.Port != 8787 {
		t.Errorf("server port = %d, want 8787", cfg.Server.Port)
	}
	if cfg.Defaults.ChapterCount != 5 {
		t.Errorf("chapter count = %d, want 5", cfg.Defaults.ChapterCount)
	}
}
