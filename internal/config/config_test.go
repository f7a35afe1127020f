package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsUsable(t *testing.T) {
	cfg := Default()
	if cfg.Transport != TransportWebsocket {
		t.Fatalf("got transport %q", cfg.Transport)
	}
	if cfg.Theme != "static" {
		t.Fatalf("got theme %q", cfg.Theme)
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("got %+v, want defaults", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("transport: nats\nnats_url: nats://broker:4222\ntheme: movies\nboard_url: https://boards.test\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport != TransportNATS {
		t.Fatalf("got transport %q", cfg.Transport)
	}
	if cfg.NATSURL != "nats://broker:4222" {
		t.Fatalf("got nats url %q", cfg.NATSURL)
	}
	if cfg.Theme != "movies" {
		t.Fatalf("got theme %q", cfg.Theme)
	}
	// Keys the file omits keep their defaults.
	if cfg.APIAddr != ":8081" {
		t.Fatalf("got api addr %q", cfg.APIAddr)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("theme: movies\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRIVIA_THEME", "history")
	t.Setenv("BOARD_API_KEY", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Theme != "history" {
		t.Fatalf("got theme %q, want env override", cfg.Theme)
	}
	if cfg.BoardAPIKey != "secret" {
		t.Fatalf("got api key %q", cfg.BoardAPIKey)
	}
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	t.Setenv("TRIVIA_TRANSPORT", "carrier-pigeon")
	if _, err := Load(""); err == nil {
		t.Fatal("unknown transport should fail validation")
	}
}
