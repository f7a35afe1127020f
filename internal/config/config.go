// Package config loads host and player settings from an optional YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds everything the host and player binaries need at startup.
type Config struct {
	// Transport selects the peer network: "websocket" or "nats".
	Transport string `yaml:"transport"`

	// Websocket transport settings.
	ListenAddr string `yaml:"listen_addr"`
	BaseURL    string `yaml:"base_url"`

	// NATS transport settings.
	NATSURL string `yaml:"nats_url"`

	// APIAddr is where the host serves the read-only HTTP API.
	APIAddr string `yaml:"api_addr"`

	// Theme drives board generation. The value "static" uses the built-in
	// board; anything else is sent to the remote generator.
	Theme string `yaml:"theme"`

	// Remote board generator settings.
	BoardURL    string `yaml:"board_url"`
	BoardAPIKey string `yaml:"board_api_key"`
}

const (
	TransportWebsocket = "websocket"
	TransportNATS      = "nats"
)

// Default returns the out-of-the-box configuration: a local websocket
// transport and the built-in static board.
func Default() Config {
	return Config{
		Transport:  TransportWebsocket,
		ListenAddr: ":8080",
		BaseURL:    "ws://localhost:8080",
		NATSURL:    "nats://localhost:4222",
		APIAddr:    ":8081",
		Theme:      "static",
	}
}

// Load reads the YAML file at path (skipped if path is empty or missing) and
// then applies environment-variable overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fine, env and defaults carry it.
		case err != nil:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.Transport = getEnv("TRIVIA_TRANSPORT", cfg.Transport)
	cfg.ListenAddr = getEnv("TRIVIA_LISTEN_ADDR", cfg.ListenAddr)
	cfg.BaseURL = getEnv("TRIVIA_BASE_URL", cfg.BaseURL)
	cfg.NATSURL = getEnv("NATS_URL", cfg.NATSURL)
	cfg.APIAddr = getEnv("TRIVIA_API_ADDR", cfg.APIAddr)
	cfg.Theme = getEnv("TRIVIA_THEME", cfg.Theme)
	cfg.BoardURL = getEnv("BOARD_API_URL", cfg.BoardURL)
	cfg.BoardAPIKey = getEnv("BOARD_API_KEY", cfg.BoardAPIKey)

	if cfg.Transport != TransportWebsocket && cfg.Transport != TransportNATS {
		return cfg, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
