package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration, loaded from an optional YAML file
// with environment-variable overrides on top.
type Config struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Rooms struct {
		IdleTTL string `yaml:"idle_ttl"`
	} `yaml:"rooms"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":5175"
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Rooms.IdleTTL = "10m"
	return cfg
}

func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
	if addr := os.Getenv("BUZZIN_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if ttl := os.Getenv("BUZZIN_ROOM_IDLE_TTL"); ttl != "" {
		cfg.Rooms.IdleTTL = ttl
	}

	return cfg, nil
}

// idleTTL parses the room idle TTL, falling back to the default on junk.
func (c *Config) idleTTL() time.Duration {
	d, err := time.ParseDuration(c.Rooms.IdleTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
