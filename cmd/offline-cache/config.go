package main

import (
	"fmt"
	"os"
	"time"

	"github.com/goldshop/offline-cache/cache"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Generation    string      `yaml:"generation"`
	Origin        string      `yaml:"origin"`
	OriginHost    string      `yaml:"originHost"`
	Listen        string      `yaml:"listen"`
	ControlListen string      `yaml:"controlListen"`
	OfflinePath   string      `yaml:"offlinePath"`
	Exclude       []string    `yaml:"exclude"`
	Manifest      []string    `yaml:"manifest"`
	Store         StoreConfig `yaml:"store"`
	WriteQueue    int         `yaml:"writeQueue"`
	StatsInterval string      `yaml:"statsInterval"`

	// compiled
	statsEvery time.Duration
}

type StoreConfig struct {
	// Provider is one of "memory", "sqlite" or "leveldb".
	Provider string `yaml:"provider"`
	Path     string `yaml:"path"`
}

func defaultConfig() Config {
	return Config{
		Generation:    "goldshop-cache-v3",
		Listen:        ":8080",
		ControlListen: ":8081",
		OfflinePath:   "/offline.html",
		Exclude:       []string{"/api/"},
		Manifest: []string{
			"/",
			"/dashboard",
			"/login",
			"/static/style.css",
			"/static/images/icon-192x192.png",
			"/static/images/icon-512x512.png",
			"/static/images/icon-maskable-192x192.png",
			"/static/sw.js",
			"/offline.html",
		},
		Store:         StoreConfig{Provider: "sqlite", Path: "offline-cache.db"},
		StatsInterval: "1m",
	}
}

func loadConfig(filename string) (Config, error) {
	config := defaultConfig()
	if filename != "" {
		configBytes, err := os.ReadFile(filename)
		if err != nil {
			return config, err
		}
		if err := yaml.Unmarshal(configBytes, &config); err != nil {
			return config, err
		}
	}
	if config.StatsInterval != "" {
		d, err := time.ParseDuration(config.StatsInterval)
		if err != nil {
			return config, fmt.Errorf("statsInterval: %w", err)
		}
		config.statsEvery = d
	}
	return config, nil
}

// validate checks the config after flag overrides have been applied.
func (c *Config) validate() error {
	if c.Origin == "" {
		return fmt.Errorf("origin is required (config file or --origin)")
	}
	return nil
}

// overrideFlags are the config overrides shared by the subcommands.
type overrideFlags struct {
	Generation string
	Origin     string
	DB         string
}

func (o overrideFlags) apply(config *Config) {
	if o.Generation != "" {
		config.Generation = o.Generation
	}
	if o.Origin != "" {
		config.Origin = o.Origin
	}
	if o.DB != "" {
		config.Store.Path = o.DB
	}
}

func openStore(c StoreConfig) (cache.Store, error) {
	switch c.Provider {
	case "", "memory":
		return cache.NewMemStore(), nil
	case "sqlite":
		path := c.Path
		if path == "" || path == "memory" {
			path = "file::memory:?cache=shared"
		}
		return cache.NewSQLiteStore(path)
	case "leveldb":
		if c.Path == "" {
			return nil, fmt.Errorf("store path is required for leveldb")
		}
		return cache.NewLevelStore(c.Path)
	default:
		return nil, fmt.Errorf("unknown store provider %q", c.Provider)
	}
}
