// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when --config is
// not given.
const DefaultConfigFile = "repograph.yaml"

// Config is the CLI configuration, read from repograph.yaml and overridden
// by environment variables.
type Config struct {
	DataDir    string `yaml:"data_dir"`
	QdrantURL  string `yaml:"qdrant_url"`
	Collection string `yaml:"collection"`

	Embedding struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		BaseURL  string `yaml:"base_url"`
		Workers  int    `yaml:"workers"`
	} `yaml:"embedding"`

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	SummarizerURL string `yaml:"summarizer_url"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	cfg := &Config{
		DataDir:    "data",
		QdrantURL:  "http://localhost:6333",
		Collection: "repograph",
	}
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Workers = 4
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8002
	return cfg
}

// LoadConfig reads the config file (if present) and applies environment
// overrides. A missing default file is not an error; a missing explicit
// --config path is.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if path == "" {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Defaults plus environment.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		cfg.QdrantURL = v
	}
	if v := os.Getenv("QDRANT_COLLECTION_NAME"); v != "" {
		cfg.Collection = v
	}
	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("MODEL_NAME"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("SUMMARIZER_URL"); v != "" {
		cfg.SummarizerURL = v
	}
	if v := os.Getenv("WORKER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("WORKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// exportEmbeddingEnv pushes config values into the environment variables the
// embedding providers read.
func exportEmbeddingEnv(cfg *Config) {
	if cfg.Embedding.Model != "" {
		os.Setenv("MODEL_NAME", cfg.Embedding.Model)
	}
	switch cfg.Embedding.Provider {
	case "ollama":
		if cfg.Embedding.BaseURL != "" {
			os.Setenv("OLLAMA_BASE_URL", cfg.Embedding.BaseURL)
		}
	case "openai":
		if cfg.Embedding.BaseURL != "" {
			os.Setenv("OPENAI_API_BASE", cfg.Embedding.BaseURL)
		}
	}
}
