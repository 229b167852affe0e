// Package config loads the omnitutor server configuration from a YAML
// file. All fields have working defaults; API keys fall back to the
// conventional environment variables so a bare config file still runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// Config is the full server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// DataDir is the root for all persistent state: the key-value
	// database and, with local storage, uploaded files.
	DataDir string `yaml:"data_dir"`

	// Backend picks the generation backend for answers and web search:
	// "openai" (default) or "gemini". Classification, file analysis,
	// transcription, and the realtime voice path always use OpenAI.
	Backend string `yaml:"backend"`

	OpenAI  OpenAI  `yaml:"openai"`
	Gemini  Gemini  `yaml:"gemini"`
	Storage Storage `yaml:"storage"`
}

// OpenAI configures the OpenAI-backed capabilities. Empty model fields
// pick the package defaults.
type OpenAI struct {
	APIKey          string   `yaml:"api_key"`
	BaseURL         string   `yaml:"base_url"`
	RespondModel    string   `yaml:"respond_model"`
	ClassifyModel   string   `yaml:"classify_model"`
	SearchModels    []string `yaml:"search_models"`
	TranscribeModel string   `yaml:"transcribe_model"`
	RealtimeModel   string   `yaml:"realtime_model"`
	RealtimeURL     string   `yaml:"realtime_url"`
}

// Gemini configures the optional Gemini generation backend.
type Gemini struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// Storage picks where uploaded artifact payloads live: "local"
// (default) or "s3".
type Storage struct {
	Backend string `yaml:"backend"`

	// Dir is the local storage root. Defaults to <data_dir>/files.
	Dir string `yaml:"dir"`

	S3 S3 `yaml:"s3"`
}

// S3 configures the S3-compatible object store backend.
type S3 struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
}

// Load reads the configuration from path. An empty path yields the
// defaults, so the server runs with just the environment variables set.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Backend == "" {
		c.Backend = "openai"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = filepath.Join(c.DataDir, "files")
	}
	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

func (c *Config) validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required (or set OPENAI_API_KEY)")
	}
	switch c.Backend {
	case "openai":
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("gemini.api_key is required for the gemini backend (or set GEMINI_API_KEY)")
		}
	default:
		return fmt.Errorf("unknown backend %q (expected openai or gemini)", c.Backend)
	}
	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (expected local or s3)", c.Storage.Backend)
	}
	return nil
}

// DBDir returns the key-value database directory.
func (c *Config) DBDir() string {
	return filepath.Join(c.DataDir, "db")
}
