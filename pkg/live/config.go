package live

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/classtide/omnitutor/pkg/kv"
)

// Config is the persisted voice session configuration. It is pushed to
// the upstream model when a session connects.
type Config struct {
	Temperature       float64 `msgpack:"temperature" json:"temperature"`
	Voice             string  `msgpack:"voice" json:"voice"`
	Threshold         float64 `msgpack:"threshold" json:"threshold"`
	PrefixPaddingMs   int     `msgpack:"prefix_padding_ms" json:"prefix_padding_ms"`
	SilenceDurationMs int     `msgpack:"silence_duration_ms" json:"silence_duration_ms"`
	Instructions      string  `msgpack:"instructions" json:"instructions"`
}

// DefaultConfig returns the factory settings.
func DefaultConfig() Config {
	return Config{
		Temperature:       0.8,
		Voice:             "Alloy",
		Threshold:         0.5,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 500,
	}
}

// ConfigPatch is a partial configuration update; nil fields keep their
// stored value.
type ConfigPatch struct {
	Temperature       *float64 `json:"temperature"`
	Voice             *string  `json:"voice"`
	Threshold         *float64 `json:"threshold"`
	PrefixPaddingMs   *int     `json:"prefix_padding_ms"`
	SilenceDurationMs *int     `json:"silence_duration_ms"`
	Instructions      *string  `json:"instructions"`
}

var configKey = kv.Key{"live", "config"}

// ConfigStore persists the session configuration in a kv.Store.
type ConfigStore struct {
	kv kv.Store
}

// NewConfigStore creates a config store on top of the given kv backend.
func NewConfigStore(backend kv.Store) *ConfigStore {
	return &ConfigStore{kv: backend}
}

// Get loads the configuration with defaults filled in. A missing record
// yields the defaults.
func (s *ConfigStore) Get(ctx context.Context) (Config, error) {
	cfg := DefaultConfig()
	raw, err := s.kv.Get(ctx, configKey)
	if errors.Is(err, kv.ErrNotFound) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("live: load config: %w", err)
	}
	if err := msgpack.Unmarshal(raw, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("live: decode config: %w", err)
	}
	return cfg, nil
}

// Patch merges the provided fields into the stored configuration and
// persists the result.
func (s *ConfigStore) Patch(ctx context.Context, p ConfigPatch) (Config, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return cfg, err
	}
	if p.Temperature != nil {
		cfg.Temperature = *p.Temperature
	}
	if p.Voice != nil {
		cfg.Voice = *p.Voice
	}
	if p.Threshold != nil {
		cfg.Threshold = *p.Threshold
	}
	if p.PrefixPaddingMs != nil {
		cfg.PrefixPaddingMs = *p.PrefixPaddingMs
	}
	if p.SilenceDurationMs != nil {
		cfg.SilenceDurationMs = *p.SilenceDurationMs
	}
	if p.Instructions != nil {
		cfg.Instructions = *p.Instructions
	}

	raw, err := msgpack.Marshal(&cfg)
	if err != nil {
		return cfg, fmt.Errorf("live: encode config: %w", err)
	}
	if err := s.kv.Set(ctx, configKey, raw); err != nil {
		return cfg, fmt.Errorf("live: save config: %w", err)
	}
	return cfg, nil
}
