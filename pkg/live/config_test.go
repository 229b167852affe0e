package live_test

import (
	"context"
	"testing"

	"github.com/classtide/omnitutor/pkg/kv"
	"github.com/classtide/omnitutor/pkg/live"
)

func TestConfigDefaults(t *testing.T) {
	store := live.NewConfigStore(kv.NewMemory())

	cfg, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := live.Config{
		Temperature:       0.8,
		Voice:             "Alloy",
		Threshold:         0.5,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 500,
	}
	if cfg != want {
		t.Fatalf("defaults = %+v, want %+v", cfg, want)
	}
}

func TestConfigPatchMergesSubset(t *testing.T) {
	backend := kv.NewMemory()
	store := live.NewConfigStore(backend)

	voice := "sage"
	threshold := 0.7
	if _, err := store.Patch(context.Background(), live.ConfigPatch{
		Voice:     &voice,
		Threshold: &threshold,
	}); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	// A fresh store over the same backend sees the merged result.
	cfg, err := live.NewConfigStore(backend).Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg.Voice != "sage" || cfg.Threshold != 0.7 {
		t.Fatalf("patched fields lost: %+v", cfg)
	}
	if cfg.Temperature != 0.8 || cfg.PrefixPaddingMs != 300 || cfg.SilenceDurationMs != 500 {
		t.Fatalf("unpatched fields changed: %+v", cfg)
	}
}

func TestConfigPatchAccumulates(t *testing.T) {
	store := live.NewConfigStore(kv.NewMemory())

	inst := "用中文回答"
	if _, err := store.Patch(context.Background(), live.ConfigPatch{Instructions: &inst}); err != nil {
		t.Fatalf("first Patch: %v", err)
	}
	temp := 1.0
	cfg, err := store.Patch(context.Background(), live.ConfigPatch{Temperature: &temp})
	if err != nil {
		t.Fatalf("second Patch: %v", err)
	}
	if cfg.Instructions != "用中文回答" || cfg.Temperature != 1.0 {
		t.Fatalf("cfg = %+v", cfg)
	}
}
