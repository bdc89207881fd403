package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Retry.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", cfg.Retry.Attempts)
	}
	if cfg.RetryDelay() != time.Second {
		t.Fatalf("retry delay = %v, want 1s", cfg.RetryDelay())
	}
	if cfg.ActionTimeout() != 15*time.Second {
		t.Fatalf("action timeout = %v, want 15s", cfg.ActionTimeout())
	}
	if cfg.Compat.LegacyOwnerPrefix != "" {
		t.Fatal("legacy owner fallback must default off")
	}
}

func TestGeneratedTemplateParses(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("generated template invalid: %v", err)
	}
	if cfg.Ledger.BaseURL == "" {
		t.Fatal("template must carry a ledger base url")
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
actor:
  principal: alice
ledger:
  base_url: http://ledger.internal:9090
retry:
  attempts: 5
compat:
  legacy_owner_prefix: "mig-"
`))
	if err != nil {
		t.Fatalf("FromYAML: %v", err)
	}
	if cfg.Actor.Principal != "alice" {
		t.Fatalf("actor = %q", cfg.Actor.Principal)
	}
	if cfg.Retry.Attempts != 5 {
		t.Fatalf("attempts = %d, want 5", cfg.Retry.Attempts)
	}
	// Unset fields keep their defaults.
	if cfg.Actions.TimeoutMS != 15000 {
		t.Fatalf("timeout = %d, want default", cfg.Actions.TimeoutMS)
	}
	if cfg.Compat.LegacyOwnerPrefix != "mig-" {
		t.Fatalf("legacy prefix = %q", cfg.Compat.LegacyOwnerPrefix)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"missing ledger url": func(c *Config) { c.Ledger.BaseURL = "" },
		"zero attempts":      func(c *Config) { c.Retry.Attempts = 0 },
		"negative delay":     func(c *Config) { c.Retry.DelayMS = -1 },
		"zero timeout":       func(c *Config) { c.Actions.TimeoutMS = 0 },
	}
	for name, corrupt := range cases {
		cfg := Default()
		corrupt(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("LoadOptional on empty workspace: %v", err)
	}
	if cfg != nil {
		t.Fatal("missing file should yield nil config")
	}

	if err := os.WriteFile(filepath.Join(dir, "escrowline.yml"), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected parsed config")
	}
}

func TestLoadMissingFileNamesRemedy(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected error for missing config")
	}
}
