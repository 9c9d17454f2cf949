package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expected      MetadataMode
		expectedError bool
	}{
		{name: "indirect", input: "indirect", expected: ModeIndirect},
		{name: "direct", input: "direct", expected: ModeDirect},
		{name: "disabled", input: "", expected: ModeDisabled},
		{name: "unknown", input: "sideways", expectedError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := ParseMode(tt.input)
			if tt.expectedError {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if mode != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, mode)
			}
		})
	}
}

func TestModeHelpers(t *testing.T) {
	if !ModeIndirect.RequiresMetadataNetwork() || !ModeIndirect.RequiresHostRoutes() {
		t.Error("indirect mode should require metadata network and host routes")
	}
	for _, mode := range []MetadataMode{ModeDirect, ModeDisabled} {
		if mode.RequiresMetadataNetwork() || mode.RequiresHostRoutes() {
			t.Errorf("mode %q should not require metadata provisioning", mode)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
metadata_mode: indirect
bind_addr: 10.1.0.5
bind_port: "8080"
notify_timeout: 10s
neutron:
  endpoint: http://neutron.example:9696
  username: svc
  password: secret
  region: region-one
`
	path := filepath.Join(t.TempDir(), "neutron-metadata.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	mode, err := cfg.Mode()
	if err != nil {
		t.Fatalf("Mode: %v", err)
	}
	if mode != ModeIndirect {
		t.Errorf("mode = %q, want indirect", mode)
	}
	if cfg.BindAddr != "10.1.0.5" || cfg.BindPort != "8080" {
		t.Errorf("bind = %s:%s, want 10.1.0.5:8080", cfg.BindAddr, cfg.BindPort)
	}
	if cfg.NotifyTimeout.Std() != 10*time.Second {
		t.Errorf("notify_timeout = %v, want 10s", cfg.NotifyTimeout.Std())
	}
	if cfg.Neutron.Endpoint != "http://neutron.example:9696" {
		t.Errorf("neutron endpoint = %q", cfg.Neutron.Endpoint)
	}
	if cfg.Neutron.Region != "region-one" {
		t.Errorf("neutron region = %q", cfg.Neutron.Region)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	content := `
metadata_mode: direct
neutron:
  endpoint: http://from-file:9696
`
	path := filepath.Join(t.TempDir(), "neutron-metadata.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	t.Setenv("METADATA_MODE", "indirect")
	t.Setenv("NEUTRON_URL", "http://from-env:9696")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MetadataMode != "indirect" {
		t.Errorf("metadata_mode = %q, want env override", cfg.MetadataMode)
	}
	if cfg.Neutron.Endpoint != "http://from-env:9696" {
		t.Errorf("neutron endpoint = %q, want env override", cfg.Neutron.Endpoint)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindAddr != "127.0.0.1" || cfg.BindPort != "9697" {
		t.Errorf("default bind = %s:%s", cfg.BindAddr, cfg.BindPort)
	}
	mode, err := cfg.Mode()
	if err != nil {
		t.Fatalf("Mode: %v", err)
	}
	if mode != ModeDisabled {
		t.Errorf("default mode = %q, want disabled", mode)
	}
}

func TestLoadMissingFileIsTolerated(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Neutron.Endpoint == "" {
		t.Error("defaults not applied for missing file")
	}
}

func TestLoadInvalidMode(t *testing.T) {
	t.Setenv("METADATA_MODE", "bogus")
	if _, err := Load(""); err == nil {
		t.Error("expected error for invalid metadata mode")
	}
}
