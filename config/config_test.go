package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.json")

	cfg := NewDefaultConfig()
	err := cfg.WriteFile(file)
	if err != nil {
		t.Fatal(err)
	}

	err = cfg.Set("chain.chainId", "295")
	if err != nil {
		t.Fatal(err)
	}
	err = cfg.Set("backend.projectId", `"tc-project"`)
	if err != nil {
		t.Fatal(err)
	}

	err = cfg.WriteFile(file)
	if err != nil {
		t.Fatal(err)
	}

	got, err := ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if got.Chain.ChainID != 295 {
		t.Fatal("chain id not persisted")
	}
	if got.Backend.ProjectID != "tc-project" {
		t.Fatal("project id not persisted")
	}
}

func TestConfigGet(t *testing.T) {
	cfg := NewDefaultConfig()

	v, err := cfg.Get("chain.networkName")
	if err != nil {
		t.Fatal(err)
	}
	if v.(string) != "testnet" {
		t.Fatal("unexpected default network")
	}

	_, err = cfg.Get("nope.nope")
	if err == nil {
		t.Fatal("expected invalid key error")
	}
}

func TestConfigValidator(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Set("chain.networkName", `"main net"`); err == nil {
		t.Fatal("expected letters-only validation failure")
	}
}

func TestApplyEnv(t *testing.T) {
	os.Setenv(EnvNetwork, "previewnet")
	os.Setenv(EnvChainID, "297")
	defer os.Unsetenv(EnvNetwork)
	defer os.Unsetenv(EnvChainID)

	cfg := NewDefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatal(err)
	}
	if cfg.Chain.NetworkName != "previewnet" || cfg.Chain.ChainID != 297 {
		t.Fatal("env overrides not applied")
	}
}
