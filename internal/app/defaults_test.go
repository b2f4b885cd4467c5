package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("SECUREVAULT_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("SECUREVAULT_HOME", "/custom/vault")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/config.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/config.toml")
		}
		if defaults["vault_root"] != "/custom/vault" {
			t.Errorf("vault_root = %q, want %q", defaults["vault_root"], "/custom/vault")
		}
		if defaults["log_dir"] != "/custom/vault/.securevault/logs" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/custom/vault/.securevault/logs")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("SECUREVAULT_CONFIG_PATH", "")
		t.Setenv("SECUREVAULT_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "securevault.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantRoot := filepath.Join(homeDir, ".local", "share", "securevault")
		if defaults["vault_root"] != wantRoot {
			t.Errorf("vault_root = %q, want %q", defaults["vault_root"], wantRoot)
		}

		wantLog := filepath.Join(wantRoot, ".securevault", "logs")
		if defaults["log_dir"] != wantLog {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], wantLog)
		}
	})
	t.Run("expands home and relative paths", func(t *testing.T) {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			t.Skip("no home directory")
		}
		wd, err := os.Getwd()
		if err != nil {
			t.Fatal(err)
		}
		t.Setenv("SECUREVAULT_CONFIG_PATH", "~/vault.toml")
		t.Setenv("SECUREVAULT_HOME", "vaults/personal")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}
		if want := filepath.Join(homeDir, "vault.toml"); defaults["config_path"] != want {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], want)
		}
		if want := filepath.Join(wd, "vaults", "personal"); defaults["vault_root"] != want {
			t.Errorf("vault_root = %q, want %q", defaults["vault_root"], want)
		}
	})

	t.Run("rejects a vault root that is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "not-a-dir")
		if err := os.WriteFile(file, nil, 0600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("SECUREVAULT_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("SECUREVAULT_HOME", file)

		if _, err := GetDefaults(); err == nil {
			t.Error("GetDefaults() accepted a file as vault root")
		}
	})
}
