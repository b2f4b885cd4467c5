package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := NewConfig("/home/user/Vault")
	original.Database = DatabaseConfig{Type: "memory"}
	original.Auth.MaxAttempts = 3
	original.Compression.Excluded = []string{"zip", "jpg"}
	original.Ingest.MaxWorkers = 4
	original.Ingest.Ignore = []string{"*.tmp", "node_modules/"}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.VaultRoot != original.VaultRoot {
		t.Errorf("VaultRoot = %q, want %q", got.VaultRoot, original.VaultRoot)
	}
	if got.Database.Type != "memory" {
		t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
	}
	if got.Database.Path != "" {
		t.Errorf("Database.Path = %q, want empty for memory database", got.Database.Path)
	}
	if got.Auth.MaxAttempts != 3 {
		t.Errorf("Auth.MaxAttempts = %d, want 3", got.Auth.MaxAttempts)
	}
	if len(got.Compression.Excluded) != 2 {
		t.Fatalf("len(Compression.Excluded) = %d, want 2", len(got.Compression.Excluded))
	}
	if got.Ingest.MaxWorkers != 4 {
		t.Errorf("Ingest.MaxWorkers = %d, want 4", got.Ingest.MaxWorkers)
	}
	if len(got.Ingest.Ignore) != 2 || got.Ingest.Ignore[1] != "node_modules/" {
		t.Errorf("Ingest.Ignore = %v, want [*.tmp node_modules/]", got.Ingest.Ignore)
	}
	if !got.Compression.Enabled {
		t.Error("Compression.Enabled = false, want true")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/vault")

	home := filepath.Join("/data/vault", ".securevault")
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"log dir", cfg.LogDir, filepath.Join(home, "logs")},
		{"database path", cfg.Database.Path, filepath.Join(home, "metadata.db")},
		{"blob dir", cfg.Vault.DataDir, filepath.Join(home, "data", "files")},
		{"upload temp dir", cfg.Upload.TempDir, filepath.Join(home, "data", "temp")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}

	if cfg.Auth.PinSessionSeconds != 3600 || cfg.Auth.RecoverySessionSeconds != 1800 {
		t.Errorf("session timeouts = (%d, %d), want (3600, 1800)",
			cfg.Auth.PinSessionSeconds, cfg.Auth.RecoverySessionSeconds)
	}
	if cfg.Auth.MaxAttempts != 5 || cfg.Auth.BaseLockoutSeconds != 1800 {
		t.Errorf("lockout = (%d, %d), want (5, 1800)", cfg.Auth.MaxAttempts, cfg.Auth.BaseLockoutSeconds)
	}
	if cfg.Ingest.ParallelThreshold != 100*MiB {
		t.Errorf("Ingest.ParallelThreshold = %d, want %d", cfg.Ingest.ParallelThreshold, 100*MiB)
	}
	if cfg.Compression.Level != DefaultCompressionLevel {
		t.Errorf("Compression.Level = %d, want %d", cfg.Compression.Level, DefaultCompressionLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestManager_Read_PartialFile(t *testing.T) {
	t.Run("missing compression section keeps compression on", func(t *testing.T) {
		m := &Manager{}
		cfg, err := m.Read(strings.NewReader(`vault_root = "/v"`))
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if !cfg.Compression.Enabled {
			t.Error("Compression.Enabled = false, want true")
		}
		if cfg.Compression.Level != DefaultCompressionLevel {
			t.Errorf("Compression.Level = %d, want %d", cfg.Compression.Level, DefaultCompressionLevel)
		}
	})

	t.Run("explicit zero values are kept", func(t *testing.T) {
		m := &Manager{}
		cfg, err := m.Read(strings.NewReader("vault_root = \"/v\"\n[compression]\nenabled = false\nlevel = 0\n"))
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if cfg.Compression.Enabled {
			t.Error("Compression.Enabled = true, want false")
		}
		if cfg.Compression.Level != 0 {
			t.Errorf("Compression.Level = %d, want 0", cfg.Compression.Level)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing vault root", func(c *Config) { c.VaultRoot = "" }},
		{"negative attempts", func(c *Config) { c.Auth.MaxAttempts = -1 }},
		{"zero chunk size", func(c *Config) { c.Ingest.EncryptChunkSize = -1 }},
		{"saving out of range", func(c *Config) { c.Upload.MinSaving = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("/v")
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() expected error, got nil")
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "sub", "securevault.toml")

		if err := Init(path, NewConfig("/v")); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
		}

		cfg, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if cfg.VaultRoot != "/v" {
			t.Errorf("VaultRoot = %q, want %q", cfg.VaultRoot, "/v")
		}
	})

	t.Run("refuses to overwrite existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "securevault.toml")
		if err := os.WriteFile(path, []byte("existing"), 0600); err != nil {
			t.Fatal(err)
		}

		if err := Init(path, NewConfig("/v")); err == nil {
			t.Error("Init() expected error for existing file, got nil")
		}

		data, _ := os.ReadFile(path)
		if string(data) != "existing" {
			t.Errorf("existing file was modified: %q", data)
		}
	})
}

func TestReadFromFile_Missing(t *testing.T) {
	if _, err := ReadFromFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("ReadFromFile() expected error for missing file, got nil")
	}
}
