package vault

import (
	"path/filepath"
	"testing"

	"securevault/internal/config"
)

func TestNewVaultFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.VaultConfig
		wantErr bool
	}{
		{
			name:    "memory vault",
			cfg:     config.VaultConfig{Type: "memory"},
			wantErr: false,
		},
		{
			name:    "filesystem vault",
			cfg:     config.VaultConfig{Type: "filesystem", DataDir: filepath.Join(t.TempDir(), "data", "files")},
			wantErr: false,
		},
		{
			name:    "filesystem vault without data_dir",
			cfg:     config.VaultConfig{Type: "filesystem"},
			wantErr: true,
		},
		{
			name:    "unknown vault type",
			cfg:     config.VaultConfig{Type: "s3"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewVaultFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewVaultFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && got != nil {
				t.Error("NewVaultFromConfig() should return nil on error")
			}
			if !tt.wantErr {
				if err := got.ValidateSetup(); err != nil {
					t.Errorf("ValidateSetup() error = %v", err)
				}
			}
		})
	}
}
