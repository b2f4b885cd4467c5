package vault

import (
	"fmt"

	"securevault/internal/config"
	"securevault/internal/sv"
)

// NewVaultFromConfig creates a BlobStore based on the vault config type.
func NewVaultFromConfig(cfg config.VaultConfig) (sv.BlobStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(), nil
	case "filesystem":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("filesystem vault requires data_dir to be set")
		}
		v, err := NewFileSystemVault(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
