package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GetDefaults returns application default paths, checking environment variables first.
// Paths taken from the environment may start with ~ and are made absolute,
// so a config written from one directory still names the same vault from
// another. Environment variables:
//   - SECUREVAULT_CONFIG_PATH: config file location (default: ~/.config/securevault.toml)
//   - SECUREVAULT_HOME: vault root directory (default: ~/.local/share/securevault)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	vaultRoot, err := getVaultRoot()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"vault_root":  vaultRoot,
		"log_dir":     filepath.Join(vaultRoot, ".securevault", "logs"),
	}, nil
}

// getConfigPath returns the config file path, checking SECUREVAULT_CONFIG_PATH first,
// then falling back to the default ~/.config/securevault.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("SECUREVAULT_CONFIG_PATH"); path != "" {
		return absPath("SECUREVAULT_CONFIG_PATH", path)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "securevault.toml"), nil
}

// getVaultRoot returns the vault root, checking SECUREVAULT_HOME first,
// then falling back to the XDG default ~/.local/share/securevault.
func getVaultRoot() (string, error) {
	if path := os.Getenv("SECUREVAULT_HOME"); path != "" {
		root, err := absPath("SECUREVAULT_HOME", path)
		if err != nil {
			return "", err
		}
		if info, err := os.Stat(root); err == nil && !info.IsDir() {
			return "", fmt.Errorf("SECUREVAULT_HOME %s is not a directory", root)
		}
		return root, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "securevault"), nil
}

// absPath expands a leading ~ and resolves path against the working directory.
func absPath(name, path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding %s: %w", name, err)
		}
		path = filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", name, err)
	}
	return abs, nil
}
