package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the securevault configuration file.
type Config struct {
	VaultRoot   string            `toml:"vault_root"`
	LogDir      string            `toml:"log_dir"`
	Database    DatabaseConfig    `toml:"database"`
	Vault       VaultConfig       `toml:"vault"`
	Auth        AuthConfig        `toml:"auth"`
	Compression CompressionConfig `toml:"compression"`
	Ingest      IngestConfig      `toml:"ingest"`
	Upload      UploadConfig      `toml:"upload"`
	Backup      BackupConfig      `toml:"backup"`
}

// DatabaseConfig selects the metadata store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// VaultConfig selects the encrypted blob store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type    string `toml:"type"`               // "filesystem" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=filesystem
}

// AuthConfig tunes sessions and brute-force protection.
type AuthConfig struct {
	PinSessionSeconds      int64 `toml:"pin_session_seconds"`
	RecoverySessionSeconds int64 `toml:"recovery_session_seconds"`
	MaxAttempts            int   `toml:"max_attempts"`
	BaseLockoutSeconds     int64 `toml:"base_lockout_seconds"`
	PinMaxAgeDays          int   `toml:"pin_max_age_days"` // 0 disables PIN expiry
}

// CompressionConfig is the compression policy.
type CompressionConfig struct {
	Enabled   bool     `toml:"enabled"`
	Level     int      `toml:"level"`
	Threshold int64    `toml:"threshold"`
	Excluded  []string `toml:"excluded_extensions"`
}

// IngestConfig controls path selection and parallelism in the ingestion pipeline.
type IngestConfig struct {
	ParallelThreshold int64    `toml:"parallel_threshold"`
	CompressChunkSize int64    `toml:"compress_chunk_size"`
	EncryptChunkSize  int64    `toml:"encrypt_chunk_size"`
	HashChunkSize     int64    `toml:"hash_chunk_size"`
	MaxWorkers        int      `toml:"max_workers"` // 0 = number of CPUs
	MaxFileSize       int64    `toml:"max_file_size"`
	Ignore            []string `toml:"ignore,omitempty"` // extra ignore patterns for directory imports
}

// UploadConfig controls chunked upload sessions.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type UploadConfig struct {
	Type              string  `toml:"type"`               // "filesystem" or "memory"
	TempDir           string  `toml:"temp_dir,omitempty"` // only used for type=filesystem
	SessionTTLSeconds int64   `toml:"session_ttl_seconds"`
	ChunkThreshold    int     `toml:"chunk_compress_threshold"`
	MinSaving         float64 `toml:"chunk_min_saving"`
}

// BackupConfig controls passphrase-encrypted metadata backups.
type BackupConfig struct {
	WorkFactor int `toml:"work_factor"` // scrypt log2(N); 0 = age default
}

// DefaultCompressionLevel is gzip.DefaultCompression's effective level.
const DefaultCompressionLevel = 6

const (
	MiB = 1 << 20
	GiB = 1 << 30
)

// NewConfig creates a Config rooted at vaultRoot with every default filled in.
func NewConfig(vaultRoot string) *Config {
	cfg := &Config{
		VaultRoot: vaultRoot,
		Compression: CompressionConfig{
			Enabled: true,
			Level:   DefaultCompressionLevel,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every zero-valued setting with its default. Paths
// default to the standard layout under VaultRoot:
//
//	<vault_root>/.securevault/
//	  metadata.db
//	  data/files/
//	  data/temp/
//	  logs/
func (c *Config) ApplyDefaults() {
	home := c.HomeDir()
	if c.LogDir == "" {
		c.LogDir = filepath.Join(home, "logs")
	}

	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type == "sqlite" && c.Database.Path == "" {
		c.Database.Path = filepath.Join(home, "metadata.db")
	}
	if c.Vault.Type == "" {
		c.Vault.Type = "filesystem"
	}
	if c.Vault.Type == "filesystem" && c.Vault.DataDir == "" {
		c.Vault.DataDir = filepath.Join(home, "data", "files")
	}

	setDefault(&c.Auth.PinSessionSeconds, 3600)
	setDefault(&c.Auth.RecoverySessionSeconds, 1800)
	setDefault(&c.Auth.MaxAttempts, 5)
	setDefault(&c.Auth.BaseLockoutSeconds, 1800)

	setDefault(&c.Compression.Threshold, 1024)

	setDefault(&c.Ingest.ParallelThreshold, 100*MiB)
	setDefault(&c.Ingest.CompressChunkSize, 32*MiB)
	setDefault(&c.Ingest.EncryptChunkSize, 32*MiB)
	setDefault(&c.Ingest.HashChunkSize, 16*MiB)
	setDefault(&c.Ingest.MaxFileSize, 10*GiB)

	if c.Upload.Type == "" {
		c.Upload.Type = "filesystem"
	}
	if c.Upload.Type == "filesystem" && c.Upload.TempDir == "" {
		c.Upload.TempDir = filepath.Join(home, "data", "temp")
	}
	setDefault(&c.Upload.SessionTTLSeconds, 24*3600)
	setDefault(&c.Upload.ChunkThreshold, 1024)
	setDefault(&c.Upload.MinSaving, 0.05)
}

func setDefault[T int | int64 | float64](v *T, def T) {
	if *v == 0 {
		*v = def
	}
}

// HomeDir is the hidden per-vault directory holding all vault state.
func (c *Config) HomeDir() string {
	return filepath.Join(c.VaultRoot, ".securevault")
}

// Validate reports settings that would make the vault unusable.
func (c *Config) Validate() error {
	if c.VaultRoot == "" {
		return fmt.Errorf("vault_root is required")
	}
	if c.Auth.MaxAttempts < 1 {
		return fmt.Errorf("auth.max_attempts must be positive, got %d", c.Auth.MaxAttempts)
	}
	if c.Ingest.CompressChunkSize <= 0 || c.Ingest.EncryptChunkSize <= 0 || c.Ingest.HashChunkSize <= 0 {
		return fmt.Errorf("ingest chunk sizes must be positive")
	}
	if c.Upload.MinSaving < 0 || c.Upload.MinSaving >= 1 {
		return fmt.Errorf("upload.chunk_min_saving must be in [0, 1), got %v", c.Upload.MinSaving)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader and applies defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	// Zero is meaningful for both of these, so only absent keys get defaults.
	if !md.IsDefined("compression", "enabled") {
		cfg.Compression.Enabled = true
	}
	if !md.IsDefined("compression", "level") {
		cfg.Compression.Level = DefaultCompressionLevel
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to a new config file at path. An existing file is never
// overwritten.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
