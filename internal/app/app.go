package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"securevault/internal/auth"
	"securevault/internal/compress"
	"securevault/internal/config"
	"securevault/internal/database"
	"securevault/internal/encryption"
	"securevault/internal/fs"
	"securevault/internal/metrics"
	"securevault/internal/model"
	"securevault/internal/staging"
	"securevault/internal/sv"
	"securevault/internal/vault"
	"securevault/internal/vaulterr"
)

// VaultApp is the application layer between the CLI and the vault services.
// It constructs all dependencies from config, gates content operations on
// an authenticated session, and closes everything on Close.
//
// Each service has its own lock: authMu covers the auth state machine and
// the key ring, dbMu covers every metadata read and write, and fileMu
// covers blob content. Content operations also rewrite metadata, so they
// hold fileMu and then dbMu for their whole run; metadata mutations are
// therefore fully serialized. The upload registry and the compression
// engine synchronize themselves.
type VaultApp struct {
	cfg      *config.Config
	store    sv.MetadataStore
	blobs    sv.BlobStore
	keys     *encryption.KeyRing
	auth     *auth.Manager
	service  *sv.Service
	uploads  *staging.Registry
	registry *prometheus.Registry
	logger   sv.Logger
	clock    sv.Clock
	op       *Operation
	logFile  *os.File

	authMu sync.Mutex
	dbMu   sync.Mutex
	fileMu sync.Mutex
}

// NewVaultApp creates a fully wired VaultApp from the given config.
// operation names the command being run (e.g. "AddFile", "Export").
// The caller must call Close when done.
func NewVaultApp(cfg *config.Config, operation string) (*VaultApp, error) {
	return newVaultApp(cfg, operation, sv.RealClock{}, sv.UUIDGenerator{})
}

func newVaultApp(cfg *config.Config, operation string, clock sv.Clock, ids sv.IDGenerator) (*VaultApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := NewOperation(operation, clock.Now())
	slogger, logFile, err := newLogger(cfg.LogDir, op.ID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	blobs, err := vault.NewVaultFromConfig(cfg.Vault)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	if err := blobs.ValidateSetup(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("vault not usable: %w", err)
	}

	store, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}

	fail := func(err error) (*VaultApp, error) {
		store.Close()
		logFile.Close()
		return nil, err
	}

	if checker, ok := store.(migrationChecker); ok {
		if err := checker.CheckMigrations(); err != nil {
			return fail(fmt.Errorf("database schema out of date: %w", err))
		}
	}

	engine, err := compress.NewEngine(compressOptions(cfg.Compression))
	if err != nil {
		return fail(fmt.Errorf("creating compression engine: %w", err))
	}

	keys, err := encryption.NewKeyRing(encryption.DefaultKeyCacheSize)
	if err != nil {
		return fail(fmt.Errorf("creating key ring: %w", err))
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	uploads, err := staging.NewRegistryFromConfig(cfg.Upload, cfg.Ingest.MaxFileSize, engine, clock, ids, logger.With("component", "upload"))
	if err != nil {
		return fail(fmt.Errorf("creating upload registry: %w", err))
	}

	authMgr := auth.NewManager(store, auth.OptionsFromConfig(cfg.Auth), clock, ids, logger.With("component", "auth"), m)
	fsmgr := fs.NewOSFilesystemManager(cfg.Ingest.Ignore...)
	svc := sv.NewService(store, blobs, keys, engine, fsmgr, logger, m, clock, ids, serviceOptions(cfg))

	logger.Info("operation started", "operation", op.Name, "vault", cfg.VaultRoot)

	return &VaultApp{
		cfg:      cfg,
		store:    store,
		blobs:    blobs,
		keys:     keys,
		auth:     authMgr,
		service:  svc,
		uploads:  uploads,
		registry: registry,
		logger:   logger,
		clock:    clock,
		op:       op,
		logFile:  logFile,
	}, nil
}

// lockContent takes fileMu and then dbMu, and returns the matching unlock.
func (a *VaultApp) lockContent() func() {
	a.fileMu.Lock()
	a.dbMu.Lock()
	return func() {
		a.dbMu.Unlock()
		a.fileMu.Unlock()
	}
}

// migrationChecker is implemented by stores with a versioned schema.
type migrationChecker interface {
	CheckMigrations() error
}

func compressOptions(cfg config.CompressionConfig) compress.Options {
	opts := compress.Options{
		Enabled:   cfg.Enabled,
		Level:     cfg.Level,
		Threshold: cfg.Threshold,
		Excluded:  cfg.Excluded,
	}
	if opts.Excluded == nil {
		opts.Excluded = compress.DefaultExcluded
	}
	return opts
}

func serviceOptions(cfg *config.Config) sv.Options {
	return sv.Options{
		ParallelThreshold: cfg.Ingest.ParallelThreshold,
		CompressChunkSize: cfg.Ingest.CompressChunkSize,
		EncryptChunkSize:  cfg.Ingest.EncryptChunkSize,
		HashChunkSize:     cfg.Ingest.HashChunkSize,
		MaxWorkers:        cfg.Ingest.MaxWorkers,
		MaxFileSize:       cfg.Ingest.MaxFileSize,
		TempDir:           cfg.Upload.TempDir,
	}
}

// Metrics returns the registry the vault's collectors are registered on.
func (a *VaultApp) Metrics() prometheus.Gatherer {
	return a.registry
}

// --- Authentication ---

// HasPin reports whether the vault has been initialized with a PIN.
func (a *VaultApp) HasPin() (bool, error) {
	a.authMu.Lock()
	defer a.authMu.Unlock()
	return a.auth.HasPin()
}

// SetPin initializes the vault with its first PIN and a new master key.
// The vault stays locked until Authenticate is called.
func (a *VaultApp) SetPin(pin string, complexity auth.Complexity) error {
	a.authMu.Lock()
	defer a.authMu.Unlock()
	return a.auth.SetPin(pin, complexity)
}

// Authenticate verifies pin and unlocks the vault for a session.
func (a *VaultApp) Authenticate(pin string) error {
	a.authMu.Lock()
	defer a.authMu.Unlock()
	master, err := a.auth.VerifyPin(pin)
	if err != nil {
		return err
	}
	a.keys.Install(master)
	return nil
}

// AuthenticateRecoveryKey unlocks the vault with a recovery key. The
// resulting session is shorter than a PIN session.
func (a *VaultApp) AuthenticateRecoveryKey(key string) error {
	a.authMu.Lock()
	defer a.authMu.Unlock()
	master, err := a.auth.VerifyRecoveryKey(key)
	if err != nil {
		return err
	}
	a.keys.Install(master)
	return nil
}

// ChangePin replaces the PIN. The master key, and so every stored file,
// is unchanged.
func (a *VaultApp) ChangePin(oldPin, newPin string, complexity auth.Complexity) error {
	a.authMu.Lock()
	defer a.authMu.Unlock()
	return a.auth.ChangePin(oldPin, newPin, complexity)
}

// ResetPin sets a new PIN without the old one. It requires a session,
// typically one opened with a recovery key.
func (a *VaultApp) ResetPin(newPin string, complexity auth.Complexity) error {
	if err := a.requireSession("ResetPin"); err != nil {
		return err
	}
	a.authMu.Lock()
	defer a.authMu.Unlock()
	return a.keys.WithMaster(func(master *encryption.Key) error {
		return a.auth.ResetPin(newPin, complexity, master)
	})
}

// GenerateRecoveryKey creates a new recovery key for the current master
// key. The key is returned once and cannot be retrieved again.
func (a *VaultApp) GenerateRecoveryKey() (string, error) {
	if err := a.requireSession("GenerateRecoveryKey"); err != nil {
		return "", err
	}
	a.authMu.Lock()
	defer a.authMu.Unlock()
	var key string
	err := a.keys.WithMaster(func(master *encryption.Key) error {
		var err error
		key, err = a.auth.GenerateRecoveryKey(master)
		return err
	})
	return key, err
}

// Logout ends the session and wipes the master key and every cached file key.
func (a *VaultApp) Logout() {
	a.authMu.Lock()
	defer a.authMu.Unlock()
	a.auth.Logout()
	a.keys.Clear()
}

// AuthStatus describes the authentication state for display.
type AuthStatus struct {
	State            auth.State
	Session          *auth.Session
	FailedAttempts   int
	LockoutRemaining string
}

// AuthState reports the current authentication state.
func (a *VaultApp) AuthState() (*AuthStatus, error) {
	a.authMu.Lock()
	defer a.authMu.Unlock()
	failed, err := a.auth.FailedAttempts()
	if err != nil {
		return nil, err
	}
	remaining, err := a.auth.LockoutRemaining()
	if err != nil {
		return nil, err
	}
	status := &AuthStatus{
		State:          a.auth.State(),
		Session:        a.auth.Session(),
		FailedAttempts: failed,
	}
	if remaining > 0 {
		status.LockoutRemaining = formatWait(remaining)
	}
	return status, nil
}

// requireSession fails unless a session is live. An expired session has
// its keys wiped here so nothing can decrypt after the timeout.
func (a *VaultApp) requireSession(op string) error {
	a.authMu.Lock()
	defer a.authMu.Unlock()
	if a.auth.IsSessionValid() {
		return nil
	}
	a.keys.Clear()
	if a.auth.State() == auth.SessionExpired {
		return vaulterr.New(vaulterr.CodeSessionExpired, op)
	}
	return vaulterr.New(vaulterr.CodeNotAuthenticated, op)
}

// --- Files ---

// AddFile stores the local file at rawPath under name (the file's base name
// when empty) in folderID (nil = root).
func (a *VaultApp) AddFile(ctx context.Context, rawPath, name string, folderID *string) (*model.FileEntry, error) {
	if err := a.requireSession("AddFile"); err != nil {
		return nil, err
	}
	defer a.lockContent()()
	return a.finish(a.service.AddFromPath(ctx, rawPath, name, folderID))
}

// ImportPath stores a file or a whole directory tree.
func (a *VaultApp) ImportPath(ctx context.Context, rawPath string, folderID *string) ([]*model.FileEntry, error) {
	if err := a.requireSession("ImportPath"); err != nil {
		return nil, err
	}
	defer a.lockContent()()
	entries, err := a.service.ImportPath(ctx, rawPath, folderID)
	a.op.Record(err)
	return entries, err
}

// UpdateFileContent replaces a stored file's content with a local file.
func (a *VaultApp) UpdateFileContent(ctx context.Context, id, rawPath string) (*model.FileEntry, error) {
	if err := a.requireSession("UpdateFileContent"); err != nil {
		return nil, err
	}
	defer a.lockContent()()
	return a.finish(a.service.UpdateFromPath(ctx, id, rawPath))
}

// GetFileContent returns a file's verified plaintext.
func (a *VaultApp) GetFileContent(ctx context.Context, id string) ([]byte, error) {
	if err := a.requireSession("GetFileContent"); err != nil {
		return nil, err
	}
	defer a.lockContent()()
	data, _, err := a.service.GetFileContent(ctx, id)
	a.op.Record(err)
	return data, err
}

// ExportFile writes a file's verified plaintext to destPath.
func (a *VaultApp) ExportFile(ctx context.Context, id, destPath string) error {
	if err := a.requireSession("ExportFile"); err != nil {
		return err
	}
	absPath, err := filepath.Abs(destPath)
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "ExportFile", fmt.Errorf("resolving path: %w", err))
	}
	defer a.lockContent()()
	_, err = a.service.ExportFile(ctx, id, absPath)
	a.op.Record(err)
	return err
}

// RemoveFile permanently deletes a file and its blob.
func (a *VaultApp) RemoveFile(id string) error {
	if err := a.requireSession("RemoveFile"); err != nil {
		return err
	}
	defer a.lockContent()()
	return a.op.Record(a.service.RemoveFile(id))
}

// EmptyTrash permanently deletes every trashed file.
func (a *VaultApp) EmptyTrash() (int, error) {
	if err := a.requireSession("EmptyTrash"); err != nil {
		return 0, err
	}
	defer a.lockContent()()
	n, err := a.service.EmptyTrash()
	a.op.Record(err)
	return n, err
}

// GetFile returns a file's metadata.
func (a *VaultApp) GetFile(id string) (*model.FileEntry, error) {
	if err := a.requireSession("GetFile"); err != nil {
		return nil, err
	}
	a.dbMu.Lock()
	defer a.dbMu.Unlock()
	return a.service.GetFile(id)
}

// RenameFile changes a file's display name.
func (a *VaultApp) RenameFile(id, name string) (*model.FileEntry, error) {
	if err := a.requireSession("RenameFile"); err != nil {
		return nil, err
	}
	a.dbMu.Lock()
	defer a.dbMu.Unlock()
	return a.finish(a.service.RenameFile(id, name))
}

// MoveFile moves a file into folderID (nil = root).
func (a *VaultApp) MoveFile(id string, folderID *string) (*model.FileEntry, error) {
	if err := a.requireSession("MoveFile"); err != nil {
		return nil, err
	}
	a.dbMu.Lock()
	defer a.dbMu.Unlock()
	return a.finish(a.service.MoveFile(id, folderID))
}

// TrashFile moves a file to the trash.
func (a *VaultApp) TrashFile(id string) error {
	if err := a.requireSession("TrashFile"); err != nil {
		return err
	}
	a.dbMu.Lock()
	defer a.dbMu.Unlock()
	return a.op.Record(a.service.TrashFile(id))
}

// RestoreFile takes a file out of the trash.
func (a *VaultApp) RestoreFile(id string) (*model.FileEntry, error) {
	if err := a.requireSession("RestoreFile"); err != nil {
		return nil, err
	}
	a.dbMu.Lock()
	defer a.dbMu.Unlock()
	return a.finish(a.service.RestoreFile(id))
}

// ListFiles returns the live files directly in folderID (nil = root).
func (a *VaultApp) ListFiles(folderID *string) ([]*model.FileEntry, error) {
	if err := a.requireSession("ListFiles"); err != nil {
		return nil, err
	}
	a.dbMu.Lock()
	defer a.dbMu.Unlock()
	return a.service.ListFiles(folderID)
}

// ListTrash returns the trashed files.
func (a *VaultApp) ListTrash() ([]*model.FileEntry, error) {
	if err := a.requireSession("ListTrash"); err != nil {
		return nil, err
	}
	a.dbMu.Lock()
	defer a.dbMu.Unlock()
	return a.service.ListTrash()
}

// SearchFiles matches live files by name, description or tag.
func (a *VaultApp) SearchFiles(query string) ([]*model.FileEntry, error) {
	if err := a.requireSession("SearchFiles"); err != nil {
		return nil, err
	}
	a.dbMu.Lock()
	defer a.dbMu.Unlock()
	return a.service.SearchFiles(query)
}

// --- Folders ---

// CreateFolder creates a folder under parentID (nil = root).
func (a *VaultApp) CreateFolder(name string, parentID *string) (*model.FolderEntry, error) {
	if err := a.requireSession("CreateFolder"); err != nil {
		return nil, err
	}
	a.dbMu.Lock()
	defer a.dbMu.Unlock()
	f, err := a.service.CreateFolder(name, parentID)
	a.op.Record(err)
	return f, err
}

// DeleteFolder removes a folder; recursive also removes its contents and
// returns how many files went with it.
func (a *VaultApp) DeleteFolder(id string, recursive bool) (int, error) {
	if err := a.requireSession("DeleteFolder"); err != nil {
		return 0, err
	}
	defer a.lockContent()()
	n, err := a.service.DeleteFolder(id, recursive)
	a.op.Record(err)
	return n, err
}

// RenameFolder renames a folder.
func (a *VaultApp) RenameFolder(id, name string) error {
	if err := a.requireSession("RenameFolder"); err != nil {
		return err
	}
	a.dbMu.Lock()
	defer a.dbMu.Unlock()
	return a.op.Record(a.service.RenameFolder(id, name))
}

// MoveFolder reparents a folder under parentID (nil = root).
func (a *VaultApp) MoveFolder(id string, parentID *string) error {
	if err := a.requireSession("MoveFolder"); err != nil {
		return err
	}
	a.dbMu.Lock()
	defer a.dbMu.Unlock()
	return a.op.Record(a.service.MoveFolder(id, parentID))
}

// ListFolders returns the direct children of parentID (nil = root).
func (a *VaultApp) ListFolders(parentID *string) ([]*model.FolderEntry, error) {
	if err := a.requireSession("ListFolders"); err != nil {
		return nil, err
	}
	a.dbMu.Lock()
	defer a.dbMu.Unlock()
	return a.service.ListFolders(parentID)
}

// FolderStats returns a folder's recursive size and counts.
func (a *VaultApp) FolderStats(id string) (*sv.FolderStats, error) {
	if err := a.requireSession("FolderStats"); err != nil {
		return nil, err
	}
	a.dbMu.Lock()
	defer a.dbMu.Unlock()
	if _, err := a.service.GetFolder(id); err != nil {
		return nil, err
	}
	return a.service.FolderStats(id)
}

// Close ends the session and releases every resource.
func (a *VaultApp) Close() error {
	a.Logout()

	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	a.op.Finish(a.clock.Now())
	a.logger.Info("operation finished", "operation", a.op.Name, "status", a.op.Status, "elapsed", a.op.Elapsed().String())
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

func (a *VaultApp) finish(entry *model.FileEntry, err error) (*model.FileEntry, error) {
	a.op.Record(err)
	return entry, err
}
