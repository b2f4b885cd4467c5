// Package auth is the vault's authentication state machine: PIN and
// recovery-key verification, timed brute-force lockout, and session expiry.
//
// The vault master key never depends on the PIN. It is random, and a copy
// is stored wrapped under each credential (see records.go); a successful
// verification unwraps and returns it.
package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"securevault/internal/config"
	"securevault/internal/encryption"
	"securevault/internal/sv"
	"securevault/internal/vaulterr"
)

// Method records how a session was authenticated.
type Method string

const (
	MethodPin      Method = "pin"
	MethodRecovery Method = "recovery"
)

// State is the externally visible authentication state.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	SessionExpired
	AccountLocked
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case SessionExpired:
		return "session_expired"
	case AccountLocked:
		return "locked"
	default:
		return "unauthenticated"
	}
}

// RecoveryKeySize is the raw length of a recovery key before base64.
const RecoveryKeySize = 32

// maxLockoutFactor caps lockout escalation at 16x the base window.
const maxLockoutFactor = 16

// Options tunes sessions and brute-force protection.
type Options struct {
	PinSession      time.Duration
	RecoverySession time.Duration
	MaxAttempts     int
	BaseLockout     time.Duration
	PinMaxAge       time.Duration // 0 disables PIN expiry
}

// DefaultOptions returns the standard settings: 1h PIN sessions, 30min
// recovery sessions, 5 attempts, 30min base lockout.
func DefaultOptions() Options {
	return Options{
		PinSession:      time.Hour,
		RecoverySession: 30 * time.Minute,
		MaxAttempts:     5,
		BaseLockout:     30 * time.Minute,
	}
}

// OptionsFromConfig converts the [auth] config section.
func OptionsFromConfig(cfg config.AuthConfig) Options {
	opts := DefaultOptions()
	if cfg.PinSessionSeconds > 0 {
		opts.PinSession = time.Duration(cfg.PinSessionSeconds) * time.Second
	}
	if cfg.RecoverySessionSeconds > 0 {
		opts.RecoverySession = time.Duration(cfg.RecoverySessionSeconds) * time.Second
	}
	if cfg.MaxAttempts > 0 {
		opts.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseLockoutSeconds > 0 {
		opts.BaseLockout = time.Duration(cfg.BaseLockoutSeconds) * time.Second
	}
	if cfg.PinMaxAgeDays > 0 {
		opts.PinMaxAge = time.Duration(cfg.PinMaxAgeDays) * 24 * time.Hour
	}
	return opts
}

// Session is an authenticated session.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastActivity time.Time
	Timeout      time.Duration
	Method       Method
	IsActive     bool
}

// Manager is the authentication state machine. It is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	store   CredentialStore
	opts    Options
	clock   sv.Clock
	ids     sv.IDGenerator
	logger  sv.Logger
	metrics sv.Metrics

	session *Session
	expired bool
}

// NewManager creates a Manager over store.
func NewManager(store CredentialStore, opts Options, clock sv.Clock, ids sv.IDGenerator, logger sv.Logger, metrics sv.Metrics) *Manager {
	return &Manager{
		store:   store,
		opts:    opts,
		clock:   clock,
		ids:     ids,
		logger:  logger,
		metrics: metrics,
	}
}

// HasPin reports whether a PIN has been set.
func (m *Manager) HasPin() (bool, error) {
	rec, err := load[pinRecord](m.store, keyPin)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// SetPin sets the first PIN of a new vault and creates the vault master key,
// stored wrapped under the PIN. It fails if a PIN already exists; use
// ChangePin or ResetPin instead.
func (m *Manager) SetPin(pin string, c Complexity) error {
	if err := ValidatePin(pin, c); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := load[pinRecord](m.store, keyPin)
	if err != nil {
		return err
	}
	if existing != nil {
		return vaulterr.New(vaulterr.CodePinAlreadySet, "SetPin")
	}

	master, err := encryption.RandomKey()
	if err != nil {
		return err
	}
	defer master.Wipe()

	if err := m.writePin(pin, c, master); err != nil {
		return err
	}
	m.logger.Info("pin set", "complexity", c.String())
	return nil
}

// writePin stores a fresh PIN record and re-wraps master under pin. The
// wrap is written first so a failure never leaves a PIN that cannot
// unlock the vault.
func (m *Manager) writePin(pin string, c Complexity, master *encryption.Key) error {
	salt, err := encryption.NewSalt()
	if err != nil {
		return err
	}
	if err := wrapMaster(m.store, keyMasterPin, master, []byte(pin)); err != nil {
		return err
	}
	return save(m.store, keyPin, &pinRecord{
		Hash:       hashPin(pin, salt),
		Salt:       salt,
		Complexity: c,
		CreatedAt:  m.clock.Now(),
	})
}

// ChangePin replaces the PIN after verifying the old one. The old PIN is
// checked under the same lockout rules as VerifyPin, and an expired old PIN
// is accepted so it can be replaced.
func (m *Manager) ChangePin(oldPin, newPin string, c Complexity) error {
	if err := ValidatePin(newPin, c); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.checkPin("ChangePin", oldPin); err != nil {
		return err
	}

	master, err := unwrapMaster(m.store, keyMasterPin, []byte(oldPin))
	if err != nil {
		return err
	}
	defer master.Wipe()

	if err := m.writePin(newPin, c, master); err != nil {
		return err
	}
	m.logger.Info("pin changed", "complexity", c.String())
	return nil
}

// ResetPin replaces the PIN without the old one. It requires a valid session
// (typically opened with a recovery key) and the master key that session
// unlocked.
func (m *Manager) ResetPin(newPin string, c Complexity, master *encryption.Key) error {
	if err := ValidatePin(newPin, c); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sessionValidLocked() {
		return vaulterr.New(vaulterr.CodeNotAuthenticated, "ResetPin")
	}
	if err := m.writePin(newPin, c, master); err != nil {
		return err
	}
	m.logger.Info("pin reset", "method", string(m.session.Method))
	return nil
}

// VerifyPin authenticates with a PIN. On success it opens a PIN session and
// returns the vault master key, which the caller owns.
//
// An open lockout is reported before anything else and does not consume an
// attempt. A malformed PIN is rejected without counting as a failure.
func (m *Manager) VerifyPin(pin string) (*encryption.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.checkPin("VerifyPin", pin)
	if err != nil {
		m.metrics.AuthAttempt(string(MethodPin), resultLabel(err))
		return nil, err
	}

	if m.opts.PinMaxAge > 0 && m.clock.Now().Sub(rec.CreatedAt) > m.opts.PinMaxAge {
		m.metrics.AuthAttempt(string(MethodPin), "expired")
		m.logger.Warn("pin expired", "set_at", rec.CreatedAt)
		return nil, vaulterr.New(vaulterr.CodePinExpired, "VerifyPin")
	}

	master, err := unwrapMaster(m.store, keyMasterPin, []byte(pin))
	if err != nil {
		m.metrics.AuthAttempt(string(MethodPin), "error")
		return nil, err
	}

	m.openSession(MethodPin, m.opts.PinSession)
	m.metrics.AuthAttempt(string(MethodPin), "success")
	m.logger.Info("authenticated", "method", string(MethodPin), "session", m.session.ID)
	return master, nil
}

// checkPin runs lockout, format and hash checks and updates the brute-force
// state. It returns the PIN record on a match.
func (m *Manager) checkPin(op, pin string) (*pinRecord, error) {
	bf, err := m.bruteForce()
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()

	if bf.IsLocked {
		if remaining := bf.LockoutUntil.Sub(now); remaining > 0 {
			return nil, vaulterr.Locked(op, remaining)
		}
		// Window elapsed: the lock clears itself but the escalation count stays.
		bf.IsLocked = false
		bf.LockoutUntil = nil
		bf.FailedAttempts = 0
		if err := save(m.store, keyBruteForce, bf); err != nil {
			return nil, err
		}
	}

	if !pinPattern.MatchString(pin) {
		return nil, vaulterr.New(vaulterr.CodeInvalidFormat, op)
	}

	rec, err := load[pinRecord](m.store, keyPin)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, vaulterr.New(vaulterr.CodeNoPinSet, op)
	}

	if !hashEqual(hashPin(pin, rec.Salt), rec.Hash) {
		bf.FailedAttempts++
		bf.LastFailureTime = &now
		if bf.FailedAttempts >= m.opts.MaxAttempts {
			bf.Lockouts++
			until := now.Add(m.lockoutWindow(bf.Lockouts))
			bf.IsLocked = true
			bf.LockoutUntil = &until
			m.logger.Warn("account locked", "attempts", bf.FailedAttempts, "until", until)
		}
		if err := save(m.store, keyBruteForce, bf); err != nil {
			return nil, err
		}
		return nil, vaulterr.New(vaulterr.CodeAuthFailed, op)
	}

	if err := m.resetBruteForce(); err != nil {
		return nil, err
	}
	return rec, nil
}

// lockoutWindow is base * 2^(n-1), capped at maxLockoutFactor * base.
func (m *Manager) lockoutWindow(n int) time.Duration {
	factor := 1
	for i := 1; i < n && factor < maxLockoutFactor; i++ {
		factor *= 2
	}
	return time.Duration(factor) * m.opts.BaseLockout
}

func (m *Manager) bruteForce() (*bruteForceState, error) {
	bf, err := load[bruteForceState](m.store, keyBruteForce)
	if err != nil {
		return nil, err
	}
	if bf == nil {
		bf = &bruteForceState{}
	}
	return bf, nil
}

func (m *Manager) resetBruteForce() error {
	return save(m.store, keyBruteForce, &bruteForceState{})
}

// GenerateRecoveryKey creates a new single-use recovery key, replacing any
// previous one, and wraps master under it. It requires a valid session. The
// returned base64 key is never stored and cannot be shown again.
func (m *Manager) GenerateRecoveryKey(master *encryption.Key) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sessionValidLocked() {
		return "", vaulterr.New(vaulterr.CodeNotAuthenticated, "GenerateRecoveryKey")
	}

	raw, err := encryption.RandomKey()
	if err != nil {
		return "", err
	}
	defer raw.Wipe()

	if err := wrapMaster(m.store, keyMasterRecovery, master, raw.Bytes()); err != nil {
		return "", err
	}
	hash := sha256.Sum256(raw.Bytes())
	if err := save(m.store, keyRecovery, &recoveryRecord{
		Hash:      hash[:],
		CreatedAt: m.clock.Now(),
		IsActive:  true,
	}); err != nil {
		return "", err
	}

	m.logger.Info("recovery key generated")
	return base64.StdEncoding.EncodeToString(raw.Bytes()), nil
}

// VerifyRecoveryKey authenticates with a recovery key. The key is consumed
// on success; a recovery session is shorter than a PIN session. Success
// also clears any PIN lockout.
func (m *Manager) VerifyRecoveryKey(key string) (*encryption.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	master, err := m.verifyRecoveryKey(key)
	if err != nil {
		m.metrics.AuthAttempt(string(MethodRecovery), resultLabel(err))
		return nil, err
	}
	m.openSession(MethodRecovery, m.opts.RecoverySession)
	m.metrics.AuthAttempt(string(MethodRecovery), "success")
	m.logger.Info("authenticated", "method", string(MethodRecovery), "session", m.session.ID)
	return master, nil
}

func (m *Manager) verifyRecoveryKey(key string) (*encryption.Key, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(raw) != RecoveryKeySize {
		return nil, vaulterr.New(vaulterr.CodeInvalidFormat, "VerifyRecoveryKey")
	}
	defer clear(raw)

	rec, err := load[recoveryRecord](m.store, keyRecovery)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Used || !rec.IsActive {
		return nil, vaulterr.New(vaulterr.CodeRecoveryInactive, "VerifyRecoveryKey")
	}
	hash := sha256.Sum256(raw)
	if !hashEqual(hash[:], rec.Hash) {
		return nil, vaulterr.New(vaulterr.CodeAuthFailed, "VerifyRecoveryKey")
	}

	master, err := unwrapMaster(m.store, keyMasterRecovery, raw)
	if err != nil {
		return nil, err
	}

	rec.Used = true
	rec.IsActive = false
	if err := save(m.store, keyRecovery, rec); err != nil {
		master.Wipe()
		return nil, err
	}
	if err := m.store.DeleteConfig(keyMasterRecovery); err != nil {
		m.logger.Warn("failed to drop used recovery wrap", "error", err)
	}
	if err := m.resetBruteForce(); err != nil {
		master.Wipe()
		return nil, err
	}
	return master, nil
}

func (m *Manager) openSession(method Method, timeout time.Duration) {
	now := m.clock.Now()
	m.session = &Session{
		ID:           m.ids.New().String(),
		CreatedAt:    now,
		LastActivity: now,
		Timeout:      timeout,
		Method:       method,
		IsActive:     true,
	}
	m.expired = false
}

// IsSessionValid reports whether the session is still live. A valid check
// refreshes the session's activity time; a timed-out session is cleared and
// the state becomes SessionExpired.
func (m *Manager) IsSessionValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionValidLocked()
}

func (m *Manager) sessionValidLocked() bool {
	if m.session == nil || !m.session.IsActive {
		return false
	}
	now := m.clock.Now()
	if now.Sub(m.session.LastActivity) > m.session.Timeout {
		m.logger.Info("session expired", "session", m.session.ID, "method", string(m.session.Method))
		m.session = nil
		m.expired = true
		return false
	}
	m.session.LastActivity = now
	return true
}

// Session returns a copy of the current session, or nil.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// Logout ends the session. The caller clears the master key.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.logger.Info("logged out", "session", m.session.ID)
	}
	m.session = nil
	m.expired = false
}

// State reports the current state without refreshing the session.
// An open lockout takes precedence over everything else.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if remaining, _ := m.lockoutRemainingLocked(); remaining > 0 {
		return AccountLocked
	}
	if m.session != nil && m.clock.Now().Sub(m.session.LastActivity) <= m.session.Timeout {
		return Authenticated
	}
	if m.session != nil || m.expired {
		return SessionExpired
	}
	return Unauthenticated
}

// LockoutRemaining returns how long PIN attempts stay blocked, or 0.
func (m *Manager) LockoutRemaining() (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lockoutRemainingLocked()
}

func (m *Manager) lockoutRemainingLocked() (time.Duration, error) {
	bf, err := m.bruteForce()
	if err != nil {
		return 0, err
	}
	if !bf.IsLocked || bf.LockoutUntil == nil {
		return 0, nil
	}
	return max(bf.LockoutUntil.Sub(m.clock.Now()), 0), nil
}

// FailedAttempts returns the consecutive failures since the last success.
func (m *Manager) FailedAttempts() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bf, err := m.bruteForce()
	if err != nil {
		return 0, err
	}
	return bf.FailedAttempts, nil
}

func resultLabel(err error) string {
	switch vaulterr.CodeOf(err) {
	case vaulterr.CodeAuthFailed:
		return "invalid"
	case vaulterr.CodeInvalidFormat:
		return "invalid_format"
	case vaulterr.CodeLocked:
		return "locked"
	case vaulterr.CodeRecoveryInactive:
		return "deactivated"
	case vaulterr.CodeNoPinSet:
		return "no_pin"
	default:
		return fmt.Sprintf("error_%s", vaulterr.KindOf(err))
	}
}
