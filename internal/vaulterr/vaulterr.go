// Package vaulterr defines the structured error taxonomy shared by every
// layer of the vault. Errors carry a Code; callers match with errors.Is
// against the exported sentinels and never by message text.
package vaulterr

import (
	"errors"
	"fmt"
	"time"
)

// Kind groups codes into the broad families surfaced at the command boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindAuth
	KindCrypto
	KindCompression
	KindFile
	KindFolder
	KindDatabase
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindCrypto:
		return "crypto"
	case KindCompression:
		return "compression"
	case KindFile:
		return "file"
	case KindFolder:
		return "folder"
	case KindDatabase:
		return "database"
	default:
		return "internal"
	}
}

// Code identifies a single failure case.
type Code string

const (
	CodeInvalidFormat     Code = "auth.invalid_format"
	CodeAuthFailed        Code = "auth.failed"
	CodeNoPinSet          Code = "auth.no_pin_set"
	CodeSessionExpired    Code = "auth.session_expired"
	CodeLocked            Code = "auth.locked"
	CodeRecoveryInactive  Code = "auth.recovery_inactive"
	CodePinExpired        Code = "auth.pin_expired"
	CodePinAlreadySet     Code = "auth.pin_already_set"
	CodeNotAuthenticated  Code = "auth.not_authenticated"
	CodeNoMasterKey       Code = "crypto.no_master_key"
	CodeEncryptionFailed  Code = "crypto.encryption_failed"
	CodeDecryptionFailed  Code = "crypto.decryption_failed"
	CodeInvalidKey        Code = "crypto.invalid_key"
	CodeInvalidSalt       Code = "crypto.invalid_salt"
	CodeInvalidSecret     Code = "crypto.invalid_secret"
	CodeInvalidData       Code = "crypto.invalid_data"
	CodeCorruptedMetadata Code = "crypto.corrupted_metadata"
	CodeCompressFailed    Code = "compression.failed"
	CodeDecompressFailed  Code = "compression.decompress_failed"
	CodeInvalidCompressed Code = "compression.invalid_data"
	CodeFileNotFound      Code = "file.not_found"
	CodeFileReadFailed    Code = "file.read_failed"
	CodeFileWriteFailed   Code = "file.write_failed"
	CodeInvalidFileName   Code = "file.invalid_name"
	CodeSizeExceeded      Code = "file.size_exceeded"
	CodeSizeMismatch      Code = "file.size_mismatch"
	CodeMissingChunk      Code = "file.missing_chunk"
	CodeSessionNotFound   Code = "file.upload_session_not_found"
	CodeFolderNotFound    Code = "folder.not_found"
	CodeDuplicateName     Code = "folder.duplicate_name"
	CodeFolderNotEmpty    Code = "folder.not_empty"
	CodeCircularReference Code = "folder.circular_reference"
	CodeInvalidFolderName Code = "folder.invalid_name"
	CodeDBConnection      Code = "database.connection"
	CodeDBQuery           Code = "database.query"
	CodeDBMigration       Code = "database.migration"
	CodeDBIntegrity       Code = "database.integrity"
	CodeInternal          Code = "internal"
)

var kinds = map[string]Kind{
	"auth":        KindAuth,
	"crypto":      KindCrypto,
	"compression": KindCompression,
	"file":        KindFile,
	"folder":      KindFolder,
	"database":    KindDatabase,
}

// Kind reports the family a code belongs to.
func (c Code) Kind() Kind {
	s := string(c)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			if k, ok := kinds[s[:i]]; ok {
				return k
			}
			break
		}
	}
	return KindInternal
}

// Error is the concrete error type. Op names the failing operation and
// Err keeps the underlying cause for logs; neither is shown to users.
type Error struct {
	Code       Code
	Op         string
	Err        error
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New returns an error with the given code.
func New(code Code, op string) error {
	return &Error{Code: code, Op: op}
}

// Wrap attaches a code to an underlying error. A nil err yields nil.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Err: err}
}

// Locked returns a lockout error carrying the remaining wait time.
func Locked(op string, remaining time.Duration) error {
	return &Error{Code: CodeLocked, Op: op, RetryAfter: remaining}
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// KindOf returns the family of the outermost code in err's chain.
func KindOf(err error) Kind {
	return CodeOf(err).Kind()
}

// RetryAfter reports the wait time carried by a lockout error.
func RetryAfter(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeLocked {
		return e.RetryAfter, true
	}
	return 0, false
}

// Sentinels for errors.Is.
var (
	ErrInvalidFormat     = &Error{Code: CodeInvalidFormat}
	ErrAuthFailed        = &Error{Code: CodeAuthFailed}
	ErrNoPinSet          = &Error{Code: CodeNoPinSet}
	ErrSessionExpired    = &Error{Code: CodeSessionExpired}
	ErrLocked            = &Error{Code: CodeLocked}
	ErrRecoveryInactive  = &Error{Code: CodeRecoveryInactive}
	ErrPinExpired        = &Error{Code: CodePinExpired}
	ErrPinAlreadySet     = &Error{Code: CodePinAlreadySet}
	ErrNotAuthenticated  = &Error{Code: CodeNotAuthenticated}
	ErrNoMasterKey       = &Error{Code: CodeNoMasterKey}
	ErrEncryptionFailed  = &Error{Code: CodeEncryptionFailed}
	ErrDecryptionFailed  = &Error{Code: CodeDecryptionFailed}
	ErrInvalidKey        = &Error{Code: CodeInvalidKey}
	ErrInvalidSalt       = &Error{Code: CodeInvalidSalt}
	ErrInvalidSecret     = &Error{Code: CodeInvalidSecret}
	ErrInvalidData       = &Error{Code: CodeInvalidData}
	ErrCorruptedMetadata = &Error{Code: CodeCorruptedMetadata}
	ErrCompressFailed    = &Error{Code: CodeCompressFailed}
	ErrDecompressFailed  = &Error{Code: CodeDecompressFailed}
	ErrInvalidCompressed = &Error{Code: CodeInvalidCompressed}
	ErrFileNotFound      = &Error{Code: CodeFileNotFound}
	ErrFileReadFailed    = &Error{Code: CodeFileReadFailed}
	ErrFileWriteFailed   = &Error{Code: CodeFileWriteFailed}
	ErrInvalidFileName   = &Error{Code: CodeInvalidFileName}
	ErrSizeExceeded      = &Error{Code: CodeSizeExceeded}
	ErrSizeMismatch      = &Error{Code: CodeSizeMismatch}
	ErrMissingChunk      = &Error{Code: CodeMissingChunk}
	ErrSessionNotFound   = &Error{Code: CodeSessionNotFound}
	ErrFolderNotFound    = &Error{Code: CodeFolderNotFound}
	ErrDuplicateName     = &Error{Code: CodeDuplicateName}
	ErrFolderNotEmpty    = &Error{Code: CodeFolderNotEmpty}
	ErrCircularReference = &Error{Code: CodeCircularReference}
	ErrInvalidFolderName = &Error{Code: CodeInvalidFolderName}
	ErrDBConnection      = &Error{Code: CodeDBConnection}
	ErrDBQuery           = &Error{Code: CodeDBQuery}
	ErrDBMigration       = &Error{Code: CodeDBMigration}
	ErrDBIntegrity       = &Error{Code: CodeDBIntegrity}
)
