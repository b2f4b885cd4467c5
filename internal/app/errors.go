package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"securevault/internal/vaulterr"
)

const genericFailure = "operation failed, try again"

var messages = map[vaulterr.Code]string{
	vaulterr.CodeInvalidFormat:     "PIN does not meet the complexity rules",
	vaulterr.CodeAuthFailed:        "PIN incorrect",
	vaulterr.CodeNoPinSet:          "PIN incorrect",
	vaulterr.CodeSessionExpired:    "session expired, sign in again",
	vaulterr.CodeNotAuthenticated:  "not signed in",
	vaulterr.CodeRecoveryInactive:  "recovery key is no longer valid",
	vaulterr.CodePinExpired:        "PIN has expired, change it to continue",
	vaulterr.CodePinAlreadySet:     "a PIN is already set",
	vaulterr.CodeNoMasterKey:       "vault is locked, sign in again",
	vaulterr.CodeInvalidData:       "file is empty or invalid",
	vaulterr.CodeFileNotFound:      "file not found",
	vaulterr.CodeFileReadFailed:    "could not read the source file",
	vaulterr.CodeFileWriteFailed:   "could not write the output file",
	vaulterr.CodeInvalidFileName:   "invalid file name",
	vaulterr.CodeSizeExceeded:      "file is too large",
	vaulterr.CodeSizeMismatch:      "upload size does not match the declared size",
	vaulterr.CodeMissingChunk:      "upload is missing chunks",
	vaulterr.CodeSessionNotFound:   "upload session not found",
	vaulterr.CodeFolderNotFound:    "folder not found",
	vaulterr.CodeDuplicateName:     "a folder with that name already exists",
	vaulterr.CodeFolderNotEmpty:    "folder is not empty",
	vaulterr.CodeCircularReference: "a folder cannot be moved into itself",
	vaulterr.CodeInvalidFolderName: "invalid folder name",
}

// UserMessage renders err for display. Only the error code decides the
// text, so library messages, paths and key material never reach the user.
// A missing PIN reads like a wrong one; `status` is where an uninitialized
// vault is reported.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "operation cancelled"
	}
	if wait, ok := vaulterr.RetryAfter(err); ok {
		return fmt.Sprintf("too many failed attempts, try again in %s", formatWait(wait))
	}
	if msg, ok := messages[vaulterr.CodeOf(err)]; ok {
		return msg
	}
	return genericFailure
}

// formatWait rounds a wait time to whole seconds, never below one.
func formatWait(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	return d.Round(time.Second).String()
}
