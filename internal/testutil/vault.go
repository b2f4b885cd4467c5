package testutil

import (
	"securevault/internal/vault"
)

// NewTestVault creates a new in-memory blob store for testing.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault()
}
