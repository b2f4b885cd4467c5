package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"regexp"
	"strings"

	"securevault/internal/vaulterr"
)

// Complexity selects the PIN acceptance rule.
type Complexity int

const (
	// Basic accepts any PIN of 4 to 8 digits.
	Basic Complexity = iota
	// Strong additionally rejects repeated digits (1111) and straight
	// runs (1234, 8765).
	Strong
)

func (c Complexity) String() string {
	if c == Strong {
		return "strong"
	}
	return "basic"
}

// ParseComplexity parses "basic" or "strong" (case-insensitive).
func ParseComplexity(s string) (Complexity, error) {
	switch strings.ToLower(s) {
	case "", "basic":
		return Basic, nil
	case "strong":
		return Strong, nil
	default:
		return Basic, fmt.Errorf("unknown pin complexity: %q", s)
	}
}

var pinPattern = regexp.MustCompile(`^[0-9]{4,8}$`)

// ValidatePin checks pin against the complexity rule.
func ValidatePin(pin string, c Complexity) error {
	if !pinPattern.MatchString(pin) {
		return vaulterr.New(vaulterr.CodeInvalidFormat, "ValidatePin")
	}
	if c == Strong && (repeated(pin) || straightRun(pin)) {
		return vaulterr.Wrap(vaulterr.CodeInvalidFormat, "ValidatePin", fmt.Errorf("pin too simple"))
	}
	return nil
}

func repeated(pin string) bool {
	return strings.Count(pin, pin[:1]) == len(pin)
}

func straightRun(pin string) bool {
	up, down := true, true
	for i := 1; i < len(pin); i++ {
		d := int(pin[i]) - int(pin[i-1])
		up = up && d == 1
		down = down && d == -1
	}
	return up || down
}

// hashPin is SHA256(pin || salt).
func hashPin(pin string, salt []byte) []byte {
	h := sha256.New()
	h.Write([]byte(pin))
	h.Write(salt)
	return h.Sum(nil)
}

func hashEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
