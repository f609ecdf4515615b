package rotate

import (
	"crypto/rand"
	"fmt"
	"regexp"
)

// alphabet is the character set for generated usernames and passwords
const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxUnbiased is the largest multiple of len(alphabet) that fits in a byte.
// Bytes at or above it are discarded so every character is equally likely.
const maxUnbiased = 256 - (256 % len(alphabet))

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	grantHostPattern  = regexp.MustCompile(`^[A-Za-z0-9_.%:-]+$`)
)

// GenerateString returns n characters drawn uniformly from [A-Za-z0-9].
func GenerateString(n int) (string, error) {
	if n < 1 {
		return "", fmt.Errorf("length must be positive, got %d", n)
	}

	out := make([]byte, 0, n)
	buf := make([]byte, n+n/4+1)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// ValidIdentifier reports whether s is safe to interpolate into DDL.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}
