package cashcode

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
)

// Uppercase letters and digits without the look-alikes 0/O and 1/I/L.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	minCodeLength     = 6
	defaultCodeLength = 8
)

// GenerateCode returns a secret code drawn from crypto/rand. Each character
// carries log2(31) ≈ 4.95 bits, so the default length gives ~39 bits.
func GenerateCode(length int) (string, error) {
	if length < minCodeLength {
		return "", fmt.Errorf("%w: code length %d below %d", ErrInvalidArgument, length, minCodeLength)
	}
	base := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode trims surrounding whitespace and uppercases the code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CodesMatch compares a submitted code to the stored one, ignoring case and
// surrounding whitespace, in constant time.
func CodesMatch(stored, submitted string) bool {
	a := NormalizeCode(stored)
	b := NormalizeCode(submitted)
	if a == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
