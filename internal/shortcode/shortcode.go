// Package shortcode generates the random tokens that identify short links.
package shortcode

import "math/rand/v2"

const (
	Alphabet      = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	DefaultLength = 6
	MaxLength     = 32
)

// Generate returns a code of exactly length characters drawn uniformly from
// Alphabet. The global math/rand/v2 source is seeded from the OS and safe
// for concurrent use.
func Generate(length int) string {
	code := make([]byte, length)
	for i := range code {
		code[i] = Alphabet[rand.IntN(len(Alphabet))]
	}
	return string(code)
}

// Valid reports whether s could be a code: non-empty, at most MaxLength
// long and drawn from Alphabet.
func Valid(s string) bool {
	if s == "" || len(s) > MaxLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isAlphanumeric(s[i]) {
			return false
		}
	}
	return true
}

func isAlphanumeric(c byte) bool {
	return ('0' <= c && c <= '9') || ('A' <= c && c <= 'Z') || ('a' <= c && c <= 'z')
}
