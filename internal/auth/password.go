package auth

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/abdusco/shortlink/internal"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 20

	// bcrypt refuses longer inputs
	maxPasswordBytes = 72
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return internal.NewValidationError("invalid email format")
	}
	return nil
}

// ValidatePassword enforces 8-20 characters with at least one ASCII letter
// and one ASCII digit, and no more than 72 bytes overall.
func ValidatePassword(password string) error {
	if n := utf8.RuneCountInString(password); n < minPasswordLength || n > maxPasswordLength {
		return internal.NewValidationError("password must be 8-20 characters")
	}
	if len(password) > maxPasswordBytes {
		return internal.NewValidationError("password must be at most 72 bytes")
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
			hasLetter = true
		case '0' <= r && r <= '9':
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return internal.NewValidationError("password must include letters and numbers")
	}
	return nil
}

type Hasher struct {
	cost int
}

// NewHasher returns a bcrypt hasher. A zero cost means bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Compare reports whether password matches hash. A mismatch is not an error.
func (h *Hasher) Compare(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to compare password: %w", err)
	}
	return true, nil
}
