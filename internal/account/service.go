// Package account registers users and signs them in. Both operations fold
// the caller's anonymous device links into the account.
package account

import (
	"context"
	"errors"
	"strings"

	"github.com/abdusco/shortlink/internal"
	"github.com/abdusco/shortlink/internal/auth"
	"github.com/rs/zerolog/log"
)

type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (*internal.Account, error)
	FindByEmail(ctx context.Context, email string) (*internal.Account, error)
}

type Merger interface {
	MergeOnAuth(ctx context.Context, deviceID string, ownerID int64) (int64, error)
}

type Credentials struct {
	Email    string
	Password string
}

type Result struct {
	Account *internal.Account
	Token   string
	// DeviceMerged reports that the device links now belong to the account
	// and the device cookie can be dropped.
	DeviceMerged bool
}

type Service struct {
	users  UserStore
	hasher *auth.Hasher
	tokens *auth.Tokens
	merger Merger
}

func NewService(users UserStore, hasher *auth.Hasher, tokens *auth.Tokens, merger Merger) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens, merger: merger}
}

func (s *Service) Register(ctx context.Context, creds Credentials, deviceID string) (*Result, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	if err := validate(creds); err != nil {
		return nil, err
	}
	if err := auth.ValidatePassword(creds.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(creds.Password)
	if err != nil {
		return nil, err
	}

	account, err := s.users.Create(ctx, creds.Email, hash)
	if err != nil {
		return nil, err
	}

	log.Info().Int64("id", account.ID).Msg("account registered")

	return &Result{
		Account:      account,
		DeviceMerged: s.merge(ctx, deviceID, account.ID),
	}, nil
}

// Login answers internal.ErrInvalidCredentials for both unknown emails and
// wrong passwords.
func (s *Service) Login(ctx context.Context, creds Credentials, deviceID string) (*Result, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	if err := validate(creds); err != nil {
		return nil, err
	}

	account, err := s.users.FindByEmail(ctx, creds.Email)
	if errors.Is(err, internal.ErrAccountNotFound) {
		return nil, internal.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Compare(account.PasswordHash, creds.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Info().Int64("id", account.ID).Msg("login rejected")
		return nil, internal.ErrInvalidCredentials
	}

	token, err := s.tokens.Sign(account.ID, account.Email)
	if err != nil {
		return nil, err
	}

	return &Result{
		Account:      account,
		Token:        token,
		DeviceMerged: s.merge(ctx, deviceID, account.ID),
	}, nil
}

// merge never fails the account operation. On error the device keeps its
// links and the next sign-in tries again.
func (s *Service) merge(ctx context.Context, deviceID string, ownerID int64) bool {
	if deviceID == "" {
		return false
	}
	if _, err := s.merger.MergeOnAuth(ctx, deviceID, ownerID); err != nil {
		log.Error().Err(err).Int64("owner_id", ownerID).Msg("failed to merge device links")
		return false
	}
	return true
}

func validate(creds Credentials) error {
	if creds.Email == "" || creds.Password == "" {
		return internal.NewValidationError("email and password required")
	}
	return auth.ValidateEmail(creds.Email)
}
