// Package shortener creates short links, resolves them for redirects and
// manages their ownership.
package shortener

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/abdusco/shortlink/internal"
	"github.com/abdusco/shortlink/internal/auth"
	"github.com/abdusco/shortlink/internal/cache"
	"github.com/abdusco/shortlink/internal/notify"
	"github.com/abdusco/shortlink/internal/qr"
	"github.com/abdusco/shortlink/internal/repo"
	"github.com/abdusco/shortlink/internal/shortcode"
	"github.com/rs/zerolog/log"
)

const (
	MaxURLLength   = 2000
	MaxTitleLength = 255

	DefaultMaxCodeAttempts = 2000
)

type LinkStore interface {
	FindByCode(ctx context.Context, code string) (*internal.Link, error)
	FindOwned(ctx context.Context, id, ownerID int64) (*internal.Link, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	Insert(ctx context.Context, link repo.NewLink) (int64, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]internal.Link, error)
	ListByDevice(ctx context.Context, deviceID string) ([]internal.Link, error)
	UpdateTitle(ctx context.Context, id, ownerID int64, title *string) (int64, error)
	Delete(ctx context.Context, id, ownerID int64) (int64, error)
}

type Options struct {
	BaseURL         string
	CodeLength      int
	MaxCodeAttempts int
}

type Service struct {
	links    LinkStore
	cache    cache.Links
	notifier notify.Notifier
	opts     Options
	generate func(length int) string
}

func NewService(links LinkStore, linkCache cache.Links, notifier notify.Notifier, opts Options) *Service {
	if opts.CodeLength <= 0 {
		opts.CodeLength = shortcode.DefaultLength
	}
	if opts.MaxCodeAttempts <= 0 {
		opts.MaxCodeAttempts = DefaultMaxCodeAttempts
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &Service{
		links:    links,
		cache:    linkCache,
		notifier: notifier,
		opts:     opts,
		generate: shortcode.Generate,
	}
}

type ShortenInput struct {
	FullURL string
	Title   string
}

type ShortenResult struct {
	Link     internal.Link
	ShortURL string
	QRCode   string
	// IssuedDeviceID is set when a device token was minted for an anonymous
	// caller and has to be handed back as a cookie.
	IssuedDeviceID string
}

// Shorten validates the input, allocates a unique code and stores the link
// bound to the caller's identity.
func (s *Service) Shorten(ctx context.Context, in ShortenInput, identity internal.Identity) (*ShortenResult, error) {
	if err := validateFullURL(in.FullURL); err != nil {
		return nil, err
	}
	title, err := normalizeTitle(in.Title)
	if err != nil {
		return nil, err
	}

	link := repo.NewLink{FullURL: in.FullURL, Title: title}
	var issuedDeviceID string
	switch {
	case identity.IsAuthenticated():
		link.OwnerID = &identity.OwnerID
	case identity.HasDevice():
		link.DeviceID = &identity.DeviceID
	default:
		issuedDeviceID = auth.NewDeviceID()
		link.DeviceID = &issuedDeviceID
	}

	id, qrCode, err := s.insertWithUniqueCode(ctx, &link)
	if err != nil {
		return nil, err
	}
	shortURL := s.ShortURL(link.ShortCode)

	log.Info().Int64("id", id).Str("short_code", link.ShortCode).Bool("owned", link.OwnerID != nil).Msg("link shortened")

	return &ShortenResult{
		Link: internal.Link{
			ID:        id,
			FullURL:   link.FullURL,
			ShortCode: link.ShortCode,
			OwnerID:   link.OwnerID,
			DeviceID:  link.DeviceID,
			Title:     link.Title,
		},
		ShortURL:       shortURL,
		QRCode:         qrCode,
		IssuedDeviceID: issuedDeviceID,
	}, nil
}

// insertWithUniqueCode looks for a free code before inserting, but only the
// store's UNIQUE constraint decides: losing an insert race just means
// another round. The QR code is rendered before the row is written, so a
// link is never stored without one.
func (s *Service) insertWithUniqueCode(ctx context.Context, link *repo.NewLink) (int64, string, error) {
	for attempt := 1; attempt <= s.opts.MaxCodeAttempts; attempt++ {
		code := s.generate(s.opts.CodeLength)

		exists, err := s.links.CodeExists(ctx, code)
		if err != nil {
			return 0, "", err
		}
		if exists {
			log.Debug().Str("short_code", code).Int("attempt", attempt).Msg("short code taken")
			continue
		}

		qrCode, err := qr.DataURL(s.ShortURL(code))
		if err != nil {
			return 0, "", err
		}

		link.ShortCode = code
		id, err := s.links.Insert(ctx, *link)
		if errors.Is(err, internal.ErrCodeExists) {
			log.Debug().Str("short_code", code).Int("attempt", attempt).Msg("lost short code race")
			continue
		}
		if err != nil {
			return 0, "", err
		}
		return id, qrCode, nil
	}

	log.Error().Int("attempts", s.opts.MaxCodeAttempts).Int("length", s.opts.CodeLength).Msg("short code space exhausted")
	return 0, "", internal.ErrCodeSpaceExhausted
}

func (s *Service) ShortURL(code string) string {
	return s.opts.BaseURL + "/" + code
}

type Visit struct {
	IP        string
	UserAgent string
}

// Resolve returns the destination of code and reports the visit to
// analytics without waiting for it. Unknown codes have no side effects.
func (s *Service) Resolve(ctx context.Context, code string, visit Visit) (string, error) {
	if !shortcode.Valid(code) {
		return "", internal.ErrLinkNotFound
	}

	fullURL, ok := s.cache.Get(ctx, code)
	if !ok {
		link, err := s.links.FindByCode(ctx, code)
		if err != nil {
			return "", err
		}
		fullURL = link.FullURL
		s.cache.Set(ctx, code, fullURL)
	}

	s.notifier.Notify(ctx, notify.Event{
		EventType: internal.EventRedirect,
		ShortCode: code,
		Payload: map[string]any{
			"ip_address": visit.IP,
			"user_agent": visit.UserAgent,
		},
	})

	return fullURL, nil
}

// History lists the caller's links: by account when authenticated, by
// device otherwise, and nothing for a caller with neither.
func (s *Service) History(ctx context.Context, identity internal.Identity) ([]internal.Link, error) {
	switch {
	case identity.IsAuthenticated():
		return s.links.ListByOwner(ctx, identity.OwnerID)
	case identity.HasDevice():
		return s.links.ListByDevice(ctx, identity.DeviceID)
	default:
		return []internal.Link{}, nil
	}
}

// UpdateTitle sets or clears (empty title) the title of a link owned by
// ownerID. Links owned by someone else are reported as not found.
func (s *Service) UpdateTitle(ctx context.Context, id, ownerID int64, title string) (*string, error) {
	normalized, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}

	affected, err := s.links.UpdateTitle(ctx, id, ownerID, normalized)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, internal.ErrLinkNotFound
	}
	return normalized, nil
}

func (s *Service) Delete(ctx context.Context, id, ownerID int64) error {
	link, err := s.links.FindOwned(ctx, id, ownerID)
	if err != nil {
		return err
	}

	affected, err := s.links.Delete(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return internal.ErrLinkNotFound
	}

	s.cache.Delete(ctx, link.ShortCode)
	log.Info().Int64("id", id).Str("short_code", link.ShortCode).Msg("link deleted")
	return nil
}

func validateFullURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return internal.NewValidationError("full_url is required")
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return internal.NewValidationError("full_url must be an absolute http or https URL")
	}

	if utf8.RuneCountInString(raw) > MaxURLLength {
		return internal.NewValidationError(fmt.Sprintf("full_url must be at most %d characters", MaxURLLength))
	}
	return nil
}

func normalizeTitle(title string) (*string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, internal.NewValidationError(fmt.Sprintf("title must be at most %d characters", MaxTitleLength))
	}
	return &title, nil
}
