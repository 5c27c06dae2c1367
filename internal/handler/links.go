package handler

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/abdusco/shortlink/internal"
	"github.com/abdusco/shortlink/internal/auth"
	"github.com/abdusco/shortlink/internal/shortener"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type LinkHandler struct {
	links         *shortener.Service
	secureCookies bool
}

func NewLinkHandler(links *shortener.Service, secureCookies bool) *LinkHandler {
	return &LinkHandler{
		links:         links,
		secureCookies: secureCookies,
	}
}

type ShortenRequest struct {
	FullURL string `json:"full_url"`
	Title   string `json:"title"`
}

type ShortenResponse struct {
	ID        int64   `json:"id"`
	FullURL   string  `json:"full_url"`
	ShortCode string  `json:"short_code"`
	ShortURL  string  `json:"short_url"`
	QRCode    string  `json:"qr_code"`
	Title     *string `json:"title"`
}

type LinkResponse struct {
	ID        int64     `json:"id"`
	FullURL   string    `json:"full_url"`
	ShortCode string    `json:"short_code"`
	ShortURL  string    `json:"short_url"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type UpdateTitleRequest struct {
	Title *string `json:"title"`
}

func (r *UpdateTitleRequest) Validate() error {
	if r.Title == nil {
		return internal.NewValidationError("title is required")
	}
	return nil
}

func (h *LinkHandler) Shorten(c echo.Context) error {
	ctx := c.Request().Context()

	var req ShortenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	res, err := h.links.Shorten(ctx, shortener.ShortenInput{FullURL: req.FullURL, Title: req.Title}, auth.IdentityFrom(c))
	if err != nil {
		return err
	}

	if res.IssuedDeviceID != "" {
		c.SetCookie(auth.DeviceCookie(res.IssuedDeviceID, h.secureCookies))
	}

	return c.JSON(http.StatusOK, ShortenResponse{
		ID:        res.Link.ID,
		FullURL:   res.Link.FullURL,
		ShortCode: res.Link.ShortCode,
		ShortURL:  res.ShortURL,
		QRCode:    res.QRCode,
		Title:     res.Link.Title,
	})
}

func (h *LinkHandler) History(c echo.Context) error {
	ctx := c.Request().Context()

	links, err := h.links.History(ctx, auth.IdentityFrom(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, lo.Map(links, func(link internal.Link, _ int) LinkResponse {
		return LinkResponse{
			ID:        link.ID,
			FullURL:   link.FullURL,
			ShortCode: link.ShortCode,
			ShortURL:  h.links.ShortURL(link.ShortCode),
			Title:     link.Title,
			CreatedAt: link.CreatedAt,
		}
	}))
}

func (h *LinkHandler) UpdateTitle(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := linkID(c)
	if err != nil {
		return err
	}

	var req UpdateTitleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return err
	}

	title, err := h.links.UpdateTitle(ctx, id, auth.IdentityFrom(c).OwnerID, *req.Title)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"title": title})
}

func (h *LinkHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := linkID(c)
	if err != nil {
		return err
	}

	if err := h.links.Delete(ctx, id, auth.IdentityFrom(c).OwnerID); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"id": id})
}

func (h *LinkHandler) Redirect(c echo.Context) error {
	ctx := c.Request().Context()
	code := c.Param("code")

	fullURL, err := h.links.Resolve(ctx, code, shortener.Visit{
		IP:        getClientIP(c.Request()),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return err
	}

	log.Debug().Str("short_code", code).Msg("redirecting")
	return c.Redirect(http.StatusFound, fullURL)
}

func linkID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, internal.NewValidationError("invalid id")
	}
	return id, nil
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the peer address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}

	return r.RemoteAddr
}
