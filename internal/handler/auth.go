package handler

import (
	"net/http"

	"github.com/abdusco/shortlink/internal/account"
	"github.com/abdusco/shortlink/internal/auth"
	"github.com/labstack/echo/v4"
)

type AuthHandler struct {
	accounts      *account.Service
	secureCookies bool
}

func NewAuthHandler(accounts *account.Service, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		accounts:      accounts,
		secureCookies: secureCookies,
	}
}

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c echo.Context) error {
	var req CredentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	res, err := h.accounts.Register(c.Request().Context(), h.credentials(req), auth.DeviceID(c.Request()))
	if err != nil {
		return err
	}

	h.dropDeviceCookie(c, res)
	return c.JSON(http.StatusCreated, RegisterResponse{ID: res.Account.ID, Email: res.Account.Email})
}

// Login handles POST /api/auth/login and returns a bearer token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req CredentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	res, err := h.accounts.Login(c.Request().Context(), h.credentials(req), auth.DeviceID(c.Request()))
	if err != nil {
		return err
	}

	h.dropDeviceCookie(c, res)
	return c.JSON(http.StatusOK, LoginResponse{Token: res.Token})
}

func (h *AuthHandler) credentials(req CredentialsRequest) account.Credentials {
	return account.Credentials{Email: req.Email, Password: req.Password}
}

func (h *AuthHandler) dropDeviceCookie(c echo.Context, res *account.Result) {
	if res.DeviceMerged {
		c.SetCookie(auth.ExpireDeviceCookie(h.secureCookies))
	}
}
