package auth

import (
	"net/http"
	"strings"

	"github.com/abdusco/shortlink/internal"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const identityKey = "identity"

// Resolver works out who is acting on a request from the bearer token and
// the device cookie.
type Resolver struct {
	tokens *Tokens
}

func NewResolver(tokens *Tokens) *Resolver {
	return &Resolver{tokens: tokens}
}

// Resolve never fails: a missing, malformed or invalid bearer token leaves
// the caller anonymous, identified by its device cookie if it has one.
func (r *Resolver) Resolve(req *http.Request) internal.Identity {
	deviceID := DeviceID(req)

	tokenStr, ok := bearerToken(req)
	if !ok {
		return internal.Anonymous(deviceID)
	}

	claims, err := r.tokens.Verify(tokenStr)
	if err != nil {
		log.Debug().Err(err).Msg("ignoring invalid bearer token")
		return internal.Anonymous(deviceID)
	}

	ownerID, _ := claims.OwnerID()
	identity := internal.Authenticated(ownerID, claims.Email)
	identity.DeviceID = deviceID
	return identity
}

// Require is the strict counterpart of Resolve used by mutations: anything
// short of a valid bearer token is internal.ErrUnauthenticated.
func (r *Resolver) Require(req *http.Request) (internal.Identity, error) {
	tokenStr, ok := bearerToken(req)
	if !ok {
		return internal.Identity{}, internal.ErrUnauthenticated
	}

	claims, err := r.tokens.Verify(tokenStr)
	if err != nil {
		log.Debug().Err(err).Msg("rejecting invalid bearer token")
		return internal.Identity{}, internal.ErrUnauthenticated
	}

	ownerID, _ := claims.OwnerID()
	return internal.Authenticated(ownerID, claims.Email), nil
}

// Permissive stores the resolved identity for every request.
func (r *Resolver) Permissive() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(identityKey, r.Resolve(c.Request()))
			return next(c)
		}
	}
}

// Strict rejects the request unless it carries a valid bearer token.
func (r *Resolver) Strict() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, err := r.Require(c.Request())
			if err != nil {
				return err
			}
			c.Set(identityKey, identity)
			return next(c)
		}
	}
}

// IdentityFrom returns the identity stored by Permissive or Strict.
func IdentityFrom(c echo.Context) internal.Identity {
	identity, _ := c.Get(identityKey).(internal.Identity)
	return identity
}

func bearerToken(req *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(req.Header.Get(echo.HeaderAuthorization), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
