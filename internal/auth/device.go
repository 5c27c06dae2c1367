package auth

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	DeviceCookieName = "device_id"
	deviceCookieTTL  = 365 * 24 * time.Hour
)

// NewDeviceID mints an opaque identifier for an anonymous visitor.
func NewDeviceID() string {
	return uuid.NewString()
}

// DeviceID reads the device cookie, returning "" when absent.
func DeviceID(req *http.Request) string {
	cookie, err := req.Cookie(DeviceCookieName)
	if err != nil || cookie == nil {
		return ""
	}
	return cookie.Value
}

func DeviceCookie(deviceID string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     DeviceCookieName,
		Value:    deviceID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(deviceCookieTTL.Seconds()),
	}
}

// ExpireDeviceCookie clears the device cookie once its links have been merged
// into an account.
func ExpireDeviceCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     DeviceCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	}
}
