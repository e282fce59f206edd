package gateway

import (
	"net/http"
	"time"
)

// CookieConfig controls the per-room token cookie.
type CookieConfig struct {
	Prefix string
	Secure bool
	MaxAge time.Duration
}

// DefaultCookieConfig returns the default token cookie settings
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Prefix: "metronome-",
		MaxAge: 365 * 24 * time.Hour,
	}
}

// Name is the cookie holding the token for slug.
func (c CookieConfig) Name(slug string) string {
	return c.Prefix + slug
}

// Token returns the caller's token for slug, or "" when there is none.
func (c CookieConfig) Token(r *http.Request, slug string) string {
	if slug == "" {
		return ""
	}
	cookie, err := r.Cookie(c.Name(slug))
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Set issues the token cookie for slug.
func (c CookieConfig) Set(w http.ResponseWriter, slug, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name(slug),
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
