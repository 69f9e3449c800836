package middleware

import (
	"net/http"
	"time"

	authcore "github.com/brainbuddy/authcore"
)

// CookieConfig names the cookies the guard reads and controls their scope
// attributes. Zero values fall back to the defaults below. Cookies are
// Secure unless AllowInsecure is set; the flag is inverted so the zero
// value keeps the safe default.
type CookieConfig struct {
	AccessName    string
	RefreshName   string
	SubjectName   string
	Path          string
	Domain        string
	AllowInsecure bool
	SameSite      http.SameSite
}

func defaultCookieConfig() CookieConfig {
	return CookieConfig{
		AccessName:  "access_token",
		RefreshName: "refresh_token",
		SubjectName: "auth_subject",
		Path:        "/",
		SameSite:    http.SameSiteStrictMode,
	}
}

func (c CookieConfig) withDefaults() CookieConfig {
	d := defaultCookieConfig()
	if c.AccessName == "" {
		c.AccessName = d.AccessName
	}
	if c.RefreshName == "" {
		c.RefreshName = d.RefreshName
	}
	if c.SubjectName == "" {
		c.SubjectName = d.SubjectName
	}
	if c.Path == "" {
		c.Path = d.Path
	}
	if c.SameSite == 0 {
		c.SameSite = d.SameSite
	}
	return c
}

// SetTokenCookies writes the pair and the subject as HttpOnly cookies. All
// three expire with the refresh token: the access cookie must outlive its
// own token so the guard can see it and rotate.
func SetTokenCookies(w http.ResponseWriter, cfg CookieConfig, subject string, pair authcore.TokenPair) {
	cfg = cfg.withDefaults()

	set := func(name, value string) {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     cfg.Path,
			Domain:   cfg.Domain,
			Expires:  pair.RefreshExpiresAt,
			HttpOnly: true,
			Secure:   !cfg.AllowInsecure,
			SameSite: cfg.SameSite,
		})
	}

	set(cfg.AccessName, pair.AccessToken)
	set(cfg.RefreshName, pair.RefreshToken)
	set(cfg.SubjectName, subject)
}

// ClearTokenCookies expires all three cookies immediately.
func ClearTokenCookies(w http.ResponseWriter, cfg CookieConfig) {
	cfg = cfg.withDefaults()

	clear := func(name string) {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     cfg.Path,
			Domain:   cfg.Domain,
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   !cfg.AllowInsecure,
			SameSite: cfg.SameSite,
		})
	}

	clear(cfg.AccessName)
	clear(cfg.RefreshName)
	clear(cfg.SubjectName)
}
