package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	authcore "github.com/brainbuddy/authcore"
)

type subjectContextKey struct{}

// SubjectFromContext returns the verified subject injected by Guard.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectContextKey{}).(string)
	return subject, ok
}

// Guard verifies the cookie-carried pair on every request. A valid pair
// passes through with the subject in the request context. An expired access
// token with a live refresh token is rotated transparently and the fresh
// cookies are written before the handler runs. Anything else clears the
// cookies and answers 401; backend faults answer 503 and leave the cookies
// alone so the client can retry.
func Guard(engine *authcore.Engine, cfg CookieConfig) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			subject, access, refresh, ok := readTokenCookies(r, cfg)
			if !ok {
				ClearTokenCookies(w, cfg)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := authcore.WithClientIP(r.Context(), remoteIP(r))
			verdict, err := engine.Verify(ctx, subject, access, refresh)

			switch verdict {
			case authcore.VerdictValid:
				next.ServeHTTP(w, r.WithContext(withSubject(ctx, subject)))

			case authcore.VerdictAccessExpired:
				pair, err := engine.Rotate(ctx, subject)
				if err != nil {
					if errors.Is(err, authcore.ErrBackendUnavailable) {
						http.Error(w, "service unavailable", http.StatusServiceUnavailable)
						return
					}
					ClearTokenCookies(w, cfg)
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				SetTokenCookies(w, cfg, subject, pair)
				next.ServeHTTP(w, r.WithContext(withSubject(ctx, subject)))

			default:
				if errors.Is(err, authcore.ErrBackendUnavailable) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				ClearTokenCookies(w, cfg)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
			}
		})
	}
}

func withSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, subject)
}

func readTokenCookies(r *http.Request, cfg CookieConfig) (subject, access, refresh string, ok bool) {
	sc, err := r.Cookie(cfg.SubjectName)
	if err != nil || sc.Value == "" {
		return "", "", "", false
	}
	ac, err := r.Cookie(cfg.AccessName)
	if err != nil || ac.Value == "" {
		return "", "", "", false
	}
	rc, err := r.Cookie(cfg.RefreshName)
	if err != nil || rc.Value == "" {
		return "", "", "", false
	}
	return sc.Value, ac.Value, rc.Value, true
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
