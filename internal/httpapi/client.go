package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ramppy/authkit"
	"github.com/ramppy/authkit/token"
)

// Fingerprint headers sent by the front end alongside User-Agent and
// Accept-Language.
const (
	HeaderScreen              = "X-Screen"
	HeaderTimezoneOffset      = "X-Timezone-Offset"
	HeaderHardwareConcurrency = "X-Hardware-Concurrency"
	HeaderPlatform            = "X-Platform"
)

// withClient resolves the caller's client handle, issuing a new one when the
// cookie is missing or no longer verifies, and attaches the client and its
// environment to the request context.
func (s *Server) withClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID, err := s.clientID(w, r)
		if err != nil {
			s.logger.Error("client handle issue failed", slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, authkit.Result{Error: "Something went wrong. Please try again."})
			return
		}

		ctx := authkit.WithClient(r.Context(), authkit.Client{ID: clientID, Env: environment(r)})
		ctx = authkit.WithClientIP(ctx, realIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) clientID(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(s.cfg.CookieName); err == nil {
		if id, err := s.tokens.Parse(c.Value); err == nil {
			return id, nil
		}
	}

	id, err := token.NewClientID()
	if err != nil {
		return "", err
	}
	handle, err := s.tokens.Issue(id)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    handle,
		Path:     "/",
		MaxAge:   int(s.cfg.CookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}

// environment builds the fingerprint input from request headers. Missing or
// malformed numeric headers read as zero.
func environment(r *http.Request) authkit.Environment {
	env := authkit.Environment{
		UserAgent:           r.Header.Get("User-Agent"),
		Language:            primaryLanguage(r.Header.Get("Accept-Language")),
		TimezoneOffset:      atoi(r.Header.Get(HeaderTimezoneOffset)),
		HardwareConcurrency: atoi(r.Header.Get(HeaderHardwareConcurrency)),
		Platform:            r.Header.Get(HeaderPlatform),
	}
	env.ScreenWidth, env.ScreenHeight, env.ColorDepth = parseScreen(r.Header.Get(HeaderScreen))
	return env
}

// primaryLanguage returns the first tag of an Accept-Language value.
func primaryLanguage(v string) string {
	first, _, _ := strings.Cut(v, ",")
	first, _, _ = strings.Cut(first, ";")
	return strings.TrimSpace(first)
}

// parseScreen reads "WIDTHxHEIGHTxDEPTH".
func parseScreen(v string) (w, h, depth int) {
	parts := strings.Split(strings.TrimSpace(v), "x")
	if len(parts) != 3 {
		return 0, 0, 0
	}
	return atoi(parts[0]), atoi(parts[1]), atoi(parts[2])
}

func atoi(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}
