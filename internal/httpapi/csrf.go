package httpapi

import (
	"crypto/subtle"
	"mime"
	"net/http"

	"github.com/ramppy/authkit"
	"github.com/ramppy/authkit/internal"
)

// Double-submit CSRF protection. The token cookie is readable by the page,
// which echoes it in HeaderCSRF on every state-changing request. A foreign
// origin can make the browser send the cookie but cannot read it.
const (
	CookieCSRF = "authkit_csrf"
	HeaderCSRF = "X-CSRF-Token"
)

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

// withCSRF issues the token cookie when absent and refuses unsafe requests
// whose header does not match it.
func (s *Server) withCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cookieToken string
		if c, err := r.Cookie(CookieCSRF); err == nil && len(c.Value) == 64 {
			cookieToken = c.Value
		} else {
			tok, err := internal.NewToken(0)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, authkit.Result{Error: "Something went wrong. Please try again."})
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     CookieCSRF,
				Value:    tok,
				Path:     "/",
				MaxAge:   int(s.cfg.CookieMaxAge.Seconds()),
				Secure:   s.cfg.CookieSecure,
				SameSite: http.SameSiteStrictMode,
			})
		}

		if !safeMethod(r.Method) {
			header := r.Header.Get(HeaderCSRF)
			if cookieToken == "" || subtle.ConstantTimeCompare([]byte(header), []byte(cookieToken)) != 1 {
				writeJSON(w, http.StatusForbidden, authkit.Result{Error: "Invalid or missing security token. Please reload the page."})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// jsonBody reports whether the request declares a JSON body. Simple
// cross-site form posts can only send text/plain, multipart or urlencoded.
func jsonBody(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}
