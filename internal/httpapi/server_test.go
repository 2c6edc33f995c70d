package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramppy/authkit"
	"github.com/ramppy/authkit/metrics/export/prometheus"
	"github.com/ramppy/authkit/record/memory"
	"github.com/ramppy/authkit/token"
)

type browser struct {
	t      *testing.T
	client *http.Client
	base   string
	screen string
}

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	return newTestServerWith(t, Config{})
}

func newTestServerWith(t *testing.T, apiCfg Config) (*httptest.Server, *memory.Store) {
	t.Helper()

	cfg := authkit.DefaultConfig()
	cfg.Login.FailureDelayMin = 0
	cfg.Login.FailureDelayMax = 0
	cfg.Audit.Enabled = false

	records := memory.New()
	engine, err := authkit.New().WithConfig(cfg).WithRecordStore(records).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	tokens, err := token.NewManager(token.Config{
		Key: []byte("0123456789abcdef0123456789abcdef"),
		TTL: time.Hour,
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(engine, tokens, prometheus.NewExporter(engine).Handler(), apiCfg, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, records
}

func newBrowser(t *testing.T, base string) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, client: &http.Client{Jar: jar}, base: base, screen: "1920x1080x24"}
}

// csrfToken returns the token cookie from the jar, loading a page first when
// the browser has none yet.
func (b *browser) csrfToken() string {
	b.t.Helper()

	u, err := url.Parse(b.base)
	require.NoError(b.t, err)
	find := func() string {
		for _, c := range b.client.Jar.Cookies(u) {
			if c.Name == CookieCSRF {
				return c.Value
			}
		}
		return ""
	}
	if tok := find(); tok != "" {
		return tok
	}
	b.do(http.MethodGet, "/api/session", nil)
	tok := find()
	require.NotEmpty(b.t, tok, "no %s cookie issued", CookieCSRF)
	return tok
}

func (b *browser) do(method, path string, body any) (*http.Response, map[string]any) {
	b.t.Helper()

	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		require.NoError(b.t, err)
	}
	return b.send(method, path, "application/json", data)
}

// send issues a request the way the front end does: fingerprint headers on
// every call and the CSRF token echoed on unsafe methods.
func (b *browser) send(method, path, contentType string, data []byte) (*http.Response, map[string]any) {
	b.t.Helper()

	var rd io.Reader
	if data != nil {
		rd = bytes.NewReader(data)
	}
	var csrf string
	if !safeMethod(method) {
		csrf = b.csrfToken()
	}
	req, err := http.NewRequest(method, b.base+path, rd)
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", contentType)
	if csrf != "" {
		req.Header.Set(HeaderCSRF, csrf)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (test)")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9")
	req.Header.Set(HeaderScreen, b.screen)
	req.Header.Set(HeaderTimezoneOffset, "180")
	req.Header.Set(HeaderHardwareConcurrency, "8")
	req.Header.Set(HeaderPlatform, "Linux x86_64")

	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	var out map[string]any
	if len(bytes.TrimSpace(raw)) > 0 && raw[0] == '{' {
		require.NoError(b.t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestSignupLoginSessionFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	b := newBrowser(t, ts.URL)

	resp, body := b.do(http.MethodPost, "/api/signup", map[string]string{
		"name": "Ana Silva", "email": "ana@example.com", "password": "Secur3!pass", "company": "Acme",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	resp, body = b.do(http.MethodPost, "/api/login", map[string]string{
		"email": "ana@example.com", "password": "Secur3!pass",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user, ok := body["user"].(map[string]any)
	require.True(t, ok, "expected user in %v", body)
	assert.Equal(t, "Ana Silva", user["name"])
	assert.Equal(t, "Acme", user["company"])

	_, body = b.do(http.MethodGet, "/api/session", nil)
	assert.Equal(t, true, body["valid"])

	_, body = b.do(http.MethodGet, "/api/me", nil)
	assert.Equal(t, "ana@example.com", body["email"])

	// Same cookie, different screen: the fingerprint no longer matches.
	b.screen = "800x600x24"
	_, body = b.do(http.MethodGet, "/api/session", nil)
	assert.Equal(t, false, body["valid"])
}

func TestLogoutClearsSession(t *testing.T) {
	ts, _ := newTestServer(t)
	b := newBrowser(t, ts.URL)

	b.do(http.MethodPost, "/api/signup", map[string]string{
		"name": "Ana Silva", "email": "ana@example.com", "password": "Secur3!pass",
	})
	b.do(http.MethodPost, "/api/login", map[string]string{"email": "ana@example.com", "password": "Secur3!pass"})

	resp, _ := b.do(http.MethodPost, "/api/logout", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body := b.do(http.MethodGet, "/api/session", nil)
	assert.Equal(t, false, body["valid"])
}

func TestSessionsAreScopedToBrowser(t *testing.T) {
	ts, _ := newTestServer(t)
	a := newBrowser(t, ts.URL)
	other := newBrowser(t, ts.URL)

	a.do(http.MethodPost, "/api/signup", map[string]string{
		"name": "Ana Silva", "email": "ana@example.com", "password": "Secur3!pass",
	})
	a.do(http.MethodPost, "/api/login", map[string]string{"email": "ana@example.com", "password": "Secur3!pass"})

	_, body := other.do(http.MethodGet, "/api/session", nil)
	assert.Equal(t, false, body["valid"])
}

func TestStatusMapping(t *testing.T) {
	ts, _ := newTestServer(t)
	b := newBrowser(t, ts.URL)

	resp, body := b.do(http.MethodPost, "/api/signup", map[string]string{
		"name": "A", "email": "ana@example.com", "password": "Secur3!pass",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, body["error"])

	b.do(http.MethodPost, "/api/signup", map[string]string{
		"name": "Ana Silva", "email": "ana@example.com", "password": "Secur3!pass",
	})

	resp, body = b.do(http.MethodPost, "/api/login", map[string]string{"email": "ana@example.com", "password": "Wr0ng!pass"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Email or password incorrect.", body["error"])

	for i := 0; i < 4; i++ {
		b.do(http.MethodPost, "/api/login", map[string]string{"email": "ana@example.com", "password": "Wr0ng!pass"})
	}
	resp, body = b.do(http.MethodPost, "/api/login", map[string]string{"email": "ana@example.com", "password": "Secur3!pass"})
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.Contains(t, body["error"], "minutes")
}

func TestRateLimitedSignupReturns429(t *testing.T) {
	ts, _ := newTestServer(t)
	b := newBrowser(t, ts.URL)
	req := map[string]string{"name": "Ana Silva", "email": "ana@example.com", "password": "weak"}

	for i := 0; i < 3; i++ {
		b.do(http.MethodPost, "/api/signup", req)
	}
	resp, body := b.do(http.MethodPost, "/api/signup", req)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Contains(t, body["error"], "seconds")
}

func TestMalformedBody(t *testing.T) {
	ts, _ := newTestServer(t)
	b := newBrowser(t, ts.URL)

	resp, body := b.send(http.MethodPost, "/api/login", "application/json", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid request payload.", body["error"])
}

func TestNonJSONBodyRejected(t *testing.T) {
	ts, _ := newTestServer(t)
	b := newBrowser(t, ts.URL)
	payload := []byte(`{"email":"ana@example.com","password":"Secur3!pass"}`)

	for _, ct := range []string{"text/plain", "application/x-www-form-urlencoded", ""} {
		resp, body := b.send(http.MethodPost, "/api/login", ct, payload)
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode, "content type %q", ct)
		assert.Equal(t, "Request body must be JSON.", body["error"])
	}

	resp, _ := b.send(http.MethodPost, "/api/login", "application/json; charset=utf-8", payload)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCrossSiteTextPlainLoginRefused(t *testing.T) {
	ts, _ := newTestServer(t)
	victim := newBrowser(t, ts.URL)
	victim.do(http.MethodPost, "/api/signup", map[string]string{
		"name": "Ana Silva", "email": "ana@example.com", "password": "Secur3!pass",
	})

	// A form on another site posting into the victim's browser: cookies ride
	// along, but the page cannot read the CSRF cookie to echo it.
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/login",
		strings.NewReader(`{"email":"ana@example.com","password":"Secur3!pass"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Origin", "https://evil.example")
	resp, err := victim.client.Do(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.NotContains(t, string(raw), `"success":true`)

	_, body := victim.do(http.MethodGet, "/api/session", nil)
	assert.Equal(t, false, body["valid"])
}

func TestUnsafeRequestNeedsMatchingCSRFToken(t *testing.T) {
	ts, _ := newTestServer(t)
	b := newBrowser(t, ts.URL)
	tok := b.csrfToken()
	assert.Len(t, tok, 64)

	post := func(header string) int {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/logout", nil)
		require.NoError(t, err)
		if header != "" {
			req.Header.Set(HeaderCSRF, header)
		}
		resp, err := b.client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusForbidden, post(""))
	assert.Equal(t, http.StatusForbidden, post(strings.Repeat("0", 64)))
	assert.Equal(t, http.StatusNoContent, post(tok))

	// A fresh client has no cookie yet, so even a well-formed header fails.
	resp, err := http.Post(ts.URL+"/api/logout", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

type stubVerifier struct {
	actions []string
	err     error
}

func (v *stubVerifier) Verify(_ context.Context, tok, action, _ string) error {
	v.actions = append(v.actions, action)
	if tok != "human" {
		return ErrHumanCheckFailed
	}
	return v.err
}

func TestHumanVerifierGatesSignupAndLogin(t *testing.T) {
	verifier := &stubVerifier{}
	ts, records := newTestServerWith(t, Config{Verifier: verifier})
	b := newBrowser(t, ts.URL)
	signup := map[string]string{
		"name": "Ana Silva", "email": "ana@example.com", "password": "Secur3!pass", "recaptcha_token": "bot",
	}

	resp, body := b.do(http.MethodPost, "/api/signup", signup)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Human verification failed. Please try again.", body["error"])
	_, err := records.FindByEmail(context.Background(), "ana@example.com")
	assert.Error(t, err, "signup must not reach the store")

	signup["recaptcha_token"] = "human"
	resp, _ = b.do(http.MethodPost, "/api/signup", signup)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = b.do(http.MethodPost, "/api/login", map[string]string{"email": "ana@example.com", "password": "Secur3!pass"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	verifier.err = errors.New("siteverify: connection refused")
	resp, _ = b.do(http.MethodPost, "/api/login", map[string]string{
		"email": "ana@example.com", "password": "Secur3!pass", "recaptcha_token": "human",
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	verifier.err = nil
	resp, _ = b.do(http.MethodPost, "/api/login", map[string]string{
		"email": "ana@example.com", "password": "Secur3!pass", "recaptcha_token": "human",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"signup", "signup", "login", "login", "login"}, verifier.actions)
}

func TestPasswordStrengthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	b := newBrowser(t, ts.URL)

	resp, body := b.do(http.MethodPost, "/api/password-strength", map[string]string{"password": "Secur3!pass"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(5), body["score"])
	assert.Equal(t, "very strong", body["level"])

	_, body = b.do(http.MethodPost, "/api/password-strength", map[string]string{"password": "abc"})
	assert.Equal(t, float64(1), body["score"])
	assert.Equal(t, "weak", body["level"])
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t)
	b := newBrowser(t, ts.URL)
	b.do(http.MethodPost, "/api/login", map[string]string{"email": "ghost@example.com", "password": "Secur3!pass"})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "authkit_login_unknown_user_total 1")
}

func TestEnvironmentFromHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("User-Agent", "UA")
	r.Header.Set("Accept-Language", "en-US,en;q=0.9")
	r.Header.Set(HeaderScreen, "1366x768x30")
	r.Header.Set(HeaderTimezoneOffset, "-60")
	r.Header.Set(HeaderHardwareConcurrency, "bogus")
	r.Header.Set(HeaderPlatform, "MacIntel")

	env := environment(r)
	assert.Equal(t, authkit.Environment{
		UserAgent:      "UA",
		Language:       "en-US",
		ScreenWidth:    1366,
		ScreenHeight:   768,
		ColorDepth:     30,
		TimezoneOffset: -60,
		Platform:       "MacIntel",
	}, env)
}

func TestRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", realIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", realIP(r))

	r.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", realIP(r))
}
