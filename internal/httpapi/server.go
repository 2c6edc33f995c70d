package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/ramppy/authkit"
	"github.com/ramppy/authkit/password"
	"github.com/ramppy/authkit/token"
)

const maxBodyBytes = 64 << 10

// Engine is the subset of *authkit.Engine the API calls.
type Engine interface {
	Signup(ctx context.Context, req authkit.SignupRequest) authkit.Result
	Login(ctx context.Context, email, password string) authkit.Result
	Logout(ctx context.Context)
	ValidateSession(ctx context.Context) bool
	CurrentUser(ctx context.Context) *authkit.Profile
	RequestPasswordReset(ctx context.Context, email string) authkit.Result
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) authkit.Result
	VerifyEmail(ctx context.Context, token string) authkit.Result
}

// Config controls the client cookie, CORS and the human check.
type Config struct {
	CookieName   string
	CookieMaxAge time.Duration
	CookieSecure bool
	// AllowedOrigins enables CORS with credentials for the listed origins.
	// Empty disables CORS handling.
	AllowedOrigins []string
	// Verifier, when set, must accept the recaptcha_token field of signup
	// and login bodies before the engine sees them.
	Verifier HumanVerifier
}

type Server struct {
	engine  Engine
	tokens  *token.Manager
	metrics http.Handler
	cfg     Config
	logger  *slog.Logger
}

// New builds the API. metrics may be nil, in which case /metrics is not
// routed.
func New(engine Engine, tokens *token.Manager, metrics http.Handler, cfg Config, logger *slog.Logger) *Server {
	if cfg.CookieName == "" {
		cfg.CookieName = "authkit_client"
	}
	if cfg.CookieMaxAge <= 0 {
		cfg.CookieMaxAge = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, tokens: tokens, metrics: metrics, cfg: cfg, logger: logger}
}

// Router returns the fully wrapped handler.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.withClient, s.withCSRF)
	api.HandleFunc("/signup", s.handleSignup).Methods(http.MethodPost)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	api.HandleFunc("/password-reset", s.handlePasswordReset).Methods(http.MethodPost)
	api.HandleFunc("/password-reset/confirm", s.handlePasswordResetConfirm).Methods(http.MethodPost)
	api.HandleFunc("/verify-email", s.handleVerifyEmail).Methods(http.MethodPost)
	api.HandleFunc("/password-strength", s.handlePasswordStrength).Methods(http.MethodPost)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	var h http.Handler = r
	if len(s.cfg.AllowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(s.cfg.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
			handlers.AllowedHeaders([]string{
				"Content-Type",
				HeaderCSRF,
				HeaderScreen,
				HeaderTimezoneOffset,
				HeaderHardwareConcurrency,
				HeaderPlatform,
			}),
			handlers.AllowCredentials(),
		)(h)
	}
	h = requestLogger(s.logger)(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: s.logger}),
		handlers.PrintRecoveryStack(false),
	)(h)
	return h
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		authkit.SignupRequest
		RecaptchaToken string `json:"recaptcha_token"`
	}
	if !decode(w, r, &req) || !s.humanCheck(w, r, req.RecaptchaToken, "signup") {
		return
	}
	writeResult(w, s.engine.Signup(r.Context(), req.SignupRequest))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email          string `json:"email"`
		Password       string `json:"password"`
		RecaptchaToken string `json:"recaptcha_token"`
	}
	if !decode(w, r, &req) || !s.humanCheck(w, r, req.RecaptchaToken, "login") {
		return
	}
	writeResult(w, s.engine.Login(r.Context(), req.Email, req.Password))
}

// humanCheck runs the configured verifier. It writes the response and
// returns false when the request must stop.
func (s *Server) humanCheck(w http.ResponseWriter, r *http.Request, tok, action string) bool {
	if s.cfg.Verifier == nil {
		return true
	}
	err := s.cfg.Verifier.Verify(r.Context(), tok, action, realIP(r))
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrHumanCheckFailed):
		writeJSON(w, http.StatusBadRequest, authkit.Result{Error: "Human verification failed. Please try again."})
	default:
		s.logger.Warn("human verification unavailable", slog.String("action", action), slog.Any("error", err))
		writeJSON(w, http.StatusServiceUnavailable, authkit.Result{Error: "Verification service unavailable. Please try again later."})
	}
	return false
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.engine.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"valid": s.engine.ValidateSession(r.Context())})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.CurrentUser(r.Context()))
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, s.engine.RequestPasswordReset(r.Context(), req.Email))
}

func (s *Server) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, s.engine.ConfirmPasswordReset(r.Context(), req.Token, req.Password))
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, s.engine.VerifyEmail(r.Context(), req.Token))
}

func (s *Server) handlePasswordStrength(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	score, level := password.Strength(req.Password)
	writeJSON(w, http.StatusOK, map[string]any{"score": score, "level": level})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !jsonBody(r) {
		writeJSON(w, http.StatusUnsupportedMediaType, authkit.Result{Error: "Request body must be JSON."})
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, authkit.Result{Error: "Invalid request payload."})
		return false
	}
	return true
}

func writeResult(w http.ResponseWriter, res authkit.Result) {
	var rl *authkit.RateLimitError
	if errors.As(res.Err, &rl) {
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetrySeconds()))
	}
	writeJSON(w, statusFor(res), res)
}

// statusFor maps a result to its HTTP status.
func statusFor(res authkit.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch err := res.Err; {
	case errors.Is(err, authkit.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, authkit.ErrValidation),
		errors.Is(err, authkit.ErrResetTokenInvalid),
		errors.Is(err, authkit.ErrVerificationTokenInvalid),
		errors.Is(err, authkit.ErrDuplicateAccount):
		return http.StatusBadRequest
	case errors.Is(err, authkit.ErrAccountLocked):
		return http.StatusLocked
	case errors.Is(err, authkit.ErrAuthenticationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, authkit.ErrEmailNotVerified):
		return http.StatusForbidden
	case errors.Is(err, authkit.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
