package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrHumanCheckFailed is returned by a HumanVerifier that rejects a token.
var ErrHumanCheckFailed = errors.New("httpapi: human verification failed")

// HumanVerifier checks a challenge token sent by the front end with signup
// and login. action names the form the token was minted for.
type HumanVerifier interface {
	Verify(ctx context.Context, token, action, remoteIP string) error
}

const (
	recaptchaVerifyURL    = "https://www.google.com/recaptcha/api/siteverify"
	recaptchaMinScore     = 0.5
	recaptchaMinTokenSize = 100
)

// Recaptcha verifies reCAPTCHA v3 tokens against Google's siteverify API.
type Recaptcha struct {
	Secret string
	// MinScore must be exceeded for a token to pass. Zero means 0.5.
	MinScore float64
	// Endpoint overrides the siteverify URL.
	Endpoint string
	Client   *http.Client
}

// NewRecaptcha returns a verifier with a 5s HTTP timeout.
func NewRecaptcha(secret string, minScore float64) *Recaptcha {
	return &Recaptcha{
		Secret:   secret,
		MinScore: minScore,
		Client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *Recaptcha) Verify(ctx context.Context, token, action, remoteIP string) error {
	if len(token) < recaptchaMinTokenSize {
		return ErrHumanCheckFailed
	}
	endpoint := v.Endpoint
	if endpoint == "" {
		endpoint = recaptchaVerifyURL
	}
	form := url.Values{"secret": {v.Secret}, "response": {token}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := v.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("siteverify: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("siteverify: status %d", resp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("siteverify: %w", err)
	}
	minScore := v.MinScore
	if minScore <= 0 {
		minScore = recaptchaMinScore
	}
	if !out.Success || out.Score <= minScore {
		return ErrHumanCheckFailed
	}
	if action != "" && out.Action != "" && out.Action != action {
		return ErrHumanCheckFailed
	}
	return nil
}
