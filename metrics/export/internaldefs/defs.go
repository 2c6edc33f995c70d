package internaldefs

import (
	"strings"

	"github.com/ramppy/authkit"
)

// MetricDef names one engine metric for export.
type MetricDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

var CounterDefs = []MetricDef{
	{ID: authkit.MetricSignupSuccess, Name: "authkit_signup_success_total", Help: "Accounts created."},
	{ID: authkit.MetricSignupRejected, Name: "authkit_signup_rejected_total", Help: "Signups rejected by validation or policy."},
	{ID: authkit.MetricSignupDuplicate, Name: "authkit_signup_duplicate_total", Help: "Signups for an email that already exists."},
	{ID: authkit.MetricLoginSuccess, Name: "authkit_login_success_total", Help: "Successful logins."},
	{ID: authkit.MetricLoginFailure, Name: "authkit_login_failure_total", Help: "Failed logins, unknown email or wrong password."},
	{ID: authkit.MetricLoginUnknownUser, Name: "authkit_login_unknown_user_total", Help: "Failed logins for an unknown email."},
	{ID: authkit.MetricAccountLocked, Name: "authkit_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: authkit.MetricLoginWhileLocked, Name: "authkit_login_while_locked_total", Help: "Logins refused because the account was locked."},
	{ID: authkit.MetricRateLimitHit, Name: "authkit_rate_limit_hit_total", Help: "Attempts refused by a rate limit."},
	{ID: authkit.MetricSessionCreated, Name: "authkit_session_created_total", Help: "Sessions opened."},
	{ID: authkit.MetricSessionRenewed, Name: "authkit_session_renewed_total", Help: "Sessions extended near expiry."},
	{ID: authkit.MetricSessionExpired, Name: "authkit_session_expired_total", Help: "Sessions found expired on validation."},
	{ID: authkit.MetricSessionFingerprintMismatch, Name: "authkit_session_fingerprint_mismatch_total", Help: "Sessions cleared for a fingerprint mismatch."},
	{ID: authkit.MetricLogout, Name: "authkit_logout_total", Help: "Logouts."},
	{ID: authkit.MetricPasswordResetRequest, Name: "authkit_password_reset_request_total", Help: "Password reset requests."},
	{ID: authkit.MetricPasswordResetConfirmSuccess, Name: "authkit_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: authkit.MetricPasswordResetConfirmFailure, Name: "authkit_password_reset_confirm_failure_total", Help: "Reset confirmations with an invalid or expired token."},
	{ID: authkit.MetricEmailVerificationSuccess, Name: "authkit_email_verification_success_total", Help: "Verified email addresses."},
	{ID: authkit.MetricEmailVerificationFailure, Name: "authkit_email_verification_failure_total", Help: "Verification attempts with an unknown token."},
	{ID: authkit.MetricPasswordRehash, Name: "authkit_password_rehash_total", Help: "Password hashes upgraded on login."},
	{ID: authkit.MetricInjectionAttempt, Name: "authkit_injection_attempt_total", Help: "Inputs rejected for script-injection markers."},
	{ID: authkit.MetricStoreFailure, Name: "authkit_store_failure_total", Help: "Record, session or limiter store failures."},
}

var HistogramDefs = []MetricDef{
	{ID: authkit.MetricLoginLatency, Name: "authkit_login_latency_seconds", Help: "Login latency, including the failure delay."},
}

const BucketCount = len(authkit.HistogramBounds)

// BoundSuffix renders a bucket bound for use inside an instrument name:
// "0.025" becomes "0_025" and "+Inf" becomes "inf".
func BoundSuffix(i int) string {
	le := authkit.HistogramBounds[i]
	if le == "+Inf" {
		return "inf"
	}
	return strings.ReplaceAll(le, ".", "_")
}

// NormalizeBuckets pads or truncates raw snapshot buckets to BucketCount.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
