package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxInputLength caps any single text field.
	MaxInputLength = 1000
	// MaxEmailLength is the RFC 5321 path limit.
	MaxEmailLength = 254
)

var (
	emailPattern = regexp.MustCompile(
		"^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@" +
			`[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`,
	)
	namePattern      = regexp.MustCompile(`^[a-zA-ZÀ-ÿ\s'-]{2,100}$`)
	companyPattern   = regexp.MustCompile(`^[a-zA-ZÀ-ÿ0-9\s&,.-]{2,200}$`)
	dangerousPattern = regexp.MustCompile(`(?i)<script|<iframe|javascript:|onerror=|onclick=|onload=`)
)

// DisposableDomains lists temporary-mail providers rejected at signup.
var DisposableDomains = []string{
	"tempmail.com",
	"guerrillamail.com",
	"10minutemail.com",
	"mailinator.com",
	"throwaway.email",
	"yopmail.com",
}

// Error reports a field that failed validation. Reason is safe to show to
// the end user.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return e.Field + ": " + e.Reason
}

// Name checks a display name: letters, spaces, apostrophes and hyphens,
// 2 to 100 characters after trimming.
func Name(name string) error {
	name = strings.TrimSpace(name)
	if !namePattern.MatchString(name) {
		return &Error{Field: "name", Reason: "name must be 2-100 letters"}
	}
	return nil
}

// Company checks an organization name. The field is optional: an empty
// value passes.
func Company(company string) error {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil
	}
	if !companyPattern.MatchString(company) {
		return &Error{Field: "company", Reason: "company name contains invalid characters"}
	}
	return nil
}

// Email checks shape, length and the disposable-domain block list. The
// address should already be normalized.
func Email(email string) error {
	if email == "" || len(email) > MaxEmailLength || !emailPattern.MatchString(email) {
		return &Error{Field: "email", Reason: "invalid email address"}
	}
	domain := strings.ToLower(email[strings.LastIndexByte(email, '@')+1:])
	for _, blocked := range DisposableDomains {
		if domain == blocked {
			return &Error{Field: "email", Reason: "temporary email addresses are not accepted"}
		}
	}
	return nil
}

// Dangerous reports whether any of the given values is oversized or carries
// script-injection markers.
func Dangerous(values ...string) bool {
	for _, v := range values {
		if utf8.RuneCountInString(v) > MaxInputLength || dangerousPattern.MatchString(v) {
			return true
		}
	}
	return false
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
	"/", "&#x2F;",
	"`", "&#x60;",
	"=", "&#x3D;",
)

// EscapeHTML replaces the characters that are significant in HTML text and
// attribute contexts with entities.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
