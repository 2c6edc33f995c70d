package password

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Policy is the single source of truth for password acceptance rules.
type Policy struct {
	MinLength              int
	MaxLength              int
	RequireUpper           bool
	RequireLower           bool
	RequireDigit           bool
	RequireSymbol          bool
	BlockedCommonPasswords []string
}

// DefaultPolicy requires at least 8 characters mixing upper and lower case
// letters, a digit and a symbol, and rejects a short list of common passwords.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     8,
		MaxLength:     128,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
		BlockedCommonPasswords: []string{
			"12345678",
			"password",
			"qwerty",
			"123456789",
			"password123",
			"admin123",
			"11111111",
		},
	}
}

// PolicyError names the first rule a candidate password broke.
type PolicyError struct {
	Rule   string
	Reason string
}

func (e *PolicyError) Error() string {
	return e.Reason
}

type classes struct {
	upper, lower, digit, symbol bool
}

func classify(pw string) classes {
	var c classes
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsDigit(r):
			c.digit = true
		case !unicode.IsLetter(r):
			c.symbol = true
		}
	}
	return c
}

// Check returns nil when pw satisfies every rule of p, or a *PolicyError for
// the first violated rule.
func (p Policy) Check(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < p.MinLength {
		return &PolicyError{Rule: "min_length", Reason: fmt.Sprintf("password must be at least %d characters", p.MinLength)}
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return &PolicyError{Rule: "max_length", Reason: fmt.Sprintf("password must be at most %d characters", p.MaxLength)}
	}

	c := classify(pw)
	if p.RequireUpper && !c.upper {
		return &PolicyError{Rule: "upper", Reason: "password must contain an uppercase letter"}
	}
	if p.RequireLower && !c.lower {
		return &PolicyError{Rule: "lower", Reason: "password must contain a lowercase letter"}
	}
	if p.RequireDigit && !c.digit {
		return &PolicyError{Rule: "digit", Reason: "password must contain a digit"}
	}
	if p.RequireSymbol && !c.symbol {
		return &PolicyError{Rule: "symbol", Reason: "password must contain a symbol"}
	}

	lowered := strings.ToLower(pw)
	for _, blocked := range p.BlockedCommonPasswords {
		if lowered == strings.ToLower(blocked) {
			return &PolicyError{Rule: "common", Reason: "password is too common"}
		}
	}
	return nil
}

// StrengthLevels labels the scores returned by Strength, indexed by
// min(score, 5).
var StrengthLevels = [...]string{"very weak", "weak", "fair", "good", "strong", "very strong"}

// Strength scores pw from 0 to 6: one point each for reaching 8 and 12
// characters and for containing lower case, upper case, digits and symbols.
func Strength(pw string) (score int, level string) {
	n := utf8.RuneCountInString(pw)
	if n >= 8 {
		score++
	}
	if n >= 12 {
		score++
	}
	c := classify(pw)
	for _, ok := range []bool{c.lower, c.upper, c.digit, c.symbol} {
		if ok {
			score++
		}
	}
	return score, StrengthLevels[min(score, len(StrengthLevels)-1)]
}
