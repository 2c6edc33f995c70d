package session

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// Environment holds the browser attributes a fingerprint is derived from.
type Environment struct {
	UserAgent           string
	Language            string
	ScreenWidth         int
	ScreenHeight        int
	ColorDepth          int
	TimezoneOffset      int // minutes, as reported by the browser
	HardwareConcurrency int // 0 when the browser does not report it
	Platform            string
}

// Fingerprint joins the environment attributes with "|" and digests the
// result with Digest.
func Fingerprint(env Environment) string {
	cores := "unknown"
	if env.HardwareConcurrency > 0 {
		cores = strconv.Itoa(env.HardwareConcurrency)
	}
	return Digest(strings.Join([]string{
		env.UserAgent,
		env.Language,
		strconv.Itoa(env.ScreenWidth) + "x" + strconv.Itoa(env.ScreenHeight),
		strconv.Itoa(env.ColorDepth),
		strconv.Itoa(env.TimezoneOffset),
		cores,
		env.Platform,
	}, "|"))
}

// Digest folds the UTF-16 code units of s with h = h*31 + c in wrapping
// 32-bit signed arithmetic and renders h in base 36. Digests computed by a
// browser over the same string match.
func Digest(s string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	return strconv.FormatInt(int64(h), 36)
}
