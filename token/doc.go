// Package token issues and parses signed client handles.
//
// A client handle is an HS256 JWT whose "cid" claim names the browser slot
// the engine keys session state by. The handle carries no authentication
// state of its own: a valid handle with no stored session is simply a
// signed-out browser.
//
// # Key rotation
//
// New handles are signed with Config.Key and tagged with Config.KeyID.
// Handles signed under earlier keys keep verifying while their kid is
// listed in Config.VerifyKeys.
package token
