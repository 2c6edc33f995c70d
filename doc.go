// Package authkit implements account signup, password login and
// browser-bound sessions for a web front end.
//
// An [Engine] is assembled with [New] and [Builder.Build] over a
// [record.Store] holding credentials. Session state and rate-limit buckets
// live in process memory, or in Redis when [Builder.WithRedis] is used.
//
// Every public operation returns a [Result] whose Error text is safe to show
// to the end user. The typed cause is kept in Result.Err:
//
//	res := engine.Login(ctx, email, password)
//	var locked *authkit.LockedError
//	if errors.As(res.Err, &locked) {
//		// locked.RetryMinutes()
//	}
//
// Sessions are addressed by the [Client] attached to the context with
// [WithClient]. A session is bound to the client's [Environment]
// fingerprint; a request from a different environment clears it.
package authkit
