// Package session stores fingerprint-bound session records and the profile
// projection shown to a signed-in browser.
//
// # Storage tiers
//
// A [Store] writes to two [Tier] values: a short-lived one holding the
// binary-encoded [Record], expiring with the session, and a longer-lived one
// holding the JSON [Profile]. [MemoryTier] and [RedisTier] implement Tier.
//
// # Fingerprints
//
// [Fingerprint] folds browser-reported attributes into a short digest. Every
// input is client-controlled, so a matching fingerprint only shows the
// attributes did not change; it never proves device identity.
//
// # What this package must NOT do
//
//   - Decide whether a session is valid. Expiry and fingerprint checks belong
//     to the engine.
//   - Store password material of any kind.
package session
