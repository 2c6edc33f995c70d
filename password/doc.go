// Package password derives and verifies PBKDF2-SHA256 password hashes and
// evaluates candidate passwords against a configurable policy.
//
// # Hash format
//
// Hashes are self-describing strings of the form
//
//	pbkdf2$<iterations>$<salt hex>$<derived key hex>
//
// so that iteration counts can be raised later without invalidating stored
// records. [PBKDF2.NeedsUpgrade] reports hashes derived with fewer iterations
// than currently configured.
//
// # What this package must NOT do
//
//   - Log or persist plaintext passwords.
//   - Import the root authkit package or any internal package.
package password
