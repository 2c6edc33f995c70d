// Package validate holds the input checks applied to signup and login fields
// before any credential work happens.
//
// # Components
//
//   - [Name], [Company], [Email]: field pattern checks returning *[Error].
//   - [Dangerous]: detection of script-injection markers in free text.
//   - [EscapeHTML] and [NormalizeEmail]: sanitizers applied before storage.
//
// # What this package must NOT do
//
//   - Decide whether a failed check is an incident. Callers own reporting.
//   - Import the root authkit package.
package validate
