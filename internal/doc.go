// Package internal contains helpers private to authkit: secure random
// tokens, token hashing, randomized delays and per-key locking.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - rate: sliding-window attempt limiting (memory and Redis)
//   - validate: input field checks and sanitizers
//   - httpapi: HTTP transport over the engine
//   - config: server configuration loading
//   - logging: slog setup
//
// # What this package must NOT do
//
//   - Export types that appear in the public authkit API.
//   - Be imported by any package outside the authkit module.
package internal
