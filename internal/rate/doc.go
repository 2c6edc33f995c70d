// Package rate implements sliding-window attempt limiting keyed by
// action and identifier.
//
// # Window semantics
//
// Each bucket holds the timestamps of allowed attempts. A check prunes
// timestamps that fell out of the window, rejects when the remaining count
// has reached the rule's maximum, and otherwise records the attempt. Rejected
// attempts are never recorded, so a rule of N per window means N genuine
// attempts.
//
// Two implementations share that contract:
//   - [Memory]: mutex-guarded map with a periodic [Memory.Sweep].
//   - [Redis]: one sorted set per bucket updated by an atomic Lua script;
//     key expiry replaces the sweep.
//
// # What this package must NOT do
//
//   - Decide which actions are limited or with which rule.
//   - Be imported outside the authkit module.
package rate
