// Package rate provides Redis-backed fixed-window counters used to throttle
// credential guessing: login attempts, 2FA codes, reset requests and
// authorization-code exchanges.
//
// # Window semantics
//
// INCR plus a conditional EXPIRE on the first hit. Keys are
// "<policy prefix>:<lowercased subject>". Default prefixes set by the engine:
//   - rl:  login per email, rli: login per IP
//   - rt:  2FA verification per user
//   - rr:  reset request per email, rri: reset request per IP
//   - rc:  failed code exchange per IP
//
// # What this package must NOT do
//
//   - Decide which subjects to count. Callers pass them in.
//   - Be imported outside the authcore module.
package rate
