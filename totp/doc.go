// Package totp implements RFC 6238 time-based one-time passwords on top of
// RFC 4226 HOTP.
//
// Secrets are exchanged as unpadded base32 strings so they can be rendered as
// otpauth:// URIs for authenticator apps. Verification accepts the current
// step plus a configurable skew window and compares every candidate in
// constant time.
//
// # What this package must NOT do
//
//   - Persist secrets or remember used counters.
//   - Return errors for malformed user input. A bad code is simply not valid.
package totp
