// Package authcore is an embeddable authentication core: password signup and
// login, JWT access/refresh issuance, TOTP second factor, single-use
// authorization codes for federated login, and password reset.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config], the
// collaborator interfaces ([UserStore], [MailDispatcher], [CodeStore]) and value
// types. Flow orchestration, rate limiting, code storage and audit dispatch live
// under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Import the HTTP boundary or any transport package.
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Keep process-wide mutable state. Everything hangs off an Engine.
package authcore
