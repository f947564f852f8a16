// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunSignup, RunLogin, RunVerifyTwoFactor, etc.) accepts a
// typed dependency struct and returns results without side-effects beyond those
// dependencies. The Engine builds the dependency structs once and stays thin.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the user store, token issuer, code store,
// rate limiter, mail dispatcher, audit dispatcher and metrics. They do NOT own
// any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Construct host errors. Every error returned is taken from the deps error table
//     or produced by a dependency.
//   - Perform I/O directly. All I/O is mediated through dependency closures.
package flows
