// Package jwt issues and verifies the two signed token kinds handed to
// clients: short-lived access tokens and longer-lived refresh tokens.
//
// Each kind is signed by its own signer with independent key material and
// TTL, and every token carries a "typ" claim naming its kind. A token of one
// kind never verifies as the other: the key differs and the claim is checked.
//
// # What this package must NOT do
//
//   - Persist tokens or track revocation.
//   - Import the root authcore package.
package jwt
