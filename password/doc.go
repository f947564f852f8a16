// Package password implements password hashing and verification with Argon2id defaults.
//
// # Output format
//
// New hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.Verify] also accepts bcrypt hashes ($2a$, $2b$, $2y$) written by
// earlier deployments. [Argon2.NeedsUpgrade] reports true for those and for
// argon2id hashes produced with weaker parameters, so the caller can re-hash
// on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Length policy is enforced
// at the request boundary.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other authcore package.
//   - Log plaintext passwords.
package password
