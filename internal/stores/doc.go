// Package stores holds single-use authorization codes for the federated
// login bridge.
//
// # Implementations
//
//   - [AuthCodeStore]: one JSON record per code in Redis under
//     "<prefix>:<code>" with a TTL. Redeem runs in a WATCH/MULTI
//     transaction and retries on contention, so exactly one of several
//     concurrent redemptions wins.
//   - [MemoryAuthCodeStore]: the same semantics behind a mutex, for
//     single-process deployments and tests.
//
// # What this package must NOT do
//
//   - Generate code values or make authentication decisions.
//   - Import authcore or any sibling internal package.
package stores
