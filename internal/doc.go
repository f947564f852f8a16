// Package internal holds helpers private to authcore, currently secure
// random token generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators behind every Engine operation
//   - httpapi: the chi JSON boundary used by cmd/authcore-server
//   - rate: Redis fixed-window rate limiting
//   - security: the configuration posture report
//   - stores: Redis and in-memory authorization code storage
//
// Nothing here appears in the public authcore API.
package internal
