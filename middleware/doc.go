// Package middleware exposes HTTP guards built on authcore.Engine token
// validation.
//
// # Guards
//
//   - [RequireAccess]: verifies a Bearer access token.
//   - [RequireRefresh]: verifies a Bearer refresh token, for the refresh
//     endpoint only.
//
// Each guard reads the Authorization header, calls the Engine, and injects
// the verified claims into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It never parses
// tokens itself and makes no decision beyond pass or reject.
package middleware
