// Package identity guards write access to the chain API.
//
// It provides:
//   - TokenIssuer: issues and verifies HS256 JWT write tokens
//   - RequireToken: Gin middleware enforcing Bearer token authentication
package identity
