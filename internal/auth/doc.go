// Package auth issues and verifies the bearer tokens that protect the
// gateway's command API and WebSocket stream.
//
// Tokens are HS256 JWTs signed with security.jwt.secret. Each carries a
// subject (the operator or service it was issued to) and a list of scopes.
// Verification is signature and expiry only; there is no token store.
package auth
