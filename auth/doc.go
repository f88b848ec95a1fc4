// Package auth provides authentication and authorization primitives for bot
// tool calls.
//
// It covers three concerns:
//
//   - Credentials: long-lived API keys, stored only as bcrypt hashes and
//     returned in plaintext exactly once at creation (see CredentialService).
//   - Session tokens: short-lived HS256 JWTs asserting a principal's identity
//     and permissions (see TokenService).
//   - Permissions: a pure predicate over permission sets with "admin" and "*"
//     wildcards and exact-match tenant scopes of the form "bot:<id>"
//     (see HasPermission and PermissionAuthorizer).
//
// Authenticators adapt credentials and tokens to a transport-agnostic
// AuthRequest so the same pipeline serves HTTP and any other bridge.
package auth
