// Package secret resolves secret references in configuration values.
//
// The JWT signing key, the bootstrap admin key and tenant bot tokens are
// never written into configuration directly. Values instead name where the
// secret lives:
//
//	secretref:env:DISCORD_TOKEN_ACME     environment variable
//	secretref:file:/run/secrets/jwt      file contents, trailing newline trimmed
//	Bot secretref:env:TOKEN              inline reference inside a larger value
//	${VAR}                               strict expansion, missing VAR is an error
//
// Providers are looked up by the name after "secretref:". Registry builds a
// Resolver from a list of provider names.
package secret
