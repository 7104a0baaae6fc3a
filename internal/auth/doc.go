// ABOUTME: Package documentation for auth
// ABOUTME: Describes token and API key verification for session authentication

// Package auth provides credential verification for realtime sessions.
//
// Two credential kinds are supported:
//
//   - Bearer JWTs, HS256-signed with the configured jwt_secret. The "sub"
//     claim carries the principal ID.
//   - Shared API keys, compared with bcrypt against the api_key_hashes
//     allow-list from the config file. Plaintext keys are never stored.
//
// A third rule, dev_accept_any_min_len, accepts any credential of at least
// the configured length. It is disabled by default and exists only so local
// development does not require minting tokens. Enabling it is loudly logged.
package auth
