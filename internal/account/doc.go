// Package account manages user registration, authentication and session
// tokens.
//
// Passwords are hashed with Argon2id in PHC string format; sessions are
// HS256 JWTs validated by signature only. The Manager is the process-wide
// account registry, loaded from SQLite at boot.
package account
