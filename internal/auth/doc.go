// Package auth implements authentication for the supervisor's HTTP API.
//
// The supervisor runs a single configured operator account: username
// and Argon2id password hash live in the api.auth section of
// config.yaml. Authenticate validates login credentials in constant
// time; on success the API issues a short-lived HS256 JWT, and
// subsequent requests are validated by signature alone with no state.
//
// Password hashes use the PHC string format
// ($argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>) so parameters travel
// with the hash and can be upgraded without a config schema change.
package auth
