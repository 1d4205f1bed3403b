// Package common contains shared constants and sentinel errors used across
// SealVault components.
package common

// AuthorizationHeaderName is the HTTP header carrying the bearer access token.
const AuthorizationHeaderName = "Authorization"

// ContentKeySize is the length in bytes of a file's symmetric content key
// (AES-256).
const ContentKeySize = 32
