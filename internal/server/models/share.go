package models

import "time"

// ShareLink grants password-protected access to a single UserFile. The
// content key is re-wrapped under a key derived from the share password, so
// possession of the token alone reveals nothing.
//
// Expiry and exhaustion are derived at access time from ExpiresAt and
// DownloadCount, never precomputed into a flag. Revocation deletes the row.
type ShareLink struct {
	ID         string
	Token      string
	UserFileID string
	// WrappedKey is the content key wrapped under the password-derived key.
	WrappedKey []byte
	// KeyNonce is the AEAD nonce used for WrappedKey.
	KeyNonce []byte
	// KDFSalt and KDFTime/KDFMemoryKiB/KDFThreads pin the argon2id
	// derivation so the password keeps working if server defaults change.
	KDFSalt      []byte
	KDFTime      uint32
	KDFMemoryKiB uint32
	KDFThreads   uint8
	// ExpiresAt, when set, makes the share inert once passed.
	ExpiresAt *time.Time
	// MaxDownloads, when set, caps successful accesses. DownloadCount never
	// exceeds it; the increment is a conditional atomic update.
	MaxDownloads  *int64
	DownloadCount int64
	// AllowedIdentities, when non-empty, restricts access to the listed
	// usernames/emails.
	AllowedIdentities []string
	CreatedAt         time.Time
}

// IdentityAllowed reports whether the given requester identity may use this
// share. An empty restriction list admits everyone, including anonymous
// requesters.
func (s *ShareLink) IdentityAllowed(identity string) bool {
	if len(s.AllowedIdentities) == 0 {
		return true
	}
	for _, allowed := range s.AllowedIdentities {
		if allowed == identity {
			return true
		}
	}
	return false
}
