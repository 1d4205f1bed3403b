package models

import "time"

// Access reason codes recorded for the owner's analytics. They are never
// returned to the accessing party, who only ever sees a generic denial.
const (
	AccessReasonOK             = "ok"
	AccessReasonUnknownToken   = "unknown_token"
	AccessReasonExpired        = "expired"
	AccessReasonExhausted      = "exhausted"
	AccessReasonBadPassword    = "bad_password"
	AccessReasonIdentityDenied = "identity_denied"
)

// DownloadLogEntry is one append-only record of a successful share or file
// access. Entries are never mutated or deleted by this core.
type DownloadLogEntry struct {
	ID         string
	ShareID    *string
	UserFileID string
	// Accessor is the verified requester identity, nil for anonymous share
	// access.
	Accessor  *string
	CreatedAt time.Time
}
