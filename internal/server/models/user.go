// Package models defines server-side data models persisted in the database.
package models

import "time"

// User anchors per-owner quota state. Authentication lives in an external
// identity provider; a row here is created lazily the first time a verified
// identity uploads content.
type User struct {
	ID              string
	Username        string
	QuotaLimitBytes int64
	CreatedAt       time.Time
}
