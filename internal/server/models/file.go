package models

import "time"

// UserFile is one owner's view of a content blob: their filename, their
// wrapped copy of the content key, and soft-delete state. Several UserFile
// rows may reference the same ContentBlob.
type UserFile struct {
	ID      string
	OwnerID string
	// ContentHash references the deduplicated ContentBlob.
	ContentHash string
	Filename    string
	// WrappedKey is the file's symmetric content key wrapped under a key
	// derivable only by the owner. The server never stores it unwrapped.
	WrappedKey []byte
	// KeyNonce is the AEAD nonce used when wrapping WrappedKey.
	KeyNonce []byte
	// FolderID is opaque to this core; folder-tree management lives outside.
	FolderID  *string
	IsStarred bool
	CreatedAt time.Time
	// TrashedAt marks soft deletion. A trashed file keeps its blob reference
	// until it is permanently deleted.
	TrashedAt *time.Time
}

// Trashed reports whether the file is in the trash.
func (f *UserFile) Trashed() bool {
	return f.TrashedAt != nil
}
