// Package models defines server-side data models persisted in the database.
package models

import "time"

// Category is the coarse file type fixed at upload time from the MIME type.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryDocument Category = "document"
	CategoryOther    Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryImage, CategoryVideo, CategoryAudio, CategoryDocument, CategoryOther}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// FileStatus tracks the write-ahead lifecycle of a stored file.
type FileStatus string

const (
	// FileStatusPending rows are written before any blob exists and are
	// confirmed once the ciphertext is in place.
	FileStatusPending FileStatus = "pending"
	// FileStatusActive rows have a complete ciphertext blob.
	FileStatusActive FileStatus = "active"
	// FileStatusInvalid rows lost their blob after confirmation.
	FileStatusInvalid FileStatus = "invalid"
)

// File is one stored object. The ciphertext lives at PhysicalPath in the
// blob store, encrypted under KeyID with the hex-encoded IV.
type File struct {
	ID       int64
	OwnerID  int64
	FolderID *int64

	// StoredName is the blob name: a random prefix plus the sanitized original name.
	StoredName   string
	DisplayName  string
	PhysicalPath string
	MimeType     string
	// SizeBytes is the ciphertext size, not the plaintext size.
	SizeBytes int64
	// ThumbnailPath is set only for images whose preview was generated.
	ThumbnailPath *string
	Category      Category

	IV     string
	KeyID  string
	Status FileStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FileFilter narrows a listing. A nil FolderID with RootOnly false means
// every folder.
type FileFilter struct {
	Category Category
	Search   string
	FolderID *int64
	RootOnly bool
}

// FileStats summarizes the active files of one owner.
type FileStats struct {
	TotalFiles int64              `json:"totalFiles"`
	TotalBytes int64              `json:"totalBytes"`
	ByCategory map[Category]int64 `json:"byCategory"`
}
