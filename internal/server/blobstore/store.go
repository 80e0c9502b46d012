// Package blobstore keeps ciphertext blobs and thumbnails. Blobs are
// addressed by slash-separated keys relative to the store root, which is
// what file records persist as their physical and thumbnail paths.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ThumbnailsDir is the shared thumbnail directory. Thumbnail names are
// prefixed with the owner id so owners never collide.
const ThumbnailsDir = "thumbnails"

// Object describes one stored blob.
type Object struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Dir is the handle returned by Allocate: where one owner's originals and
// thumbnails go.
type Dir struct {
	OwnerID    int64
	Originals  string
	Thumbnails string
}

// Original is the key for an original blob named storedName.
func (d Dir) Original(storedName string) string {
	return path.Join(d.Originals, storedName)
}

// Thumbnail is the key for the preview of storedName.
func (d Dir) Thumbnail(storedName string) string {
	return path.Join(d.Thumbnails, fmt.Sprintf("user_%d_thumb_%s", d.OwnerID, storedName))
}

func ownerDir(ownerID int64) string {
	return fmt.Sprintf("user_%d", ownerID)
}

// Store is implemented by the filesystem and S3 backends.
type Store interface {
	// Allocate makes sure the owner's directory and the thumbnail directory
	// exist. It is idempotent.
	Allocate(ctx context.Context, ownerID int64) (Dir, error)
	// Write stores r under key and returns the number of bytes written. A
	// failed write leaves nothing behind under key.
	Write(ctx context.Context, key string, r io.Reader) (int64, error)
	// Open returns the blob and its size, or common.ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	// Stat returns blob metadata, or common.ErrNotFound.
	Stat(ctx context.Context, key string) (Object, error)
	// Remove deletes key. A missing blob is not an error.
	Remove(ctx context.Context, key string) error
	// List walks every blob in the store.
	List(ctx context.Context) ([]Object, error)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// maxNameLen bounds the sanitized part of a stored name.
const maxNameLen = 120

// StoredName builds a collision-free blob name: a random UUID followed by
// a filesystem-safe rendering of the original name, keeping its extension.
func StoredName(original string) string {
	base := path.Base(strings.ReplaceAll(original, `\`, "/"))
	base = unsafeName.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "file"
	}
	if len(base) > maxNameLen {
		ext := path.Ext(base)
		if len(ext) > 16 {
			ext = ""
		}
		base = base[:maxNameLen-len(ext)] + ext
	}
	return uuid.NewString() + "-" + base
}
