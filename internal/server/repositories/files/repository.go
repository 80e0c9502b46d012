package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vaultbox/internal/server/models"
)

// Repository persists file records. Lookups scoped by owner report a
// foreign row exactly like a missing one (common.ErrNotFound).
type Repository interface {
	// CreatePending inserts f with status pending and fills in ID and timestamps.
	CreatePending(ctx context.Context, f *models.File) error
	// Confirm flips a pending row to active with its final size and thumbnail.
	Confirm(ctx context.Context, id int64, sizeBytes int64, thumbnailPath *string) error
	GetOwned(ctx context.Context, id, ownerID int64) (*models.File, error)
	List(ctx context.Context, ownerID int64, filter models.FileFilter) ([]*models.File, error)
	Rename(ctx context.Context, id, ownerID int64, name string) error
	// Move re-parents one file; it returns false when the file is not the owner's.
	Move(ctx context.Context, id, ownerID int64, folderID *int64) (bool, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context, ownerID int64) (*models.FileStats, error)

	ListStalePending(ctx context.Context, before time.Time) ([]*models.File, error)
	ListActive(ctx context.Context, afterID int64, limit int) ([]*models.File, error)
	ReferencedPaths(ctx context.Context) (map[string]struct{}, error)
	MarkInvalid(ctx context.Context, id int64) error
}
