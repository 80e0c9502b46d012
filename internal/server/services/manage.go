package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/vaultbox/internal/common"
	"github.com/dmitrijs2005/vaultbox/internal/dbx"
	"github.com/dmitrijs2005/vaultbox/internal/server/blobstore"
	"github.com/dmitrijs2005/vaultbox/internal/server/models"
)

const maxDisplayName = 255

// List returns the owner's stored files, newest first.
func (s *FileService) List(ctx context.Context, ownerID int64, filter models.FileFilter) ([]*models.File, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", common.ErrValidation, filter.Category)
	}
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repomanager.Files(s.db).List(ctx, ownerID, filter)
}

// Stats summarizes the owner's stored files.
func (s *FileService) Stats(ctx context.Context, ownerID int64) (*models.FileStats, error) {
	return s.repomanager.Files(s.db).Stats(ctx, ownerID)
}

// Rename changes the display name. The stored blob keeps its name.
func (s *FileService) Rename(ctx context.Context, user models.User, fileID int64, newName string) error {
	name := strings.TrimSpace(newName)
	if name == "" || utf8.RuneCountInString(name) > maxDisplayName {
		return fmt.Errorf("%w: name must be 1 to %d characters", common.ErrValidation, maxDisplayName)
	}
	if err := s.repomanager.Files(s.db).Rename(ctx, fileID, user.ID, name); err != nil {
		return err
	}
	s.audit.Record(ctx, user.ID, models.ActionRenameFile, map[string]any{"fileId": fileID, "newName": name})
	return nil
}

// Move re-parents the given files in one transaction. Ids the user does not
// own are skipped; the number of files actually moved is returned. A nil
// target moves to the root, a target folder the user does not own is not found.
func (s *FileService) Move(ctx context.Context, user models.User, fileIDs []int64, target *int64) (int, error) {
	if len(fileIDs) == 0 {
		return 0, fmt.Errorf("%w: fileIds is required", common.ErrValidation)
	}
	if err := s.checkTargetFolder(ctx, user.ID, target); err != nil {
		return 0, err
	}

	moved := 0
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Files(tx)
		for _, id := range fileIDs {
			ok, err := repo.Move(ctx, id, user.ID, target)
			if err != nil {
				return err
			}
			if ok {
				moved++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.audit.Record(ctx, user.ID, models.ActionMoveFiles, map[string]any{
		"fileIds":        fileIDs,
		"targetFolderId": target,
		"moved":          moved,
	})
	return moved, nil
}

func (s *FileService) checkTargetFolder(ctx context.Context, ownerID int64, target *int64) error {
	if target == nil {
		return nil
	}
	if _, err := s.repomanager.Folders(s.db).GetOwned(ctx, *target, ownerID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("target folder: %w", common.ErrNotFound)
		}
		return err
	}
	return nil
}

// Copy duplicates the given files into target. The ciphertext is copied
// byte for byte, so the copy keeps the source IV and key id; no plaintext
// is produced. Copies go through the same pending/confirm steps as uploads.
// Ids the user does not own are skipped; if none remain the result is not found.
func (s *FileService) Copy(ctx context.Context, user models.User, fileIDs []int64, target *int64) ([]*models.File, error) {
	if len(fileIDs) == 0 {
		return nil, fmt.Errorf("%w: fileIds is required", common.ErrValidation)
	}
	if err := s.checkTargetFolder(ctx, user.ID, target); err != nil {
		return nil, err
	}

	repo := s.repomanager.Files(s.db)
	var sources []*models.File
	for _, id := range fileIDs {
		src, err := repo.GetOwned(ctx, id, user.ID)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no files to copy: %w", common.ErrNotFound)
	}

	dir, err := s.store.Allocate(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	copies := make([]*models.File, 0, len(sources))
	for _, src := range sources {
		dup, err := s.copyOne(ctx, dir, src, target)
		if err != nil {
			return nil, err
		}
		copies = append(copies, dup)
	}

	ids := make([]int64, 0, len(copies))
	for _, c := range copies {
		ids = append(ids, c.ID)
	}
	s.audit.Record(ctx, user.ID, models.ActionCopyFiles, map[string]any{
		"sourceIds":      fileIDs,
		"copyIds":        ids,
		"targetFolderId": target,
	})
	return copies, nil
}

func (s *FileService) copyOne(ctx context.Context, dir blobstore.Dir, src *models.File, target *int64) (*models.File, error) {
	displayName := CopyName(src.DisplayName)
	storedName := blobstore.StoredName(displayName)
	dup := &models.File{
		OwnerID:      src.OwnerID,
		FolderID:     target,
		StoredName:   storedName,
		DisplayName:  displayName,
		PhysicalPath: dir.Original(storedName),
		MimeType:     src.MimeType,
		Category:     src.Category,
		IV:           src.IV,
		KeyID:        src.KeyID,
	}
	if src.ThumbnailPath != nil {
		intended := dir.Thumbnail(storedName)
		dup.ThumbnailPath = &intended
	}

	repo := s.repomanager.Files(s.db)
	if err := repo.CreatePending(ctx, dup); err != nil {
		return nil, err
	}

	size, err := s.copyBlob(ctx, src.PhysicalPath, dup.PhysicalPath)
	if err != nil {
		return nil, s.discardPending(ctx, dup, err)
	}

	var thumb *string
	if src.ThumbnailPath != nil {
		if _, err := s.copyBlob(ctx, *src.ThumbnailPath, *dup.ThumbnailPath); err != nil {
			s.log.Warn(ctx, "thumbnail not copied", "file_id", src.ID, "error", err)
		} else {
			thumb = dup.ThumbnailPath
		}
	}

	if err := repo.Confirm(ctx, dup.ID, size, thumb); err != nil {
		return nil, s.discardPending(ctx, dup, err)
	}

	dup.Status = models.FileStatusActive
	dup.SizeBytes = size
	dup.ThumbnailPath = thumb
	return dup, nil
}

func (s *FileService) copyBlob(ctx context.Context, from, to string) (int64, error) {
	r, _, err := s.store.Open(ctx, from)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return 0, fmt.Errorf("%w: source blob %s is missing", common.ErrStorage, from)
		}
		return 0, err
	}
	defer r.Close()
	return s.store.Write(ctx, to, r)
}

// CopyName inserts " (copy)" before the extension: "a.txt" -> "a (copy).txt".
func CopyName(name string) string {
	ext := path.Ext(name)
	if ext == name || len(ext) > 16 {
		ext = ""
	}
	out := strings.TrimSuffix(name, ext) + " (copy)" + ext
	if utf8.RuneCountInString(out) > maxDisplayName {
		return name
	}
	return out
}

// Delete removes the file's blobs, then its row. Blobs that are already
// gone are fine; a real storage error keeps the row so the delete can be retried.
func (s *FileService) Delete(ctx context.Context, user models.User, fileID int64) error {
	repo := s.repomanager.Files(s.db)
	rec, err := repo.GetOwned(ctx, fileID, user.ID)
	if err != nil {
		return err
	}

	if err := s.store.Remove(ctx, rec.PhysicalPath); err != nil {
		return err
	}
	if rec.ThumbnailPath != nil {
		if err := s.store.Remove(ctx, *rec.ThumbnailPath); err != nil {
			return err
		}
	}
	if err := repo.Delete(ctx, rec.ID); err != nil {
		return err
	}

	s.audit.Record(ctx, user.ID, models.ActionDeleteFile, map[string]any{"fileId": rec.ID, "name": rec.DisplayName})
	return nil
}
