package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/vaultbox/internal/common"
	"github.com/dmitrijs2005/vaultbox/internal/cryptox"
	"github.com/dmitrijs2005/vaultbox/internal/filex"
	"github.com/dmitrijs2005/vaultbox/internal/server/blobstore"
	"github.com/dmitrijs2005/vaultbox/internal/server/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const genericMIME = "application/octet-stream"

// StagedFile is one received upload whose plaintext sits in the staging
// directory until it has been encrypted.
type StagedFile struct {
	Name       string
	MimeType   string
	StagedPath string
	Size       int64
}

// UploadedFile is the per-file result of an upload.
type UploadedFile struct {
	ID        int64           `json:"id"`
	Filename  string          `json:"filename"`
	Size      int64           `json:"size"`
	Category  models.Category `json:"category"`
	Thumbnail *string         `json:"thumbnail"`
}

// Stage spools one incoming plaintext stream to the staging directory,
// enforcing the size cap. A missing or generic content type is replaced by
// one sniffed from the content.
func (s *FileService) Stage(ctx context.Context, name, mimeType string, r io.Reader) (StagedFile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return StagedFile{}, fmt.Errorf("%w: file name is required", common.ErrValidation)
	}

	f, err := os.OpenFile(filepath.Join(s.stagingDir, "upload-"+uuid.NewString()), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return StagedFile{}, fmt.Errorf("%w: staging: %v", common.ErrStorage, err)
	}
	staged := StagedFile{Name: name, MimeType: mimeType, StagedPath: f.Name()}
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
			_ = filex.RemoveIfExists(staged.StagedPath)
		}
	}()

	n, err := io.Copy(f, filex.ContextReader(ctx, io.LimitReader(r, s.maxFileSize+1)))
	if err != nil {
		return StagedFile{}, fmt.Errorf("%w: staging %s: %w", common.ErrStorage, name, err)
	}
	if n > s.maxFileSize {
		return StagedFile{}, fmt.Errorf("%w: %s exceeds %d bytes", common.ErrFileTooLarge, name, s.maxFileSize)
	}
	if err := f.Close(); err != nil {
		return StagedFile{}, fmt.Errorf("%w: staging %s: %v", common.ErrStorage, name, err)
	}
	staged.Size = n

	if mt := strings.TrimSpace(staged.MimeType); mt == "" || strings.EqualFold(mt, genericMIME) {
		if detected, err := mimetype.DetectFile(staged.StagedPath); err == nil {
			staged.MimeType = detected.String()
		} else {
			staged.MimeType = genericMIME
		}
	}

	ok = true
	return staged, nil
}

// Discard removes staged plaintext that will not be uploaded.
func (s *FileService) Discard(ctx context.Context, files []StagedFile) {
	for _, f := range files {
		if err := filex.RemoveIfExists(f.StagedPath); err != nil {
			s.log.Error(ctx, "staging cleanup failed", "path", f.StagedPath, "error", err)
		}
	}
}

// Upload encrypts staged files into the blob store in order. Each file
// goes through a pending row that is confirmed only once its ciphertext is
// in place. The first failing file is rolled back and fails the request;
// files before it stay stored and are audited. A folder that is missing or not the owner's
// falls back to the root. Staged plaintext is always removed.
func (s *FileService) Upload(ctx context.Context, user models.User, files []StagedFile, folderID *int64) ([]UploadedFile, error) {
	defer s.Discard(ctx, files)

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files uploaded", common.ErrValidation)
	}
	if len(files) > s.maxFiles {
		return nil, fmt.Errorf("%w: at most %d files per upload", common.ErrTooManyFiles, s.maxFiles)
	}

	folderID, err := s.resolveFolder(ctx, user.ID, folderID)
	if err != nil {
		return nil, err
	}

	dir, err := s.store.Allocate(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	result := make([]UploadedFile, 0, len(files))
	for _, f := range files {
		rec, err := s.storeOne(ctx, user.ID, dir, f, folderID)
		if err != nil {
			s.log.Error(ctx, "upload failed", "user_id", user.ID, "file", f.Name, "stored", len(result), "error", err)
			if len(result) > 0 {
				s.audit.Record(ctx, user.ID, models.ActionUploadFiles, map[string]any{
					"count":    len(result),
					"folderId": folderID,
					"failed":   f.Name,
				})
			}
			return nil, err
		}
		result = append(result, UploadedFile{
			ID:        rec.ID,
			Filename:  rec.DisplayName,
			Size:      rec.SizeBytes,
			Category:  rec.Category,
			Thumbnail: rec.ThumbnailPath,
		})
	}

	s.audit.Record(ctx, user.ID, models.ActionUploadFiles, map[string]any{
		"count":    len(result),
		"folderId": folderID,
	})
	return result, nil
}

// resolveFolder returns folderID if the owner has it, nil otherwise.
func (s *FileService) resolveFolder(ctx context.Context, ownerID int64, folderID *int64) (*int64, error) {
	if folderID == nil {
		return nil, nil
	}
	_, err := s.repomanager.Folders(s.db).GetOwned(ctx, *folderID, ownerID)
	switch {
	case err == nil:
		return folderID, nil
	case errors.Is(err, common.ErrNotFound):
		return nil, nil
	default:
		return nil, err
	}
}

func (s *FileService) storeOne(ctx context.Context, ownerID int64, dir blobstore.Dir, f StagedFile, folderID *int64) (*models.File, error) {
	src, err := os.Open(f.StagedPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open staged file: %v", common.ErrStorage, err)
	}
	defer src.Close()

	plain := &filex.CountingReader{R: filex.ContextReader(ctx, src)}
	enc, iv, keyID, err := s.cipher.EncryptStream(plain)
	if err != nil {
		return nil, err
	}

	storedName := blobstore.StoredName(f.Name)
	rec := &models.File{
		OwnerID:      ownerID,
		FolderID:     folderID,
		StoredName:   storedName,
		DisplayName:  f.Name,
		PhysicalPath: dir.Original(storedName),
		MimeType:     f.MimeType,
		Category:     Categorize(f.MimeType),
		IV:           hex.EncodeToString(iv),
		KeyID:        keyID,
	}
	if rec.Category == models.CategoryImage {
		intended := dir.Thumbnail(storedName)
		rec.ThumbnailPath = &intended
	}

	repo := s.repomanager.Files(s.db)
	if err := repo.CreatePending(ctx, rec); err != nil {
		return nil, err
	}

	var thumb *string
	if rec.Category == models.CategoryImage {
		key, err := s.thumbs.Generate(ctx, f.StagedPath, dir, storedName)
		if err != nil {
			s.log.Warn(ctx, "thumbnail skipped", "file", f.Name, "error", err)
		} else {
			thumb = &key
		}
	}

	size, err := s.store.Write(ctx, rec.PhysicalPath, enc)
	if err != nil {
		return nil, s.discardPending(ctx, rec, err)
	}
	if plain.N != f.Size || size != cryptox.CiphertextSize(f.Size) {
		err := fmt.Errorf("%w: staged %s changed: staged %d bytes, encrypted %d, wrote %d",
			common.ErrStorage, f.Name, f.Size, plain.N, size)
		return nil, s.discardPending(ctx, rec, err)
	}
	_ = src.Close()

	if err := filex.RemoveIfExists(f.StagedPath); err != nil {
		return nil, s.discardPending(ctx, rec, fmt.Errorf("%w: remove plaintext: %v", common.ErrStorage, err))
	}

	if err := repo.Confirm(ctx, rec.ID, size, thumb); err != nil {
		return nil, s.discardPending(ctx, rec, err)
	}

	rec.Status = models.FileStatusActive
	rec.SizeBytes = size
	rec.ThumbnailPath = thumb
	return rec, nil
}
