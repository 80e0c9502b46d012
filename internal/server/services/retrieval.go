package services

import (
	"bytes"
	"context"
	"crypto/aes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/vaultbox/internal/common"
	"github.com/dmitrijs2005/vaultbox/internal/filex"
	"github.com/dmitrijs2005/vaultbox/internal/server/models"
	"github.com/gabriel-vasile/mimetype"
)

// MediaToken is a short-lived credential for one file.
type MediaToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueMediaToken mints a media token for a file the user owns. Files of
// other owners are reported as not found.
func (s *FileService) IssueMediaToken(ctx context.Context, user models.User, fileID int64) (*MediaToken, error) {
	if _, err := s.repomanager.Files(s.db).GetOwned(ctx, fileID, user.ID); err != nil {
		return nil, err
	}
	token, expires, err := s.tokens.IssueMedia(user, fileID)
	if err != nil {
		return nil, err
	}
	return &MediaToken{Token: token, ExpiresAt: expires}, nil
}

type decryptedBody struct {
	io.Reader
	blob io.Closer
}

func (d *decryptedBody) Close() error {
	return d.blob.Close()
}

// OpenDecrypted checks everything that can be checked before a response is
// committed (ownership, IV, key id, blob presence and ciphertext length) and
// returns the record with a plaintext stream. The stream stops with the
// context. Anything wrong with a stored file other than ownership comes back
// as common.ErrDecrypt or common.ErrStorage, never as ErrNotFound.
func (s *FileService) OpenDecrypted(ctx context.Context, ownerID, fileID int64) (*models.File, io.ReadCloser, error) {
	rec, err := s.repomanager.Files(s.db).GetOwned(ctx, fileID, ownerID)
	if err != nil {
		return nil, nil, err
	}

	iv, err := hex.DecodeString(rec.IV)
	if err != nil || len(iv) != common.IVSize {
		return nil, nil, fmt.Errorf("%w: file %d has a malformed iv", common.ErrDecrypt, rec.ID)
	}

	blob, size, err := s.store.Open(ctx, rec.PhysicalPath)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: blob for file %d is missing", common.ErrStorage, rec.ID)
		}
		return nil, nil, err
	}
	if size <= 0 || size%aes.BlockSize != 0 {
		_ = blob.Close()
		return nil, nil, fmt.Errorf("%w: file %d ciphertext length %d", common.ErrDecrypt, rec.ID, size)
	}

	plain, err := s.cipher.DecryptReader(filex.ContextReader(ctx, blob), rec.KeyID, iv)
	if err != nil {
		_ = blob.Close()
		return nil, nil, err
	}
	return rec, &decryptedBody{Reader: plain, blob: blob}, nil
}

// Thumbnail is an unencrypted preview ready to send.
type Thumbnail struct {
	ContentType string
	Body        io.ReadCloser
}

type thumbnailBody struct {
	io.Reader
	io.Closer
}

// OpenThumbnail returns the stored preview of an owned file. No recorded
// thumbnail, or a thumbnail that has gone missing, is not found.
func (s *FileService) OpenThumbnail(ctx context.Context, ownerID, fileID int64) (*Thumbnail, error) {
	rec, err := s.repomanager.Files(s.db).GetOwned(ctx, fileID, ownerID)
	if err != nil {
		return nil, err
	}
	if rec.ThumbnailPath == nil || *rec.ThumbnailPath == "" {
		return nil, fmt.Errorf("file %d has no thumbnail: %w", rec.ID, common.ErrNotFound)
	}

	blob, _, err := s.store.Open(ctx, *rec.ThumbnailPath)
	if err != nil {
		return nil, err
	}

	head := make([]byte, 3072)
	n, err := io.ReadFull(blob, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		_ = blob.Close()
		return nil, fmt.Errorf("%w: read thumbnail: %v", common.ErrStorage, err)
	}
	head = head[:n]

	return &Thumbnail{
		ContentType: mimetype.Detect(head).String(),
		Body:        thumbnailBody{Reader: io.MultiReader(bytes.NewReader(head), blob), Closer: blob},
	}, nil
}

// RecordDownload audits an attachment download.
func (s *FileService) RecordDownload(ctx context.Context, user models.User, rec *models.File) {
	s.audit.Record(ctx, user.ID, models.ActionDownload, map[string]any{"fileId": rec.ID})
}
