// Package services contains server-side business logic. FileService owns
// the whole life of a stored file: staging and encrypting uploads, handing
// out media tokens, decrypting on the way out and the management
// operations (list, rename, move, copy, delete).
package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/vaultbox/internal/cryptox"
	"github.com/dmitrijs2005/vaultbox/internal/logging"
	"github.com/dmitrijs2005/vaultbox/internal/server/auditlog"
	"github.com/dmitrijs2005/vaultbox/internal/server/auth"
	"github.com/dmitrijs2005/vaultbox/internal/server/blobstore"
	"github.com/dmitrijs2005/vaultbox/internal/server/config"
	"github.com/dmitrijs2005/vaultbox/internal/server/models"
	"github.com/dmitrijs2005/vaultbox/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/vaultbox/internal/server/thumbnail"
	"github.com/hashicorp/go-multierror"
)

// Thumbnailer renders an image preview into the blob store.
type Thumbnailer interface {
	Generate(ctx context.Context, sourcePath string, dir blobstore.Dir, storedName string) (string, error)
}

// FileService wires the cipher, blob store and repositories together.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       blobstore.Store
	cipher      *cryptox.Cipher
	thumbs      Thumbnailer
	tokens      *auth.Issuer
	audit       auditlog.Recorder
	log         logging.Logger

	stagingDir    string
	maxFiles      int
	maxFileSize   int64
	cleanupWindow time.Duration
}

// NewFileService constructs a FileService. cfg supplies the upload limits
// and the staging directory, which must already exist.
func NewFileService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	store blobstore.Store,
	cipher *cryptox.Cipher,
	tokens *auth.Issuer,
	audit auditlog.Recorder,
	log logging.Logger,
	cfg *config.Config,
) *FileService {
	return &FileService{
		db:            db,
		repomanager:   m,
		store:         store,
		cipher:        cipher,
		thumbs:        thumbnail.NewGenerator(store, cfg.ThumbnailSize),
		tokens:        tokens,
		audit:         audit,
		log:           log,
		stagingDir:    cfg.StagingPath(),
		maxFiles:      cfg.MaxUploadFiles,
		maxFileSize:   cfg.MaxUploadFileSize,
		cleanupWindow: 30 * time.Second,
	}
}

// MaxFiles is the per-request upload limit.
func (s *FileService) MaxFiles() int {
	return s.maxFiles
}

// MaxFileSize is the per-file upload limit in bytes.
func (s *FileService) MaxFileSize() int64 {
	return s.maxFileSize
}

// cleanupContext outlives a cancelled request so rollback still runs.
func (s *FileService) cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cleanupWindow)
}

// discardPending undoes a pending row and whatever blobs were written for
// it. Cleanup errors are collected and logged; they never replace cause.
func (s *FileService) discardPending(ctx context.Context, rec *models.File, cause error) error {
	cctx, cancel := s.cleanupContext(ctx)
	defer cancel()

	var errs *multierror.Error
	keys := []string{rec.PhysicalPath}
	if rec.ThumbnailPath != nil {
		keys = append(keys, *rec.ThumbnailPath)
	}
	for _, k := range keys {
		if err := s.store.Remove(cctx, k); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := s.repomanager.Files(s.db).Delete(cctx, rec.ID); err != nil {
		errs = multierror.Append(errs, err)
	}

	if err := errs.ErrorOrNil(); err != nil {
		s.log.Error(cctx, "pending file cleanup failed", "file_id", rec.ID, "error", err)
	}
	return cause
}
