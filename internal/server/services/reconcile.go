package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/vaultbox/internal/common"
	"github.com/dmitrijs2005/vaultbox/internal/filex"
	"github.com/dmitrijs2005/vaultbox/internal/logging"
	"github.com/dmitrijs2005/vaultbox/internal/server/blobstore"
	"github.com/dmitrijs2005/vaultbox/internal/server/repositories/repomanager"
	"github.com/hashicorp/go-multierror"
)

const reconcilePageSize = 500

// ReconcileReport counts what one pass found (and, unless DryRun, fixed).
type ReconcileReport struct {
	DryRun         bool `json:"dryRun"`
	StalePending   int  `json:"stalePending"`
	OrphanBlobs    int  `json:"orphanBlobs"`
	MissingBlobs   int  `json:"missingBlobs"`
	StagingRemoved int  `json:"stagingRemoved"`
}

// Reconciler repairs the gaps left when the blob store and the database
// disagree, e.g. after a crash between a blob write and its row update:
//
//   - pending rows older than the grace period lose their blobs and are deleted;
//   - blobs no row references and older than the grace period are deleted;
//   - active rows whose blob is gone are marked invalid;
//   - staged plaintext older than the grace period is deleted.
//
// Every step is idempotent, so passes may overlap with live traffic.
type Reconciler struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       blobstore.Store
	log         logging.Logger
	stagingDir  string
	grace       time.Duration
	now         func() time.Time
}

func NewReconciler(db *sql.DB, m repomanager.RepositoryManager, store blobstore.Store, log logging.Logger, stagingDir string, grace time.Duration) *Reconciler {
	return &Reconciler{
		db:          db,
		repomanager: m,
		store:       store,
		log:         log,
		stagingDir:  stagingDir,
		grace:       grace,
		now:         time.Now,
	}
}

// Run performs one pass. Errors on individual items do not stop the pass;
// they are collected and returned together.
func (r *Reconciler) Run(ctx context.Context, dryRun bool) (ReconcileReport, error) {
	report := ReconcileReport{DryRun: dryRun}
	cutoff := r.now().Add(-r.grace)
	var errs *multierror.Error

	if err := r.sweepPending(ctx, cutoff, dryRun, &report); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := r.sweepOrphans(ctx, cutoff, dryRun, &report); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := r.markMissing(ctx, dryRun, &report); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := r.sweepStaging(ctx, cutoff, dryRun, &report); err != nil {
		errs = multierror.Append(errs, err)
	}

	r.log.Info(ctx, "reconcile pass finished",
		"dry_run", dryRun,
		"stale_pending", report.StalePending,
		"orphan_blobs", report.OrphanBlobs,
		"missing_blobs", report.MissingBlobs,
		"staging_removed", report.StagingRemoved,
	)
	return report, errs.ErrorOrNil()
}

func (r *Reconciler) sweepPending(ctx context.Context, cutoff time.Time, dryRun bool, report *ReconcileReport) error {
	repo := r.repomanager.Files(r.db)
	stale, err := repo.ListStalePending(ctx, cutoff)
	if err != nil {
		return err
	}

	var errs *multierror.Error
	for _, f := range stale {
		report.StalePending++
		if dryRun {
			continue
		}
		keys := []string{f.PhysicalPath}
		if f.ThumbnailPath != nil {
			keys = append(keys, *f.ThumbnailPath)
		}
		failed := false
		for _, k := range keys {
			if err := r.store.Remove(ctx, k); err != nil {
				errs = multierror.Append(errs, err)
				failed = true
			}
		}
		if failed {
			continue
		}
		if err := repo.Delete(ctx, f.ID); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func (r *Reconciler) sweepOrphans(ctx context.Context, cutoff time.Time, dryRun bool, report *ReconcileReport) error {
	// List blobs before loading references: a blob written in between is
	// then either referenced or too young to touch.
	objects, err := r.store.List(ctx)
	if err != nil {
		return err
	}
	refs, err := r.repomanager.Files(r.db).ReferencedPaths(ctx)
	if err != nil {
		return err
	}

	var errs *multierror.Error
	for _, obj := range objects {
		if _, ok := refs[obj.Key]; ok || !obj.ModTime.Before(cutoff) {
			continue
		}
		report.OrphanBlobs++
		if dryRun {
			continue
		}
		if err := r.store.Remove(ctx, obj.Key); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func (r *Reconciler) markMissing(ctx context.Context, dryRun bool, report *ReconcileReport) error {
	repo := r.repomanager.Files(r.db)
	var errs *multierror.Error

	var after int64
	for {
		page, err := repo.ListActive(ctx, after, reconcilePageSize)
		if err != nil {
			return multierror.Append(errs, err).ErrorOrNil()
		}
		for _, f := range page {
			after = f.ID
			_, err := r.store.Stat(ctx, f.PhysicalPath)
			switch {
			case err == nil:
				continue
			case !errors.Is(err, common.ErrNotFound):
				errs = multierror.Append(errs, err)
				continue
			}
			report.MissingBlobs++
			r.log.Warn(ctx, "file blob missing", "file_id", f.ID, "path", f.PhysicalPath, "dry_run", dryRun)
			if dryRun {
				continue
			}
			if err := repo.MarkInvalid(ctx, f.ID); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		if len(page) < reconcilePageSize {
			return errs.ErrorOrNil()
		}
	}
}

func (r *Reconciler) sweepStaging(ctx context.Context, cutoff time.Time, dryRun bool, report *ReconcileReport) error {
	if r.stagingDir == "" {
		return nil
	}
	entries, err := os.ReadDir(r.stagingDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: read staging: %v", common.ErrStorage, err)
	}

	var errs *multierror.Error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		report.StagingRemoved++
		if dryRun {
			continue
		}
		if err := filex.RemoveIfExists(filepath.Join(r.stagingDir, e.Name())); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// RunPeriodic runs a pass every interval until ctx is done. Failures are
// logged and the next pass is attempted as scheduled.
func (r *Reconciler) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Run(ctx, false); err != nil {
				r.log.Error(ctx, "reconcile pass failed", "error", err)
			}
		}
	}
}
