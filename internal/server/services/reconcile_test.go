package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/vaultbox/internal/logging"
	"github.com/dmitrijs2005/vaultbox/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// messyVault leaves one of each inconsistency the reconciler repairs and
// returns the id of a healthy file plus the id of the file whose blob vanished.
func messyVault(t *testing.T, fx *fixture) (healthy, missing int64) {
	t.Helper()
	ctx := context.Background()

	res := fx.upload(t, userA, nil,
		fx.stage(t, "keep.txt", "text/plain", []byte("keep me")),
		fx.stage(t, "gone.txt", "text/plain", []byte("blob will vanish")),
	)
	healthy, missing = res[0].ID, res[1].ID

	gone, err := fx.files.GetOwned(ctx, missing, userA.ID)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(fx.store.Root(), gone.PhysicalPath)))

	// A crash between the blob write and the confirm.
	pending := &models.File{
		OwnerID:      userA.ID,
		StoredName:   "pending.bin",
		DisplayName:  "pending.bin",
		PhysicalPath: "user_1/pending.bin",
		MimeType:     "application/octet-stream",
		Category:     models.CategoryOther,
		IV:           strings.Repeat("00", 16),
		KeyID:        "k1",
	}
	require.NoError(t, fx.files.CreatePending(ctx, pending))
	_, err = fx.store.Write(ctx, pending.PhysicalPath, strings.NewReader("half written"))
	require.NoError(t, err)

	// A blob without any row.
	_, err = fx.store.Write(ctx, "user_1/orphan.bin", strings.NewReader("nobody owns me"))
	require.NoError(t, err)

	// Plaintext a crashed request left in staging.
	require.NoError(t, os.WriteFile(filepath.Join(fx.cfg.StagingPath(), "upload-123"), []byte("plain"), 0o600))

	return healthy, missing
}

func newTestReconciler(fx *fixture) *Reconciler {
	r := NewReconciler(nil, &fakeRepoManager{f: fx.files, fo: fx.folders}, fx.store, logging.Nop(), fx.cfg.StagingPath(), time.Hour)
	// Everything created by the test is older than the grace period.
	r.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	return r
}

func TestReconciler_DryRunReportsWithoutChanging(t *testing.T) {
	fx := newFixture(t)
	_, missing := messyVault(t, fx)
	keysBefore := blobKeys(t, fx)

	report, err := newTestReconciler(fx).Run(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, ReconcileReport{
		DryRun:         true,
		StalePending:   1,
		OrphanBlobs:    1,
		MissingBlobs:   1,
		StagingRemoved: 1,
	}, report)

	assert.ElementsMatch(t, keysBefore, blobKeys(t, fx))
	assert.Equal(t, 3, fx.files.count())
	_, err = fx.files.GetOwned(context.Background(), missing, userA.ID)
	assert.NoError(t, err, "still active after a dry run")
	assert.Len(t, stagingEntries(t, fx), 1)
}

func TestReconciler_RepairsAndIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	healthy, missing := messyVault(t, fx)
	r := newTestReconciler(fx)

	report, err := r.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{StalePending: 1, OrphanBlobs: 1, MissingBlobs: 1, StagingRemoved: 1}, report)

	healthyRec, err := fx.files.GetOwned(context.Background(), healthy, userA.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{healthyRec.PhysicalPath}, blobKeys(t, fx))
	assert.Equal(t, []byte("keep me"), fx.readPlain(t, userA.ID, healthy))

	assert.Equal(t, 2, fx.files.count(), "the stale pending row is gone")
	assert.Equal(t, models.FileStatusInvalid, fx.files.rows[missing].Status)
	assert.Empty(t, stagingEntries(t, fx))

	again, err := r.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{}, again)
}

func TestReconciler_LeavesYoungArtifactsAlone(t *testing.T) {
	fx := newFixture(t)
	messyVault(t, fx)

	r := newTestReconciler(fx)
	r.now = time.Now

	report, err := r.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, report.StalePending)
	assert.Zero(t, report.OrphanBlobs)
	assert.Zero(t, report.StagingRemoved)
	// A missing blob is not a timing question.
	assert.Equal(t, 1, report.MissingBlobs)
}

func TestReconciler_RunPeriodicStopsWithContext(t *testing.T) {
	fx := newFixture(t)
	r := newTestReconciler(fx)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.RunPeriodic(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPeriodic did not return after cancel")
	}

	// A non-positive interval disables the loop entirely.
	r.RunPeriodic(context.Background(), 0)
}
