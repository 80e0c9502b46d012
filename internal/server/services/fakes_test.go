package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/vaultbox/internal/common"
	"github.com/dmitrijs2005/vaultbox/internal/cryptox"
	"github.com/dmitrijs2005/vaultbox/internal/dbx"
	"github.com/dmitrijs2005/vaultbox/internal/filex"
	"github.com/dmitrijs2005/vaultbox/internal/logging"
	"github.com/dmitrijs2005/vaultbox/internal/server/auth"
	"github.com/dmitrijs2005/vaultbox/internal/server/blobstore"
	"github.com/dmitrijs2005/vaultbox/internal/server/config"
	"github.com/dmitrijs2005/vaultbox/internal/server/models"
	"github.com/dmitrijs2005/vaultbox/internal/server/repositories/audit"
	"github.com/dmitrijs2005/vaultbox/internal/server/repositories/files"
	"github.com/dmitrijs2005/vaultbox/internal/server/repositories/folders"
	"github.com/stretchr/testify/require"
)

// --- in-memory repositories ---

type memFiles struct {
	mu     sync.Mutex
	rows   map[int64]*models.File
	nextID int64
	now    time.Time

	failCreate  error
	failConfirm error
	confirmN    int // fail only the confirm with this 1-based index; 0 means every one
	confirms    int
}

func newMemFiles() *memFiles {
	return &memFiles{rows: map[int64]*models.File{}, now: time.Now()}
}

func cloneFile(f *models.File) *models.File {
	c := *f
	return &c
}

func (m *memFiles) CreatePending(ctx context.Context, f *models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	for _, r := range m.rows {
		if r.PhysicalPath == f.PhysicalPath {
			return fmt.Errorf("duplicate path: %w", common.ErrDatabase)
		}
	}
	m.nextID++
	m.now = m.now.Add(time.Second)
	f.ID = m.nextID
	f.Status = models.FileStatusPending
	f.CreatedAt, f.UpdatedAt = m.now, m.now
	m.rows[f.ID] = cloneFile(f)
	return nil
}

func (m *memFiles) Confirm(ctx context.Context, id int64, size int64, thumb *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirms++
	if m.failConfirm != nil && (m.confirmN == 0 || m.confirmN == m.confirms) {
		return m.failConfirm
	}
	r, ok := m.rows[id]
	if !ok || r.Status != models.FileStatusPending {
		return common.ErrNotFound
	}
	r.Status = models.FileStatusActive
	r.SizeBytes = size
	r.ThumbnailPath = thumb
	return nil
}

func (m *memFiles) GetOwned(ctx context.Context, id, ownerID int64) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.OwnerID != ownerID || r.Status != models.FileStatusActive {
		return nil, fmt.Errorf("get file: %w", common.ErrNotFound)
	}
	return cloneFile(r), nil
}

func (m *memFiles) List(ctx context.Context, ownerID int64, filter models.FileFilter) ([]*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.File
	for _, r := range m.rows {
		if r.OwnerID != ownerID || r.Status != models.FileStatusActive {
			continue
		}
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(r.DisplayName), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.RootOnly && r.FolderID != nil {
			continue
		}
		if filter.FolderID != nil && (r.FolderID == nil || *r.FolderID != *filter.FolderID) {
			continue
		}
		out = append(out, cloneFile(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memFiles) Rename(ctx context.Context, id, ownerID int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.OwnerID != ownerID || r.Status != models.FileStatusActive {
		return common.ErrNotFound
	}
	r.DisplayName = name
	return nil
}

func (m *memFiles) Move(ctx context.Context, id, ownerID int64, folderID *int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.OwnerID != ownerID || r.Status != models.FileStatusActive {
		return false, nil
	}
	r.FolderID = folderID
	return true, nil
}

func (m *memFiles) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memFiles) Stats(ctx context.Context, ownerID int64) (*models.FileStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &models.FileStats{ByCategory: map[models.Category]int64{}}
	for _, r := range m.rows {
		if r.OwnerID == ownerID && r.Status == models.FileStatusActive {
			s.TotalFiles++
			s.TotalBytes += r.SizeBytes
			s.ByCategory[r.Category]++
		}
	}
	return s, nil
}

func (m *memFiles) ListStalePending(ctx context.Context, before time.Time) ([]*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.File
	for _, r := range m.rows {
		if r.Status == models.FileStatusPending && r.CreatedAt.Before(before) {
			out = append(out, cloneFile(r))
		}
	}
	return out, nil
}

func (m *memFiles) ListActive(ctx context.Context, afterID int64, limit int) ([]*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.File
	for _, r := range m.rows {
		if r.Status == models.FileStatusActive && r.ID > afterID {
			out = append(out, cloneFile(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memFiles) ReferencedPaths(ctx context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]struct{}{}
	for _, r := range m.rows {
		out[r.PhysicalPath] = struct{}{}
		if r.ThumbnailPath != nil {
			out[*r.ThumbnailPath] = struct{}{}
		}
	}
	return out, nil
}

func (m *memFiles) MarkInvalid(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[id]; ok && r.Status == models.FileStatusActive {
		r.Status = models.FileStatusInvalid
	}
	return nil
}

func (m *memFiles) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memFolders struct {
	owners map[int64]int64 // folder id -> owner id
}

func (m *memFolders) GetOwned(ctx context.Context, id, ownerID int64) (*models.Folder, error) {
	if owner, ok := m.owners[id]; ok && owner == ownerID {
		return &models.Folder{ID: id, OwnerID: ownerID, Name: fmt.Sprintf("folder-%d", id)}, nil
	}
	return nil, fmt.Errorf("get folder: %w", common.ErrNotFound)
}

type auditCall struct {
	UserID  int64
	Action  string
	Details map[string]any
}

type memAudit struct {
	mu    sync.Mutex
	calls []auditCall
}

func (m *memAudit) Record(ctx context.Context, userID int64, action string, details map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, auditCall{UserID: userID, Action: action, Details: details})
}

func (m *memAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		out = append(out, c.Action)
	}
	return out
}

type fakeRepoManager struct {
	f  *memFiles
	fo *memFolders
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Files(db dbx.DBTX) files.Repository         { return m.f }
func (m *fakeRepoManager) Folders(db dbx.DBTX) folders.Repository     { return m.fo }
func (m *fakeRepoManager) Audit(db dbx.DBTX) audit.Repository         { return nil }

// --- service fixture ---

type fixture struct {
	svc     *FileService
	files   *memFiles
	folders *memFolders
	audit   *memAudit
	store   *blobstore.FSStore
	tokens  *auth.Issuer
	mock    sqlmock.Sqlmock
	cfg     *config.Config
}

var (
	userA = models.User{ID: 1, Username: "alice", Email: "alice@example.com"}
	userB = models.User{ID: 2, Username: "bob", Email: "bob@example.com"}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.StorageRoot = t.TempDir()
	cfg.MaxUploadFiles = 3
	cfg.MaxUploadFileSize = 1 << 20

	staging, err := filex.EnsureDir(cfg.StagingPath())
	require.NoError(t, err)
	cfg.StagingDir = staging

	store, err := blobstore.NewFSStore(cfg.StorageRoot, ".staging")
	require.NoError(t, err)

	kr, err := cryptox.NewKeyring(cfg.EncryptionKeys, cfg.ActiveKeyID)
	require.NoError(t, err)

	fx := &fixture{
		files:   newMemFiles(),
		folders: &memFolders{owners: map[int64]int64{10: userA.ID, 20: userB.ID}},
		audit:   &memAudit{},
		store:   store,
		tokens:  auth.NewIssuer([]byte(cfg.SecretKey), cfg.SessionTokenValidityDuration, cfg.MediaTokenValidityDuration),
		mock:    mock,
		cfg:     cfg,
	}
	rm := &fakeRepoManager{f: fx.files, fo: fx.folders}
	fx.svc = NewFileService(db, rm, store, cryptox.NewCipher(kr), fx.tokens, fx.audit, logging.Nop(), cfg)
	return fx
}
