// Package files stores file records in PostgreSQL.
package files

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/vaultbox/internal/common"
	"github.com/dmitrijs2005/vaultbox/internal/dbx"
	"github.com/dmitrijs2005/vaultbox/internal/server/models"
)

const fileColumns = `id, user_id, folder_id, stored_name, display_name, physical_path, mime_type,
	size_bytes, thumbnail_path, category, iv, key_id, status, created_at, updated_at`

// PostgresRepository implements file storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.File, error) {
	var f models.File
	err := s.Scan(&f.ID, &f.OwnerID, &f.FolderID, &f.StoredName, &f.DisplayName, &f.PhysicalPath, &f.MimeType,
		&f.SizeBytes, &f.ThumbnailPath, &f.Category, &f.IV, &f.KeyID, &f.Status, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func collect(rows *sql.Rows, op string) ([]*models.File, error) {
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		item, err := scanFile(rows)
		if err != nil {
			return nil, dbx.Wrap(op, err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.Wrap(op, err)
	}
	return result, nil
}

func (r *PostgresRepository) CreatePending(ctx context.Context, f *models.File) error {
	query := `
		INSERT INTO files (user_id, folder_id, stored_name, display_name, physical_path, mime_type,
			size_bytes, thumbnail_path, category, iv, key_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, $10, 'pending')
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		f.OwnerID, f.FolderID, f.StoredName, f.DisplayName, f.PhysicalPath, f.MimeType,
		f.ThumbnailPath, f.Category, f.IV, f.KeyID,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return dbx.Wrap("insert pending file", err)
	}
	f.Status = models.FileStatusPending
	f.SizeBytes = 0
	return nil
}

func (r *PostgresRepository) Confirm(ctx context.Context, id int64, sizeBytes int64, thumbnailPath *string) error {
	query := `
		UPDATE files SET status = 'active', size_bytes = $2, thumbnail_path = $3, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	res, err := r.db.ExecContext(ctx, query, id, sizeBytes, thumbnailPath)
	if err != nil {
		return dbx.Wrap("confirm file", err)
	}
	return expectOne(res, "confirm file")
}

// GetOwned returns an active file belonging to ownerID.
func (r *PostgresRepository) GetOwned(ctx context.Context, id, ownerID int64) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1 AND user_id = $2 AND status = 'active'`

	f, err := scanFile(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		return nil, dbx.Wrap("get file", err)
	}
	return f, nil
}

// List returns the owner's active files, newest first.
func (r *PostgresRepository) List(ctx context.Context, ownerID int64, filter models.FileFilter) ([]*models.File, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + fileColumns + ` FROM files WHERE user_id = $1 AND status = 'active'`)
	args := []any{ownerID}

	if filter.Category != "" {
		args = append(args, string(filter.Category))
		fmt.Fprintf(&sb, " AND category = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		fmt.Fprintf(&sb, " AND display_name ILIKE $%d", len(args))
	}
	switch {
	case filter.RootOnly:
		sb.WriteString(" AND folder_id IS NULL")
	case filter.FolderID != nil:
		args = append(args, *filter.FolderID)
		fmt.Fprintf(&sb, " AND folder_id = $%d", len(args))
	}
	sb.WriteString(" ORDER BY created_at DESC, id DESC")

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, dbx.Wrap("list files", err)
	}
	return collect(rows, "list files")
}

func (r *PostgresRepository) Rename(ctx context.Context, id, ownerID int64, name string) error {
	query := `UPDATE files SET display_name = $3, updated_at = now() WHERE id = $1 AND user_id = $2 AND status = 'active'`
	res, err := r.db.ExecContext(ctx, query, id, ownerID, name)
	if err != nil {
		return dbx.Wrap("rename file", err)
	}
	return expectOne(res, "rename file")
}

func (r *PostgresRepository) Move(ctx context.Context, id, ownerID int64, folderID *int64) (bool, error) {
	query := `UPDATE files SET folder_id = $3, updated_at = now() WHERE id = $1 AND user_id = $2 AND status = 'active'`
	res, err := r.db.ExecContext(ctx, query, id, ownerID, folderID)
	if err != nil {
		return false, dbx.Wrap("move file", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbx.Wrap("move file", err)
	}
	return n == 1, nil
}

// Delete removes a row by id regardless of owner or status. Callers check
// ownership first. Deleting a missing row is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id); err != nil {
		return dbx.Wrap("delete file", err)
	}
	return nil
}

func (r *PostgresRepository) Stats(ctx context.Context, ownerID int64) (*models.FileStats, error) {
	query := `
		SELECT category, COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM files WHERE user_id = $1 AND status = 'active'
		GROUP BY category
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, dbx.Wrap("file stats", err)
	}
	defer rows.Close()

	stats := &models.FileStats{ByCategory: make(map[models.Category]int64, len(models.Categories))}
	for _, c := range models.Categories {
		stats.ByCategory[c] = 0
	}
	for rows.Next() {
		var (
			category     models.Category
			count, bytes int64
		)
		if err := rows.Scan(&category, &count, &bytes); err != nil {
			return nil, dbx.Wrap("file stats", err)
		}
		stats.ByCategory[category] = count
		stats.TotalFiles += count
		stats.TotalBytes += bytes
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.Wrap("file stats", err)
	}
	return stats, nil
}

// ListStalePending returns pending rows created before the cutoff, i.e.
// uploads that never confirmed.
func (r *PostgresRepository) ListStalePending(ctx context.Context, before time.Time) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE status = 'pending' AND created_at < $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, dbx.Wrap("list stale pending", err)
	}
	return collect(rows, "list stale pending")
}

// ListActive pages through active rows by id.
func (r *PostgresRepository) ListActive(ctx context.Context, afterID int64, limit int) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE status = 'active' AND id > $1 ORDER BY id LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, dbx.Wrap("list active", err)
	}
	return collect(rows, "list active")
}

// ReferencedPaths returns every blob path any row points at, in any status.
func (r *PostgresRepository) ReferencedPaths(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT physical_path, thumbnail_path FROM files`)
	if err != nil {
		return nil, dbx.Wrap("referenced paths", err)
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var (
			physical  string
			thumbnail sql.NullString
		)
		if err := rows.Scan(&physical, &thumbnail); err != nil {
			return nil, dbx.Wrap("referenced paths", err)
		}
		paths[physical] = struct{}{}
		if thumbnail.Valid && thumbnail.String != "" {
			paths[thumbnail.String] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.Wrap("referenced paths", err)
	}
	return paths, nil
}

func (r *PostgresRepository) MarkInvalid(ctx context.Context, id int64) error {
	query := `UPDATE files SET status = 'invalid', updated_at = now() WHERE id = $1 AND status = 'active'`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return dbx.Wrap("mark invalid", err)
	}
	return nil
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return dbx.Wrap(op, err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("%s: %w", op, common.ErrNotFound)
	default:
		return fmt.Errorf("%s: unexpected rows affected: %d", op, n)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
