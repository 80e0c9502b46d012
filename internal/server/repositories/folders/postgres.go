// Package folders reads folder ownership from PostgreSQL. Folder management
// itself lives in another service.
package folders

import (
	"context"

	"github.com/dmitrijs2005/vaultbox/internal/dbx"
	"github.com/dmitrijs2005/vaultbox/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetOwned returns the folder if it exists and belongs to ownerID,
// otherwise common.ErrNotFound.
func (r *PostgresRepository) GetOwned(ctx context.Context, id, ownerID int64) (*models.Folder, error) {
	query := `SELECT id, user_id, parent_id, name, created_at FROM folders WHERE id = $1 AND user_id = $2`

	f := &models.Folder{}
	err := r.db.QueryRowContext(ctx, query, id, ownerID).Scan(&f.ID, &f.OwnerID, &f.ParentID, &f.Name, &f.CreatedAt)
	if err != nil {
		return nil, dbx.Wrap("get folder", err)
	}
	return f, nil
}
