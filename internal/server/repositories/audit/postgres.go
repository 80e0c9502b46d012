// Package audit appends audit log rows.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/vaultbox/internal/dbx"
	"github.com/dmitrijs2005/vaultbox/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, e *models.AuditEntry) error {
	// nil details are stored as SQL NULL
	var details any
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = b
	}

	query := `
		INSERT INTO audit_logs (user_id, action, details, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, e.UserID, e.Action, details, e.IPAddress, e.UserAgent).
		Scan(&e.ID, &e.CreatedAt)
	return dbx.Wrap("insert audit log", err)
}
