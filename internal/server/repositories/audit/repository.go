package audit

import (
	"context"

	"github.com/dmitrijs2005/vaultbox/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, e *models.AuditEntry) error
}
