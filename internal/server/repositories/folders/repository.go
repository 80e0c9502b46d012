package folders

import (
	"context"

	"github.com/dmitrijs2005/vaultbox/internal/server/models"
)

type Repository interface {
	GetOwned(ctx context.Context, id, ownerID int64) (*models.Folder, error)
}
