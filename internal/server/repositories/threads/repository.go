package threads

import (
	"context"

	"github.com/dmitrijs2005/gophforum/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, thread *models.Thread) (*models.Thread, error)
	Exists(ctx context.Context, id int64) (bool, error)
	// GetDetail returns the thread header with its creator resolved; Messages is left nil.
	GetDetail(ctx context.Context, id int64) (*models.ThreadDetail, error)
	ListSummaries(ctx context.Context) ([]models.ThreadSummary, error)
}
