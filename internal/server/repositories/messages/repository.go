package messages

import (
	"context"

	"github.com/dmitrijs2005/gophforum/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, message *models.Message) (*models.Message, error)
	ListByThread(ctx context.Context, threadID int64) ([]models.MessageView, error)
}
