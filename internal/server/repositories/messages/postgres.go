package messages

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophforum/internal/common"
	"github.com/dmitrijs2005/gophforum/internal/dbx"
	"github.com/dmitrijs2005/gophforum/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create appends a message. A missing thread or creator surfaces as
// common.ErrorNotFound through the foreign keys.
func (r *PostgresRepository) Create(ctx context.Context, message *models.Message) (*models.Message, error) {
	query :=
		`INSERT INTO messages (thread_id, creator_id, content)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query, message.ThreadID, message.CreatorID, message.Content).
		Scan(&message.ID, &message.CreatedAt)

	if err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("thread %d: %w", message.ThreadID, common.ErrorNotFound)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return message, nil
}

// ListByThread returns the thread's messages oldest first.
func (r *PostgresRepository) ListByThread(ctx context.Context, threadID int64) ([]models.MessageView, error) {
	query :=
		`SELECT m.id, a.username, m.content
		 FROM messages m
		 JOIN accounts a ON a.id = m.creator_id
		 WHERE m.thread_id = $1
		 ORDER BY m.id ASC
		 `

	rows, err := r.db.QueryContext(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.MessageView, 0)
	for rows.Next() {
		var m models.MessageView
		if err := rows.Scan(&m.ID, &m.Creator, &m.Content); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}
