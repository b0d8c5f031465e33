package threads

import (
	"context"
	"database/sql"
	"errors"
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

func (r *PostgresRepository) Create(ctx context.Context, thread *models.Thread) (*models.Thread, error) {
	query :=
		`INSERT INTO threads (creator_id, title)
		 VALUES ($1, $2)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query, thread.CreatorID, thread.Title).
		Scan(&thread.ID, &thread.CreatedAt)

	if err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("creator %d: %w", thread.CreatorID, common.ErrorNotFound)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return thread, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, id int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM threads WHERE id = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) GetDetail(ctx context.Context, id int64) (*models.ThreadDetail, error) {
	query :=
		`SELECT t.id, a.username, t.title
		 FROM threads t
		 JOIN accounts a ON a.id = t.creator_id
		 WHERE t.id = $1
		 `

	thread := &models.ThreadDetail{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&thread.ID, &thread.Creator, &thread.Title)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return thread, nil
}

// ListSummaries returns every thread, newest first, with its latest message.
func (r *PostgresRepository) ListSummaries(ctx context.Context) ([]models.ThreadSummary, error) {
	query :=
		`SELECT t.id, a.username, t.title, m.id, ma.username, m.content
		 FROM threads t
		 JOIN accounts a ON a.id = t.creator_id
		 LEFT JOIN LATERAL (
		     SELECT id, creator_id, content FROM messages
		     WHERE thread_id = t.id
		     ORDER BY id DESC
		     LIMIT 1
		 ) m ON true
		 LEFT JOIN accounts ma ON ma.id = m.creator_id
		 ORDER BY t.id DESC
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.ThreadSummary, 0)
	for rows.Next() {
		var (
			s         models.ThreadSummary
			msgID     sql.NullInt64
			msgAuthor sql.NullString
			msgBody   sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Creator, &s.Title, &msgID, &msgAuthor, &msgBody); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if msgID.Valid {
			s.LatestMessage = &models.MessageView{
				ID:      msgID.Int64,
				Creator: msgAuthor.String,
				Content: msgBody.String,
			}
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}
