package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophforum/internal/common"
	"github.com/dmitrijs2005/gophforum/internal/dbx"
	"github.com/dmitrijs2005/gophforum/internal/logging"
	"github.com/dmitrijs2005/gophforum/internal/server/models"
	"github.com/dmitrijs2005/gophforum/internal/server/repositories/repomanager"
)

type ForumService struct {
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewForumService(m repomanager.RepositoryManager, logger logging.Logger) *ForumService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &ForumService{repomanager: m, logger: logger.With("module", "forum")}
}

func (s *ForumService) CreateThread(ctx context.Context, db dbx.DBTX, creatorID int64, title string) (*models.Thread, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", common.ErrorValidation)
	}

	thread, err := s.repomanager.Threads(db).Create(ctx, &models.Thread{CreatorID: creatorID, Title: title})
	if err != nil {
		return nil, fmt.Errorf("error creating thread: %w", err)
	}

	s.logger.Info(ctx, "thread created", "thread_id", thread.ID, "creator_id", creatorID)
	return thread, nil
}

func (s *ForumService) ListThreads(ctx context.Context, db dbx.DBTX) ([]models.ThreadSummary, error) {
	return s.repomanager.Threads(db).ListSummaries(ctx)
}

// GetThread returns the thread with its creator and all messages, oldest first.
func (s *ForumService) GetThread(ctx context.Context, db dbx.DBTX, id int64) (*models.ThreadDetail, error) {
	thread, err := s.repomanager.Threads(db).GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	thread.Messages, err = s.repomanager.Messages(db).ListByThread(ctx, id)
	if err != nil {
		return nil, err
	}

	return thread, nil
}

// PostMessage checks that the thread exists and appends the message in one
// transaction.
func (s *ForumService) PostMessage(ctx context.Context, tr dbx.Transactor, creatorID, threadID int64, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is required", common.ErrorValidation)
	}

	var message *models.Message
	err := tr.WithTransaction(ctx, func(ctx context.Context, tx *dbx.Tx) error {
		exists, err := s.repomanager.Threads(tx).Exists(ctx, threadID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("thread %d: %w", threadID, common.ErrorNotFound)
		}

		message, err = s.repomanager.Messages(tx).Create(ctx, &models.Message{
			ThreadID:  threadID,
			CreatorID: creatorID,
			Content:   content,
		})
		if err != nil {
			return err
		}

		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("error posting message: %w", err)
	}

	return message, nil
}
