// Package services contains server-side business logic. AccountService
// handles registration, login and bearer-token authentication; ForumService
// handles threads and messages.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophforum/internal/common"
	"github.com/dmitrijs2005/gophforum/internal/dbx"
	"github.com/dmitrijs2005/gophforum/internal/logging"
	"github.com/dmitrijs2005/gophforum/internal/server/auth"
	"github.com/dmitrijs2005/gophforum/internal/server/models"
	"github.com/dmitrijs2005/gophforum/internal/server/repositories/repomanager"
)

// AccountService works on whatever DBTX or Transactor the caller's request
// holds; it never opens connections itself.
type AccountService struct {
	repomanager repomanager.RepositoryManager
	tokens      *auth.TokenService
	hasher      auth.PasswordHasher
	logger      logging.Logger
	now         func() time.Time

	dummyOnce   sync.Once
	dummyDigest string
}

func NewAccountService(m repomanager.RepositoryManager, tokens *auth.TokenService, hasher auth.PasswordHasher, logger logging.Logger) *AccountService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &AccountService{
		repomanager: m,
		tokens:      tokens,
		hasher:      hasher,
		logger:      logger.With("module", "accounts"),
		now:         time.Now,
	}
}

// Register creates an account and returns it together with a token for it.
func (s *AccountService) Register(ctx context.Context, db dbx.DBTX, username, password string) (*models.Account, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, "", fmt.Errorf("%w: username and password are required", common.ErrorValidation)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, "", err
	}

	account, err := s.repomanager.Accounts(db).Create(ctx, &models.Account{Username: username, PasswordDigest: digest})
	if err != nil {
		return nil, "", fmt.Errorf("error creating account: %w", err)
	}

	token, err := s.issueToken(account.ID)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info(ctx, "account registered", "account_id", account.ID)
	return account, token, nil
}

// Login checks the credentials and stamps last_login_at in one transaction.
// The username is normalized the same way Register stores it. Unknown users
// and wrong passwords both yield common.ErrorUnauthorized, and nothing is
// committed for them.
func (s *AccountService) Login(ctx context.Context, tr dbx.Transactor, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	var accountID int64

	err := tr.WithTransaction(ctx, func(ctx context.Context, tx *dbx.Tx) error {
		repo := s.repomanager.Accounts(tx)

		account, err := repo.GetByUsername(ctx, username)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				s.burnHash(password)
				return common.ErrorUnauthorized
			}
			return err
		}

		ok, err := s.hasher.Verify(account.PasswordDigest, password)
		if err != nil {
			return err
		}
		if !ok {
			return common.ErrorUnauthorized
		}

		if err := repo.UpdateLastLogin(ctx, account.ID, s.now()); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		accountID = account.ID
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			s.logger.Info(ctx, "login rejected", "username", username)
			return "", common.ErrorUnauthorized
		}
		return "", fmt.Errorf("error logging in: %w", err)
	}

	return s.issueToken(accountID)
}

func (s *AccountService) Get(ctx context.Context, db dbx.DBTX, id int64) (*models.Account, error) {
	return s.repomanager.Accounts(db).GetByID(ctx, id)
}

// Authenticate resolves a bearer token to an account id. Every failure is
// reported as common.ErrorUnauthorized; the cause is only logged.
func (s *AccountService) Authenticate(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, common.ErrorUnauthorized
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrTokenExpired):
			s.logger.Debug(ctx, "token rejected", "reason", "expired")
		default:
			s.logger.Warn(ctx, "token rejected", "reason", "bad signature", "error", err)
		}
		return 0, common.ErrorUnauthorized
	}

	id, err := auth.SubjectID(claims)
	if err != nil {
		s.logger.Warn(ctx, "token rejected", "reason", "bad subject", "error", err)
		return 0, common.ErrorUnauthorized
	}

	return id, nil
}

func (s *AccountService) issueToken(accountID int64) (string, error) {
	token, err := s.tokens.Sign(map[string]any{auth.ClaimSubject: accountID})
	if err != nil {
		return "", common.ErrorInternal
	}
	return token, nil
}

// burnHash spends about as long as a real password check so unknown
// usernames can't be told apart by response time.
func (s *AccountService) burnHash(password string) {
	s.dummyOnce.Do(func() {
		s.dummyDigest, _ = s.hasher.Hash("not-a-real-password")
	})
	_, _ = s.hasher.Verify(s.dummyDigest, password)
}
