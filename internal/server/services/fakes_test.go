package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophforum/internal/common"
	"github.com/dmitrijs2005/gophforum/internal/dbx"
	"github.com/dmitrijs2005/gophforum/internal/server/models"
	"github.com/dmitrijs2005/gophforum/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/gophforum/internal/server/repositories/messages"
	"github.com/dmitrijs2005/gophforum/internal/server/repositories/threads"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

// newMockSession returns a pool-backed session over sqlmock so transaction
// boundaries (begin/commit/rollback) can be asserted.
func newMockSession(t *testing.T) (*dbx.Session, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	pool := dbx.NewPool(db, dbx.WithCapacity(1))
	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Release(s)
		_ = db.Close()
	})
	return s, mock
}

type fakeRepoManager struct {
	accounts *fakeAccountsRepo
	threads  *fakeThreadsRepo
	messages *fakeMessagesRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		accounts: &fakeAccountsRepo{byName: map[string]*models.Account{}},
		threads:  &fakeThreadsRepo{},
		messages: &fakeMessagesRepo{},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository        { return m.accounts }
func (m *fakeRepoManager) Threads(dbx.DBTX) threads.Repository          { return m.threads }
func (m *fakeRepoManager) Messages(dbx.DBTX) messages.Repository        { return m.messages }

type fakeAccountsRepo struct {
	byName    map[string]*models.Account
	nextID    int64
	createErr error
	getErr    error
	updateErr error

	lastLogin map[int64]time.Time
}

func (f *fakeAccountsRepo) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.byName[a.Username]; ok {
		return nil, common.ErrorAlreadyExists
	}
	f.nextID++
	a.ID = f.nextID
	f.byName[a.Username] = a
	return a, nil
}

func (f *fakeAccountsRepo) GetByID(_ context.Context, id int64) (*models.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, a := range f.byName {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeAccountsRepo) GetByUsername(_ context.Context, username string) (*models.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.byName[username]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return a, nil
}

func (f *fakeAccountsRepo) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.lastLogin == nil {
		f.lastLogin = map[int64]time.Time{}
	}
	f.lastLogin[id] = at
	return nil
}

type fakeThreadsRepo struct {
	created   []*models.Thread
	createErr error

	exists    bool
	existsErr error

	detail    *models.ThreadDetail
	detailErr error

	summaries []models.ThreadSummary
}

func (f *fakeThreadsRepo) Create(_ context.Context, th *models.Thread) (*models.Thread, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	th.ID = int64(len(f.created) + 1)
	f.created = append(f.created, th)
	return th, nil
}

func (f *fakeThreadsRepo) Exists(context.Context, int64) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeThreadsRepo) GetDetail(context.Context, int64) (*models.ThreadDetail, error) {
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	d := *f.detail
	return &d, nil
}

func (f *fakeThreadsRepo) ListSummaries(context.Context) ([]models.ThreadSummary, error) {
	return f.summaries, nil
}

type fakeMessagesRepo struct {
	created   []*models.Message
	createErr error

	list    []models.MessageView
	listErr error
}

func (f *fakeMessagesRepo) Create(_ context.Context, m *models.Message) (*models.Message, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	m.ID = int64(len(f.created) + 1)
	f.created = append(f.created, m)
	return m, nil
}

func (f *fakeMessagesRepo) ListByThread(context.Context, int64) ([]models.MessageView, error) {
	return f.list, f.listErr
}
