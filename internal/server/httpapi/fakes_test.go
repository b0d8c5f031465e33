package httpapi

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophforum/internal/common"
	"github.com/dmitrijs2005/gophforum/internal/dbx"
	"github.com/dmitrijs2005/gophforum/internal/server/models"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, opts ...dbx.Option) (*dbx.Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	pool := dbx.NewPool(db, opts...)
	t.Cleanup(func() { _ = pool.Close() })
	return pool, mock
}

type fakeAccounts struct {
	registerErr error
	loginErr    error
	account     *models.Account
	getErr      error
	tokens      map[string]int64

	onRegister func()

	gotUsername string
	gotPassword string
	gotSession  dbx.DBTX
}

func (f *fakeAccounts) Register(_ context.Context, db dbx.DBTX, username, password string) (*models.Account, string, error) {
	f.gotSession, f.gotUsername, f.gotPassword = db, username, password
	if f.onRegister != nil {
		f.onRegister()
	}
	if f.registerErr != nil {
		return nil, "", f.registerErr
	}
	return &models.Account{ID: 1, Username: username}, "tok-new", nil
}

func (f *fakeAccounts) Login(_ context.Context, tr dbx.Transactor, username, password string) (string, error) {
	f.gotSession, f.gotUsername, f.gotPassword = tr, username, password
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return "tok-login", nil
}

func (f *fakeAccounts) Get(_ context.Context, _ dbx.DBTX, id int64) (*models.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.account != nil && f.account.ID == id {
		return f.account, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeAccounts) Authenticate(_ context.Context, token string) (int64, error) {
	if id, ok := f.tokens[token]; ok {
		return id, nil
	}
	return 0, common.ErrorUnauthorized
}

type fakeForum struct {
	threads []models.ThreadSummary
	detail  *models.ThreadDetail

	createdBy    int64
	createdTitle string
	postedBy     int64
	postedThread int64
	postErr      error
}

func (f *fakeForum) CreateThread(_ context.Context, _ dbx.DBTX, creatorID int64, title string) (*models.Thread, error) {
	if title == "" {
		return nil, common.ErrorValidation
	}
	f.createdBy, f.createdTitle = creatorID, title
	return &models.Thread{ID: 7, CreatorID: creatorID, Title: title}, nil
}

func (f *fakeForum) ListThreads(context.Context, dbx.DBTX) ([]models.ThreadSummary, error) {
	return f.threads, nil
}

func (f *fakeForum) GetThread(_ context.Context, _ dbx.DBTX, id int64) (*models.ThreadDetail, error) {
	if f.detail != nil && f.detail.ID == id {
		return f.detail, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeForum) PostMessage(_ context.Context, _ dbx.Transactor, creatorID, threadID int64, _ string) (*models.Message, error) {
	if f.postErr != nil {
		return nil, f.postErr
	}
	f.postedBy, f.postedThread = creatorID, threadID
	return &models.Message{ID: 11, ThreadID: threadID, CreatorID: creatorID}, nil
}
