package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dmitrijs2005/gophforum/internal/common"
	"github.com/dmitrijs2005/gophforum/internal/dbx"
	"github.com/dmitrijs2005/gophforum/internal/logging"
	"github.com/dmitrijs2005/gophforum/internal/server/config"
	"github.com/dmitrijs2005/gophforum/internal/server/migrations"
	"github.com/dmitrijs2005/gophforum/internal/server/models"
	"github.com/dmitrijs2005/gophforum/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophforum/internal/testutil/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, dsn string) *App {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DatabaseDSN = dsn
	cfg.SecretKey = "integration-secret"
	cfg.PoolSize = 3
	cfg.BcryptCost = 4

	app, err := NewApp(context.Background(), cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func postJSON(t *testing.T, url string, body any, token string) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(common.TokenHeaderName, token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func lastLogin(t *testing.T, db *sql.DB, username string) sql.NullTime {
	t.Helper()
	var at sql.NullTime
	err := db.QueryRow(`SELECT last_login_at FROM accounts WHERE username = $1`, username).Scan(&at)
	require.NoError(t, err)
	return at
}

func TestApp_EndToEnd(t *testing.T) {
	db, dsn := pgtest.Open(t)
	app := newTestApp(t, dsn)

	ts := httptest.NewServer(app.Handler())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/account", map[string]string{"username": "alice", "password": "pw1"}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token := readJSON[map[string]string](t, resp)["token"]
	require.NotEmpty(t, token)

	resp = postJSON(t, ts.URL+"/account", map[string]string{"username": "alice", "password": "other"}, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/thread", map[string]string{"title": "Hello"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/thread", map[string]string{"title": "Hello"}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	threadID := readJSON[map[string]int64](t, resp)["id"]

	get, err := http.Get(fmt.Sprintf("%s/thread/%d", ts.URL, threadID))
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)

	thread := readJSON[models.ThreadDetail](t, get)
	assert.Equal(t, "alice", thread.Creator)
	assert.Equal(t, "Hello", thread.Title)
	assert.NotNil(t, thread.Messages)
	assert.Empty(t, thread.Messages)

	resp = postJSON(t, fmt.Sprintf("%s/thread/%d", ts.URL, threadID), map[string]string{"content": "first"}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/thread/999999", map[string]string{"content": "nowhere"}, token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	list, err := http.Get(ts.URL + "/thread")
	require.NoError(t, err)
	defer list.Body.Close()
	summaries := readJSON[[]models.ThreadSummary](t, list)
	require.Len(t, summaries, 1)
	require.NotNil(t, summaries[0].LatestMessage)
	assert.Equal(t, "first", summaries[0].LatestMessage.Content)
	assert.Equal(t, "alice", summaries[0].LatestMessage.Creator)

	// wrong password: rejected and last_login_at untouched
	resp = postJSON(t, ts.URL+"/login", map[string]string{"username": "alice", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, lastLogin(t, db, "alice").Valid)

	resp = postJSON(t, ts.URL+"/login", map[string]string{"username": "nobody", "password": "pw1"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/login", map[string]string{"username": "alice", "password": "pw1"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, lastLogin(t, db, "alice").Valid)

	health, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	assert.Equal(t, int64(0), app.Pool().Stats().InUse)
}

func TestSession_UncommittedInsertLeavesNoRows(t *testing.T) {
	db, dsn := pgtest.Open(t)
	app := newTestApp(t, dsn)

	rm, err := repomanager.NewPostgresRepositoryManager()
	require.NoError(t, err)

	ctx := context.Background()
	err = app.Pool().Do(ctx, func(ctx context.Context, s *dbx.Session) error {
		account, err := rm.Accounts(s).Create(ctx, &models.Account{Username: "bob", PasswordDigest: "x"})
		require.NoError(t, err)
		thread, err := rm.Threads(s).Create(ctx, &models.Thread{CreatorID: account.ID, Title: "T"})
		require.NoError(t, err)

		txErr := s.WithTransaction(ctx, func(ctx context.Context, tx *dbx.Tx) error {
			_, err := rm.Messages(tx).Create(ctx, &models.Message{ThreadID: thread.ID, CreatorID: account.ID, Content: "lost"})
			return err
		})
		assert.ErrorIs(t, txErr, dbx.ErrTransactionAborted)
		assert.ErrorIs(t, txErr, dbx.ErrNotCommitted)
		return nil
	})
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM messages WHERE content = 'lost'`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestMigrations_Idempotent(t *testing.T) {
	db, _ := pgtest.Open(t)
	ctx := context.Background()

	list, err := migrations.List()
	require.NoError(t, err)

	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()

	m := dbx.NewMigrator()

	applied, err := m.Up(ctx, conn, list)
	require.NoError(t, err)
	assert.Len(t, applied, len(list))

	applied, err = m.Up(ctx, conn, list)
	require.NoError(t, err)
	assert.Empty(t, applied)

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT count(*) FROM `+dbx.DefaultLedgerTable).Scan(&n))
	assert.Equal(t, len(list), n)
}

func TestMigrations_ConcurrentProcesses(t *testing.T) {
	_, dsn := pgtest.Open(t)
	ctx := context.Background()

	const workers = 4
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			db, err := sql.Open("pgx", dsn)
			if err != nil {
				errs[i] = err
				return
			}
			defer db.Close()

			rm, err := repomanager.NewPostgresRepositoryManager(repomanager.WithMigrationLock(4_104_202_407))
			if err != nil {
				errs[i] = err
				return
			}
			errs[i] = rm.RunMigrations(ctx, db)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "worker %d", i)
	}
}

func TestPool_BoundedUnderLoad(t *testing.T) {
	_, dsn := pgtest.Open(t)
	app := newTestApp(t, dsn)
	pool := app.Pool()

	const workers = 12
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Do(context.Background(), func(ctx context.Context, s *dbx.Session) error {
				_, err := s.ExecContext(ctx, `SELECT pg_sleep(0.05)`)
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats := pool.Stats()
	assert.LessOrEqual(t, stats.PeakInUse, int64(pool.Capacity()))
	assert.Equal(t, int64(0), stats.InUse)
	assert.GreaterOrEqual(t, stats.Acquired, uint64(workers))
}
