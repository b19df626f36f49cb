// internal/common/database/database_test.go
package database

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mortgage-underwriting/internal/common/config"
	"mortgage-underwriting/internal/common/logger"
)

// ==========================
// WaitFor
// ==========================

type flakyPinger struct {
	failures int
	calls    int
}

func (f *flakyPinger) Ping(ctx context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestWaitFor(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		attempts  int
		wantErr   bool
		wantCalls int
	}{
		{name: "first try", failures: 0, attempts: 3, wantErr: false, wantCalls: 1},
		{name: "recovers", failures: 2, attempts: 3, wantErr: false, wantCalls: 3},
		{name: "gives up", failures: 5, attempts: 3, wantErr: true, wantCalls: 3},
		{name: "zero attempts means one", failures: 1, attempts: 0, wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &flakyPinger{failures: tt.failures}
			err := WaitFor(context.Background(), "redis", p, fastPolicy(tt.attempts), logger.NewTestLogger(t))
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "redis unreachable")
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, p.calls)
		})
	}
}

func TestWaitFor_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &flakyPinger{failures: 10}
	err := WaitFor(ctx, "postgres", p, RetryPolicy{Attempts: 5, BaseDelay: time.Hour}, logger.NewNoOpLogger())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls)
}

// ==========================
// Clients
// ==========================

func TestPostgresClient_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	c := &PostgresClient{DB: db}
	mock.ExpectPing()
	assert.NoError(t, c.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	err = c.Ping(context.Background())
	assert.ErrorContains(t, err, "postgres ping failed")

	mock.ExpectClose()
	assert.NoError(t, c.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgres_DoesNotDial(t *testing.T) {
	c, err := NewPostgres(config.PostgresConfig{Host: "127.0.0.1", Port: 1, Database: "x", User: "u", SSLMode: "disable"})
	require.NoError(t, err)
	assert.NotNil(t, c.GetDB())
	assert.NoError(t, c.Close())
}

func TestRedisClient_Ping(t *testing.T) {
	mr := miniredis.RunT(t)

	c := NewRedis(config.RedisConfig{Address: mr.Addr()})
	defer c.Close()
	assert.NoError(t, c.Ping(context.Background()))
	assert.NotNil(t, c.GetClient())

	mr.Close()
	assert.ErrorContains(t, c.Ping(context.Background()), "redis ping failed")
}

func newESServer(t *testing.T, indexStatus int) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodHead && r.URL.Path == "/underwriting-policies" {
			w.WriteHeader(indexStatus)
			return
		}
		_, _ = w.Write([]byte(`{"version":{"number":"8.11.0"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestElasticsearchClient(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantExists bool
		wantErr    bool
	}{
		{name: "present", status: http.StatusOK, wantExists: true},
		{name: "missing", status: http.StatusNotFound, wantExists: false},
		{name: "cluster error", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewElasticsearch(config.ElasticsearchConfig{URL: newESServer(t, tt.status)})
			require.NoError(t, err)
			require.NoError(t, c.Ping(context.Background()))

			exists, err := c.IndexExists(context.Background(), "underwriting-policies")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExists, exists)
		})
	}
}
