// internal/underwriting/checkpoint/checkpoint_test.go
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mortgage-underwriting/internal/underwriting/applicant"
	"mortgage-underwriting/internal/underwriting/casestate"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testState(caseID string) casestate.State {
	data := applicant.Record{"credit_score": float64(720)}
	return casestate.New(caseID, data, data, fixedNow)
}

func stores(t *testing.T) map[string]Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client, "test:", time.Hour),
	}
}

// ==========================
// Shared behaviour
// ==========================

func TestStore_AppendAndReadLatest(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := testState("case-1")

			first, err := store.Put(ctx, New("run-1", s, fixedNow))
			require.NoError(t, err)
			assert.Equal(t, int64(1), first.Sequence)
			assert.NotEmpty(t, first.ID)

			analysis := "credit ok"
			next := s.Apply(casestate.Update{Stage: casestate.StageCredit, Analysis: &analysis}, fixedNow.Add(time.Second))
			second, err := store.Put(ctx, New("run-1", next, fixedNow.Add(time.Second)))
			require.NoError(t, err)
			assert.Equal(t, int64(2), second.Sequence)

			latest, err := store.Latest(ctx, "case-1")
			require.NoError(t, err)
			assert.Equal(t, second.ID, latest.ID)
			assert.Equal(t, int64(2), latest.Sequence)
			assert.Equal(t, casestate.StageCredit, latest.Stage)
			require.NotNil(t, latest.State.CreditAnalysis)
			assert.Equal(t, "credit ok", *latest.State.CreditAnalysis)
			assert.True(t, latest.State.IsCompleted(casestate.StageCredit))

			history, err := store.History(ctx, "case-1")
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, casestate.StageInitialize, history[0].Stage)
			assert.Equal(t, casestate.StageCredit, history[1].Stage)
			assert.Equal(t, []int64{1, 2}, []int64{history[0].Sequence, history[1].Sequence})
			assert.Nil(t, history[0].State.CreditAnalysis)
		})
	}
}

func TestStore_UnknownCase(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Latest(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = store.History(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_CasesAreIndependent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.Put(ctx, New("r", testState("a"), fixedNow))
			require.NoError(t, err)
			_, err = store.Put(ctx, New("r", testState("b"), fixedNow))
			require.NoError(t, err)

			b, err := store.Put(ctx, New("r", testState("b"), fixedNow))
			require.NoError(t, err)
			assert.Equal(t, int64(2), b.Sequence)

			history, err := store.History(ctx, "a")
			require.NoError(t, err)
			assert.Len(t, history, 1)
		})
	}
}

// ==========================
// MemoryStore
// ==========================

func TestMemoryStore_SnapshotsAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	s := testState("iso")
	cp := New("r", s, fixedNow)
	_, err := store.Put(ctx, cp)
	require.NoError(t, err)

	cp.State.ReasoningChain[0] = "tampered"
	s.ReasoningChain[0] = "tampered"

	latest, err := store.Latest(ctx, "iso")
	require.NoError(t, err)
	assert.Equal(t, "Application iso initialized", latest.State.ReasoningChain[0])

	latest.State.ReasoningChain[0] = "tampered again"
	again, err := store.Latest(ctx, "iso")
	require.NoError(t, err)
	assert.Equal(t, "Application iso initialized", again.State.ReasoningChain[0])
}

func TestMemoryStore_ConcurrentCases(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for c := 0; c < 8; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			id := fmt.Sprintf("case-%d", c)
			for i := 0; i < 20; i++ {
				_, err := store.Put(ctx, New("r", testState(id), fixedNow))
				assert.NoError(t, err)
			}
		}(c)
	}
	wg.Wait()

	for c := 0; c < 8; c++ {
		history, err := store.History(ctx, fmt.Sprintf("case-%d", c))
		require.NoError(t, err)
		require.Len(t, history, 20)
		for i, cp := range history {
			assert.Equal(t, int64(i+1), cp.Sequence)
		}
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().Put(ctx, New("r", testState("x"), fixedNow))
	assert.ErrorIs(t, err, context.Canceled)
}

// ==========================
// RedisStore
// ==========================

func TestRedisStore_KeysAndTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "", time.Hour)
	_, err := store.Put(context.Background(), New("r", testState("ttl"), fixedNow))
	require.NoError(t, err)

	assert.True(t, mr.Exists(DefaultKeyPrefix+"ttl"))
	assert.Equal(t, time.Hour, mr.TTL(DefaultKeyPrefix+"ttl"))
	assert.Equal(t, []string{DefaultKeyPrefix + "ttl"}, mr.Keys())
}

func TestRedisStore_ConcurrentWritersKeepListOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "race:", time.Hour)
	ctx := context.Background()

	const writers = 20
	ids := make(map[int64]string, writers)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp, err := store.Put(ctx, New("run", testState("shared"), fixedNow))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[cp.Sequence] = cp.ID
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, ids, writers)

	history, err := store.History(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, history, writers)
	for i, cp := range history {
		assert.Equal(t, int64(i+1), cp.Sequence)
		assert.Equal(t, ids[cp.Sequence], cp.ID, "sequence %d must name the entry at that position", cp.Sequence)
	}

	latest, err := store.Latest(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, int64(writers), latest.Sequence)
	assert.Equal(t, history[writers-1].ID, latest.ID)
}

func TestRedisStore_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("append failure", func(t *testing.T) {
		cp := Checkpoint{ID: "cp-1", CaseID: "c"}
		data, err := json.Marshal(cp)
		require.NoError(t, err)

		client, mock := redismock.NewClientMock()
		mock.ExpectRPush("p:c", data).SetErr(errors.New("connection refused"))

		_, err = NewRedisStore(client, "p:", 0).Put(ctx, cp)
		assert.ErrorIs(t, err, ErrCheckpointFailed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("append failure with ttl", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		mr.SetError("READONLY replica")

		_, err := NewRedisStore(client, "p:", time.Hour).Put(ctx, Checkpoint{CaseID: "c"})
		assert.ErrorIs(t, err, ErrCheckpointFailed)
	})

	t.Run("read failure", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectLLen("p:c").SetErr(errors.New("timeout"))

		_, err := NewRedisStore(client, "p:", 0).Latest(ctx, "c")
		assert.ErrorIs(t, err, ErrCheckpointFailed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing list", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectLLen("p:c").SetVal(0)

		_, err := NewRedisStore(client, "p:", 0).Latest(ctx, "c")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("corrupt entry", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectLRange("p:c", 0, -1).SetVal([]string{"{not json"})

		_, err := NewRedisStore(client, "p:", 0).History(ctx, "c")
		assert.ErrorIs(t, err, ErrCheckpointFailed)
	})
}
