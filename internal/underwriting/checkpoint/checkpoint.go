// internal/underwriting/checkpoint/checkpoint.go
package checkpoint

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"mortgage-underwriting/internal/underwriting/casestate"
)

var (
	ErrNotFound         = errors.New("CHECKPOINT_NOT_FOUND")
	ErrCheckpointFailed = errors.New("CHECKPOINT_FAILED")
)

// Checkpoint is one entry of a case's append-only state log.
type Checkpoint struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	CaseID    string          `json:"case_id"`
	Sequence  int64           `json:"sequence"`
	Stage     casestate.Stage `json:"stage"`
	State     casestate.State `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store persists checkpoints per case id. Put assigns ID and Sequence when
// they are empty; Latest is last-write-wins.
type Store interface {
	Put(ctx context.Context, cp Checkpoint) (Checkpoint, error)
	Latest(ctx context.Context, caseID string) (Checkpoint, error)
	History(ctx context.Context, caseID string) ([]Checkpoint, error)
}

// New builds a checkpoint of s for run.
func New(runID string, s casestate.State, now time.Time) Checkpoint {
	return Checkpoint{
		ID:        uuid.NewString(),
		RunID:     runID,
		CaseID:    s.CaseID,
		Stage:     s.Stage,
		State:     s.Clone(),
		CreatedAt: now,
	}
}

type caseLog struct {
	mu      sync.Mutex
	entries []Checkpoint
}

// MemoryStore keeps checkpoints in process. Each case log has its own lock.
type MemoryStore struct {
	logs sync.Map // caseID -> *caseLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) log(caseID string) *caseLog {
	v, _ := m.logs.LoadOrStore(caseID, &caseLog{})
	return v.(*caseLog)
}

func (m *MemoryStore) Put(ctx context.Context, cp Checkpoint) (Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return Checkpoint{}, err
	}
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.State = cp.State.Clone()

	l := m.log(cp.CaseID)
	l.mu.Lock()
	defer l.mu.Unlock()

	cp.Sequence = int64(len(l.entries)) + 1
	l.entries = append(l.entries, cp)
	return copyCheckpoint(cp), nil
}

func (m *MemoryStore) Latest(ctx context.Context, caseID string) (Checkpoint, error) {
	v, ok := m.logs.Load(caseID)
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	l := v.(*caseLog)
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return Checkpoint{}, ErrNotFound
	}
	return copyCheckpoint(l.entries[len(l.entries)-1]), nil
}

func (m *MemoryStore) History(ctx context.Context, caseID string) ([]Checkpoint, error) {
	v, ok := m.logs.Load(caseID)
	if !ok {
		return nil, ErrNotFound
	}
	l := v.(*caseLog)
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Checkpoint, len(l.entries))
	for i, cp := range l.entries {
		out[i] = copyCheckpoint(cp)
	}
	return out, nil
}

func copyCheckpoint(cp Checkpoint) Checkpoint {
	cp.State = cp.State.Clone()
	return cp
}
