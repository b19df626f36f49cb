// internal/underwriting/checkpoint/redis.go
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "underwriting:checkpoints:"

// RedisStore keeps each case log in a Redis list ({prefix}{caseID}). An
// entry's sequence is its 1-based position in the list, so the number RPUSH
// returns is the sequence of the entry it appended.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a store writing under prefix. A zero ttl keeps logs
// forever.
func NewRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) listKey(caseID string) string {
	return r.prefix + caseID
}

func (r *RedisStore) Put(ctx context.Context, cp Checkpoint) (Checkpoint, error) {
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.Sequence = 0

	data, err := json.Marshal(cp)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: encode: %v", ErrCheckpointFailed, err)
	}

	key := r.listKey(cp.CaseID)
	var pushed *redis.IntCmd
	if r.ttl > 0 {
		_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pushed = pipe.RPush(ctx, key, data)
			pipe.Expire(ctx, key, r.ttl)
			return nil
		})
	} else {
		pushed = r.client.RPush(ctx, key, data)
		err = pushed.Err()
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: append: %v", ErrCheckpointFailed, err)
	}

	cp.Sequence = pushed.Val()
	return cp, nil
}

func (r *RedisStore) Latest(ctx context.Context, caseID string) (Checkpoint, error) {
	key := r.listKey(caseID)
	n, err := r.client.LLen(ctx, key).Result()
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: read: %v", ErrCheckpointFailed, err)
	}
	if n == 0 {
		return Checkpoint{}, ErrNotFound
	}

	raw, err := r.client.LIndex(ctx, key, n-1).Result()
	if errors.Is(err, redis.Nil) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: read: %v", ErrCheckpointFailed, err)
	}
	cp, err := decode(raw)
	if err != nil {
		return Checkpoint{}, err
	}
	cp.Sequence = n
	return cp, nil
}

func (r *RedisStore) History(ctx context.Context, caseID string) ([]Checkpoint, error) {
	raws, err := r.client.LRange(ctx, r.listKey(caseID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrCheckpointFailed, err)
	}
	if len(raws) == 0 {
		return nil, ErrNotFound
	}

	out := make([]Checkpoint, 0, len(raws))
	for i, raw := range raws {
		cp, err := decode(raw)
		if err != nil {
			return nil, err
		}
		cp.Sequence = int64(i + 1)
		out = append(out, cp)
	}
	return out, nil
}

func decode(raw string) (Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: decode: %v", ErrCheckpointFailed, err)
	}
	return cp, nil
}
