package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const recordKeyPrefix = "quota:views:"

// maxTxRetries bounds optimistic-lock retries under write contention for a
// single user. Contention is two browser tabs, not a thundering herd.
const maxTxRetries = 100

// ErrNoChange is returned by an Update callback to signal that the current
// record should be kept as is, skipping the write entirely.
var ErrNoChange = errors.New("quota: no change")

// Store is the durable keeper of per-user quota records.
type Store interface {
	// Get returns the user's record; a user never seen before yields the
	// zero Record.
	Get(ctx context.Context, userID string) (Record, error)

	// Update runs fn against the current record and persists its result as
	// one atomic read-modify-write. Concurrent updates for the same user
	// serialize: a conflicting write restarts fn against the fresh record,
	// so fn must be a pure function of its input. No record is persisted
	// unless the full cycle commits.
	Update(ctx context.Context, userID string, fn func(Record) (Record, error)) (Record, error)
}

// RedisStore keeps quota records as JSON strings, one key per user, and
// implements Update with a WATCH/MULTI compare-and-swap.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func recordKey(userID string) string {
	return recordKeyPrefix + userID
}

func (s *RedisStore) Get(ctx context.Context, userID string) (Record, error) {
	val, err := s.client.Get(ctx, recordKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("fetching quota record: %w", err)
	}
	return decodeRecord([]byte(val))
}

func (s *RedisStore) Update(ctx context.Context, userID string, fn func(Record) (Record, error)) (Record, error) {
	key := recordKey(userID)
	var result Record

	txn := func(tx *redis.Tx) error {
		var rec Record
		val, err := tx.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			// first touch for this user
		case err != nil:
			return fmt.Errorf("fetching quota record: %w", err)
		default:
			if rec, err = decodeRecord([]byte(val)); err != nil {
				return err
			}
		}

		next, err := fn(rec)
		if errors.Is(err, ErrNoChange) {
			result = rec
			return nil
		}
		if err != nil {
			return err
		}

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encoding quota record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Record{}, err
		}
		return result, nil
	}
	return Record{}, fmt.Errorf("updating quota record for user %s: retries exhausted", userID)
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decoding quota record: %w", err)
	}
	// A record without an active window must not carry unlocks.
	if rec.WindowStart == nil {
		rec.UnlockedIDs = nil
	}
	return rec, nil
}
