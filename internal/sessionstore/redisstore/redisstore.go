// Package redisstore provides a Redis-backed [sessionstore.Store].
//
// Sessions are stored as JSON values under a prefixed key with a TTL. Update
// uses WATCH/MULTI/EXEC optimistic locking plus the session's own version
// field, matching the compare-and-swap contract of the other backends.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arcsong/arcsong/internal/sessionstore"
)

const (
	// keyPrefix namespaces session keys in a shared Redis instance.
	keyPrefix = "arcsong:session:"

	// DefaultTTL is applied when no TTL is configured. Sessions are
	// conversational; a day of inactivity means the engagement is over.
	DefaultTTL = 24 * time.Hour
)

// Compile-time interface check.
var _ sessionstore.Store = (*Store)(nil)

// Store is a Redis-backed [sessionstore.Store]. All methods are safe for
// concurrent use.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a Store on the given client. A non-positive ttl selects
// [DefaultTTL].
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

// Ping reports whether Redis is reachable. Used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Create implements [sessionstore.Store.Create].
func (s *Store) Create(ctx context.Context, sess *sessionstore.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session store: create: session ID must not be empty")
	}
	if sess.State == "" {
		sess.State = sessionstore.StateActive
	}

	now := time.Now()
	sess.Version = 1
	sess.CreatedAt = now
	sess.UpdatedAt = now

	val, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session store: create: marshal: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(sess.ID), val, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("session store: create: %w", err)
	}
	if !ok {
		return fmt.Errorf("session store: create: session %q already exists", sess.ID)
	}
	return nil
}

// Get implements [sessionstore.Store.Get]. The key's TTL is refreshed on
// every read so active sessions do not expire mid-episode.
func (s *Store) Get(ctx context.Context, id string) (*sessionstore.Session, error) {
	key := s.key(id)
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sessionstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session store: get: %w", err)
	}

	var sess sessionstore.Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("session store: get: unmarshal: %w", err)
	}

	// TTL refresh failure is not worth failing the read over.
	_ = s.client.Expire(ctx, key, s.ttl).Err()

	return &sess, nil
}

// Update implements [sessionstore.Store.Update] using WATCH/MULTI/EXEC. The
// stored version must match sess.Version; a concurrent write between the
// WATCH and the EXEC aborts the transaction and is retried a few times before
// surfacing [sessionstore.ErrVersionConflict].
func (s *Store) Update(ctx context.Context, sess *sessionstore.Session) error {
	key := s.key(sess.ID)

	txn := func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return sessionstore.ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored sessionstore.Session
		if err := json.Unmarshal([]byte(val), &stored); err != nil {
			return fmt.Errorf("unmarshal stored session: %w", err)
		}
		if stored.Version != sess.Version {
			return sessionstore.ErrVersionConflict
		}

		next := *sess
		next.Version++
		next.UpdatedAt = time.Now()
		next.CreatedAt = stored.CreatedAt

		newVal, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		sess.Version = next.Version
		sess.UpdatedAt = next.UpdatedAt
		sess.CreatedAt = next.CreatedAt
		return nil
	}

	// redis.TxFailedErr means the watched key changed mid-transaction; the
	// version check still holds, so a short retry loop is safe.
	for attempt := 0; attempt < 3; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, sessionstore.ErrNotFound) || errors.Is(err, sessionstore.ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("session store: update: %w", err)
	}
	return sessionstore.ErrVersionConflict
}

func (s *Store) key(id string) string {
	return keyPrefix + id
}
