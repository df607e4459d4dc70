package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sticker-storefront/internal/domain/cart"
)

// KVStore keeps per-session entries in the session_state table.
type KVStore struct {
	pool *pgxpool.Pool
}

// NewKVStore returns a KVStore that uses the given pool.
func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool}
}

// Scope returns the storage of a single session.
func (s *KVStore) Scope(sessionID string) cart.Storage {
	return &sessionKV{pool: s.pool, session: sessionID}
}

// Purge deletes every entry of sessions whose cart was not written since
// before. Sessions without a cart entry go once none of their entries was
// written since before. It returns the number of deleted rows.
func (s *KVStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM session_state
		WHERE session_id IN (
			SELECT session_id FROM session_state
			GROUP BY session_id
			HAVING COALESCE(MAX(updated_at) FILTER (WHERE key = $2), MAX(updated_at)) < $1
		)`,
		before, cart.ItemsKey,
	)
	if err != nil {
		return 0, fmt.Errorf("purging session state: %w", err)
	}
	return tag.RowsAffected(), nil
}

type sessionKV struct {
	pool    *pgxpool.Pool
	session string
}

var _ cart.Storage = (*sessionKV)(nil)

func (s *sessionKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM session_state WHERE session_id = $1 AND key = $2`,
		s.session, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNoEntry
		}
		return nil, fmt.Errorf("getting %q: %w", key, err)
	}
	return value, nil
}

func (s *sessionKV) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_state (session_id, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (session_id, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		s.session, key, value,
	)
	if err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

func (s *sessionKV) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM session_state WHERE session_id = $1 AND key = $2`,
		s.session, key,
	)
	if err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	return nil
}
