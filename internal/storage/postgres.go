package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auriga-id/casd/internal/session"
)

// PostgresStorage persists session trees as JSONB records, one row per
// root, with index tables for session ids and access tokens. Index rows
// cascade on tree deletion. Live trees are pinned in a treeCache so
// concurrent operations on one session observe the same tree lock;
// updates take a row lock on the tree so index rewrites of one root
// serialize across writers.
type PostgresStorage struct {
	pool    *pgxpool.Pool
	factory *session.Factory
	cache   *treeCache
}

var _ SessionStorage = (*PostgresStorage)(nil)

// NewPostgresStorage connects to the database and verifies the connection.
func NewPostgresStorage(ctx context.Context, databaseURL string, factory *session.Factory) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return &PostgresStorage{pool: pool, factory: factory, cache: newTreeCache()}, nil
}

func (p *PostgresStorage) AddSession(ctx context.Context, s *session.Session) error {
	if !s.IsRoot() {
		return fmt.Errorf("only root sessions can be added: %s", s.ID())
	}
	if err := p.writeTree(ctx, s, true); err != nil {
		return err
	}
	p.cache.pin(s.ID(), s)
	return nil
}

func (p *PostgresStorage) UpdateSession(ctx context.Context, s *session.Session) error {
	return p.writeTree(ctx, s.Root(), false)
}

func (p *PostgresStorage) DeleteSession(ctx context.Context, s *session.Session) error {
	rootID := s.Root().ID()
	if _, err := p.pool.Exec(ctx, `DELETE FROM session_trees WHERE root_id = $1`, rootID); err != nil {
		return err
	}
	p.cache.drop(rootID)
	return nil
}

func (p *PostgresStorage) GetSession(ctx context.Context, sessionID string) (*session.Session, error) {
	rootID, err := p.resolveRoot(ctx, `SELECT root_id FROM session_index WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	root, err := p.loadTree(ctx, rootID)
	if err != nil {
		return nil, err
	}
	found := root.Find(sessionID)
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (p *PostgresStorage) GetSessionByAccessToken(ctx context.Context, token string) (*session.Session, error) {
	rootID, err := p.resolveRoot(ctx, `SELECT root_id FROM access_index WHERE access_id = $1`, token)
	if err != nil {
		return nil, err
	}
	root, err := p.loadTree(ctx, rootID)
	if err != nil {
		return nil, err
	}
	return findOwningSession(root, token)
}

func (p *PostgresStorage) GetSessionsByPrincipal(ctx context.Context, principalID string) ([]*session.Session, error) {
	rows, err := p.pool.Query(ctx, `SELECT root_id FROM session_trees WHERE principal_id = $1`, principalID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions by principal: %w", err)
	}
	defer rows.Close()
	return p.collectTrees(ctx, rows)
}

func (p *PostgresStorage) RootSessions(ctx context.Context) ([]*session.Session, error) {
	rows, err := p.pool.Query(ctx, `SELECT root_id FROM session_trees`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()
	return p.collectTrees(ctx, rows)
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresStorage) resolveRoot(ctx context.Context, query, arg string) (string, error) {
	var rootID string
	err := p.pool.QueryRow(ctx, query, arg).Scan(&rootID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}
	return rootID, nil
}

func (p *PostgresStorage) loadTree(ctx context.Context, rootID string) (*session.Session, error) {
	return p.cache.fetch(rootID, func() (*session.Session, error) {
		var data []byte
		err := p.pool.QueryRow(ctx, `SELECT record FROM session_trees WHERE root_id = $1`, rootID).Scan(&data)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("loading session record: %w", err)
		}
		var rec session.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decoding session record: %w", err)
		}
		return p.factory.Restore(rec)
	})
}

func (p *PostgresStorage) collectTrees(ctx context.Context, rows pgx.Rows) ([]*session.Session, error) {
	var rootIDs []string
	for rows.Next() {
		var rootID string
		if err := rows.Scan(&rootID); err != nil {
			return nil, fmt.Errorf("scanning root id: %w", err)
		}
		rootIDs = append(rootIDs, rootID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*session.Session, 0, len(rootIDs))
	for _, rootID := range rootIDs {
		root, err := p.loadTree(ctx, rootID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, root)
	}
	return out, nil
}

func (p *PostgresStorage) writeTree(ctx context.Context, root *session.Session, insert bool) error {
	rec := root.Export()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session record: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if insert {
		_, err = tx.Exec(ctx, `
			INSERT INTO session_trees (root_id, principal_id, record)
			VALUES ($1, $2, $3)`,
			root.ID(), root.Principal().ID, data)
		if err != nil {
			return fmt.Errorf("writing session record: %w", err)
		}
	} else {
		// Row lock first: concurrent updates of the same root serialize
		// here, so the index rewrite below cannot interleave with another
		// writer's.
		var one int
		err = tx.QueryRow(ctx, `SELECT 1 FROM session_trees WHERE root_id = $1 FOR UPDATE`, root.ID()).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("locking session record: %w", err)
		}
		_, err = tx.Exec(ctx, `
			UPDATE session_trees
			SET record = $2, principal_id = $3, updated_at = now()
			WHERE root_id = $1`,
			root.ID(), data, root.Principal().ID)
		if err != nil {
			return fmt.Errorf("writing session record: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM session_index WHERE root_id = $1`, root.ID()); err != nil {
		return fmt.Errorf("clearing session index: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM access_index WHERE root_id = $1`, root.ID()); err != nil {
		return fmt.Errorf("clearing access index: %w", err)
	}

	for _, entry := range root.IndexSnapshot() {
		if _, err := tx.Exec(ctx, `
			INSERT INTO session_index (session_id, root_id) VALUES ($1, $2)`,
			entry.SessionID, root.ID()); err != nil {
			return fmt.Errorf("writing session index: %w", err)
		}
		for _, token := range entry.Accesses {
			if _, err := tx.Exec(ctx, `
				INSERT INTO access_index (access_id, root_id) VALUES ($1, $2)`,
				token, root.ID()); err != nil {
				return fmt.Errorf("writing access index: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}
