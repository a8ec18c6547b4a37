package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/auriga-id/casd/internal/session"
)

const (
	redisTreeKey      = "casd:tree:"      // root id -> JSON record
	redisIndexKey     = "casd:index:"     // root id -> JSON treeIndex
	redisSessionKey   = "casd:session:"   // session id -> root id
	redisTokenKey     = "casd:token:"     // access id -> root id
	redisPrincipalKey = "casd:principal:" // principal id -> set of root ids
	redisRootsKey     = "casd:roots"      // set of root ids
)

// redisTxRetries bounds the optimistic-lock retry loop of writeTree.
const redisTxRetries = 5

// RedisStorage persists session trees as JSON records in Redis, with
// plain-key indexes for sessions and tokens and sets for principals and
// roots. Live trees are pinned in a treeCache so concurrent operations on
// one session observe the same tree lock; writes go through WATCH on the
// tree key so two writers of the same root cannot interleave.
type RedisStorage struct {
	client  *redis.Client
	factory *session.Factory
	cache   *treeCache
}

type redisIndex struct {
	Sessions    []string `json:"sessions"`
	Tokens      []string `json:"tokens"`
	PrincipalID string   `json:"principal_id"`
}

var _ SessionStorage = (*RedisStorage)(nil)

// NewRedisStorage connects to Redis and verifies the connection. The
// factory rebinds restored trees to the runtime clock, expiration policy
// and logout notifier.
func NewRedisStorage(ctx context.Context, redisURL string, factory *session.Factory) (*RedisStorage, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisStorage{client: client, factory: factory, cache: newTreeCache()}, nil
}

func (r *RedisStorage) AddSession(ctx context.Context, s *session.Session) error {
	if !s.IsRoot() {
		return fmt.Errorf("only root sessions can be added: %s", s.ID())
	}
	exists, err := r.client.Exists(ctx, redisTreeKey+s.ID()).Result()
	if err != nil {
		return fmt.Errorf("checking session existence: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("session already stored: %s", s.ID())
	}
	if err := r.writeTree(ctx, s); err != nil {
		return err
	}
	r.cache.pin(s.ID(), s)
	return nil
}

func (r *RedisStorage) UpdateSession(ctx context.Context, s *session.Session) error {
	root := s.Root()
	exists, err := r.client.Exists(ctx, redisTreeKey+root.ID()).Result()
	if err != nil {
		return fmt.Errorf("checking session existence: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	if err := r.unindex(ctx, root.ID()); err != nil {
		return err
	}
	return r.writeTree(ctx, root)
}

func (r *RedisStorage) DeleteSession(ctx context.Context, s *session.Session) error {
	root := s.Root()
	if err := r.unindex(ctx, root.ID()); err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, redisTreeKey+root.ID())
	pipe.SRem(ctx, redisRootsKey, root.ID())
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	r.cache.drop(root.ID())
	return nil
}

func (r *RedisStorage) GetSession(ctx context.Context, sessionID string) (*session.Session, error) {
	rootID, err := r.client.Get(ctx, redisSessionKey+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolving session index: %w", err)
	}
	root, err := r.loadTree(ctx, rootID)
	if err != nil {
		return nil, err
	}
	found := root.Find(sessionID)
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (r *RedisStorage) GetSessionByAccessToken(ctx context.Context, token string) (*session.Session, error) {
	rootID, err := r.client.Get(ctx, redisTokenKey+token).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolving token index: %w", err)
	}
	root, err := r.loadTree(ctx, rootID)
	if err != nil {
		return nil, err
	}
	return findOwningSession(root, token)
}

func (r *RedisStorage) GetSessionsByPrincipal(ctx context.Context, principalID string) ([]*session.Session, error) {
	rootIDs, err := r.client.SMembers(ctx, redisPrincipalKey+principalID).Result()
	if err != nil {
		return nil, fmt.Errorf("resolving principal index: %w", err)
	}
	return r.loadTrees(ctx, rootIDs)
}

func (r *RedisStorage) RootSessions(ctx context.Context) ([]*session.Session, error) {
	rootIDs, err := r.client.SMembers(ctx, redisRootsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing roots: %w", err)
	}
	return r.loadTrees(ctx, rootIDs)
}

func (r *RedisStorage) Close() error { return r.client.Close() }

func (r *RedisStorage) loadTree(ctx context.Context, rootID string) (*session.Session, error) {
	return r.cache.fetch(rootID, func() (*session.Session, error) {
		data, err := r.client.Get(ctx, redisTreeKey+rootID).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("loading session record: %w", err)
		}
		var rec session.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decoding session record: %w", err)
		}
		return r.factory.Restore(rec)
	})
}

func (r *RedisStorage) loadTrees(ctx context.Context, rootIDs []string) ([]*session.Session, error) {
	out := make([]*session.Session, 0, len(rootIDs))
	for _, rootID := range rootIDs {
		root, err := r.loadTree(ctx, rootID)
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

func (r *RedisStorage) writeTree(ctx context.Context, root *session.Session) error {
	rec := root.Export()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session record: %w", err)
	}

	idx := redisIndex{PrincipalID: root.Principal().ID}
	for _, entry := range root.IndexSnapshot() {
		idx.Sessions = append(idx.Sessions, entry.SessionID)
		idx.Tokens = append(idx.Tokens, entry.Accesses...)
	}
	idxData, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encoding session index: %w", err)
	}

	write := func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisTreeKey+root.ID(), data, 0)
			pipe.Set(ctx, redisIndexKey+root.ID(), idxData, 0)
			pipe.SAdd(ctx, redisRootsKey, root.ID())
			pipe.SAdd(ctx, redisPrincipalKey+idx.PrincipalID, root.ID())
			for _, id := range idx.Sessions {
				pipe.Set(ctx, redisSessionKey+id, root.ID(), 0)
			}
			for _, token := range idx.Tokens {
				pipe.Set(ctx, redisTokenKey+token, root.ID(), 0)
			}
			return nil
		})
		return err
	}

	// WATCH the tree key so a concurrent writer of the same root aborts the
	// transaction instead of interleaving tree and index writes.
	for i := 0; i < redisTxRetries; i++ {
		err = r.client.Watch(ctx, write, redisTreeKey+root.ID())
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("writing session record: %w", err)
	}
	return nil
}

func (r *RedisStorage) unindex(ctx context.Context, rootID string) error {
	idxData, err := r.client.Get(ctx, redisIndexKey+rootID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading session index: %w", err)
	}
	var idx redisIndex
	if err := json.Unmarshal(idxData, &idx); err != nil {
		return fmt.Errorf("decoding session index: %w", err)
	}

	pipe := r.client.TxPipeline()
	for _, id := range idx.Sessions {
		pipe.Del(ctx, redisSessionKey+id)
	}
	for _, token := range idx.Tokens {
		pipe.Del(ctx, redisTokenKey+token)
	}
	pipe.SRem(ctx, redisPrincipalKey+idx.PrincipalID, rootID)
	pipe.Del(ctx, redisIndexKey+rootID)
	_, err = pipe.Exec(ctx)
	return err
}
