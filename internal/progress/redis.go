package progress

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore shares the session table between engine processes.
type RedisStore struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, default "shirosync:session:"
	TTL      time.Duration // key expiry, refreshed on every save
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger *slog.Logger) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisStoreFromClient(rdb, opts.Prefix, opts.TTL, logger), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb goredis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "shirosync:session:"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

// Save implements SessionStore.
func (r *RedisStore) Save(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return r.rdb.Set(ctx, r.prefix+s.ID, data, r.ttl).Err()
}

// Load implements SessionStore.
func (r *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	raw, err := r.rdb.Get(ctx, r.prefix+id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// Delete implements SessionStore.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, r.prefix+id).Err()
}

// List implements SessionStore.
func (r *RedisStore) List(ctx context.Context) ([]Session, error) {
	var out []Session

	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, goredis.Nil) {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("load session %s: %w", iter.Val(), err)
		}
		var s Session
		if err := json.Unmarshal(raw, &s); err != nil {
			r.logger.Warn("skipping unreadable session", "key", iter.Val(), "error", err)
			continue
		}
		out = append(out, s)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}

	sortSessions(out)
	return out, nil
}
