package recipients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/speedrun-hq/speedrun-intents/pkg/config"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

const scanCount = 100

func timeoutDialOptions() []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialReadTimeout(5 * time.Second),
		redis.DialWriteTimeout(5 * time.Second),
	}
}

// RedisStore keeps each manifest as a JSON value at <prefix>:<intentId> and indexes
// the ids in the set <prefix>:index
type RedisStore struct {
	pool   *redis.Pool
	prefix string
}

// NewRedisStore connects to the configured redis server
func NewRedisStore(ctx context.Context, cfg config.StoreConfig) (*RedisStore, error) {
	opts := append(timeoutDialOptions(), redis.DialDatabase(cfg.RedisDB))
	if cfg.RedisPassword != "" {
		opts = append(opts, redis.DialPassword(cfg.RedisPassword))
	}
	addr := cfg.RedisAddr
	pool := &redis.Pool{
		MaxIdle:     5,
		IdleTimeout: 4 * time.Minute,
		Dial:        func() (redis.Conn, error) { return redis.Dial("tcp", addr, opts...) },
	}

	store := NewRedisStoreWithPool(pool, cfg.KeyPrefix)
	conn, err := pool.GetContext(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return store, nil
}

// NewRedisStoreWithPool wraps an existing connection pool
func NewRedisStoreWithPool(pool *redis.Pool, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "recipients"
	}
	return &RedisStore{pool: pool, prefix: prefix}
}

type command struct {
	name string
	args []interface{}
}

// transact runs the commands inside MULTI/EXEC so a record and its index entry
// change together, and returns one reply per command
func transact(conn redis.Conn, cmds ...command) ([]interface{}, error) {
	if err := conn.Send("MULTI"); err != nil {
		return nil, err
	}
	for _, c := range cmds {
		if err := conn.Send(c.name, c.args...); err != nil {
			return nil, err
		}
	}
	replies, err := redis.Values(conn.Do("EXEC"))
	if err != nil {
		return nil, err
	}
	if len(replies) != len(cmds) {
		return nil, fmt.Errorf("EXEC returned %d replies for %d commands", len(replies), len(cmds))
	}
	return replies, nil
}

func (s *RedisStore) recordKey(intentID string) string {
	return s.prefix + ":" + intentID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":index"
}

func (s *RedisStore) Put(ctx context.Context, manifest *models.RecipientManifest) error {
	if err := Validate(manifest); err != nil {
		return err
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("cannot marshal manifest to JSON: %w", err)
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = transact(conn,
		command{"SET", []interface{}{s.recordKey(manifest.IntentID), data}},
		command{"SADD", []interface{}{s.indexKey(), manifest.IntentID}},
	)
	if err != nil {
		return fmt.Errorf("redis SET/SADD: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, intentID string) (*models.RecipientManifest, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", s.recordKey(intentID)))
	if errors.Is(err, redis.ErrNil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET: %w", err)
	}

	var m models.RecipientManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupt manifest for intent %s: %w", intentID, err)
	}
	return &m, nil
}

func (s *RedisStore) Delete(ctx context.Context, intentID string) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	replies, err := transact(conn,
		command{"DEL", []interface{}{s.recordKey(intentID)}},
		command{"SREM", []interface{}{s.indexKey(), intentID}},
	)
	if err != nil {
		return fmt.Errorf("redis DEL/SREM: %w", err)
	}
	removed, err := redis.Int(replies[0], nil)
	if err != nil {
		return fmt.Errorf("redis DEL reply: %w", err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// List walks the index with SSCAN so large sets never block the server
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	seen := make(map[string]struct{})
	cursor := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		values, err := redis.Values(conn.Do("SSCAN", s.indexKey(), cursor, "COUNT", scanCount))
		if err != nil {
			return nil, fmt.Errorf("redis SSCAN: %w", err)
		}
		var batch []string
		if _, err := redis.Scan(values, &cursor, &batch); err != nil {
			return nil, fmt.Errorf("redis SSCAN reply: %w", err)
		}
		for _, id := range batch {
			seen[strings.TrimSpace(id)] = struct{}{}
		}
		if cursor == 0 {
			break
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RedisStore) Close() error {
	return s.pool.Close()
}
