package recipients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/speedrun-intents/pkg/config"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

// fakeRedis is an in-memory stand-in for the handful of commands the store uses
type fakeRedis struct {
	mu      sync.Mutex
	strings map[string][]byte
	sets    map[string]map[string]bool
	scans   int
	// failExec aborts every transaction as a dropped connection would
	failExec bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{strings: make(map[string][]byte), sets: make(map[string]map[string]bool)}
}

type queued struct {
	cmd  string
	args []interface{}
}

type fakeConn struct {
	db    *fakeRedis
	multi bool
	queue []queued
}

func (c *fakeConn) Close() error                  { return nil }
func (c *fakeConn) Err() error                    { return nil }
func (c *fakeConn) Flush() error                  { return nil }
func (c *fakeConn) Receive() (interface{}, error) { return nil, nil }

// Send only supports transactions: MULTI opens one and later commands are queued
func (c *fakeConn) Send(cmd string, args ...interface{}) error {
	switch {
	case cmd == "MULTI":
		c.multi, c.queue = true, nil
	case cmd == "DISCARD":
		c.multi, c.queue = false, nil
	case c.multi:
		c.queue = append(c.queue, queued{cmd: cmd, args: args})
	default:
		return fmt.Errorf("fake redis: %s sent outside MULTI", cmd)
	}
	return nil
}

func (c *fakeConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	db := c.db
	db.mu.Lock()
	defer db.mu.Unlock()

	if cmd != "EXEC" {
		return db.exec(cmd, args)
	}
	queue := c.queue
	c.multi, c.queue = false, nil
	if db.failExec {
		return nil, errors.New("EOF")
	}
	replies := make([]interface{}, 0, len(queue))
	for _, q := range queue {
		reply, err := db.exec(q.cmd, q.args)
		if err != nil {
			return nil, err
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

// exec runs one command; the caller holds mu
func (db *fakeRedis) exec(cmd string, args []interface{}) (interface{}, error) {
	str := func(i int) string { return asString(args[i]) }
	switch cmd {
	case "":
		return nil, nil
	case "PING":
		return "PONG", nil
	case "SET":
		db.strings[str(0)] = []byte(asString(args[1]))
		return "OK", nil
	case "GET":
		v, ok := db.strings[str(0)]
		if !ok {
			return nil, nil
		}
		return v, nil
	case "DEL":
		if _, ok := db.strings[str(0)]; !ok {
			return int64(0), nil
		}
		delete(db.strings, str(0))
		return int64(1), nil
	case "SADD":
		if db.sets[str(0)] == nil {
			db.sets[str(0)] = make(map[string]bool)
		}
		db.sets[str(0)][str(1)] = true
		return int64(1), nil
	case "SREM":
		delete(db.sets[str(0)], str(1))
		return int64(1), nil
	case "SSCAN":
		db.scans++
		members := make([]string, 0, len(db.sets[str(0)]))
		for m := range db.sets[str(0)] {
			members = append(members, m)
		}
		sort.Strings(members)
		cursor, _ := strconv.Atoi(str(1))
		// two members per page to exercise the cursor loop
		end := cursor + 2
		next := end
		if end >= len(members) {
			end, next = len(members), 0
		}
		page := make([]interface{}, 0, 2)
		for _, m := range members[cursor:end] {
			page = append(page, []byte(m))
		}
		return []interface{}{[]byte(strconv.Itoa(next)), page}, nil
	}
	return nil, fmt.Errorf("ERR unknown command %q", cmd)
}

func asString(v interface{}) string {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func newFakeRedisStore(db *fakeRedis) *RedisStore {
	pool := &redis.Pool{
		MaxIdle: 1,
		Dial:    func() (redis.Conn, error) { return &fakeConn{db: db}, nil },
	}
	return NewRedisStoreWithPool(pool, "recipients")
}

func manifest(id string, values ...int64) *models.RecipientManifest {
	recipients := make([]common.Address, len(values))
	for i := range values {
		recipients[i] = common.BigToAddress(big.NewInt(int64(0x1000 + i)))
	}
	return &models.RecipientManifest{IntentID: id, ChainID: 84532, Recipients: recipients, Amounts: amounts(values...)}
}

// runStoreContract exercises the behavior every backend shares
func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.Get(ctx, "7")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, manifest("7", 30, 35, 30)))
	got, err := store.Get(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, []int64{30, 35, 30}, ints(got.Amounts))
	assert.Equal(t, int64(95), got.TotalAmount.Int64())
	assert.Equal(t, 84532, got.ChainID)

	// last write wins
	require.NoError(t, store.Put(ctx, manifest("7", 95)))
	got, err = store.Get(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, []int64{95}, ints(got.Amounts))

	for _, id := range []string{"1", "2", "3", "4"} {
		require.NoError(t, store.Put(ctx, manifest(id, 1)))
	}
	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "7"}, ids)

	require.NoError(t, store.Delete(ctx, "7"))
	assert.ErrorIs(t, store.Delete(ctx, "7"), ErrNotFound)
	_, err = store.Get(ctx, "7")
	assert.ErrorIs(t, err, ErrNotFound)

	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids)

	var verr *ValidationError
	assert.ErrorAs(t, store.Put(ctx, manifest("8")), &verr)
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, manifest("1", 10)))

	got, err := store.Get(ctx, "1")
	require.NoError(t, err)
	got.Amounts[0].SetInt64(999)

	again, err := store.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), again.Amounts[0].Int64())
}

func TestRedisStore(t *testing.T) {
	db := newFakeRedis()
	store := newFakeRedisStore(db)
	defer store.Close()

	runStoreContract(t, store)
	assert.Greater(t, db.scans, 2, "index is walked page by page")

	_, ok := db.strings["recipients:1"]
	assert.True(t, ok)
	assert.True(t, db.sets["recipients:index"]["1"])
}

func TestRedisStoreWritesRecordAndIndexTogether(t *testing.T) {
	db := newFakeRedis()
	store := newFakeRedisStore(db)
	defer store.Close()
	ctx := context.Background()

	db.failExec = true
	assert.Error(t, store.Put(ctx, manifest("5", 95)))
	assert.Empty(t, db.strings)
	assert.Empty(t, db.sets["recipients:index"])

	db.failExec = false
	require.NoError(t, store.Put(ctx, manifest("5", 95)))

	db.failExec = true
	assert.Error(t, store.Delete(ctx, "5"))
	_, ok := db.strings["recipients:5"]
	assert.True(t, ok)
	assert.True(t, db.sets["recipients:index"]["5"])
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("RECIPIENT_STORE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RECIPIENT_STORE_TEST_POSTGRES_DSN not set")
	}
	store, err := NewPostgresStore(context.Background(), dsn)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.db.Exec("TRUNCATE recipient_manifests")
	require.NoError(t, err)
	runStoreContract(t, store)
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(context.Background(), config.StoreConfig{Backend: config.StoreBackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = NewStore(context.Background(), config.StoreConfig{Backend: "etcd"})
	assert.ErrorContains(t, err, `unknown recipient store backend "etcd"`)
}
