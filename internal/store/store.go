package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// ErrNotFound is returned by Store.Get for a missing key.
var ErrNotFound = leveldb.ErrNotFound

// Store is the persistent state of one chain.
type Store struct {
	db   *leveldb.DB
	sync bool
}

// Open opens (or creates) a leveldb database at path.
func Open(path string, syncWrites bool) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open state db %s: %w", path, err)
	}
	return &Store{db: db, sync: syncWrites}, nil
}

// OpenMemory opens a store backed by in-memory storage. Used by tests and dry runs.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get reads a committed value.
func (s *Store) Get(key string) ([]byte, error) {
	return s.db.Get([]byte(key), nil)
}

// Begin starts a write overlay on top of the committed state.
func (s *Store) Begin() *Tx {
	return &Tx{
		store:  s,
		writes: make(map[string][]byte),
	}
}

// Tx buffers writes until Commit flushes them as one leveldb batch.
// A nil value in writes marks a deletion.
type Tx struct {
	store  *Store
	writes map[string][]byte
	done   bool
}

// Get returns the value visible in this transaction and whether it exists.
func (t *Tx) Get(key string) ([]byte, bool, error) {
	if v, ok := t.writes[key]; ok {
		return v, v != nil, nil
	}
	v, err := t.store.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return v, true, nil
}

func (t *Tx) Has(key string) (bool, error) {
	_, ok, err := t.Get(key)
	return ok, err
}

func (t *Tx) Put(key string, value []byte) {
	if value == nil {
		value = []byte{}
	}
	t.writes[key] = value
}

func (t *Tx) Delete(key string) {
	t.writes[key] = nil
}

// Pending reports how many keys the transaction would write.
func (t *Tx) Pending() int {
	return len(t.writes)
}

// Commit writes every buffered change atomically. A Tx can be committed once.
func (t *Tx) Commit() error {
	if t.done {
		return errors.New("transaction already closed")
	}
	t.done = true
	if len(t.writes) == 0 {
		return nil
	}

	keys := make([]string, 0, len(t.writes))
	for k := range t.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batch := new(leveldb.Batch)
	for _, k := range keys {
		if v := t.writes[k]; v == nil {
			batch.Delete([]byte(k))
		} else {
			batch.Put([]byte(k), v)
		}
	}
	return t.store.db.Write(batch, &opt.WriteOptions{Sync: t.store.sync})
}

// Discard drops the buffered writes.
func (t *Tx) Discard() {
	t.done = true
	t.writes = nil
}

// ---- typed helpers ----

func (t *Tx) GetBool(key string) (bool, error) {
	v, ok, err := t.Get(key)
	if err != nil || !ok {
		return false, err
	}
	return len(v) == 1 && v[0] == 1, nil
}

func (t *Tx) PutBool(key string, b bool) {
	if b {
		t.Put(key, []byte{1})
		return
	}
	t.Delete(key)
}

func (t *Tx) GetUint64(key string) (uint64, error) {
	v, ok, err := t.Get(key)
	if err != nil || !ok {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("corrupt uint64 at %s", key)
	}
	return binary.BigEndian.Uint64(v), nil
}

func (t *Tx) PutUint64(key string, n uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	t.Put(key, buf[:])
}

// GetBig returns a stored non-negative integer, zero when absent.
func (t *Tx) GetBig(key string) (*big.Int, error) {
	v, ok, err := t.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).SetBytes(v), nil
}

func (t *Tx) PutBig(key string, n *big.Int) {
	if n == nil || n.Sign() == 0 {
		t.Delete(key)
		return
	}
	t.Put(key, n.Bytes())
}

// GetJSON decodes the value at key into dst and reports whether it existed.
func (t *Tx) GetJSON(key string, dst interface{}) (bool, error) {
	v, ok, err := t.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (t *Tx) PutJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	t.Put(key, data)
	return nil
}
