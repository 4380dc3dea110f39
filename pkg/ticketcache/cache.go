// Package ticketcache implements the client's persistent ticket cache: a
// disk-backed mapping from a cache key ("tgt", "sgt:<IDv>") to the plaintext
// reply envelope the client decoded, so a second invocation within a
// ticket's lifetime skips the AS/TGS round trip entirely.
package ticketcache

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned by Get when no entry exists for key, including
// when the cache is empty.
var ErrNotFound = errors.New("cache entry not found")

// Entry is the disk-resident shape of one cached ticket: the plaintext
// envelope, serialized generically, plus the freshness bounds the client
// needs to decide whether the entry is still usable without decoding the
// envelope's TS/Lifetime fields back out.
type Entry struct {
	Envelope json.RawMessage `json:"envelope"`
	TS       int64           `json:"ts"`
	Lifetime int64           `json:"lifetime"`
}

// Fresh reports whether this entry is still within its lifetime at now,
// matching the server-side freshness check so a client never hands an
// expired ticket to a server that will just reject it.
func (e Entry) Fresh(now int64) bool {
	return now >= e.TS && now <= e.TS+e.Lifetime
}

// Cache is a badger-backed key/value store, one instance per client
// process. Badger serializes writes internally; entries are revalidated
// against their lifetime on every read, so last-writer-wins across
// processes sharing a path is harmless.
type Cache struct {
	db *badger.DB
}

// Open opens (creating if necessary) a cache rooted at dir.
func Open(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ticket cache at %s: %w", dir, err)
	}
	return &Cache{db: db}, nil
}

// Close releases the cache's on-disk resources.
func (c *Cache) Close() error {
	return c.db.Close()
}

// TGTKey is the fixed cache key under which the client's TGT envelope is
// stored.
const TGTKey = "tgt"

// ServiceTicketKey builds the cache key for the service ticket obtained for
// idv.
func ServiceTicketKey(idv string) string {
	return "sgt:" + idv
}

// Put stores entry under key, overwriting any prior value. Badger commits
// each transaction atomically, so a crash mid-write leaves the previous
// value intact rather than a torn one.
func (c *Cache) Put(key string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// Get retrieves the entry stored under key. Returns ErrNotFound if absent.
func (c *Cache) Get(key string) (Entry, error) {
	var entry Entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Delete discards any entry for key. Used once a ticket is found expired,
// so the next lookup falls through to a fresh fetch rather than rereading
// the same stale value.
func (c *Cache) Delete(key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}
