package ticketcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCacheGetMissingReturnsNotFound(t *testing.T) {
	c := openTestCache(t)
	_, err := c.Get(TGTKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachePutGetRoundTrip(t *testing.T) {
	c := openTestCache(t)

	entry := Entry{Envelope: []byte(`{"idc":"alice"}`), TS: 0, Lifetime: 10}
	require.NoError(t, c.Put(TGTKey, entry))

	got, err := c.Get(TGTKey)
	require.NoError(t, err)
	assert.Equal(t, entry.TS, got.TS)
	assert.Equal(t, entry.Lifetime, got.Lifetime)
	assert.JSONEq(t, string(entry.Envelope), string(got.Envelope))
}

func TestCachePutOverwrites(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Put(TGTKey, Entry{TS: 0, Lifetime: 10}))
	require.NoError(t, c.Put(TGTKey, Entry{TS: 5, Lifetime: 20}))

	got, err := c.Get(TGTKey)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.TS)
}

func TestCacheDeleteRemovesEntry(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Put(TGTKey, Entry{TS: 0, Lifetime: 10}))
	require.NoError(t, c.Delete(TGTKey))

	_, err := c.Get(TGTKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceTicketKeyIsPerService(t *testing.T) {
	assert.Equal(t, "sgt:mailsvc", ServiceTicketKey("mailsvc"))
	assert.NotEqual(t, ServiceTicketKey("mailsvc"), ServiceTicketKey("fileserv"))
}

func TestEntryFreshInclusiveBounds(t *testing.T) {
	e := Entry{TS: 5, Lifetime: 10}
	assert.True(t, e.Fresh(5))
	assert.True(t, e.Fresh(15))
	assert.False(t, e.Fresh(4))
	assert.False(t, e.Fresh(16))
}
