package principal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreGetUnknown(t *testing.T) {
	s := NewMemStore()

	tests := []struct {
		name string
		get  func() (Principal, error)
	}{
		{"client", func() (Principal, error) { return s.GetClient(context.Background(), "alice") }},
		{"service", func() (Principal, error) { return s.GetService(context.Background(), "printserv") }},
		{"tgs", func() (Principal, error) { return s.GetTGS(context.Background(), "tgs") }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.get()
			assert.ErrorIs(t, err, ErrUnknownPrincipal)
		})
	}
}

func TestMemStorePutAndGet(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	alice := Principal{
		Name:   Name{Primary: "alice", Realm: "KERB4"},
		Kind:   KindClient,
		Secret: "hunter2",
	}
	require.NoError(t, s.Put(ctx, alice))

	got, err := s.GetClient(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	_, err = s.GetService(ctx, "alice")
	assert.ErrorIs(t, err, ErrUnknownPrincipal, "same name under a different kind must not be found")
}

func TestMemStorePutReplaces(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	p := Principal{Name: Name{Primary: "printserv", Realm: "KERB4"}, Kind: KindService, Secret: "v1"}
	require.NoError(t, s.Put(ctx, p))

	p.Secret = "v2"
	require.NoError(t, s.Put(ctx, p))

	got, err := s.GetService(ctx, "printserv")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Secret)
}

func TestMemStoreListFiltersByKind(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Principal{Name: Name{Primary: "alice", Realm: "KERB4"}, Kind: KindClient}))
	require.NoError(t, s.Put(ctx, Principal{Name: Name{Primary: "bob", Realm: "KERB4"}, Kind: KindClient}))
	require.NoError(t, s.Put(ctx, Principal{Name: Name{Primary: "printserv", Realm: "KERB4"}, Kind: KindService}))

	clients, err := s.List(ctx, KindClient)
	require.NoError(t, err)
	assert.Len(t, clients, 2)

	services, err := s.List(ctx, KindService)
	require.NoError(t, err)
	assert.Len(t, services, 1)

	tgs, err := s.List(ctx, KindTGS)
	require.NoError(t, err)
	assert.Empty(t, tgs)
}
