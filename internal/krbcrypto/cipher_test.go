package krbcrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	IDc string `json:"idc"`
	TS  int64  `json:"ts"`
}

func TestStringToKeyIsDeterministic(t *testing.T) {
	k1, err := StringToKey("correct horse battery staple", "alice", DefaultEType)
	require.NoError(t, err)

	k2, err := StringToKey("correct horse battery staple", "alice", DefaultEType)
	require.NoError(t, err)

	assert.Equal(t, k1.Bytes(), k2.Bytes())
}

func TestStringToKeyVariesWithSalt(t *testing.T) {
	k1, err := StringToKey("shared-secret", "alice", DefaultEType)
	require.NoError(t, err)

	k2, err := StringToKey("shared-secret", "bob", DefaultEType)
	require.NoError(t, err)

	assert.NotEqual(t, k1.Bytes(), k2.Bytes())
}

func TestRandomToKeyProducesDistinctKeys(t *testing.T) {
	k1, err := RandomToKey(DefaultEType)
	require.NoError(t, err)

	k2, err := RandomToKey(DefaultEType)
	require.NoError(t, err)

	assert.NotEqual(t, k1.Bytes(), k2.Bytes())
}

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := RandomToKey(DefaultEType)
	require.NoError(t, err)

	want := testPayload{IDc: "alice", TS: 1234}
	env, err := Seal(want, key, UsageTicket)
	require.NoError(t, err)

	var got testPayload
	require.NoError(t, Open(env, key, UsageTicket, &got))
	assert.Equal(t, want, got)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	key, err := RandomToKey(DefaultEType)
	require.NoError(t, err)
	other, err := RandomToKey(DefaultEType)
	require.NoError(t, err)

	env, err := Seal(testPayload{IDc: "alice"}, key, UsageTicket)
	require.NoError(t, err)

	var got testPayload
	assert.Error(t, Open(env, other, UsageTicket, &got))
}

func TestOpenRejectsWrongUsage(t *testing.T) {
	key, err := RandomToKey(DefaultEType)
	require.NoError(t, err)

	env, err := Seal(testPayload{IDc: "alice"}, key, UsageTicket)
	require.NoError(t, err)

	var got testPayload
	assert.Error(t, Open(env, key, UsageASReply, &got))
}
