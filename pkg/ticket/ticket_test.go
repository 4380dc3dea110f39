package ticket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerb4/kerb4/internal/krbcrypto"
)

func mustKey(t *testing.T, secret, salt string) krbcrypto.Key {
	t.Helper()
	k, err := krbcrypto.StringToKey(secret, salt, krbcrypto.DefaultEType)
	require.NoError(t, err)
	return k
}

func TestSealOpenTGTRoundTrip(t *testing.T) {
	kTGS := mustKey(t, "tgs-secret", "tgs1")

	want := TGT{SessionKey: "kc-tgs:alice:0:abcd1234", IDc: "alice", ADc: "10.0.0.1:9001", IDtgs: "tgs1", TS: 0, Lifetime: 10}
	env, err := SealTGT(want, kTGS)
	require.NoError(t, err)

	got, err := OpenTGT(env, kTGS)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestOpenTGTWrongKeyFails(t *testing.T) {
	kTGS := mustKey(t, "tgs-secret", "tgs1")
	wrongKey := mustKey(t, "not-the-secret", "tgs1")

	env, err := SealTGT(TGT{IDc: "alice"}, kTGS)
	require.NoError(t, err)

	_, err = OpenTGT(env, wrongKey)
	assert.ErrorIs(t, err, ErrDecryptFailure)
}

func TestSealOpenAuthenticatorRoundTrip(t *testing.T) {
	sessionKey := mustKey(t, "kc-tgs:alice:0:abcd1234", "alice")

	want := Authenticator{IDc: "alice", ADc: "10.0.0.1:9001", TS: 1}
	env, err := SealAuthenticator(want, sessionKey)
	require.NoError(t, err)

	got, err := OpenAuthenticator(env, sessionKey)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCheckFreshInclusiveBounds(t *testing.T) {
	assert.NoError(t, CheckFresh(0, 10, 0))
	assert.NoError(t, CheckFresh(0, 10, 10))
	assert.ErrorIs(t, CheckFresh(0, 10, 11), ErrTicketExpired)
	assert.ErrorIs(t, CheckFresh(5, 10, 4), ErrTicketExpired)
}

func TestCheckAuthenticatorIdentityMismatch(t *testing.T) {
	a := Authenticator{IDc: "mallory", ADc: "10.0.0.1:9001", TS: 1}
	err := CheckAuthenticator(a, "alice", "10.0.0.1:9001", 0, 5)
	assert.ErrorIs(t, err, ErrIdentityMismatch)
}

func TestCheckAuthenticatorAddressMismatch(t *testing.T) {
	a := Authenticator{IDc: "alice", ADc: "10.0.0.2:9001", TS: 1}
	err := CheckAuthenticator(a, "alice", "10.0.0.1:9001", 0, 5)
	assert.ErrorIs(t, err, ErrAddressMismatch)
}

func TestCheckAuthenticatorStaleBeforeTicket(t *testing.T) {
	a := Authenticator{IDc: "alice", ADc: "10.0.0.1:9001", TS: -1}
	err := CheckAuthenticator(a, "alice", "10.0.0.1:9001", 0, 5)
	assert.ErrorIs(t, err, ErrAuthenticatorStale)
}

func TestCheckAuthenticatorStaleInFuture(t *testing.T) {
	a := Authenticator{IDc: "alice", ADc: "10.0.0.1:9001", TS: 6}
	err := CheckAuthenticator(a, "alice", "10.0.0.1:9001", 0, 5)
	assert.ErrorIs(t, err, ErrAuthenticatorStale)
}

func TestCheckPeerAddressMismatch(t *testing.T) {
	assert.NoError(t, CheckPeerAddress("10.0.0.1:9001", "10.0.0.1:9001"))
	assert.ErrorIs(t, CheckPeerAddress("10.0.0.1:9001", "10.0.0.2:5555"), ErrAddressMismatch)
}

func TestNewSessionKeyNameIsUniquePerCall(t *testing.T) {
	a, err := NewSessionKeyName(KindClientTGS, "alice", "", 0)
	require.NoError(t, err)
	b, err := NewSessionKeyName(KindClientTGS, "alice", "", 0)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "two session keys minted in the same minute must still differ")
	assert.Contains(t, a, "kc-tgs:alice:0:")
}

func TestNewSessionKeyNameIncludesTarget(t *testing.T) {
	name, err := NewSessionKeyName(KindClientV, "alice", "mailsvc", 2)
	require.NoError(t, err)
	assert.Contains(t, name, "kc-v:alice:mailsvc:2:")
}

func TestDeriveSessionKeyIsDeterministicPerName(t *testing.T) {
	name, err := NewSessionKeyName(KindClientTGS, "alice", "", 0)
	require.NoError(t, err)

	k1, err := DeriveSessionKey(name, krbcrypto.DefaultEType)
	require.NoError(t, err)
	k2, err := DeriveSessionKey(name, krbcrypto.DefaultEType)
	require.NoError(t, err)
	assert.Equal(t, k1.Bytes(), k2.Bytes())

	other, err := NewSessionKeyName(KindClientTGS, "alice", "", 0)
	require.NoError(t, err)
	k3, err := DeriveSessionKey(other, krbcrypto.DefaultEType)
	require.NoError(t, err)
	assert.NotEqual(t, k1.Bytes(), k3.Bytes())
}
