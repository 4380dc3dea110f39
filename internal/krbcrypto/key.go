package krbcrypto

import (
	"crypto/rand"
	"fmt"

	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/crypto/etype"
	"github.com/jcmturner/gokrb5/v8/iana/etypeID"
)

// DefaultEType is the enctype used when a configuration does not name one.
// 17 is AES128-CTS-HMAC-SHA1-96 (RFC 3962).
const DefaultEType = etypeID.AES128_CTS_HMAC_SHA1_96

// Key is an opaque, keyed-encryption key bound to a specific enctype. It is
// never constructed from raw bytes directly outside this package: callers
// derive one with StringToKey (a principal's long-term key, from a shared
// secret) or mint one with RandomToKey (an ephemeral session key).
type Key struct {
	etypeID int32
	bytes   []byte
}

// ETypeID reports the enctype this key was derived for.
func (k Key) ETypeID() int32 {
	return k.etypeID
}

// Bytes exposes the raw key material. Sealed envelopes never contain a Key
// directly: tickets and the client cache carry a session key's name and
// derive the Key from it again (ticket.DeriveSessionKey), so only tests call
// this, to compare key material.
func (k Key) Bytes() []byte {
	return k.bytes
}

// StringToKey derives a principal's long-term key from a shared secret and
// salt (conventionally the principal name) using the enctype's RFC 3961
// string-to-key profile. Two callers deriving from the same secret and salt
// always get the same key, which is exactly what lets the AS and a
// principal agree on a key without ever exchanging it.
func StringToKey(secret, salt string, id int32) (Key, error) {
	et, err := crypto.GetEtype(id)
	if err != nil {
		return Key{}, fmt.Errorf("unsupported etype %d: %w", id, err)
	}
	raw, err := et.StringToKey(secret, salt, et.GetDefaultStringToKeyParams())
	if err != nil {
		return Key{}, fmt.Errorf("string-to-key: %w", err)
	}
	return Key{etypeID: id, bytes: raw}, nil
}

// RandomToKey mints a fresh random session key for the given enctype. Used
// for K_c,tgs and K_c,v, which must never repeat across issuances.
func RandomToKey(id int32) (Key, error) {
	et, err := crypto.GetEtype(id)
	if err != nil {
		return Key{}, fmt.Errorf("unsupported etype %d: %w", id, err)
	}
	seed := make([]byte, et.GetKeyByteSize())
	if _, err := rand.Read(seed); err != nil {
		return Key{}, fmt.Errorf("read random seed: %w", err)
	}
	return Key{etypeID: id, bytes: et.RandomToKey(seed)}, nil
}

// etypeOf resolves the RFC 3961 implementation backing a key.
func etypeOf(id int32) (etype.EType, error) {
	return crypto.GetEtype(id)
}

// ParseEType resolves a deployment's configured crypto_suite name to an
// etype ID. Empty input is handled by callers, which fall back to
// DefaultEType.
func ParseEType(name string) (int32, error) {
	switch name {
	case "aes128-cts-hmac-sha1-96", "AES128_CTS_HMAC_SHA1_96":
		return etypeID.AES128_CTS_HMAC_SHA1_96, nil
	case "aes256-cts-hmac-sha1-96", "AES256_CTS_HMAC_SHA1_96":
		return etypeID.AES256_CTS_HMAC_SHA1_96, nil
	default:
		return 0, fmt.Errorf("unknown crypto suite %q", name)
	}
}
