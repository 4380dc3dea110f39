package krbcrypto

import (
	"encoding/json"
	"fmt"
)

// Key usage numbers distinguish ciphertexts produced under the same key for
// different purposes, exactly as RFC 4120 section 7.5.1 does for real
// Kerberos. Each sealed envelope in this system picks one of these so a
// ticket accidentally replayed as an AS_REP body (or vice versa) fails to
// decrypt as the wrong usage rather than silently succeeding.
const (
	UsageASReply       uint32 = 1 // AS_REP body sealed under the client's long-term key
	UsageTicket        uint32 = 2 // TGT/ST sealed under the issuing service's key
	UsageTGSReply      uint32 = 3 // TGS_REP body sealed under K_c,tgs
	UsageAuthenticator uint32 = 4 // authenticator sealed under a session key
	UsageAppPayload    uint32 = 5 // application message sealed under K_c,v
	UsageAppReply      uint32 = 6 // APP_REP body sealed under K_c,v
)

// Envelope is a sealed, opaque token: ciphertext plus the etype and key
// usage it was produced under, so Open can pick the matching etype.EType
// without the caller having to track it out of band.
type Envelope struct {
	EType      int32  `json:"etype"`
	Usage      uint32 `json:"usage"`
	Ciphertext []byte `json:"ciphertext"`
}

// Seal JSON-encodes obj and encrypts it under key for the given usage,
// producing an opaque Envelope.
func Seal(obj any, key Key, usage uint32) (Envelope, error) {
	et, err := etypeOf(key.etypeID)
	if err != nil {
		return Envelope{}, err
	}

	plaintext, err := json.Marshal(obj)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal plaintext: %w", err)
	}

	_, ciphertext, err := et.EncryptMessage(key.bytes, plaintext, usage)
	if err != nil {
		return Envelope{}, fmt.Errorf("encrypt: %w", err)
	}

	return Envelope{EType: key.etypeID, Usage: usage, Ciphertext: ciphertext}, nil
}

// Open decrypts env under key and JSON-decodes the plaintext into out, which
// must be a pointer. Returns an error if the envelope's etype doesn't match
// key, if decryption fails (wrong key, tampered ciphertext), or if the usage
// recorded on the envelope doesn't match what the caller expected.
func Open(env Envelope, key Key, wantUsage uint32, out any) error {
	if env.EType != key.etypeID {
		return fmt.Errorf("envelope etype %d does not match key etype %d", env.EType, key.etypeID)
	}
	if env.Usage != wantUsage {
		return fmt.Errorf("envelope usage %d does not match expected usage %d", env.Usage, wantUsage)
	}

	et, err := etypeOf(key.etypeID)
	if err != nil {
		return err
	}

	plaintext, err := et.DecryptMessage(key.bytes, env.Ciphertext, env.Usage)
	if err != nil {
		return fmt.Errorf("decrypt: %w", err)
	}

	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("unmarshal plaintext: %w", err)
	}
	return nil
}
