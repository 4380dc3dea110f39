// Package krbcrypto implements the keyed-encryption codec shared by every
// message exchange in this system: AS_REP, TGS_REP, the sealed ticket
// embedded in both, and APP_REQ/APP_REP.
//
// Historical note. Early iterations of this system tried two ciphers: a
// DES/ECB-with-padding scheme keyed by an MD5-derived 8-byte secret, and a
// single XOR keystream derived by repeating SHA-256(secret) to the
// plaintext length. Both are cryptographic toys: ECB leaks block-level
// structure, and a SHA-256-keystream-XOR is a one-time pad only if the
// stream never repeats, which a deterministic keystream keyed solely on a
// password does not guarantee across messages.
//
// This package keeps the same seal/open shape (a single opaque envelope
// in, a typed value out) but backs it with a real RFC 3961/3962 enctype
// from jcmturner/gokrb5/v8/crypto: AES128-CTS-HMAC-SHA1-96 (etype 17) by
// default, selectable via etype ID so a deployment can move to etype 18
// (AES256) without touching call sites.
package krbcrypto
