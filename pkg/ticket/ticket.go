// Package ticket implements the ticket and authenticator state machine: the
// TGT and service-ticket shapes, the session keys that accompany them, and
// the freshness/identity/address checks every server applies before acting
// on one. It has no notion of sockets or the wire protocol; AS, TGS and V
// each call into it after decoding a request and before sealing a reply.
package ticket

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kerb4/kerb4/internal/krbcrypto"
)

// Sentinel errors surfaced to the protocol layer. Their text doubles as the
// wire-level ERR reason, so it stays in the same snake_case family as
// bad_type, unknown_principal and the other reasons servers send.
var (
	ErrTicketExpired      = errors.New("ticket_expired")
	ErrAuthenticatorStale = errors.New("authenticator_stale")
	ErrIdentityMismatch   = errors.New("identity_mismatch")
	ErrAddressMismatch    = errors.New("address_mismatch")
	ErrDecryptFailure     = errors.New("decrypt_failure")
)

// TGT is the plaintext shape of a ticket-granting ticket, sealed under
// K_tgs. The client never sees this; only the AS (at mint time) and the TGS
// (at open time) do.
type TGT struct {
	SessionKey string `json:"session_key"`
	IDc        string `json:"idc"`
	ADc        string `json:"adc"`
	IDtgs      string `json:"idtgs"`
	TS         int64  `json:"ts"`
	Lifetime   int64  `json:"lifetime"`
}

// ServiceTicket is the plaintext shape of a service ticket, sealed under
// K_v. Only the TGS (at mint time) and the target application server (at
// open time) see this.
type ServiceTicket struct {
	SessionKey string `json:"session_key"`
	IDc        string `json:"idc"`
	ADc        string `json:"adc"`
	IDv        string `json:"idv"`
	TS         int64  `json:"ts"`
	Lifetime   int64  `json:"lifetime"`
}

// Authenticator proves possession of a session key without revealing it; it
// is sealed under the session key it accompanies. The client seals a fresh
// one for each request; servers keep no record of authenticators already
// seen, so one is accepted again for as long as it passes CheckAuthenticator.
type Authenticator struct {
	IDc string `json:"idc"`
	ADc string `json:"adc"`
	TS  int64  `json:"ts"`
}

// ASReplyEnvelope is sealed under K_c and handed back to the client in
// AS_REP. Nonce echoes the client's AS_REQ nonce; the client rejects a
// reply whose echo does not match what it sent.
type ASReplyEnvelope struct {
	SessionKey string             `json:"session_key"`
	IDtgs      string             `json:"idtgs"`
	TS         int64              `json:"ts"`
	Lifetime   int64              `json:"lifetime"`
	TGT        krbcrypto.Envelope `json:"tgt"`
	Nonce      uint32             `json:"nonce"`
}

// TGSReplyEnvelope is sealed under K_c,tgs and handed back to the client in
// TGS_REP.
type TGSReplyEnvelope struct {
	SessionKey string             `json:"session_key"`
	IDv        string             `json:"idv"`
	TS         int64              `json:"ts"`
	Lifetime   int64              `json:"lifetime"`
	ST         krbcrypto.Envelope `json:"st"`
}

// AppPayload is the client's application message, sealed under K_c,v
// alongside the authenticator in APP_REQ.
type AppPayload struct {
	Message string `json:"message"`
	TS      int64  `json:"ts"`
}

// AppReplyEnvelope is sealed under K_c,v and returned in APP_REP. TS is
// always the authenticator's TS plus one; only a server holding K_c,v can
// produce it, which is what authenticates the server back to the client.
type AppReplyEnvelope struct {
	Ack string `json:"ack"`
	TS  int64  `json:"ts"`
}

// NewSessionKeyName builds the human-readable session-key identifier this
// system derives a Key from, in the shape
// "kc-tgs:<IDc>:<now>:<uuid8>" / "kc-v:<IDc>:<IDv>:<now>:<uuid8>". The uuid8
// suffix keeps two keys minted for the same principal in the same
// clock-minute distinct; the IDc/counterpart/timestamp fields alone cannot.
func NewSessionKeyName(kind, idc, idv string, now int64) (string, error) {
	suffix := uuid.New().String()[:8]
	if idv == "" {
		return fmt.Sprintf("%s:%s:%d:%s", kind, idc, now, suffix), nil
	}
	return fmt.Sprintf("%s:%s:%s:%d:%s", kind, idc, idv, now, suffix), nil
}

const (
	// KindClientTGS names a client-TGS session key (K_c,tgs).
	KindClientTGS = "kc-tgs"
	// KindClientV names a client-service session key (K_c,v).
	KindClientV = "kc-v"
)

// DeriveSessionKey turns a session-key name minted by NewSessionKeyName into
// a usable Key. The name itself supplies both the secret and the salt: its
// uuid8 suffix is what makes two calls with the same inputs still produce
// distinct keys, the same way two AS_REQs for the same client in the same
// minute must not end up sharing K_c,tgs.
func DeriveSessionKey(name string, etypeID int32) (krbcrypto.Key, error) {
	return krbcrypto.StringToKey(name, name, etypeID)
}

// CheckFresh requires ts <= now <= ts+lifetime, inclusive on both bounds.
// Minute-granularity clocks mean two events in the same minute share a
// timestamp, so the inclusive lower bound is load-bearing.
func CheckFresh(ts, lifetime, now int64) error {
	if now < ts || now > ts+lifetime {
		return ErrTicketExpired
	}
	return nil
}

// CheckAuthenticator validates an authenticator against the ticket it
// accompanies: the authenticator's timestamp must fall within the ticket's
// freshness window and not be in the future, and its IDc/ADc must match the
// ticket's.
func CheckAuthenticator(a Authenticator, ticketIDc, ticketADc string, ticketTS, now int64) error {
	if a.IDc != ticketIDc {
		return ErrIdentityMismatch
	}
	if a.ADc != ticketADc {
		return ErrAddressMismatch
	}
	if a.TS < ticketTS || a.TS > now {
		return ErrAuthenticatorStale
	}
	return nil
}

// CheckPeerAddress rechecks the address binding at connection time: the
// ticket's ADc must match the peer address of the connection the request
// arrived on, so a captured ticket replayed from another host is refused.
func CheckPeerAddress(ticketADc, peerAddr string) error {
	if ticketADc != peerAddr {
		return ErrAddressMismatch
	}
	return nil
}
