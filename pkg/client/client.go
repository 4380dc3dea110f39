// Package client implements the client side of the three-step Kerberos v4
// exchange: it obtains a TGT from the AS, exchanges that TGT for a
// service ticket at the TGS, and calls an application server, transparently
// reusing cached tickets that are still within their lifetime.
package client

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/kerb4/kerb4/internal/epoch"
	"github.com/kerb4/kerb4/internal/krbcrypto"
	"github.com/kerb4/kerb4/internal/logger"
	"github.com/kerb4/kerb4/internal/protocol/frame"
	"github.com/kerb4/kerb4/internal/protocol/wire"
	"github.com/kerb4/kerb4/pkg/ticket"
	"github.com/kerb4/kerb4/pkg/ticketcache"
)

// ErrServerRejected wraps the reason string of a server's ERR reply,
// surfaced to the caller as a single string.
type ErrServerRejected struct {
	Reason string
}

func (e *ErrServerRejected) Error() string {
	return fmt.Sprintf("server rejected request: %s", e.Reason)
}

// ErrReplyNotAuthenticated is returned by Call when an APP_REP's timestamp
// does not equal the authenticator's timestamp plus one, meaning the peer
// did not actually hold K_c,v.
var ErrReplyNotAuthenticated = errors.New("application reply failed server authentication check")

// Client orchestrates AS_REQ/TGS_REQ/APP_REQ exchanges for one principal.
type Client struct {
	idc   string
	kC    krbcrypto.Key
	idtgs string
	adc   string
	etype int32

	asAddr  string
	tgsAddr string

	clock  epoch.Clock
	cache  *ticketcache.Cache
	dialer net.Dialer
}

// New builds a client for idc, deriving K_c from password the same way the
// AS derives a client's long-term key (StringToKey salted with the
// principal name), so a wrong password yields a usable-but-wrong key rather
// than a configuration error; it only surfaces as ErrDecryptFailure once
// the client tries to open the AS_REP. adc is the client's own address as
// the AS/TGS/V will observe it on the wire; it is sealed into every
// authenticator and must match what the AS recorded in the ticket.
func New(idc, password, idtgs, adc, asAddr, tgsAddr string, etypeID int32, clock epoch.Clock, cache *ticketcache.Cache, timeout time.Duration) (*Client, error) {
	kC, err := krbcrypto.StringToKey(password, idc, etypeID)
	if err != nil {
		return nil, fmt.Errorf("derive client key: %w", err)
	}
	return &Client{
		idc:     idc,
		kC:      kC,
		idtgs:   idtgs,
		adc:     adc,
		etype:   etypeID,
		asAddr:  asAddr,
		tgsAddr: tgsAddr,
		clock:   clock,
		cache:   cache,
		dialer:  net.Dialer{Timeout: timeout},
	}, nil
}

func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport_failure: dial %s: %w", addr, err)
	}
	return conn, nil
}

func randomNonce() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// ensureTGT returns a usable ASReplyEnvelope, reusing the cached one if it
// is still within its lifetime and fetching one from the AS otherwise.
func (c *Client) ensureTGT(ctx context.Context) (ticket.ASReplyEnvelope, error) {
	now := c.clock.Now()

	if entry, err := c.cache.Get(ticketcache.TGTKey); err == nil {
		if entry.Fresh(now) {
			var env ticket.ASReplyEnvelope
			if err := json.Unmarshal(entry.Envelope, &env); err == nil {
				return env, nil
			}
		} else {
			_ = c.cache.Delete(ticketcache.TGTKey)
		}
	}

	env, err := c.fetchTGT(ctx, now)
	if err != nil {
		return ticket.ASReplyEnvelope{}, err
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return ticket.ASReplyEnvelope{}, fmt.Errorf("marshal TGT cache entry: %w", err)
	}
	if err := c.cache.Put(ticketcache.TGTKey, ticketcache.Entry{Envelope: raw, TS: env.TS, Lifetime: env.Lifetime}); err != nil {
		return ticket.ASReplyEnvelope{}, fmt.Errorf("cache TGT: %w", err)
	}
	return env, nil
}

func (c *Client) fetchTGT(ctx context.Context, now int64) (ticket.ASReplyEnvelope, error) {
	conn, err := c.dial(ctx, c.asAddr)
	if err != nil {
		return ticket.ASReplyEnvelope{}, err
	}
	defer conn.Close()

	nonce, err := randomNonce()
	if err != nil {
		return ticket.ASReplyEnvelope{}, fmt.Errorf("generate nonce: %w", err)
	}

	req := wire.ASReq{Type: wire.TypeASReq, IDc: c.idc, IDtgs: c.idtgs, TS1: now, Nonce: nonce}
	if err := frame.Send(conn, req); err != nil {
		return ticket.ASReplyEnvelope{}, fmt.Errorf("transport_failure: %w", err)
	}

	body, err := frame.RecvRaw(conn)
	if err != nil {
		return ticket.ASReplyEnvelope{}, fmt.Errorf("transport_failure: %w", err)
	}

	if rep, ok, err := decodeErr(body); ok {
		if err != nil {
			return ticket.ASReplyEnvelope{}, err
		}
		return ticket.ASReplyEnvelope{}, &ErrServerRejected{Reason: rep.Reason}
	}

	var rep wire.ASRep
	if err := json.Unmarshal(body, &rep); err != nil {
		return ticket.ASReplyEnvelope{}, fmt.Errorf("decode AS_REP: %w", err)
	}

	env, err := ticket.OpenASReply(rep.Data, c.kC)
	if err != nil {
		return ticket.ASReplyEnvelope{}, err
	}
	if env.Nonce != nonce {
		return ticket.ASReplyEnvelope{}, fmt.Errorf("identity_mismatch: AS_REP nonce %d does not match request nonce %d", env.Nonce, nonce)
	}

	logger.Info("obtained TGT", logger.IDc(c.idc), logger.IDtgs(c.idtgs), logger.Timestamp(env.TS), logger.Lifetime(int(env.Lifetime)))
	return env, nil
}

// ensureServiceTicket returns a usable TGSReplyEnvelope for idv, reusing
// the cached one if still fresh and fetching one from the TGS otherwise.
func (c *Client) ensureServiceTicket(ctx context.Context, idv string) (ticket.TGSReplyEnvelope, error) {
	now := c.clock.Now()
	cacheKey := ticketcache.ServiceTicketKey(idv)

	if entry, err := c.cache.Get(cacheKey); err == nil {
		if entry.Fresh(now) {
			var env ticket.TGSReplyEnvelope
			if err := json.Unmarshal(entry.Envelope, &env); err == nil {
				return env, nil
			}
		} else {
			_ = c.cache.Delete(cacheKey)
		}
	}

	tgtEnv, err := c.ensureTGT(ctx)
	if err != nil {
		return ticket.TGSReplyEnvelope{}, err
	}
	kCTGS, err := ticket.DeriveSessionKey(tgtEnv.SessionKey, c.etype)
	if err != nil {
		return ticket.TGSReplyEnvelope{}, fmt.Errorf("derive K_c,tgs: %w", err)
	}

	env, err := c.fetchServiceTicket(ctx, idv, tgtEnv, kCTGS)
	if err != nil {
		return ticket.TGSReplyEnvelope{}, err
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return ticket.TGSReplyEnvelope{}, fmt.Errorf("marshal ST cache entry: %w", err)
	}
	if err := c.cache.Put(cacheKey, ticketcache.Entry{Envelope: raw, TS: env.TS, Lifetime: env.Lifetime}); err != nil {
		return ticket.TGSReplyEnvelope{}, fmt.Errorf("cache service ticket: %w", err)
	}
	return env, nil
}

func (c *Client) fetchServiceTicket(ctx context.Context, idv string, tgtEnv ticket.ASReplyEnvelope, kCTGS krbcrypto.Key) (ticket.TGSReplyEnvelope, error) {
	conn, err := c.dial(ctx, c.tgsAddr)
	if err != nil {
		return ticket.TGSReplyEnvelope{}, err
	}
	defer conn.Close()

	now := c.clock.Now()
	authEnv, err := ticket.SealAuthenticator(ticket.Authenticator{IDc: c.idc, ADc: c.adc, TS: now}, kCTGS)
	if err != nil {
		return ticket.TGSReplyEnvelope{}, fmt.Errorf("seal authenticator: %w", err)
	}

	req := wire.TGSReq{Type: wire.TypeTGSReq, IDv: idv, TicketTGS: tgtEnv.TGT, Authenticator: authEnv}
	if err := frame.Send(conn, req); err != nil {
		return ticket.TGSReplyEnvelope{}, fmt.Errorf("transport_failure: %w", err)
	}

	body, err := frame.RecvRaw(conn)
	if err != nil {
		return ticket.TGSReplyEnvelope{}, fmt.Errorf("transport_failure: %w", err)
	}

	if rep, ok, derr := decodeErr(body); ok {
		if derr != nil {
			return ticket.TGSReplyEnvelope{}, derr
		}
		return ticket.TGSReplyEnvelope{}, &ErrServerRejected{Reason: rep.Reason}
	}

	var rep wire.TGSRep
	if err := json.Unmarshal(body, &rep); err != nil {
		return ticket.TGSReplyEnvelope{}, fmt.Errorf("decode TGS_REP: %w", err)
	}

	env, err := ticket.OpenTGSReply(rep.Data, kCTGS)
	if err != nil {
		return ticket.TGSReplyEnvelope{}, err
	}

	logger.Info("obtained service ticket", logger.IDc(c.idc), logger.IDv(idv), logger.Timestamp(env.TS), logger.Lifetime(int(env.Lifetime)))
	return env, nil
}

// Call places one application request against idv at addr, carrying
// message. It obtains (or reuses) the TGT and service ticket, seals a fresh
// authenticator and payload, and verifies the server's authenticated reply
// before returning the acknowledgement text.
func (c *Client) Call(ctx context.Context, idv, addr, message string) (string, error) {
	stEnv, err := c.ensureServiceTicket(ctx, idv)
	if err != nil {
		return "", err
	}
	kCV, err := ticket.DeriveSessionKey(stEnv.SessionKey, c.etype)
	if err != nil {
		return "", fmt.Errorf("derive K_c,v: %w", err)
	}

	conn, err := c.dial(ctx, addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	ts5 := c.clock.Now()
	authEnv, err := ticket.SealAuthenticator(ticket.Authenticator{IDc: c.idc, ADc: c.adc, TS: ts5}, kCV)
	if err != nil {
		return "", fmt.Errorf("seal authenticator: %w", err)
	}
	msgEnv, err := ticket.SealAppPayload(ticket.AppPayload{Message: message, TS: ts5}, kCV)
	if err != nil {
		return "", fmt.Errorf("seal application payload: %w", err)
	}

	req := wire.AppReq{Type: wire.TypeAppReq, TicketV: stEnv.ST, Authenticator: authEnv, Message: msgEnv}
	if err := frame.Send(conn, req); err != nil {
		return "", fmt.Errorf("transport_failure: %w", err)
	}

	body, err := frame.RecvRaw(conn)
	if err != nil {
		return "", fmt.Errorf("transport_failure: %w", err)
	}

	if rep, ok, derr := decodeErr(body); ok {
		if derr != nil {
			return "", derr
		}
		return "", &ErrServerRejected{Reason: rep.Reason}
	}

	var rep wire.AppRep
	if err := json.Unmarshal(body, &rep); err != nil {
		return "", fmt.Errorf("decode APP_REP: %w", err)
	}

	appReply, err := ticket.OpenAppReply(rep.Data, kCV)
	if err != nil {
		return "", err
	}
	if appReply.TS != ts5+1 {
		return "", ErrReplyNotAuthenticated
	}

	logger.Info("application call acknowledged", logger.IDc(c.idc), logger.IDv(idv))
	return appReply.Ack, nil
}

// decodeErr checks whether body decodes as a wire.Err and, if so, returns it
// with ok=true. A non-ERR body is left for the caller's own decoding; a body
// that claims to be type ERR but fails to decode its reason returns the
// decode error instead.
func decodeErr(body []byte) (wire.Err, bool, error) {
	var t struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &t); err != nil {
		return wire.Err{}, false, fmt.Errorf("decode reply type: %w", err)
	}
	if t.Type != wire.TypeErr {
		return wire.Err{}, false, nil
	}
	var rep wire.Err
	if err := json.Unmarshal(body, &rep); err != nil {
		return wire.Err{}, true, fmt.Errorf("decode ERR reply: %w", err)
	}
	return rep, true, nil
}
