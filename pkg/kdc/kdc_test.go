package kdc

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerb4/kerb4/internal/epoch"
	"github.com/kerb4/kerb4/internal/krbcrypto"
	"github.com/kerb4/kerb4/internal/protocol/frame"
	"github.com/kerb4/kerb4/internal/protocol/wire"
	"github.com/kerb4/kerb4/pkg/metrics"
	"github.com/kerb4/kerb4/pkg/principal"
	"github.com/kerb4/kerb4/pkg/ticket"
)

func newTestServer(t *testing.T, now int64) (*Server, principal.Principal, krbcrypto.Key) {
	t.Helper()

	store := principal.NewMemStore()
	ctx := context.Background()

	alice := principal.Principal{Name: principal.Name{Primary: "alice", Realm: "KERB4"}, Kind: principal.KindClient, Secret: "hunter2"}
	require.NoError(t, store.Put(ctx, alice))

	mailsvc := principal.Principal{Name: principal.Name{Primary: "mailsvc", Realm: "KERB4"}, Kind: principal.KindService, Secret: "mailkey"}
	require.NoError(t, store.Put(ctx, mailsvc))

	tgsPrincipal := principal.Principal{
		Name:                      principal.Name{Primary: "tgs1", Realm: "KERB4"},
		Kind:                      principal.KindTGS,
		Secret:                    "tgs-secret",
		DefaultTGTLifetimeMinutes: 10,
		DefaultSTLifetimeMinutes:  5,
	}
	require.NoError(t, store.Put(ctx, tgsPrincipal))

	tgsKey, err := tgsPrincipal.Key(krbcrypto.DefaultEType)
	require.NoError(t, err)

	clock := epoch.NewClock(time.Now().Add(-time.Duration(now) * time.Minute).Unix())

	s := New("127.0.0.1:0", "127.0.0.1:0", store, clock, TGSRecord{IDtgs: "tgs1", Key: tgsKey}, krbcrypto.DefaultEType)

	return s, alice, tgsKey
}

func startServer(t *testing.T, s *Server) {
	t.Helper()
	asDone := make(chan error, 1)
	tgsDone := make(chan error, 1)
	go func() { asDone <- s.ServeAS() }()
	go func() { tgsDone <- s.ServeTGS() }()

	for i := 0; i < 100; i++ {
		if s.ASAddr() != nil && s.TGSAddr() != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NotNil(t, s.ASAddr())
	require.NotNil(t, s.TGSAddr())

	t.Cleanup(func() {
		require.NoError(t, s.Stop())
		require.NoError(t, <-asDone)
		require.NoError(t, <-tgsDone)
	})
}

func TestASRepRoundTrip(t *testing.T) {
	s, alice, _ := newTestServer(t, 0)
	startServer(t, s)

	conn, err := net.Dial("tcp", s.ASAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, frame.Send(conn, wire.ASReq{Type: wire.TypeASReq, IDc: "alice", IDtgs: "tgs1", TS1: 0, Nonce: 42}))

	var rep wire.ASRep
	require.NoError(t, frame.Recv(conn, &rep))
	assert.Equal(t, wire.TypeASRep, rep.Type)

	kC, err := alice.Key(krbcrypto.DefaultEType)
	require.NoError(t, err)

	env, err := ticket.OpenASReply(rep.Data, kC)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), env.Nonce)
	assert.Equal(t, "tgs1", env.IDtgs)
}

func TestASRepWrongPasswordFailsDecrypt(t *testing.T) {
	s, _, _ := newTestServer(t, 0)
	startServer(t, s)

	conn, err := net.Dial("tcp", s.ASAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, frame.Send(conn, wire.ASReq{Type: wire.TypeASReq, IDc: "alice", IDtgs: "tgs1", TS1: 0}))

	var rep wire.ASRep
	require.NoError(t, frame.Recv(conn, &rep))

	wrongKey, err := krbcrypto.StringToKey("wrong-password", "alice", krbcrypto.DefaultEType)
	require.NoError(t, err)

	_, err = ticket.OpenASReply(rep.Data, wrongKey)
	assert.ErrorIs(t, err, ticket.ErrDecryptFailure)
}

func TestASRepUnknownPrincipalReturnsErr(t *testing.T) {
	s, _, _ := newTestServer(t, 0)
	startServer(t, s)

	conn, err := net.Dial("tcp", s.ASAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, frame.Send(conn, wire.ASReq{Type: wire.TypeASReq, IDc: "nosuch", IDtgs: "tgs1", TS1: 0}))

	body, err := frame.RecvRaw(conn)
	require.NoError(t, err)

	var errRep wire.Err
	require.NoError(t, json.Unmarshal(body, &errRep))
	assert.Equal(t, wire.TypeErr, errRep.Type)
	assert.Contains(t, errRep.Reason, "unknown_principal")
}

func TestFullASThenTGSRoundTrip(t *testing.T) {
	s, alice, _ := newTestServer(t, 0)
	startServer(t, s)

	kC, err := alice.Key(krbcrypto.DefaultEType)
	require.NoError(t, err)

	asConn, err := net.Dial("tcp", s.ASAddr().String())
	require.NoError(t, err)
	defer asConn.Close()
	require.NoError(t, frame.Send(asConn, wire.ASReq{Type: wire.TypeASReq, IDc: "alice", IDtgs: "tgs1", TS1: 0}))

	var asRep wire.ASRep
	require.NoError(t, frame.Recv(asConn, &asRep))
	asEnv, err := ticket.OpenASReply(asRep.Data, kC)
	require.NoError(t, err)

	kCTGS, err := ticket.DeriveSessionKey(asEnv.SessionKey, krbcrypto.DefaultEType)
	require.NoError(t, err)

	tgsConn, err := net.Dial("tcp", s.TGSAddr().String())
	require.NoError(t, err)
	defer tgsConn.Close()

	authEnv, err := ticket.SealAuthenticator(ticket.Authenticator{
		IDc: "alice",
		ADc: "127.0.0.1",
		TS:  0,
	}, kCTGS)
	require.NoError(t, err)

	require.NoError(t, frame.Send(tgsConn, wire.TGSReq{
		Type:          wire.TypeTGSReq,
		IDv:           "mailsvc",
		TicketTGS:     asEnv.TGT,
		Authenticator: authEnv,
	}))

	var tgsRep wire.TGSRep
	require.NoError(t, frame.Recv(tgsConn, &tgsRep))
	assert.Equal(t, wire.TypeTGSRep, tgsRep.Type)

	tgsEnv, err := ticket.OpenTGSReply(tgsRep.Data, kCTGS)
	require.NoError(t, err)
	assert.Equal(t, "mailsvc", tgsEnv.IDv)
}

func TestASReqRecordsMetrics(t *testing.T) {
	s, alice, _ := newTestServer(t, 0)
	reg := prometheus.NewRegistry()
	requests := metrics.NewRequests(reg)
	s.SetMetrics(requests)
	startServer(t, s)

	kC, err := alice.Key(krbcrypto.DefaultEType)
	require.NoError(t, err)

	conn, err := net.Dial("tcp", s.ASAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, frame.Send(conn, wire.ASReq{Type: wire.TypeASReq, IDc: "alice", IDtgs: "tgs1", TS1: 0}))

	var rep wire.ASRep
	require.NoError(t, frame.Recv(conn, &rep))
	_, err = ticket.OpenASReply(rep.Data, kC)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(requests.TotalFor(wire.TypeASReq, "ok")))
}

func mintTestTGT(t *testing.T, idc, adc string, ts, lifetime int64) (ticket.TGT, krbcrypto.Key) {
	t.Helper()
	name, err := ticket.NewSessionKeyName(ticket.KindClientTGS, idc, "", ts)
	require.NoError(t, err)
	sessionKey, err := ticket.DeriveSessionKey(name, krbcrypto.DefaultEType)
	require.NoError(t, err)
	return ticket.TGT{SessionKey: name, IDc: idc, ADc: adc, IDtgs: "tgs1", TS: ts, Lifetime: lifetime}, sessionKey
}

func TestTGSReqExpiredTGT(t *testing.T) {
	s, _, tgsKey := newTestServer(t, 11)
	startServer(t, s)

	tgt, sessionKey := mintTestTGT(t, "alice", "127.0.0.1", 0, 10)
	tgtEnv, err := ticket.SealTGT(tgt, tgsKey)
	require.NoError(t, err)
	authEnv, err := ticket.SealAuthenticator(ticket.Authenticator{IDc: "alice", ADc: "127.0.0.1", TS: 11}, sessionKey)
	require.NoError(t, err)

	conn, err := net.Dial("tcp", s.TGSAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, frame.Send(conn, wire.TGSReq{Type: wire.TypeTGSReq, IDv: "mailsvc", TicketTGS: tgtEnv, Authenticator: authEnv}))

	var rep wire.Err
	require.NoError(t, frame.Recv(conn, &rep))
	assert.Equal(t, wire.TypeErr, rep.Type)
	assert.Contains(t, rep.Reason, "ticket_expired")
}

func TestTGSReqIdentityMismatch(t *testing.T) {
	s, _, tgsKey := newTestServer(t, 0)
	startServer(t, s)

	tgt, sessionKey := mintTestTGT(t, "alice", "127.0.0.1", 0, 10)
	tgtEnv, err := ticket.SealTGT(tgt, tgsKey)
	require.NoError(t, err)
	authEnv, err := ticket.SealAuthenticator(ticket.Authenticator{IDc: "mallory", ADc: "127.0.0.1", TS: 0}, sessionKey)
	require.NoError(t, err)

	conn, err := net.Dial("tcp", s.TGSAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, frame.Send(conn, wire.TGSReq{Type: wire.TypeTGSReq, IDv: "mailsvc", TicketTGS: tgtEnv, Authenticator: authEnv}))

	var rep wire.Err
	require.NoError(t, frame.Recv(conn, &rep))
	assert.Contains(t, rep.Reason, "identity_mismatch")
}

func TestTGSReqUnknownService(t *testing.T) {
	s, _, tgsKey := newTestServer(t, 0)
	startServer(t, s)

	tgt, sessionKey := mintTestTGT(t, "alice", "127.0.0.1", 0, 10)
	tgtEnv, err := ticket.SealTGT(tgt, tgsKey)
	require.NoError(t, err)
	authEnv, err := ticket.SealAuthenticator(ticket.Authenticator{IDc: "alice", ADc: "127.0.0.1", TS: 0}, sessionKey)
	require.NoError(t, err)

	conn, err := net.Dial("tcp", s.TGSAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, frame.Send(conn, wire.TGSReq{Type: wire.TypeTGSReq, IDv: "nosuch", TicketTGS: tgtEnv, Authenticator: authEnv}))

	var rep wire.Err
	require.NoError(t, frame.Recv(conn, &rep))
	assert.Contains(t, rep.Reason, "unknown_principal")
}
