package appserver

import (
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
	"github.com/kerb4/kerb4/pkg/ticket"
)

func startTestServer(t *testing.T, clock epoch.Clock, key krbcrypto.Key) *Server {
	t.Helper()
	s := New("127.0.0.1:0", "mailsvc", key, clock, krbcrypto.DefaultEType)

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()
	for i := 0; i < 100; i++ {
		if s.Addr() != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NotNil(t, s.Addr())

	t.Cleanup(func() {
		require.NoError(t, s.Stop())
		require.NoError(t, <-done)
	})
	return s
}

func mintServiceTicket(t *testing.T, key krbcrypto.Key, adc string, now int64) (ticket.ServiceTicket, krbcrypto.Key) {
	t.Helper()
	name, err := ticket.NewSessionKeyName(ticket.KindClientV, "alice", "mailsvc", now)
	require.NoError(t, err)
	sessionKey, err := ticket.DeriveSessionKey(name, krbcrypto.DefaultEType)
	require.NoError(t, err)

	return ticket.ServiceTicket{
		SessionKey: name,
		IDc:        "alice",
		ADc:        adc,
		IDv:        "mailsvc",
		TS:         now,
		Lifetime:   5,
	}, sessionKey
}

func TestAppReqHappyPath(t *testing.T) {
	key, err := krbcrypto.StringToKey("mailkey", "mailsvc", krbcrypto.DefaultEType)
	require.NoError(t, err)
	clock := epoch.NewClock(time.Now().Unix())
	s := startTestServer(t, clock, key)

	st, sessionKey := mintServiceTicket(t, key, "127.0.0.1", 0)
	stEnv, err := ticket.SealServiceTicket(st, key)
	require.NoError(t, err)

	authEnv, err := ticket.SealAuthenticator(ticket.Authenticator{IDc: "alice", ADc: "127.0.0.1", TS: 0}, sessionKey)
	require.NoError(t, err)
	msgEnv, err := ticket.SealAppPayload(ticket.AppPayload{Message: "hi", TS: 0}, sessionKey)
	require.NoError(t, err)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, frame.Send(conn, wire.AppReq{Type: wire.TypeAppReq, TicketV: stEnv, Authenticator: authEnv, Message: msgEnv}))

	var rep wire.AppRep
	require.NoError(t, frame.Recv(conn, &rep))

	reply, err := ticket.OpenAppReply(rep.Data, sessionKey)
	require.NoError(t, err)
	assert.Equal(t, "Hello alice, message received by mailsvc.", reply.Ack)
	assert.Equal(t, int64(1), reply.TS)
}

func TestAppReqExpiredTicket(t *testing.T) {
	key, err := krbcrypto.StringToKey("mailkey", "mailsvc", krbcrypto.DefaultEType)
	require.NoError(t, err)
	clock := epoch.NewClock(time.Now().Add(-11 * time.Minute).Unix())
	s := startTestServer(t, clock, key)

	st, sessionKey := mintServiceTicket(t, key, "127.0.0.1", 0)
	stEnv, err := ticket.SealServiceTicket(st, key)
	require.NoError(t, err)
	authEnv, err := ticket.SealAuthenticator(ticket.Authenticator{IDc: "alice", ADc: "127.0.0.1", TS: 0}, sessionKey)
	require.NoError(t, err)
	msgEnv, err := ticket.SealAppPayload(ticket.AppPayload{Message: "hi", TS: 0}, sessionKey)
	require.NoError(t, err)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, frame.Send(conn, wire.AppReq{Type: wire.TypeAppReq, TicketV: stEnv, Authenticator: authEnv, Message: msgEnv}))

	var rep wire.Err
	require.NoError(t, frame.Recv(conn, &rep))
	assert.Contains(t, rep.Reason, "ticket_expired")
}

func TestAppReqAddressMismatch(t *testing.T) {
	key, err := krbcrypto.StringToKey("mailkey", "mailsvc", krbcrypto.DefaultEType)
	require.NoError(t, err)
	clock := epoch.NewClock(time.Now().Unix())
	s := startTestServer(t, clock, key)

	st, sessionKey := mintServiceTicket(t, key, "10.0.0.9", 0)
	stEnv, err := ticket.SealServiceTicket(st, key)
	require.NoError(t, err)
	authEnv, err := ticket.SealAuthenticator(ticket.Authenticator{IDc: "alice", ADc: "10.0.0.9", TS: 0}, sessionKey)
	require.NoError(t, err)
	msgEnv, err := ticket.SealAppPayload(ticket.AppPayload{Message: "hi", TS: 0}, sessionKey)
	require.NoError(t, err)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, frame.Send(conn, wire.AppReq{Type: wire.TypeAppReq, TicketV: stEnv, Authenticator: authEnv, Message: msgEnv}))

	var rep wire.Err
	require.NoError(t, frame.Recv(conn, &rep))
	assert.Contains(t, rep.Reason, "address_mismatch")
}

func TestAppReqRecordsMetrics(t *testing.T) {
	key, err := krbcrypto.StringToKey("mailkey", "mailsvc", krbcrypto.DefaultEType)
	require.NoError(t, err)
	clock := epoch.NewClock(time.Now().Unix())

	s := New("127.0.0.1:0", "mailsvc", key, clock, krbcrypto.DefaultEType)
	reg := prometheus.NewRegistry()
	requests := metrics.NewRequests(reg)
	s.SetMetrics(requests)

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()
	for i := 0; i < 100; i++ {
		if s.Addr() != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NotNil(t, s.Addr())
	t.Cleanup(func() {
		require.NoError(t, s.Stop())
		require.NoError(t, <-done)
	})

	st, sessionKey := mintServiceTicket(t, key, "127.0.0.1", 0)
	stEnv, err := ticket.SealServiceTicket(st, key)
	require.NoError(t, err)
	authEnv, err := ticket.SealAuthenticator(ticket.Authenticator{IDc: "alice", ADc: "127.0.0.1", TS: 0}, sessionKey)
	require.NoError(t, err)
	msgEnv, err := ticket.SealAppPayload(ticket.AppPayload{Message: "hi", TS: 0}, sessionKey)
	require.NoError(t, err)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, frame.Send(conn, wire.AppReq{Type: wire.TypeAppReq, TicketV: stEnv, Authenticator: authEnv, Message: msgEnv}))

	var rep wire.AppRep
	require.NoError(t, frame.Recv(conn, &rep))

	assert.Equal(t, float64(1), testutil.ToFloat64(requests.TotalFor(wire.TypeAppReq, "ok")))
}
