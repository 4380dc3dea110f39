// Package appserver implements the application server (V): it validates a
// service ticket and its accompanying authenticator, decrypts the client's
// application payload, and replies with an authenticator-bound
// acknowledgement.
package appserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kerb4/kerb4/internal/epoch"
	"github.com/kerb4/kerb4/internal/krbcrypto"
	"github.com/kerb4/kerb4/internal/logger"
	"github.com/kerb4/kerb4/internal/netsrv"
	"github.com/kerb4/kerb4/internal/protocol/frame"
	"github.com/kerb4/kerb4/internal/protocol/wire"
	"github.com/kerb4/kerb4/pkg/metrics"
	"github.com/kerb4/kerb4/pkg/ticket"
)

// Server runs the application server listener for one service principal.
type Server struct {
	idv   string
	key   krbcrypto.Key
	clock epoch.Clock
	etype int32

	srv *netsrv.Server

	metrics *metrics.Requests
}

// SetMetrics attaches a request-metrics recorder; every APP_REQ handled
// after this call is observed under message type APP_REQ.
func (s *Server) SetMetrics(m *metrics.Requests) {
	s.metrics = m
}

// New builds an application server for the service identified by idv,
// authenticating tickets sealed under key.
func New(addr, idv string, key krbcrypto.Key, clock epoch.Clock, etypeID int32) *Server {
	s := &Server{idv: idv, key: key, clock: clock, etype: etypeID}
	s.srv = netsrv.New(addr, s.handle)
	return s
}

// Serve blocks accepting APP_REQ connections.
func (s *Server) Serve() error { return s.srv.Serve() }

// Stop closes the listener.
func (s *Server) Stop() error { return s.srv.Stop() }

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr { return s.srv.Addr() }

func sendErr(conn net.Conn, reason string) {
	_ = frame.Send(conn, wire.Err{Type: wire.TypeErr, Reason: reason})
}

func peerHost(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	start := time.Now()
	ctx := logger.WithContext(context.Background(), logger.NewLogContext(conn.RemoteAddr().String()).WithMessageType(wire.TypeAppReq))

	msg, err := wire.ReadRequest(conn)
	if err != nil {
		logger.WarnCtx(ctx, "failed to read APP_REQ", logger.Err(err))
		sendErr(conn, "bad_type")
		s.observe(start, err)
		return
	}
	req, ok := msg.(wire.AppReq)
	if !ok {
		sendErr(conn, "bad_type")
		s.observe(start, fmt.Errorf("bad_type"))
		return
	}

	err = s.processAppReq(conn, req)
	if err != nil {
		logger.WarnCtx(ctx, "APP_REQ rejected", logger.Err(err))
		sendErr(conn, err.Error())
	}
	s.observe(start, err)
}

func (s *Server) observe(start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.Observe(wire.TypeAppReq, start, err)
	}
}

func (s *Server) processAppReq(conn net.Conn, req wire.AppReq) error {
	st, err := ticket.OpenServiceTicket(req.TicketV, s.key)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if err := ticket.CheckFresh(st.TS, st.Lifetime, now); err != nil {
		return err
	}

	sessionKey, err := ticket.DeriveSessionKey(st.SessionKey, s.etype)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}

	auth, err := ticket.OpenAuthenticator(req.Authenticator, sessionKey)
	if err != nil {
		return err
	}
	if err := ticket.CheckAuthenticator(auth, st.IDc, st.ADc, st.TS, now); err != nil {
		return err
	}
	if err := ticket.CheckPeerAddress(st.ADc, peerHost(conn)); err != nil {
		return err
	}

	payload, err := ticket.OpenAppPayload(req.Message, sessionKey)
	if err != nil {
		return err
	}

	logger.Info("application message received", logger.IDc(st.IDc), logger.IDv(s.idv), logger.Fmt("message", "%s", payload.Message))

	reply := ticket.AppReplyEnvelope{
		Ack: fmt.Sprintf("Hello %s, message received by %s.", st.IDc, s.idv),
		TS:  auth.TS + 1,
	}
	replyEnv, err := ticket.SealAppReply(reply, sessionKey)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}

	return frame.Send(conn, wire.AppRep{Type: wire.TypeAppRep, Data: replyEnv})
}
