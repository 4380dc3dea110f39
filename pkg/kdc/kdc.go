// Package kdc implements the Authentication Server (AS) and Ticket-Granting
// Server (TGS), run together in one process. Each listens on its own TCP
// address via internal/netsrv; both consult the same principal database and
// share a TGS record (IDtgs, K_tgs).
package kdc

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
	"github.com/kerb4/kerb4/pkg/principal"
	"github.com/kerb4/kerb4/pkg/ticket"
)

// TGSRecord is the AS/TGS-only view of the ticket-granting service: its
// identity and the shared key both listeners seal and open TGTs with. The
// default lifetimes it grants live on the principal-database record and are
// read through the store on every request, so the offline setup tool can
// change them without restarting the KDC.
type TGSRecord struct {
	IDtgs string
	Key   krbcrypto.Key
}

// Server runs the AS and TGS listeners.
type Server struct {
	store principal.Store
	clock epoch.Clock
	tgs   TGSRecord
	etype int32

	as   *netsrv.Server
	tgs2 *netsrv.Server

	metrics *metrics.Requests
}

// SetMetrics attaches a request-metrics recorder; every AS_REQ and TGS_REQ
// handled after this call is observed under message types AS_REQ/TGS_REQ.
// A server that never gets one simply skips recording.
func (s *Server) SetMetrics(m *metrics.Requests) {
	s.metrics = m
}

// New builds a KDC server. asAddr and tgsAddr are the TCP addresses AS_REQ
// and TGS_REQ are served on respectively. etypeID selects the enctype every
// seal/open call in this server uses.
func New(asAddr, tgsAddr string, store principal.Store, clock epoch.Clock, tgs TGSRecord, etypeID int32) *Server {
	s := &Server{store: store, clock: clock, tgs: tgs, etype: etypeID}
	s.as = netsrv.New(asAddr, s.handleAS)
	s.tgs2 = netsrv.New(tgsAddr, s.handleTGS)
	return s
}

// ServeAS blocks serving AS_REQ on the AS listener.
func (s *Server) ServeAS() error { return s.as.Serve() }

// ServeTGS blocks serving TGS_REQ on the TGS listener.
func (s *Server) ServeTGS() error { return s.tgs2.Serve() }

// Stop closes both listeners.
func (s *Server) Stop() error {
	errAS := s.as.Stop()
	errTGS := s.tgs2.Stop()
	if errAS != nil {
		return errAS
	}
	return errTGS
}

// ASAddr returns the AS listener's bound address.
func (s *Server) ASAddr() net.Addr { return s.as.Addr() }

// TGSAddr returns the TGS listener's bound address.
func (s *Server) TGSAddr() net.Addr { return s.tgs2.Addr() }

func sendErr(conn net.Conn, reason string) {
	_ = frame.Send(conn, wire.Err{Type: wire.TypeErr, Reason: reason})
}

// peerHost extracts just the IP portion of a connection's remote address.
// ADc binds to the client's host, not the ephemeral source port a fresh
// TCP connection picks each time it reconnects to a different server.
func peerHost(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

func (s *Server) handleAS(conn net.Conn) {
	defer conn.Close()
	start := time.Now()
	ctx := logger.WithContext(context.Background(), logger.NewLogContext(conn.RemoteAddr().String()).WithMessageType(wire.TypeASReq))

	msg, err := wire.ReadRequest(conn)
	if err != nil {
		logger.WarnCtx(ctx, "failed to read AS_REQ", logger.Err(err))
		sendErr(conn, "bad_type")
		s.observe(wire.TypeASReq, start, err)
		return
	}
	req, ok := msg.(wire.ASReq)
	if !ok {
		sendErr(conn, "bad_type")
		s.observe(wire.TypeASReq, start, fmt.Errorf("bad_type"))
		return
	}
	ctx = logger.WithContext(ctx, logger.FromContext(ctx).WithIDc(req.IDc))

	err = s.processASReq(ctx, conn, req)
	if err != nil {
		logger.WarnCtx(ctx, "AS_REQ rejected", logger.Err(err))
		sendErr(conn, err.Error())
	}
	s.observe(wire.TypeASReq, start, err)
}

func (s *Server) observe(messageType string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.Observe(messageType, start, err)
	}
}

func (s *Server) processASReq(ctx context.Context, conn net.Conn, req wire.ASReq) error {
	client, err := s.store.GetClient(ctx, req.IDc)
	if err != nil {
		return fmt.Errorf("unknown_principal: %w", err)
	}
	if req.IDtgs != s.tgs.IDtgs {
		return fmt.Errorf("unknown_principal: no such TGS %q", req.IDtgs)
	}
	tgsRec, err := s.store.GetTGS(ctx, s.tgs.IDtgs)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}
	lifetime := int64(tgsRec.DefaultTGTLifetimeMinutes)

	now := s.clock.Now()
	adc := peerHost(conn)

	sessionKeyName, err := ticket.NewSessionKeyName(ticket.KindClientTGS, req.IDc, "", now)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}

	tgt := ticket.TGT{
		SessionKey: sessionKeyName,
		IDc:        req.IDc,
		ADc:        adc,
		IDtgs:      s.tgs.IDtgs,
		TS:         now,
		Lifetime:   lifetime,
	}
	tgtEnv, err := ticket.SealTGT(tgt, s.tgs.Key)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}

	clientKey, err := client.Key(s.etype)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}

	reply := ticket.ASReplyEnvelope{
		SessionKey: sessionKeyName,
		IDtgs:      s.tgs.IDtgs,
		TS:         now,
		Lifetime:   lifetime,
		TGT:        tgtEnv,
		Nonce:      req.Nonce,
	}
	replyEnv, err := ticket.SealASReply(reply, clientKey)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}

	return frame.Send(conn, wire.ASRep{Type: wire.TypeASRep, Data: replyEnv})
}

func (s *Server) handleTGS(conn net.Conn) {
	defer conn.Close()
	start := time.Now()
	ctx := logger.WithContext(context.Background(), logger.NewLogContext(conn.RemoteAddr().String()).WithMessageType(wire.TypeTGSReq))

	msg, err := wire.ReadRequest(conn)
	if err != nil {
		logger.WarnCtx(ctx, "failed to read TGS_REQ", logger.Err(err))
		sendErr(conn, "bad_type")
		s.observe(wire.TypeTGSReq, start, err)
		return
	}
	req, ok := msg.(wire.TGSReq)
	if !ok {
		sendErr(conn, "bad_type")
		s.observe(wire.TypeTGSReq, start, fmt.Errorf("bad_type"))
		return
	}

	err = s.processTGSReq(ctx, conn, req)
	if err != nil {
		logger.WarnCtx(ctx, "TGS_REQ rejected", logger.Err(err))
		sendErr(conn, err.Error())
	}
	s.observe(wire.TypeTGSReq, start, err)
}

func (s *Server) processTGSReq(ctx context.Context, conn net.Conn, req wire.TGSReq) error {
	tgt, err := ticket.OpenTGT(req.TicketTGS, s.tgs.Key)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if err := ticket.CheckFresh(tgt.TS, tgt.Lifetime, now); err != nil {
		return err
	}

	sessionKey, err := ticket.DeriveSessionKey(tgt.SessionKey, s.etype)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}

	auth, err := ticket.OpenAuthenticator(req.Authenticator, sessionKey)
	if err != nil {
		return err
	}
	if err := ticket.CheckAuthenticator(auth, tgt.IDc, tgt.ADc, tgt.TS, now); err != nil {
		return err
	}
	if err := ticket.CheckPeerAddress(tgt.ADc, peerHost(conn)); err != nil {
		return err
	}

	service, err := s.store.GetService(ctx, req.IDv)
	if err != nil {
		return fmt.Errorf("unknown_principal: %w", err)
	}
	tgsRec, err := s.store.GetTGS(ctx, s.tgs.IDtgs)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}
	lifetime := int64(tgsRec.DefaultSTLifetimeMinutes)

	sessionKeyName, err := ticket.NewSessionKeyName(ticket.KindClientV, tgt.IDc, req.IDv, now)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}

	st := ticket.ServiceTicket{
		SessionKey: sessionKeyName,
		IDc:        tgt.IDc,
		ADc:        tgt.ADc,
		IDv:        req.IDv,
		TS:         now,
		Lifetime:   lifetime,
	}
	serviceKey, err := service.Key(s.etype)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}
	stEnv, err := ticket.SealServiceTicket(st, serviceKey)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}

	reply := ticket.TGSReplyEnvelope{
		SessionKey: sessionKeyName,
		IDv:        req.IDv,
		TS:         now,
		Lifetime:   lifetime,
		ST:         stEnv,
	}
	replyEnv, err := ticket.SealTGSReply(reply, sessionKey)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}

	return frame.Send(conn, wire.TGSRep{Type: wire.TypeTGSRep, Data: replyEnv})
}
