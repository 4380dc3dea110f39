// Package wire defines the message shapes exchanged over the framed
// transport (internal/protocol/frame): AS_REQ/AS_REP, TGS_REQ/TGS_REP,
// APP_REQ/APP_REP, and the shared ERR reply. Every message carries a "type"
// field a handler inspects before decoding the rest of the body.
package wire

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/kerb4/kerb4/internal/krbcrypto"
	"github.com/kerb4/kerb4/internal/protocol/frame"
)

// Message type discriminators, carried in every frame's "type" field.
const (
	TypeASReq  = "AS_REQ"
	TypeASRep  = "AS_REP"
	TypeTGSReq = "TGS_REQ"
	TypeTGSRep = "TGS_REP"
	TypeAppReq = "APP_REQ"
	TypeAppRep = "APP_REP"
	TypeErr    = "ERR"
)

// ASReq is a client's request for a ticket-granting ticket.
type ASReq struct {
	Type  string `json:"type"`
	IDc   string `json:"idc"`
	IDtgs string `json:"idtgs"`
	TS1   int64  `json:"ts1"`
	Nonce uint32 `json:"nonce"`
}

// ASRep carries the sealed AS reply envelope (sealed under K_c).
type ASRep struct {
	Type string             `json:"type"`
	Data krbcrypto.Envelope `json:"data"`
}

// TGSReq is a client's request for a service ticket, carrying its TGT and a
// freshly sealed authenticator.
type TGSReq struct {
	Type          string             `json:"type"`
	IDv           string             `json:"idv"`
	TicketTGS     krbcrypto.Envelope `json:"ticket_tgs"`
	Authenticator krbcrypto.Envelope `json:"authenticator"`
}

// TGSRep carries the sealed TGS reply envelope (sealed under K_c,tgs).
type TGSRep struct {
	Type string             `json:"type"`
	Data krbcrypto.Envelope `json:"data"`
}

// AppReq is a client's application request, carrying its service ticket, a
// freshly sealed authenticator, and the sealed application message.
type AppReq struct {
	Type          string             `json:"type"`
	TicketV       krbcrypto.Envelope `json:"ticket_v"`
	Authenticator krbcrypto.Envelope `json:"authenticator"`
	Message       krbcrypto.Envelope `json:"message"`
}

// AppRep carries the sealed application reply envelope (sealed under
// K_c,v).
type AppRep struct {
	Type string             `json:"type"`
	Data krbcrypto.Envelope `json:"data"`
}

// Err is the shared failure reply every server sends instead of a normal
// reply when it cannot honor a request.
type Err struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// typeOnly is decoded first from a raw frame body to discover which
// concrete message shape to decode the body into.
type typeOnly struct {
	Type string `json:"type"`
}

// ReadRequest reads one frame from r and decodes it into one of ASReq,
// TGSReq or AppReq depending on its type field. The returned value's
// concrete type matches the "type" discriminator; an unrecognized type
// yields an error rather than any of the three.
func ReadRequest(r io.Reader) (any, error) {
	body, err := frame.RecvRaw(r)
	if err != nil {
		return nil, err
	}
	return decodeRequest(body)
}

func decodeRequest(body []byte) (any, error) {
	var t typeOnly
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("decode message type: %w", err)
	}

	switch t.Type {
	case TypeASReq:
		var msg ASReq
		if err := json.Unmarshal(body, &msg); err != nil {
			return nil, fmt.Errorf("decode AS_REQ: %w", err)
		}
		return msg, nil
	case TypeTGSReq:
		var msg TGSReq
		if err := json.Unmarshal(body, &msg); err != nil {
			return nil, fmt.Errorf("decode TGS_REQ: %w", err)
		}
		return msg, nil
	case TypeAppReq:
		var msg AppReq
		if err := json.Unmarshal(body, &msg); err != nil {
			return nil, fmt.Errorf("decode APP_REQ: %w", err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("bad_type: unrecognized message type %q", t.Type)
	}
}
