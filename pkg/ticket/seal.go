package ticket

import (
	"fmt"

	"github.com/kerb4/kerb4/internal/krbcrypto"
)

// SealTGT seals t under the TGS's long-term key.
func SealTGT(t TGT, kTGS krbcrypto.Key) (krbcrypto.Envelope, error) {
	env, err := krbcrypto.Seal(t, kTGS, krbcrypto.UsageTicket)
	if err != nil {
		return krbcrypto.Envelope{}, fmt.Errorf("seal TGT: %w", err)
	}
	return env, nil
}

// OpenTGT opens an envelope sealed by SealTGT. Any failure (wrong key,
// wrong usage, tampered ciphertext) is reported as ErrDecryptFailure.
func OpenTGT(env krbcrypto.Envelope, kTGS krbcrypto.Key) (TGT, error) {
	var t TGT
	if err := krbcrypto.Open(env, kTGS, krbcrypto.UsageTicket, &t); err != nil {
		return TGT{}, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}
	return t, nil
}

// SealServiceTicket seals st under the application server's long-term key.
func SealServiceTicket(st ServiceTicket, kV krbcrypto.Key) (krbcrypto.Envelope, error) {
	env, err := krbcrypto.Seal(st, kV, krbcrypto.UsageTicket)
	if err != nil {
		return krbcrypto.Envelope{}, fmt.Errorf("seal service ticket: %w", err)
	}
	return env, nil
}

// OpenServiceTicket opens an envelope sealed by SealServiceTicket.
func OpenServiceTicket(env krbcrypto.Envelope, kV krbcrypto.Key) (ServiceTicket, error) {
	var st ServiceTicket
	if err := krbcrypto.Open(env, kV, krbcrypto.UsageTicket, &st); err != nil {
		return ServiceTicket{}, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}
	return st, nil
}

// SealAuthenticator seals a under the session key it proves possession of.
func SealAuthenticator(a Authenticator, sessionKey krbcrypto.Key) (krbcrypto.Envelope, error) {
	env, err := krbcrypto.Seal(a, sessionKey, krbcrypto.UsageAuthenticator)
	if err != nil {
		return krbcrypto.Envelope{}, fmt.Errorf("seal authenticator: %w", err)
	}
	return env, nil
}

// OpenAuthenticator opens an envelope sealed by SealAuthenticator.
func OpenAuthenticator(env krbcrypto.Envelope, sessionKey krbcrypto.Key) (Authenticator, error) {
	var a Authenticator
	if err := krbcrypto.Open(env, sessionKey, krbcrypto.UsageAuthenticator, &a); err != nil {
		return Authenticator{}, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}
	return a, nil
}

// SealASReply seals env under the client's long-term key, the final step of
// handling an AS_REQ.
func SealASReply(env ASReplyEnvelope, kC krbcrypto.Key) (krbcrypto.Envelope, error) {
	out, err := krbcrypto.Seal(env, kC, krbcrypto.UsageASReply)
	if err != nil {
		return krbcrypto.Envelope{}, fmt.Errorf("seal AS reply: %w", err)
	}
	return out, nil
}

// OpenASReply opens an envelope sealed by SealASReply. A client supplying
// the wrong password derives the wrong K_c and this fails as
// ErrDecryptFailure, exactly as the wrong-password scenario requires.
func OpenASReply(env krbcrypto.Envelope, kC krbcrypto.Key) (ASReplyEnvelope, error) {
	var out ASReplyEnvelope
	if err := krbcrypto.Open(env, kC, krbcrypto.UsageASReply, &out); err != nil {
		return ASReplyEnvelope{}, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}
	return out, nil
}

// SealTGSReply seals env under K_c,tgs, the final step of handling a
// TGS_REQ.
func SealTGSReply(env TGSReplyEnvelope, kCTGS krbcrypto.Key) (krbcrypto.Envelope, error) {
	out, err := krbcrypto.Seal(env, kCTGS, krbcrypto.UsageTGSReply)
	if err != nil {
		return krbcrypto.Envelope{}, fmt.Errorf("seal TGS reply: %w", err)
	}
	return out, nil
}

// OpenTGSReply opens an envelope sealed by SealTGSReply.
func OpenTGSReply(env krbcrypto.Envelope, kCTGS krbcrypto.Key) (TGSReplyEnvelope, error) {
	var out TGSReplyEnvelope
	if err := krbcrypto.Open(env, kCTGS, krbcrypto.UsageTGSReply, &out); err != nil {
		return TGSReplyEnvelope{}, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}
	return out, nil
}

// SealAppPayload seals the client's application message under K_c,v.
func SealAppPayload(p AppPayload, kCV krbcrypto.Key) (krbcrypto.Envelope, error) {
	out, err := krbcrypto.Seal(p, kCV, krbcrypto.UsageAppPayload)
	if err != nil {
		return krbcrypto.Envelope{}, fmt.Errorf("seal application payload: %w", err)
	}
	return out, nil
}

// OpenAppPayload opens an envelope sealed by SealAppPayload.
func OpenAppPayload(env krbcrypto.Envelope, kCV krbcrypto.Key) (AppPayload, error) {
	var p AppPayload
	if err := krbcrypto.Open(env, kCV, krbcrypto.UsageAppPayload, &p); err != nil {
		return AppPayload{}, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}
	return p, nil
}

// SealAppReply seals env under K_c,v, the final step of handling an
// APP_REQ.
func SealAppReply(env AppReplyEnvelope, kCV krbcrypto.Key) (krbcrypto.Envelope, error) {
	out, err := krbcrypto.Seal(env, kCV, krbcrypto.UsageAppReply)
	if err != nil {
		return krbcrypto.Envelope{}, fmt.Errorf("seal application reply: %w", err)
	}
	return out, nil
}

// OpenAppReply opens an envelope sealed by SealAppReply and lets the client
// verify the server: a genuine V knows K_c,v and returns TS5+1, which the
// caller is expected to check against the TS5 it sent.
func OpenAppReply(env krbcrypto.Envelope, kCV krbcrypto.Key) (AppReplyEnvelope, error) {
	var out AppReplyEnvelope
	if err := krbcrypto.Open(env, kCV, krbcrypto.UsageAppReply, &out); err != nil {
		return AppReplyEnvelope{}, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}
	return out, nil
}
