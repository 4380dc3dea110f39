package principal

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations.
var (
	ErrUnknownPrincipal   = errors.New("unknown principal")
	ErrDuplicatePrincipal = errors.New("principal already exists")
	ErrWrongKind          = errors.New("principal exists with a different kind")
)

// Store is the narrow interface every component in this system uses to
// look up principals. Implementations must be safe for concurrent use:
// AS_REQ, TGS_REQ and APP_REQ handlers run one per connection and all read
// the same store.
type Store interface {
	// GetClient returns the client principal named name.
	GetClient(ctx context.Context, name string) (Principal, error)

	// GetService returns the application server principal named name.
	GetService(ctx context.Context, name string) (Principal, error)

	// GetTGS returns the ticket-granting service principal named name.
	GetTGS(ctx context.Context, name string) (Principal, error)

	// Put inserts or replaces a principal record. Used by the offline
	// setup tool (kadmin), not by the AS/TGS/V request path.
	Put(ctx context.Context, p Principal) error

	// List returns every principal of the given kind, for kadmin listings.
	List(ctx context.Context, kind Kind) ([]Principal, error)
}
