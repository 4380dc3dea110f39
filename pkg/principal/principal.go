// Package principal implements the principal database: the durable record
// of every client, application server and ticket-granting service this
// system knows about, along with the long-term secret each authenticates
// with. The store is read-mostly: request handlers only ever look records
// up; writes happen through the offline kadmin tool.
package principal

import (
	"github.com/kerb4/kerb4/internal/krbcrypto"
)

// Kind distinguishes the three principal roles this system recognizes.
type Kind int

const (
	KindClient Kind = iota
	KindService
	KindTGS
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindService:
		return "service"
	case KindTGS:
		return "tgs"
	default:
		return "unknown"
	}
}

// Principal is one row of the principal database. Every principal has a
// long-term secret it authenticates with; the AS, TGS and application
// servers derive a usable encryption Key from that secret on demand via
// StringToKey, salted with the principal's primary name (the identifier
// carried on the wire), rather than storing raw key bytes at rest.
type Principal struct {
	Name Name
	Kind Kind

	// Secret is the shared password this principal's long-term key is
	// derived from. Never transmitted; only ever used locally to derive a
	// Key via krbcrypto.StringToKey.
	Secret string

	// Address is the host:port an application server or TGS listens on.
	// Unused for client principals.
	Address string

	// DefaultTGTLifetimeMinutes and DefaultSTLifetimeMinutes are the
	// lifetimes a TGS principal stamps onto the ticket-granting tickets and
	// service tickets it issues. Unused for client and service principals.
	DefaultTGTLifetimeMinutes int
	DefaultSTLifetimeMinutes  int
}

// Name is a "name@realm"-shaped principal identifier. Cross-realm operation
// is out of scope, so Realm is carried for display and logging but every
// lookup in this system implicitly operates within a single configured
// realm.
type Name struct {
	Primary string
	Realm   string
}

func (n Name) String() string {
	if n.Realm == "" {
		return n.Primary
	}
	return n.Primary + "@" + n.Realm
}

// Key derives this principal's long-term key for the given enctype. The
// salt is the primary name alone, never the realm-qualified form, so a
// client that only knows its own IDc derives the same key the KDC does.
func (p Principal) Key(etypeID int32) (krbcrypto.Key, error) {
	return krbcrypto.StringToKey(p.Secret, p.Name.Primary, etypeID)
}
