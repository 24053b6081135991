package connect

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/talentchain/go-walletd/lib/types"
)

// Connector is the full capability set one wallet backend must provide.
// Each backend implements every method so the session manager never branches
// on backend identity outside of registry selection.
type Connector interface {
	Type() types.BackendType

	// Available reports whether the backend is present/reachable at all.
	Available(ctx context.Context) bool

	// Connect performs the interactive handshake. On success the returned
	// session is fully populated, including a live signer. Failures map onto
	// the types error taxonomy.
	Connect(ctx context.Context) (*types.Session, error)

	// Restore rehydrates a session from a persisted record without any
	// permission prompt. types.ErrNotRestorable is the normal negative
	// result, not a fault.
	Restore(ctx context.Context, rec *types.SessionRecord) (*types.Session, error)

	// Disconnect tears down backend-side session state. Backends without an
	// explicit disconnect primitive treat this as a no-op.
	Disconnect(ctx context.Context) error

	// Accounts reports the already-authorized accounts without prompting.
	// rec, when non-nil, identifies a saved session the backend may need to
	// locate its authorization (e.g. a relay pairing topic). Never triggers
	// a dialog.
	Accounts(ctx context.Context, rec *types.SessionRecord) ([]string, error)

	// Balance is a lightweight native-currency read for account.
	Balance(ctx context.Context, account string) (string, error)

	// Events is the backend-originated notification stream. The channel is
	// closed when the connector is closed.
	Events() <-chan types.BackendEvent

	// Close releases transports and listener registrations.
	Close() error
}

// Metadata describes the connecting application. Relay backends present it
// to the wallet during pairing so the user knows what they approve.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Icon        string `json:"icon"`
}

// Registry selects a connector by backend type.
type Registry struct {
	conns map[types.BackendType]Connector
}

func NewRegistry(conns ...Connector) *Registry {
	r := &Registry{conns: make(map[types.BackendType]Connector, len(conns))}
	for _, c := range conns {
		r.conns[c.Type()] = c
	}
	return r
}

func (r *Registry) Get(bt types.BackendType) (Connector, error) {
	c, ok := r.conns[bt]
	if !ok {
		return nil, xerrors.Errorf("backend %s: %w", bt, types.ErrWalletUnavailable)
	}
	return c, nil
}

// Close closes every registered connector.
func (r *Registry) Close() error {
	var firstErr error
	for _, c := range r.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
