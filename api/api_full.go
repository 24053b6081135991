package api

import (
	"context"
	"encoding/json"

	"github.com/filecoin-project/go-jsonrpc/auth"

	"github.com/talentchain/go-walletd/lib/types"
)

type WalletNode interface {
	ICommon
	IAuth
	IConfig
	ISession
}

// daemon lifecycle
type ICommon interface {
	// Shutdown asks the daemon to exit cleanly.
	Shutdown(context.Context) error
}

// json api auth and verify
type IAuth interface {
	AuthVerify(context.Context, string) ([]auth.Permission, error)
	AuthNew(context.Context, []auth.Permission) ([]byte, error)
}

// config
type IConfig interface {
	ConfigSet(context.Context, string, string) error
	ConfigGet(context.Context, string) (interface{}, error)
}

// wallet session ops
type ISession interface {
	// Connect runs the interactive handshake against one backend.
	Connect(context.Context, types.BackendType) (*types.SessionRecord, error)
	Disconnect(context.Context) error

	ConnectionInfo(context.Context) (*ConnectionInfo, error)
	IsConnected(context.Context) (bool, error)

	Balance(context.Context) (string, error)
	SignMessage(context.Context, []byte) ([]byte, error)
	SendTransaction(context.Context, *types.TxRequest) (string, error)

	CheckHealth(context.Context) (bool, error)
	CanRestore(context.Context) (bool, error)
	ResetConnection(context.Context) error

	// SessionEvents streams lifecycle events until ctx is done.
	SessionEvents(context.Context) (<-chan SessionEvent, error)
}

// ConnectionInfo is the wire form of the manager state: the session record
// (signing handles never cross the RPC boundary) plus the state name.
type ConnectionInfo struct {
	State   string               `json:"state"`
	Session *types.SessionRecord `json:"session,omitempty"`
}

// SessionEvent is one lifecycle notification on the event stream.
type SessionEvent struct {
	Type    types.EventType `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
