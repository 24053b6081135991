package api

import (
	"context"

	"github.com/filecoin-project/go-jsonrpc/auth"

	"github.com/talentchain/go-walletd/lib/types"
	wauth "github.com/talentchain/go-walletd/submodule/auth"
)

// WalletNodeStruct is the permission-tagged RPC proxy for WalletNode.
type WalletNodeStruct struct {
	Internal struct {
		Shutdown func(context.Context) error `perm:"admin"`

		AuthVerify func(ctx context.Context, token string) ([]auth.Permission, error) `perm:"read"`
		AuthNew    func(ctx context.Context, perms []auth.Permission) ([]byte, error) `perm:"admin"`

		ConfigSet func(context.Context, string, string) error        `perm:"admin"`
		ConfigGet func(context.Context, string) (interface{}, error) `perm:"read"`

		Connect    func(context.Context, types.BackendType) (*types.SessionRecord, error) `perm:"write"`
		Disconnect func(context.Context) error                                            `perm:"write"`

		ConnectionInfo func(context.Context) (*ConnectionInfo, error) `perm:"read"`
		IsConnected    func(context.Context) (bool, error)            `perm:"read"`

		Balance         func(context.Context) (string, error)                          `perm:"read"`
		SignMessage     func(context.Context, []byte) ([]byte, error)                  `perm:"sign"`
		SendTransaction func(context.Context, *types.TxRequest) (string, error)        `perm:"sign"`
		CheckHealth     func(context.Context) (bool, error)                            `perm:"read"`
		CanRestore      func(context.Context) (bool, error)                            `perm:"read"`
		ResetConnection func(context.Context) error                                    `perm:"admin"`
		SessionEvents   func(ctx context.Context) (<-chan SessionEvent, error)         `perm:"read"`
	}
}

var _ WalletNode = (*WalletNodeStruct)(nil)

func (s *WalletNodeStruct) Shutdown(ctx context.Context) error {
	return s.Internal.Shutdown(ctx)
}

func (s *WalletNodeStruct) AuthVerify(ctx context.Context, token string) ([]auth.Permission, error) {
	return s.Internal.AuthVerify(ctx, token)
}

func (s *WalletNodeStruct) AuthNew(ctx context.Context, perms []auth.Permission) ([]byte, error) {
	return s.Internal.AuthNew(ctx, perms)
}

func (s *WalletNodeStruct) ConfigSet(ctx context.Context, key, val string) error {
	return s.Internal.ConfigSet(ctx, key, val)
}

func (s *WalletNodeStruct) ConfigGet(ctx context.Context, key string) (interface{}, error) {
	return s.Internal.ConfigGet(ctx, key)
}

func (s *WalletNodeStruct) Connect(ctx context.Context, bt types.BackendType) (*types.SessionRecord, error) {
	return s.Internal.Connect(ctx, bt)
}

func (s *WalletNodeStruct) Disconnect(ctx context.Context) error {
	return s.Internal.Disconnect(ctx)
}

func (s *WalletNodeStruct) ConnectionInfo(ctx context.Context) (*ConnectionInfo, error) {
	return s.Internal.ConnectionInfo(ctx)
}

func (s *WalletNodeStruct) IsConnected(ctx context.Context) (bool, error) {
	return s.Internal.IsConnected(ctx)
}

func (s *WalletNodeStruct) Balance(ctx context.Context) (string, error) {
	return s.Internal.Balance(ctx)
}

func (s *WalletNodeStruct) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	return s.Internal.SignMessage(ctx, msg)
}

func (s *WalletNodeStruct) SendTransaction(ctx context.Context, tx *types.TxRequest) (string, error) {
	return s.Internal.SendTransaction(ctx, tx)
}

func (s *WalletNodeStruct) CheckHealth(ctx context.Context) (bool, error) {
	return s.Internal.CheckHealth(ctx)
}

func (s *WalletNodeStruct) CanRestore(ctx context.Context) (bool, error) {
	return s.Internal.CanRestore(ctx)
}

func (s *WalletNodeStruct) ResetConnection(ctx context.Context) error {
	return s.Internal.ResetConnection(ctx)
}

func (s *WalletNodeStruct) SessionEvents(ctx context.Context) (<-chan SessionEvent, error) {
	return s.Internal.SessionEvents(ctx)
}

// GetInternalStructs lists the proxy targets for jsonrpc.NewMergeClient.
func GetInternalStructs(s *WalletNodeStruct) []interface{} {
	return []interface{}{&s.Internal}
}

// PermissionedWalletAPI wraps w so every RPC method enforces its perm tag.
func PermissionedWalletAPI(w WalletNode) WalletNode {
	var out WalletNodeStruct
	auth.PermissionedProxy(wauth.AllPermissions, []auth.Permission{wauth.PermRead}, w, &out.Internal)
	return &out
}
