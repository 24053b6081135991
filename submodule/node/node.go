package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/filecoin-project/go-jsonrpc/auth"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/pkg/errors"

	"github.com/talentchain/go-walletd/api"
	logging "github.com/talentchain/go-walletd/lib/log"
	"github.com/talentchain/go-walletd/lib/repo"
	"github.com/talentchain/go-walletd/lib/types"
	wauth "github.com/talentchain/go-walletd/submodule/auth"
	"github.com/talentchain/go-walletd/submodule/config"
	"github.com/talentchain/go-walletd/submodule/connect"
	"github.com/talentchain/go-walletd/submodule/connect/evm"
	"github.com/talentchain/go-walletd/submodule/connect/ledger"
	"github.com/talentchain/go-walletd/submodule/connect/mirror"
	"github.com/talentchain/go-walletd/submodule/connect/wcrelay"
	"github.com/talentchain/go-walletd/submodule/event"
	"github.com/talentchain/go-walletd/submodule/health"
	"github.com/talentchain/go-walletd/submodule/session"
	sstore "github.com/talentchain/go-walletd/submodule/store"
)

var logger = logging.Logger("node")

// WalletNode assembles the session manager, its adapters and the RPC
// surface over one repo.
type WalletNode struct {
	*wauth.JwtAuth
	*config.ConfigModule

	repo    repo.Repo
	reg     *connect.Registry
	bus     *event.Bus
	manager *session.Manager

	ShutdownChan chan struct{}
}

var _ api.WalletNode = (*WalletNode)(nil)

// New wires a WalletNode over r. All three backend adapters are registered;
// availability is probed lazily on use.
func New(ctx context.Context, r repo.Repo) (*WalletNode, error) {
	cfg := r.Config()

	ja, err := wauth.NewJwtAuth(r)
	if err != nil {
		return nil, errors.Wrap(err, "build jwt auth")
	}

	meta := connect.Metadata{
		Name:        cfg.App.Name,
		Description: cfg.App.Description,
		URL:         cfg.App.URL,
		Icon:        cfg.App.Icon,
	}
	mc := mirror.New(cfg.Chain.MirrorURL)

	reg := connect.NewRegistry(
		ledger.New(cfg.Backend.LedgerRelay, cfg.Chain.NetworkName, cfg.Chain.ChainID, meta, mc),
		evm.New(cfg.Backend.EvmEndpoint, cfg.Chain.NetworkName, cfg.Chain.ChainID),
		wcrelay.New(cfg.Backend.RelayURL, cfg.Backend.ProjectID, cfg.Chain.NetworkName, cfg.Chain.ChainID, meta, mc),
	)

	bus := event.NewBus()
	st := sstore.NewSessionStore(r.MetaStore())
	mgr := session.NewManager(reg, st, health.NewMonitor(), bus, cfg.Chain.NetworkName, cfg.Chain.ChainID)

	return &WalletNode{
		JwtAuth:      ja,
		ConfigModule: config.NewConfigModule(r),
		repo:         r,
		reg:          reg,
		bus:          bus,
		manager:      mgr,
		ShutdownChan: make(chan struct{}),
	}, nil
}

// Shutdown asks a running daemon to exit; RunRPCAndWait drains the channel.
func (n *WalletNode) Shutdown(ctx context.Context) error {
	n.ShutdownChan <- struct{}{}
	return nil
}

// Manager exposes the session manager for in-process embedding.
func (n *WalletNode) Manager() *session.Manager {
	return n.manager
}

// Start attempts the silent session restore.
func (n *WalletNode) Start(ctx context.Context) error {
	return n.manager.Start(ctx)
}

func (n *WalletNode) Stop(ctx context.Context) {
	if err := n.manager.Disconnect(ctx); err != nil {
		logger.Warnf("disconnect on shutdown: %s", err)
	}
	if err := n.reg.Close(); err != nil {
		logger.Warnf("close adapters: %s", err)
	}
	if err := n.repo.Close(); err != nil {
		fmt.Printf("error closing repo: %s\n", err)
	}

	fmt.Println("\nstopping walletd :(")
}

// ISession

func (n *WalletNode) Connect(ctx context.Context, bt types.BackendType) (*types.SessionRecord, error) {
	sess, err := n.manager.Connect(ctx, bt)
	if err != nil {
		return nil, err
	}
	return sess.Record(), nil
}

func (n *WalletNode) Disconnect(ctx context.Context) error {
	return n.manager.Disconnect(ctx)
}

func (n *WalletNode) ConnectionInfo(ctx context.Context) (*api.ConnectionInfo, error) {
	info := &api.ConnectionInfo{
		State: n.manager.CurrentState().String(),
	}
	if sess := n.manager.Current(); sess != nil {
		info.Session = sess.Record()
	}
	return info, nil
}

func (n *WalletNode) IsConnected(ctx context.Context) (bool, error) {
	return n.manager.IsConnected(), nil
}

func (n *WalletNode) Balance(ctx context.Context) (string, error) {
	return n.manager.Balance(ctx)
}

func (n *WalletNode) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	return n.manager.SignMessage(ctx, msg)
}

func (n *WalletNode) SendTransaction(ctx context.Context, tx *types.TxRequest) (string, error) {
	return n.manager.SendTransaction(ctx, tx)
}

func (n *WalletNode) CheckHealth(ctx context.Context) (bool, error) {
	return n.manager.CheckHealth(ctx), nil
}

func (n *WalletNode) CanRestore(ctx context.Context) (bool, error) {
	return n.manager.CanRestore(ctx), nil
}

func (n *WalletNode) ResetConnection(ctx context.Context) error {
	n.manager.ResetConnectionState()
	return nil
}

// SessionEvents bridges the in-process bus onto an RPC channel. Handlers
// stay registered until ctx ends.
func (n *WalletNode) SessionEvents(ctx context.Context) (<-chan api.SessionEvent, error) {
	out := make(chan api.SessionEvent, 32)

	push := func(ev types.EventType, payload interface{}) {
		var raw json.RawMessage
		if payload != nil {
			b, err := json.Marshal(payload)
			if err != nil {
				logger.Warnf("marshal %s payload: %s", ev, err)
			} else {
				raw = b
			}
		}
		select {
		case out <- api.SessionEvent{Type: ev, Payload: raw}:
		default:
			logger.Warnf("dropping %s for slow event subscriber", ev)
		}
	}

	onConnected := func(s *types.Session) { push(types.EventConnected, s.Record()) }
	onDisconnected := func(interface{}) { push(types.EventDisconnected, nil) }
	onAccountsChanged := func(a []string) { push(types.EventAccountsChanged, a) }
	onAccountChanged := func(s *types.Session) { push(types.EventAccountChanged, s.Record()) }
	onChainChanged := func(c string) { push(types.EventChainChanged, c) }
	onMismatch := func(p types.MismatchPayload) { push(types.EventNetworkMismatch, p) }

	subs := []struct {
		ev types.EventType
		fn interface{}
	}{
		{types.EventConnected, onConnected},
		{types.EventDisconnected, onDisconnected},
		{types.EventAccountsChanged, onAccountsChanged},
		{types.EventAccountChanged, onAccountChanged},
		{types.EventChainChanged, onChainChanged},
		{types.EventNetworkMismatch, onMismatch},
	}
	for _, s := range subs {
		if err := n.bus.On(s.ev, s.fn); err != nil {
			return nil, err
		}
	}

	go func() {
		<-ctx.Done()
		for _, s := range subs {
			if err := n.bus.Off(s.ev, s.fn); err != nil {
				logger.Debugf("unsubscribe %s: %s", s.ev, err)
			}
		}
		close(out)
	}()

	return out, nil
}

// RunRPCAndWait serves the permissioned API on the configured multiaddr and
// blocks until a shutdown signal.
func (n *WalletNode) RunRPCAndWait(ctx context.Context, ready chan interface{}) error {
	cfg := n.repo.Config()
	apiAddr, err := ma.NewMultiaddr(cfg.API.APIAddress)
	if err != nil {
		return err
	}

	// Listen on the configured address in order to bind the port number in case it has
	// been configured as zero (i.e. OS-provided)
	apiListener, err := manet.Listen(apiAddr) //nolint
	if err != nil {
		return err
	}

	netListener := manet.NetListener(apiListener) //nolint

	if token, _ := n.repo.APIToken(); len(token) == 0 {
		tk, err := n.AuthNew(ctx, wauth.AllPermissions)
		if err != nil {
			return errors.Wrap(err, "issue admin token")
		}
		if err := n.repo.SetAPIToken(tk); err != nil {
			return errors.Wrap(err, "persist admin token")
		}
	}

	handler := http.NewServeMux()

	rpcServer := jsonrpc.NewServer()
	rpcServer.Register("TalentChain", api.PermissionedWalletAPI(n))

	handler.Handle("/rpc/v0", rpcServer)

	ah := &auth.Handler{
		Verify: n.AuthVerify,
		Next:   handler.ServeHTTP,
	}

	apiserv := &http.Server{
		Handler: ah,
	}

	cfg.API.APIAddress = apiListener.Multiaddr().String()
	if err := n.repo.SetAPIAddr(cfg.API.APIAddress); err != nil {
		return err
	}

	var terminate = make(chan os.Signal, 1)
	signal.Notify(terminate, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(terminate)

	close(ready)

	go func() {
		select {
		case <-n.ShutdownChan:
			logger.Warn("received shutdown")
		case <-terminate:
			logger.Warn("received shutdown signal")
		}

		logger.Warn("shutdown...")
		err = apiserv.Shutdown(ctx)
		if err != nil {
			return
		}
		n.Stop(ctx)
	}()
	return apiserv.Serve(netListener)
}
