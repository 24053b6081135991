package evm

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/xerrors"

	logging "github.com/talentchain/go-walletd/lib/log"
	"github.com/talentchain/go-walletd/lib/types"
	"github.com/talentchain/go-walletd/submodule/connect"
)

var logger = logging.Logger("evm")

// ConnectTimeout bounds the interactive handshake; the provider may be
// waiting on a human who never answers.
const ConnectTimeout = 30 * time.Second

// pollInterval drives the provider watcher that stands in for extension
// push events.
const pollInterval = 5 * time.Second

// provider RPC error codes (EIP-1193/EIP-1474)
const (
	codeUserRejected      = 4001
	codeUnrecognizedChain = 4902
)

// Connector talks to an extension EVM provider over its JSON-RPC endpoint.
type Connector struct {
	endpoint    string
	networkName string
	chainID     uint64

	lk      sync.Mutex
	rpc     *rpc.Client
	eth     *ethclient.Client
	account string

	events      chan types.BackendEvent
	watchCancel context.CancelFunc
	watchDone   chan struct{}

	closeOnce sync.Once
}

var _ connect.Connector = (*Connector)(nil)

func New(endpoint, networkName string, chainID uint64) *Connector {
	return &Connector{
		endpoint:    endpoint,
		networkName: networkName,
		chainID:     chainID,
		events:      make(chan types.BackendEvent, 8),
	}
}

func (c *Connector) Type() types.BackendType {
	return types.InjectedProvider
}

func (c *Connector) client(ctx context.Context) (*rpc.Client, error) {
	c.lk.Lock()
	defer c.lk.Unlock()
	if c.rpc != nil {
		return c.rpc, nil
	}

	cl, err := rpc.DialContext(ctx, c.endpoint)
	if err != nil {
		return nil, xerrors.Errorf("provider at %s: %s: %w", c.endpoint, err, types.ErrWalletUnavailable)
	}
	c.rpc = cl
	c.eth = ethclient.NewClient(cl)
	return cl, nil
}

func (c *Connector) Available(ctx context.Context) bool {
	cl, err := c.client(ctx)
	if err != nil {
		return false
	}
	var ver string
	return cl.CallContext(ctx, &ver, "web3_clientVersion") == nil
}

func mapRPCError(err error) error {
	if err == nil {
		return nil
	}
	if rpcErr, ok := err.(rpc.Error); ok {
		switch rpcErr.ErrorCode() {
		case codeUserRejected:
			return xerrors.Errorf("%s: %w", err, types.ErrUserRejected)
		case codeUnrecognizedChain:
			return xerrors.Errorf("%s: %w", err, types.ErrNetworkMismatch)
		}
	}
	if xerrors.Is(err, context.DeadlineExceeded) {
		return xerrors.Errorf("provider: %w", types.ErrTimeout)
	}
	return xerrors.Errorf("provider: %s: %w", err, types.ErrTransport)
}

// Connect runs the interactive handshake: request accounts, reconcile chain,
// snapshot balance.
func (c *Connector) Connect(ctx context.Context) (*types.Session, error) {
	cl, err := c.client(ctx)
	if err != nil {
		return nil, err
	}

	hctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	var accounts []string
	if err := cl.CallContext(hctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, mapRPCError(err)
	}
	if len(accounts) == 0 {
		return nil, xerrors.Errorf("provider returned no accounts: %w", types.ErrWalletUnavailable)
	}

	if err := c.ensureChain(hctx, cl); err != nil {
		return nil, err
	}

	return c.buildSession(ctx, accounts[0])
}

// ensureChain verifies the provider chain and attempts one switch (adding the
// chain definition if unrecognized) before giving up.
func (c *Connector) ensureChain(ctx context.Context, cl *rpc.Client) error {
	cur, err := c.currentChain(ctx, cl)
	if err != nil {
		return err
	}
	if cur == c.chainID {
		return nil
	}

	logger.Infof("provider on chain %d, want %d; requesting switch", cur, c.chainID)

	switchParam := map[string]string{"chainId": types.HexChainID(c.chainID)}
	err = cl.CallContext(ctx, nil, "wallet_switchEthereumChain", switchParam)
	if err != nil {
		if rpcErr, ok := err.(rpc.Error); ok && rpcErr.ErrorCode() == codeUnrecognizedChain {
			if err := cl.CallContext(ctx, nil, "wallet_addEthereumChain", c.chainParam()); err != nil {
				return mapRPCError(err)
			}
		} else {
			return mapRPCError(err)
		}
	}

	cur, err = c.currentChain(ctx, cl)
	if err != nil {
		return err
	}
	if cur != c.chainID {
		return xerrors.Errorf("provider stayed on chain %d, want %d: %w", cur, c.chainID, types.ErrNetworkMismatch)
	}
	return nil
}

func (c *Connector) chainParam() map[string]interface{} {
	return map[string]interface{}{
		"chainId":   types.HexChainID(c.chainID),
		"chainName": c.networkName,
		"rpcUrls":   []string{c.endpoint},
		"nativeCurrency": map[string]interface{}{
			"name":     "HBAR",
			"symbol":   "HBAR",
			"decimals": 18,
		},
	}
}

func (c *Connector) currentChain(ctx context.Context, cl *rpc.Client) (uint64, error) {
	var hexID string
	if err := cl.CallContext(ctx, &hexID, "eth_chainId"); err != nil {
		return 0, mapRPCError(err)
	}
	return types.ParseChainID(hexID)
}

func (c *Connector) buildSession(ctx context.Context, account string) (*types.Session, error) {
	bal, err := c.Balance(ctx, account)
	if err != nil {
		// balance is a cache; log and continue with an empty snapshot
		logger.Warnf("balance snapshot for %s: %s", account, err)
		bal = "0"
	}

	c.lk.Lock()
	c.account = strings.ToLower(account)
	c.lk.Unlock()

	c.startWatcher()

	return &types.Session{
		Backend:        types.InjectedProvider,
		AccountID:      strings.ToLower(account),
		DisplayAddress: account,
		Balance:        bal,
		NetworkName:    c.networkName,
		ChainID:        c.chainID,
		Signer:         &signer{c: c},
	}, nil
}

// Restore rehydrates from an already-authorized account; never prompts.
func (c *Connector) Restore(ctx context.Context, rec *types.SessionRecord) (*types.Session, error) {
	accounts, err := c.Accounts(ctx, rec)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", err, types.ErrNotRestorable)
	}
	if len(accounts) == 0 {
		return nil, xerrors.Errorf("provider locked or unauthorized: %w", types.ErrNotRestorable)
	}
	if !types.SameAccount(accounts[0], rec.AccountID) {
		return nil, xerrors.Errorf("provider reports %s: %w", accounts[0], types.ErrAccountMismatch)
	}

	cl, err := c.client(ctx)
	if err != nil {
		return nil, err
	}
	cur, err := c.currentChain(ctx, cl)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", err, types.ErrNotRestorable)
	}
	if cur != c.chainID {
		return nil, xerrors.Errorf("provider on chain %d: %w", cur, types.ErrNotRestorable)
	}

	return c.buildSession(ctx, accounts[0])
}

// Disconnect: injected providers expose no disconnect primitive. Local
// teardown only.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.stopWatcher()
	c.lk.Lock()
	c.account = ""
	c.lk.Unlock()
	return nil
}

// Accounts reports already-authorized accounts; eth_accounts never prompts.
// The record is not needed: the provider is ambient.
func (c *Connector) Accounts(ctx context.Context, _ *types.SessionRecord) ([]string, error) {
	cl, err := c.client(ctx)
	if err != nil {
		return nil, err
	}
	var accounts []string
	if err := cl.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, mapRPCError(err)
	}
	return accounts, nil
}

func (c *Connector) Balance(ctx context.Context, account string) (string, error) {
	if _, err := c.client(ctx); err != nil {
		return "", err
	}

	c.lk.Lock()
	eth := c.eth
	c.lk.Unlock()

	bal, err := eth.BalanceAt(ctx, common.HexToAddress(account), nil)
	if err != nil {
		return "", mapRPCError(err)
	}
	return bal.String(), nil
}

func (c *Connector) Events() <-chan types.BackendEvent {
	return c.events
}

// startWatcher polls the provider for account and chain changes; the Go
// stand-in for extension push events.
func (c *Connector) startWatcher() {
	c.lk.Lock()
	defer c.lk.Unlock()
	if c.watchCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.watchCancel = cancel
	c.watchDone = make(chan struct{})
	go c.watch(ctx, c.watchDone)
}

func (c *Connector) stopWatcher() {
	c.lk.Lock()
	cancel, done := c.watchCancel, c.watchDone
	c.watchCancel = nil
	c.watchDone = nil
	c.lk.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Connector) watch(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastAccount := c.currentAccount()
	lastChain := c.chainID

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		accounts, err := c.Accounts(ctx, nil)
		if err != nil {
			logger.Debugf("provider poll: %s", err)
			continue
		}

		cur := ""
		if len(accounts) > 0 {
			cur = strings.ToLower(accounts[0])
		}
		if cur != lastAccount {
			lastAccount = cur
			c.lk.Lock()
			c.account = cur
			c.lk.Unlock()
			c.push(types.BackendEvent{Kind: types.BackendAccountsChanged, Accounts: accounts})
		}

		cl, err := c.client(ctx)
		if err != nil {
			continue
		}
		chain, err := c.currentChain(ctx, cl)
		if err != nil {
			continue
		}
		if chain != lastChain {
			lastChain = chain
			c.push(types.BackendEvent{Kind: types.BackendChainChanged, Chain: types.HexChainID(chain)})
		}
	}
}

func (c *Connector) currentAccount() string {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.account
}

func (c *Connector) push(ev types.BackendEvent) {
	select {
	case c.events <- ev:
	default:
		logger.Warnf("dropping backend event %d", ev.Kind)
	}
}

func (c *Connector) Close() error {
	c.stopWatcher()
	c.closeOnce.Do(func() {
		close(c.events)
		c.lk.Lock()
		if c.rpc != nil {
			c.rpc.Close()
			c.rpc = nil
			c.eth = nil
		}
		c.lk.Unlock()
	})
	return nil
}

// signer is the signing handle for an injected-provider session; valid while
// the connector's client is alive.
type signer struct {
	c *Connector
}

var _ types.Signer = (*signer)(nil)

func (s *signer) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	cl, err := s.c.client(ctx)
	if err != nil {
		return nil, err
	}

	account := s.c.currentAccount()
	if account == "" {
		return nil, types.ErrNotConnected
	}

	var sig hexutil.Bytes
	err = cl.CallContext(ctx, &sig, "personal_sign", hexutil.Encode(msg), account)
	if err != nil {
		return nil, mapRPCError(err)
	}
	return sig, nil
}

func (s *signer) SendTransaction(ctx context.Context, tx *types.TxRequest) (string, error) {
	cl, err := s.c.client(ctx)
	if err != nil {
		return "", err
	}

	account := s.c.currentAccount()
	if account == "" {
		return "", types.ErrNotConnected
	}

	param := map[string]interface{}{
		"from": account,
		"to":   tx.To,
	}
	if tx.Value != "" {
		val, ok := new(big.Int).SetString(tx.Value, 10)
		if !ok {
			return "", xerrors.Errorf("bad tx value %q", tx.Value)
		}
		param["value"] = hexutil.EncodeBig(val)
	}
	if tx.Data != "" {
		param["data"] = tx.Data
	}
	if tx.Gas != 0 {
		param["gas"] = hexutil.EncodeUint64(tx.Gas)
	}

	var txHash string
	if err := cl.CallContext(ctx, &txHash, "eth_sendTransaction", param); err != nil {
		return "", mapRPCError(err)
	}
	return txHash, nil
}
