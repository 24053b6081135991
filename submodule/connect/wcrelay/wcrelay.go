// Package wcrelay implements the generic relay-session protocol: a
// project-keyed relay where wallets approve session proposals and answer
// chain-scoped requests. Accounts travel in CAIP form
// ("eip155:<chain>:<address>").
package wcrelay

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/xerrors"

	logging "github.com/talentchain/go-walletd/lib/log"
	"github.com/talentchain/go-walletd/lib/relay"
	"github.com/talentchain/go-walletd/lib/types"
	"github.com/talentchain/go-walletd/submodule/connect"
	"github.com/talentchain/go-walletd/submodule/connect/mirror"
)

var logger = logging.Logger("wcrelay")

// ConnectTimeout bounds the proposal round trip; the wallet side is
// interactive.
const ConnectTimeout = 60 * time.Second

const codeUserRejected = 4001

type proposeRequest struct {
	ProjectID string           `json:"projectId"`
	Metadata  connect.Metadata `json:"metadata"`
	Chains    []string         `json:"chains"`
}

type sessionResult struct {
	Topic    string   `json:"topic"`
	Accounts []string `json:"accounts"`
}

type sessionRequest struct {
	Topic   string      `json:"topic"`
	ChainID string      `json:"chainId"`
	Request rpcEnvelope `json:"request"`
}

type rpcEnvelope struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type sessionEvent struct {
	Topic    string   `json:"topic"`
	Name     string   `json:"name"`
	Accounts []string `json:"accounts,omitempty"`
	Chain    string   `json:"chain,omitempty"`
}

// Connector speaks the relay-session protocol for one project id.
type Connector struct {
	relayURL    string
	projectID   string
	networkName string
	chainID     uint64
	meta        connect.Metadata
	mirror      *mirror.Client

	lk       sync.Mutex
	ch       *relay.Client
	pumpDone chan struct{}
	topic    string
	account  string

	events chan types.BackendEvent

	closeOnce sync.Once
}

var _ connect.Connector = (*Connector)(nil)

func New(relayURL, projectID, networkName string, chainID uint64, meta connect.Metadata, mc *mirror.Client) *Connector {
	return &Connector{
		relayURL:    relayURL,
		projectID:   projectID,
		networkName: networkName,
		chainID:     chainID,
		meta:        meta,
		mirror:      mc,
		events:      make(chan types.BackendEvent, 8),
	}
}

func (c *Connector) Type() types.BackendType {
	return types.RelayProtocol
}

// caipChain is the chain reference sent with proposals and requests.
func (c *Connector) caipChain() string {
	return "eip155:" + strconv.FormatUint(c.chainID, 10)
}

// splitCAIP returns the chain reference and address of one CAIP account.
func splitCAIP(acc string) (chain, addr string, ok bool) {
	i := strings.LastIndex(acc, ":")
	if i < 0 {
		return "", "", false
	}
	return acc[:i], acc[i+1:], true
}

func (c *Connector) channel(ctx context.Context) (*relay.Client, error) {
	c.lk.Lock()
	defer c.lk.Unlock()
	if c.ch != nil {
		return c.ch, nil
	}

	ch, err := relay.Dial(ctx, c.relayURL)
	if err != nil {
		return nil, xerrors.Errorf("session relay: %s: %w", err, types.ErrWalletUnavailable)
	}
	c.ch = ch
	c.pumpDone = make(chan struct{})
	go c.pump(ch, c.pumpDone)
	return ch, nil
}

func (c *Connector) Available(ctx context.Context) bool {
	if c.projectID == "" {
		return false
	}
	_, err := c.channel(ctx)
	return err == nil
}

func mapRelayError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *relay.RPCError
	if xerrors.As(err, &rpcErr) && rpcErr.Code == codeUserRejected {
		return xerrors.Errorf("%s: %w", err, types.ErrUserRejected)
	}
	if xerrors.Is(err, context.DeadlineExceeded) {
		return xerrors.Errorf("session relay: %w", types.ErrTimeout)
	}
	return xerrors.Errorf("session relay: %s: %w", err, types.ErrTransport)
}

// Connect proposes a session scoped to the configured chain and waits for a
// wallet to approve it.
func (c *Connector) Connect(ctx context.Context) (*types.Session, error) {
	if c.projectID == "" {
		return nil, xerrors.Errorf("relay project id not configured: %w", types.ErrWalletUnavailable)
	}

	ch, err := c.channel(ctx)
	if err != nil {
		return nil, err
	}

	hctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	raw, err := ch.Call(hctx, "session_propose", &proposeRequest{
		ProjectID: c.projectID,
		Metadata:  c.meta,
		Chains:    []string{c.caipChain()},
	})
	if err != nil {
		return nil, mapRelayError(err)
	}

	var sr sessionResult
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, xerrors.Errorf("decode session approval: %s", err)
	}

	addr, err := c.pickAccount(sr.Accounts)
	if err != nil {
		return nil, err
	}
	return c.buildSession(ctx, sr.Topic, addr)
}

// pickAccount selects the first approved account on our chain. Approval for
// only foreign chains is a mismatch, not an empty session.
func (c *Connector) pickAccount(accounts []string) (string, error) {
	if len(accounts) == 0 {
		return "", xerrors.Errorf("session approved with no accounts: %w", types.ErrWalletUnavailable)
	}
	want := c.caipChain()
	for _, acc := range accounts {
		chain, addr, ok := splitCAIP(acc)
		if !ok {
			// tolerate bare addresses from simpler wallets
			return acc, nil
		}
		if chain == want {
			return addr, nil
		}
	}
	return "", xerrors.Errorf("no account on %s in %v: %w", want, accounts, types.ErrNetworkMismatch)
}

// Restore pings the saved topic; an alive topic with the same account
// rehydrates silently.
func (c *Connector) Restore(ctx context.Context, rec *types.SessionRecord) (*types.Session, error) {
	if rec.PairingTopic == "" {
		return nil, xerrors.Errorf("record has no session topic: %w", types.ErrNotRestorable)
	}

	accounts, err := c.Accounts(ctx, rec)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", err, types.ErrNotRestorable)
	}
	if len(accounts) == 0 {
		return nil, xerrors.Errorf("session %s expired: %w", rec.PairingTopic, types.ErrNotRestorable)
	}
	if !types.SameAccount(accounts[0], rec.AccountID) {
		return nil, xerrors.Errorf("session now holds %s: %w", accounts[0], types.ErrAccountMismatch)
	}

	return c.buildSession(ctx, rec.PairingTopic, accounts[0])
}

// Disconnect deletes the session on the wallet side, best effort.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.lk.Lock()
	ch, topic := c.ch, c.topic
	c.topic = ""
	c.account = ""
	c.lk.Unlock()

	if ch == nil || topic == "" {
		return nil
	}
	if _, err := ch.Call(ctx, "session_delete", map[string]string{"topic": topic}); err != nil {
		logger.Warnf("session_delete for %s: %s", topic, err)
	}
	return nil
}

// Accounts pings the topic and reports its accounts (plain addresses, CAIP
// prefixes stripped). Silent.
func (c *Connector) Accounts(ctx context.Context, rec *types.SessionRecord) ([]string, error) {
	c.lk.Lock()
	topic := c.topic
	c.lk.Unlock()
	if rec != nil && rec.PairingTopic != "" {
		topic = rec.PairingTopic
	}
	if topic == "" {
		return nil, xerrors.Errorf("no session topic: %w", types.ErrNotRestorable)
	}

	ch, err := c.channel(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := ch.Call(ctx, "session_ping", map[string]string{"topic": topic})
	if err != nil {
		return nil, mapRelayError(err)
	}
	var sr sessionResult
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, xerrors.Errorf("decode session ping: %s", err)
	}

	out := make([]string, 0, len(sr.Accounts))
	for _, acc := range sr.Accounts {
		if _, addr, ok := splitCAIP(acc); ok {
			out = append(out, addr)
		} else {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (c *Connector) Balance(ctx context.Context, account string) (string, error) {
	return c.mirror.Balance(ctx, account)
}

func (c *Connector) Events() <-chan types.BackendEvent {
	return c.events
}

func (c *Connector) buildSession(ctx context.Context, topic, addr string) (*types.Session, error) {
	bal, err := c.Balance(ctx, addr)
	if err != nil {
		logger.Warnf("balance snapshot for %s: %s", addr, err)
		bal = "0"
	}

	c.lk.Lock()
	c.topic = topic
	c.account = strings.ToLower(addr)
	c.lk.Unlock()

	return &types.Session{
		Backend:        types.RelayProtocol,
		AccountID:      strings.ToLower(addr),
		DisplayAddress: addr,
		Balance:        bal,
		NetworkName:    c.networkName,
		ChainID:        c.chainID,
		PairingTopic:   topic,
		Signer:         &signer{c: c},
	}, nil
}

func (c *Connector) pump(ch *relay.Client, done chan struct{}) {
	defer close(done)

	for n := range ch.Notifications() {
		switch n.Method {
		case "session_event":
			var ev sessionEvent
			if err := json.Unmarshal(n.Params, &ev); err != nil {
				logger.Warnf("bad session_event: %s", err)
				continue
			}
			if topic := c.currentTopic(); topic != "" && ev.Topic != topic {
				continue
			}
			switch ev.Name {
			case "accountsChanged":
				accounts := make([]string, 0, len(ev.Accounts))
				for _, acc := range ev.Accounts {
					if _, addr, ok := splitCAIP(acc); ok {
						accounts = append(accounts, addr)
					} else {
						accounts = append(accounts, acc)
					}
				}
				c.push(types.BackendEvent{Kind: types.BackendAccountsChanged, Accounts: accounts})
			case "chainChanged":
				c.push(types.BackendEvent{Kind: types.BackendChainChanged, Chain: ev.Chain})
			default:
				logger.Debugf("ignoring session event %q", ev.Name)
			}
		case "session_delete":
			c.push(types.BackendEvent{Kind: types.BackendDisconnected})
		}
	}

	c.lk.Lock()
	hadTopic := c.topic != ""
	if c.ch == ch {
		c.ch = nil
	}
	c.lk.Unlock()

	if hadTopic {
		c.push(types.BackendEvent{Kind: types.BackendDisconnected})
	}
}

func (c *Connector) currentTopic() string {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.topic
}

func (c *Connector) push(ev types.BackendEvent) {
	select {
	case c.events <- ev:
	default:
		logger.Warnf("dropping backend event %d", ev.Kind)
	}
}

func (c *Connector) Close() error {
	c.lk.Lock()
	ch, done := c.ch, c.pumpDone
	c.ch = nil
	c.lk.Unlock()

	if ch != nil {
		ch.Close() // nolint: errcheck
	}
	if done != nil {
		<-done
	}
	c.closeOnce.Do(func() {
		close(c.events)
	})
	return nil
}

// signer routes requests through session_request on the live topic.
type signer struct {
	c *Connector
}

var _ types.Signer = (*signer)(nil)

func (s *signer) session() (*relay.Client, string, string, error) {
	s.c.lk.Lock()
	ch, topic, account := s.c.ch, s.c.topic, s.c.account
	s.c.lk.Unlock()
	if ch == nil || topic == "" {
		return nil, "", "", types.ErrNotConnected
	}
	return ch, topic, account, nil
}

func (s *signer) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	ch, topic, account, err := s.session()
	if err != nil {
		return nil, err
	}

	raw, err := ch.Call(ctx, "session_request", &sessionRequest{
		Topic:   topic,
		ChainID: s.c.caipChain(),
		Request: rpcEnvelope{
			Method: "personal_sign",
			Params: []interface{}{"0x" + hex.EncodeToString(msg), account},
		},
	})
	if err != nil {
		return nil, mapRelayError(err)
	}

	var sig string
	if err := json.Unmarshal(raw, &sig); err != nil {
		return nil, xerrors.Errorf("decode signature: %s", err)
	}
	return hex.DecodeString(strings.TrimPrefix(sig, "0x"))
}

func (s *signer) SendTransaction(ctx context.Context, tx *types.TxRequest) (string, error) {
	ch, topic, account, err := s.session()
	if err != nil {
		return "", err
	}

	param := map[string]interface{}{
		"from": account,
		"to":   tx.To,
	}
	if tx.Value != "" {
		param["value"] = tx.Value
	}
	if tx.Data != "" {
		param["data"] = tx.Data
	}
	if tx.Gas != 0 {
		param["gas"] = tx.Gas
	}

	raw, err := ch.Call(ctx, "session_request", &sessionRequest{
		Topic:   topic,
		ChainID: s.c.caipChain(),
		Request: rpcEnvelope{
			Method: "eth_sendTransaction",
			Params: []interface{}{param},
		},
	})
	if err != nil {
		return "", mapRelayError(err)
	}

	var txHash string
	if err := json.Unmarshal(raw, &txHash); err != nil {
		return "", xerrors.Errorf("decode tx hash: %s", err)
	}
	return txHash, nil
}
