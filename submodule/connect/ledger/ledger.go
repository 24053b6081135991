// Package ledger pairs with a native-ledger wallet through its relay
// service. The wallet runs elsewhere (typically on a phone); everything
// interactive travels over one websocket relay channel keyed by a pairing
// topic, and balances come from the public mirror REST endpoint.
package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
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

var logger = logging.Logger("ledger")

// ConnectTimeout bounds the pairing handshake. Approval happens on a
// separate device, so this is generous compared to the provider backends.
const ConnectTimeout = 60 * time.Second

// relay protocol error codes
const codeUserRejected = 4001

// wire types for the pairing protocol
type pairingRequest struct {
	Metadata connect.Metadata `json:"metadata"`
	Network  string           `json:"network"`
}

type pairingResult struct {
	Topic      string   `json:"topic"`
	AccountIDs []string `json:"accountIds"`
	Network    string   `json:"network"`
}

type pairingEvent struct {
	Topic      string   `json:"topic"`
	Event      string   `json:"event"`
	AccountIDs []string `json:"accountIds,omitempty"`
}

// Connector drives the native-ledger wallet relay protocol.
type Connector struct {
	relayURL    string
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

func New(relayURL, networkName string, chainID uint64, meta connect.Metadata, mc *mirror.Client) *Connector {
	return &Connector{
		relayURL:    relayURL,
		networkName: networkName,
		chainID:     chainID,
		meta:        meta,
		mirror:      mc,
		events:      make(chan types.BackendEvent, 8),
	}
}

func (c *Connector) Type() types.BackendType {
	return types.NativeLedger
}

// channel lazily dials the relay and starts the notification pump.
func (c *Connector) channel(ctx context.Context) (*relay.Client, error) {
	c.lk.Lock()
	defer c.lk.Unlock()
	if c.ch != nil {
		return c.ch, nil
	}

	ch, err := relay.Dial(ctx, c.relayURL)
	if err != nil {
		return nil, xerrors.Errorf("ledger relay: %s: %w", err, types.ErrWalletUnavailable)
	}
	c.ch = ch
	c.pumpDone = make(chan struct{})
	go c.pump(ch, c.pumpDone)
	return ch, nil
}

func (c *Connector) Available(ctx context.Context) bool {
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
		return xerrors.Errorf("ledger relay: %w", types.ErrTimeout)
	}
	return xerrors.Errorf("ledger relay: %s: %w", err, types.ErrTransport)
}

// Connect runs the pairing handshake: present app metadata, wait for the
// wallet to approve, record the pairing topic.
func (c *Connector) Connect(ctx context.Context) (*types.Session, error) {
	ch, err := c.channel(ctx)
	if err != nil {
		return nil, err
	}

	hctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	raw, err := ch.Call(hctx, "pairing_request", &pairingRequest{
		Metadata: c.meta,
		Network:  c.networkName,
	})
	if err != nil {
		return nil, mapRelayError(err)
	}

	var pr pairingResult
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, xerrors.Errorf("decode pairing result: %s", err)
	}
	if len(pr.AccountIDs) == 0 {
		return nil, xerrors.Errorf("pairing approved with no accounts: %w", types.ErrWalletUnavailable)
	}
	if pr.Network != "" && pr.Network != c.networkName {
		return nil, xerrors.Errorf("wallet paired on %s, want %s: %w", pr.Network, c.networkName, types.ErrNetworkMismatch)
	}

	return c.buildSession(ctx, pr.Topic, pr.AccountIDs[0])
}

// Restore reattaches to the saved pairing topic; no prompt ever reaches the
// wallet. A different account on the topic is a definite ownership change.
func (c *Connector) Restore(ctx context.Context, rec *types.SessionRecord) (*types.Session, error) {
	if rec.PairingTopic == "" {
		return nil, xerrors.Errorf("record has no pairing topic: %w", types.ErrNotRestorable)
	}

	accounts, err := c.Accounts(ctx, rec)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", err, types.ErrNotRestorable)
	}
	if len(accounts) == 0 {
		return nil, xerrors.Errorf("pairing %s expired: %w", rec.PairingTopic, types.ErrNotRestorable)
	}
	if !types.SameAccount(accounts[0], rec.AccountID) {
		return nil, xerrors.Errorf("pairing now holds %s: %w", accounts[0], types.ErrAccountMismatch)
	}

	return c.buildSession(ctx, rec.PairingTopic, accounts[0])
}

// Disconnect notifies the wallet that the pairing is over, then drops local
// state. The relay call is best-effort: a dead relay must not block teardown.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.lk.Lock()
	ch, topic := c.ch, c.topic
	c.topic = ""
	c.account = ""
	c.lk.Unlock()

	if ch == nil || topic == "" {
		return nil
	}
	if _, err := ch.Call(ctx, "pairing_delete", map[string]string{"topic": topic}); err != nil {
		logger.Warnf("pairing_delete for %s: %s", topic, err)
	}
	return nil
}

// Accounts asks the relay which accounts the pairing still holds. Silent:
// pairing_status never reaches the wallet UI.
func (c *Connector) Accounts(ctx context.Context, rec *types.SessionRecord) ([]string, error) {
	topic := c.currentTopic()
	if rec != nil && rec.PairingTopic != "" {
		topic = rec.PairingTopic
	}
	if topic == "" {
		return nil, xerrors.Errorf("no pairing topic: %w", types.ErrNotRestorable)
	}

	ch, err := c.channel(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := ch.Call(ctx, "pairing_status", map[string]string{"topic": topic})
	if err != nil {
		return nil, mapRelayError(err)
	}
	var pr pairingResult
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, xerrors.Errorf("decode pairing status: %s", err)
	}
	return pr.AccountIDs, nil
}

func (c *Connector) Balance(ctx context.Context, account string) (string, error) {
	return c.mirror.Balance(ctx, account)
}

func (c *Connector) Events() <-chan types.BackendEvent {
	return c.events
}

func (c *Connector) buildSession(ctx context.Context, topic, account string) (*types.Session, error) {
	bal, err := c.Balance(ctx, account)
	if err != nil {
		// balance is a cache; log and continue with an empty snapshot
		logger.Warnf("balance snapshot for %s: %s", account, err)
		bal = "0"
	}

	c.lk.Lock()
	c.topic = topic
	c.account = account
	c.lk.Unlock()

	return &types.Session{
		Backend:        types.NativeLedger,
		AccountID:      account,
		DisplayAddress: account,
		Balance:        bal,
		NetworkName:    c.networkName,
		ChainID:        c.chainID,
		PairingTopic:   topic,
		Signer:         &signer{c: c},
	}, nil
}

// pump forwards relay push frames as backend events until the channel dies;
// a dead channel itself surfaces as a backend disconnect.
func (c *Connector) pump(ch *relay.Client, done chan struct{}) {
	defer close(done)

	for n := range ch.Notifications() {
		if n.Method != "pairing_event" {
			continue
		}
		var ev pairingEvent
		if err := json.Unmarshal(n.Params, &ev); err != nil {
			logger.Warnf("bad pairing_event: %s", err)
			continue
		}
		if topic := c.currentTopic(); topic != "" && ev.Topic != topic {
			continue
		}

		switch ev.Event {
		case "accountsChanged":
			c.push(types.BackendEvent{Kind: types.BackendAccountsChanged, Accounts: ev.AccountIDs})
		case "disconnected":
			c.push(types.BackendEvent{Kind: types.BackendDisconnected})
		default:
			logger.Debugf("ignoring pairing event %q", ev.Event)
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

// Close tears the relay channel down, waits for the pump so nothing races
// the events channel, then closes it.
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

// signer issues signing requests on the live pairing topic. Every request
// pops an approval dialog on the wallet device.
type signer struct {
	c *Connector
}

var _ types.Signer = (*signer)(nil)

func (s *signer) pairing() (*relay.Client, string, string, error) {
	s.c.lk.Lock()
	ch, topic, account := s.c.ch, s.c.topic, s.c.account
	s.c.lk.Unlock()
	if ch == nil || topic == "" {
		return nil, "", "", types.ErrNotConnected
	}
	return ch, topic, account, nil
}

func (s *signer) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	ch, topic, account, err := s.pairing()
	if err != nil {
		return nil, err
	}

	raw, err := ch.Call(ctx, "account_sign", map[string]string{
		"topic":     topic,
		"accountId": account,
		"message":   "0x" + hex.EncodeToString(msg),
	})
	if err != nil {
		return nil, mapRelayError(err)
	}

	var res struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, xerrors.Errorf("decode signature: %s", err)
	}
	return hex.DecodeString(strings.TrimPrefix(res.Signature, "0x"))
}

func (s *signer) SendTransaction(ctx context.Context, tx *types.TxRequest) (string, error) {
	ch, topic, account, err := s.pairing()
	if err != nil {
		return "", err
	}

	param := map[string]interface{}{
		"topic":     topic,
		"accountId": account,
		"to":        tx.To,
	}
	if tx.Value != "" {
		param["amount"] = tx.Value
	}
	if tx.Data != "" {
		param["data"] = tx.Data
	}
	if tx.Gas != 0 {
		param["gas"] = tx.Gas
	}

	raw, err := ch.Call(ctx, "transaction_submit", param)
	if err != nil {
		return "", mapRelayError(err)
	}

	var res struct {
		TransactionID string `json:"transactionId"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", xerrors.Errorf("decode transaction id: %s", err)
	}
	return res.TransactionID, nil
}
