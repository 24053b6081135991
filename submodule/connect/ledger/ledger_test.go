package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/xerrors"

	"github.com/talentchain/go-walletd/lib/relay"
	"github.com/talentchain/go-walletd/lib/types"
	"github.com/talentchain/go-walletd/submodule/connect"
	"github.com/talentchain/go-walletd/submodule/connect/mirror"
)

var upgrader = websocket.Upgrader{}

// fakeWallet is an in-memory relay plus wallet: it approves pairings with a
// fixed account, answers status for known topics and signs everything.
type fakeWallet struct {
	lk       sync.Mutex
	account  string
	network  string
	reject   bool
	pairings map[string][]string

	conn *websocket.Conn
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		account:  "0.0.4321",
		network:  "testnet",
		pairings: map[string][]string{},
	}
}

func (f *fakeWallet) serve(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		f.lk.Lock()
		f.conn = conn
		f.lk.Unlock()
		defer conn.Close()

		for {
			var msg relay.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			f.handle(conn, &msg)
		}
	}))
}

func (f *fakeWallet) handle(conn *websocket.Conn, msg *relay.Message) {
	f.lk.Lock()
	defer f.lk.Unlock()

	reply := func(v interface{}) {
		b, _ := json.Marshal(v)
		conn.WriteJSON(&relay.Message{JSONRPC: "2.0", ID: msg.ID, Result: b})
	}
	fail := func(code int, text string) {
		conn.WriteJSON(&relay.Message{JSONRPC: "2.0", ID: msg.ID, Error: &relay.RPCError{Code: code, Message: text}})
	}

	switch msg.Method {
	case "pairing_request":
		if f.reject {
			fail(4001, "user declined pairing")
			return
		}
		f.pairings["topic-1"] = []string{f.account}
		reply(pairingResult{Topic: "topic-1", AccountIDs: []string{f.account}, Network: f.network})
	case "pairing_status":
		var p struct {
			Topic string `json:"topic"`
		}
		json.Unmarshal(msg.Params, &p)
		reply(pairingResult{Topic: p.Topic, AccountIDs: f.pairings[p.Topic], Network: f.network})
	case "pairing_delete":
		var p struct {
			Topic string `json:"topic"`
		}
		json.Unmarshal(msg.Params, &p)
		delete(f.pairings, p.Topic)
		reply(map[string]bool{"ok": true})
	case "account_sign":
		reply(map[string]string{"signature": "0xdeadbeef"})
	case "transaction_submit":
		reply(map[string]string{"transactionId": "0.0.4321@1690000000.000000001"})
	default:
		fail(-32601, "unknown method")
	}
}

// pushEvent sends a server-initiated pairing_event frame.
func (f *fakeWallet) pushEvent(ev pairingEvent) {
	f.lk.Lock()
	defer f.lk.Unlock()
	b, _ := json.Marshal(ev)
	f.conn.WriteJSON(&relay.Message{JSONRPC: "2.0", Method: "pairing_event", Params: b})
}

func mirrorServer(t *testing.T, balance string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"balance":{"balance":` + balance + `}}`))
	}))
}

func newConnector(t *testing.T, f *fakeWallet) (*Connector, func()) {
	relaySrv := f.serve(t)
	mirrorSrv := mirrorServer(t, "5000")

	c := New(
		"ws"+strings.TrimPrefix(relaySrv.URL, "http"),
		"testnet", 296,
		connect.Metadata{Name: "TalentChain", URL: "https://talentchain.example"},
		mirror.New(mirrorSrv.URL),
	)
	return c, func() {
		c.Close()
		relaySrv.Close()
		mirrorSrv.Close()
	}
}

func TestConnect(t *testing.T) {
	f := newFakeWallet()
	c, done := newConnector(t, f)
	defer done()

	sess, err := c.Connect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sess.Backend != types.NativeLedger {
		t.Fatalf("backend %s", sess.Backend)
	}
	if sess.AccountID != "0.0.4321" || sess.DisplayAddress != "0.0.4321" {
		t.Fatalf("account %s / %s", sess.AccountID, sess.DisplayAddress)
	}
	if sess.PairingTopic != "topic-1" {
		t.Fatalf("topic %s", sess.PairingTopic)
	}
	if sess.Balance != "5000" {
		t.Fatalf("balance %s", sess.Balance)
	}
	if sess.Signer == nil {
		t.Fatal("nil signer")
	}
}

func TestConnectRejected(t *testing.T) {
	f := newFakeWallet()
	f.reject = true
	c, done := newConnector(t, f)
	defer done()

	_, err := c.Connect(context.Background())
	if !xerrors.Is(err, types.ErrUserRejected) {
		t.Fatalf("want ErrUserRejected, got %v", err)
	}
}

func TestConnectNetworkMismatch(t *testing.T) {
	f := newFakeWallet()
	f.network = "mainnet"
	c, done := newConnector(t, f)
	defer done()

	_, err := c.Connect(context.Background())
	if !xerrors.Is(err, types.ErrNetworkMismatch) {
		t.Fatalf("want ErrNetworkMismatch, got %v", err)
	}
}

func TestRestore(t *testing.T) {
	f := newFakeWallet()
	f.pairings["topic-1"] = []string{f.account}
	c, done := newConnector(t, f)
	defer done()

	rec := &types.SessionRecord{
		Backend:      types.NativeLedger,
		AccountID:    "0.0.4321",
		PairingTopic: "topic-1",
	}
	sess, err := c.Restore(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if sess.AccountID != "0.0.4321" || sess.PairingTopic != "topic-1" {
		t.Fatalf("restored %s on %s", sess.AccountID, sess.PairingTopic)
	}
}

func TestRestoreExpiredPairing(t *testing.T) {
	f := newFakeWallet()
	c, done := newConnector(t, f)
	defer done()

	rec := &types.SessionRecord{
		Backend:      types.NativeLedger,
		AccountID:    "0.0.4321",
		PairingTopic: "topic-gone",
	}
	_, err := c.Restore(context.Background(), rec)
	if !xerrors.Is(err, types.ErrNotRestorable) {
		t.Fatalf("want ErrNotRestorable, got %v", err)
	}
}

func TestRestoreNoTopic(t *testing.T) {
	f := newFakeWallet()
	c, done := newConnector(t, f)
	defer done()

	rec := &types.SessionRecord{Backend: types.NativeLedger, AccountID: "0.0.4321"}
	_, err := c.Restore(context.Background(), rec)
	if !xerrors.Is(err, types.ErrNotRestorable) {
		t.Fatalf("want ErrNotRestorable, got %v", err)
	}
}

func TestRestoreOwnershipChange(t *testing.T) {
	f := newFakeWallet()
	f.pairings["topic-1"] = []string{"0.0.9999"}
	c, done := newConnector(t, f)
	defer done()

	rec := &types.SessionRecord{
		Backend:      types.NativeLedger,
		AccountID:    "0.0.4321",
		PairingTopic: "topic-1",
	}
	_, err := c.Restore(context.Background(), rec)
	if !xerrors.Is(err, types.ErrAccountMismatch) {
		t.Fatalf("want ErrAccountMismatch, got %v", err)
	}
}

func TestSignAndSubmit(t *testing.T) {
	f := newFakeWallet()
	c, done := newConnector(t, f)
	defer done()

	sess, err := c.Connect(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	sig, err := sess.Signer.SignMessage(context.Background(), []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sig) != 4 { // 0xdeadbeef
		t.Fatalf("signature %x", sig)
	}

	txid, err := sess.Signer.SendTransaction(context.Background(), &types.TxRequest{
		To:    "0.0.7777",
		Value: "100",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(txid, "0.0.4321@") {
		t.Fatalf("txid %s", txid)
	}
}

func TestDisconnectDeletesPairing(t *testing.T) {
	f := newFakeWallet()
	c, done := newConnector(t, f)
	defer done()

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Disconnect(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.lk.Lock()
	_, ok := f.pairings["topic-1"]
	f.lk.Unlock()
	if ok {
		t.Fatal("pairing still registered wallet-side")
	}
}

func TestPairingEventForwarded(t *testing.T) {
	f := newFakeWallet()
	c, done := newConnector(t, f)
	defer done()

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.pushEvent(pairingEvent{Topic: "topic-1", Event: "accountsChanged", AccountIDs: []string{"0.0.5555"}})

	select {
	case ev := <-c.Events():
		if ev.Kind != types.BackendAccountsChanged {
			t.Fatalf("kind %d", ev.Kind)
		}
		if len(ev.Accounts) != 1 || ev.Accounts[0] != "0.0.5555" {
			t.Fatalf("accounts %v", ev.Accounts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no backend event")
	}
}
