package wcrelay

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

const testAddr = "0xAb00000000000000000000000000000000000099"

// fakeRelay approves proposals with one CAIP account on chain 296 and
// answers session requests.
type fakeRelay struct {
	lk       sync.Mutex
	accounts []string
	reject   bool
	sessions map[string][]string

	conn *websocket.Conn
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		accounts: []string{"eip155:296:" + testAddr},
		sessions: map[string][]string{},
	}
}

func (f *fakeRelay) serve(t *testing.T) *httptest.Server {
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

func (f *fakeRelay) handle(conn *websocket.Conn, msg *relay.Message) {
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
	case "session_propose":
		if f.reject {
			fail(4001, "proposal declined")
			return
		}
		f.sessions["sess-1"] = f.accounts
		reply(sessionResult{Topic: "sess-1", Accounts: f.accounts})
	case "session_ping":
		var p struct {
			Topic string `json:"topic"`
		}
		json.Unmarshal(msg.Params, &p)
		reply(sessionResult{Topic: p.Topic, Accounts: f.sessions[p.Topic]})
	case "session_delete":
		var p struct {
			Topic string `json:"topic"`
		}
		json.Unmarshal(msg.Params, &p)
		delete(f.sessions, p.Topic)
		reply(map[string]bool{"ok": true})
	case "session_request":
		var req sessionRequest
		json.Unmarshal(msg.Params, &req)
		switch req.Request.Method {
		case "personal_sign":
			reply("0xcafe")
		case "eth_sendTransaction":
			reply("0xhash1")
		default:
			fail(-32601, "unknown request method")
		}
	default:
		fail(-32601, "unknown method")
	}
}

func (f *fakeRelay) pushEvent(method string, v interface{}) {
	f.lk.Lock()
	defer f.lk.Unlock()
	b, _ := json.Marshal(v)
	f.conn.WriteJSON(&relay.Message{JSONRPC: "2.0", Method: method, Params: b})
}

func newConnector(t *testing.T, f *fakeRelay) (*Connector, func()) {
	relaySrv := f.serve(t)
	mirrorSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"balance":{"balance":777}}`))
	}))

	c := New(
		"ws"+strings.TrimPrefix(relaySrv.URL, "http"),
		"project-1", "testnet", 296,
		connect.Metadata{Name: "TalentChain"},
		mirror.New(mirrorSrv.URL),
	)
	return c, func() {
		c.Close()
		relaySrv.Close()
		mirrorSrv.Close()
	}
}

func TestConnect(t *testing.T) {
	f := newFakeRelay()
	c, done := newConnector(t, f)
	defer done()

	sess, err := c.Connect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sess.Backend != types.RelayProtocol {
		t.Fatalf("backend %s", sess.Backend)
	}
	if sess.AccountID != strings.ToLower(testAddr) {
		t.Fatalf("account %s", sess.AccountID)
	}
	if sess.DisplayAddress != testAddr {
		t.Fatalf("display %s", sess.DisplayAddress)
	}
	if sess.PairingTopic != "sess-1" {
		t.Fatalf("topic %s", sess.PairingTopic)
	}
	if sess.Balance != "777" {
		t.Fatalf("balance %s", sess.Balance)
	}
}

func TestConnectRejected(t *testing.T) {
	f := newFakeRelay()
	f.reject = true
	c, done := newConnector(t, f)
	defer done()

	_, err := c.Connect(context.Background())
	if !xerrors.Is(err, types.ErrUserRejected) {
		t.Fatalf("want ErrUserRejected, got %v", err)
	}
}

func TestConnectForeignChainOnly(t *testing.T) {
	f := newFakeRelay()
	f.accounts = []string{"eip155:1:" + testAddr}
	c, done := newConnector(t, f)
	defer done()

	_, err := c.Connect(context.Background())
	if !xerrors.Is(err, types.ErrNetworkMismatch) {
		t.Fatalf("want ErrNetworkMismatch, got %v", err)
	}
}

func TestConnectNoProject(t *testing.T) {
	c := New("ws://unused", "", "testnet", 296, connect.Metadata{}, mirror.New("http://unused"))
	defer c.Close()

	if c.Available(context.Background()) {
		t.Fatal("available without project id")
	}
	_, err := c.Connect(context.Background())
	if !xerrors.Is(err, types.ErrWalletUnavailable) {
		t.Fatalf("want ErrWalletUnavailable, got %v", err)
	}
}

func TestRestore(t *testing.T) {
	f := newFakeRelay()
	f.sessions["sess-1"] = f.accounts
	c, done := newConnector(t, f)
	defer done()

	rec := &types.SessionRecord{
		Backend:      types.RelayProtocol,
		AccountID:    strings.ToLower(testAddr),
		PairingTopic: "sess-1",
	}
	sess, err := c.Restore(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if sess.PairingTopic != "sess-1" {
		t.Fatalf("topic %s", sess.PairingTopic)
	}
}

func TestRestoreExpired(t *testing.T) {
	f := newFakeRelay()
	c, done := newConnector(t, f)
	defer done()

	rec := &types.SessionRecord{
		Backend:      types.RelayProtocol,
		AccountID:    strings.ToLower(testAddr),
		PairingTopic: "sess-gone",
	}
	_, err := c.Restore(context.Background(), rec)
	if !xerrors.Is(err, types.ErrNotRestorable) {
		t.Fatalf("want ErrNotRestorable, got %v", err)
	}
}

func TestRestoreOwnershipChange(t *testing.T) {
	f := newFakeRelay()
	f.sessions["sess-1"] = []string{"eip155:296:0x0000000000000000000000000000000000000bad"}
	c, done := newConnector(t, f)
	defer done()

	rec := &types.SessionRecord{
		Backend:      types.RelayProtocol,
		AccountID:    strings.ToLower(testAddr),
		PairingTopic: "sess-1",
	}
	_, err := c.Restore(context.Background(), rec)
	if !xerrors.Is(err, types.ErrAccountMismatch) {
		t.Fatalf("want ErrAccountMismatch, got %v", err)
	}
}

func TestSignAndSend(t *testing.T) {
	f := newFakeRelay()
	c, done := newConnector(t, f)
	defer done()

	sess, err := c.Connect(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	sig, err := sess.Signer.SignMessage(context.Background(), []byte("msg"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sig) != 2 { // 0xcafe
		t.Fatalf("signature %x", sig)
	}

	hash, err := sess.Signer.SendTransaction(context.Background(), &types.TxRequest{
		To:    "0x0000000000000000000000000000000000000007",
		Value: "42",
	})
	if err != nil {
		t.Fatal(err)
	}
	if hash != "0xhash1" {
		t.Fatalf("hash %s", hash)
	}
}

func TestSessionDeleteEvent(t *testing.T) {
	f := newFakeRelay()
	c, done := newConnector(t, f)
	defer done()

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.pushEvent("session_delete", map[string]string{"topic": "sess-1"})

	select {
	case ev := <-c.Events():
		if ev.Kind != types.BackendDisconnected {
			t.Fatalf("kind %d", ev.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no backend event")
	}
}

func TestAccountsChangedEvent(t *testing.T) {
	f := newFakeRelay()
	c, done := newConnector(t, f)
	defer done()

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.pushEvent("session_event", sessionEvent{
		Topic:    "sess-1",
		Name:     "accountsChanged",
		Accounts: []string{"eip155:296:0x0000000000000000000000000000000000000042"},
	})

	select {
	case ev := <-c.Events():
		if ev.Kind != types.BackendAccountsChanged {
			t.Fatalf("kind %d", ev.Kind)
		}
		if len(ev.Accounts) != 1 || ev.Accounts[0] != "0x0000000000000000000000000000000000000042" {
			t.Fatalf("accounts %v", ev.Accounts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no backend event")
	}
}
