package evm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"golang.org/x/xerrors"

	"github.com/talentchain/go-walletd/lib/types"
)

// fakeProvider is an in-process stand-in for an extension EVM provider.
type fakeProvider struct {
	mu sync.Mutex

	authorized []string // accounts exposed without a prompt
	prompted   []string // accounts granted by eth_requestAccounts
	chainID    string
	known      map[string]bool // chains the wallet recognizes
	reject     bool            // human declines everything
}

type rpcReq struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (f *fakeProvider) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rpcReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()

		fail := func(code int, msg string) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]interface{}{"code": code, "message": msg},
			})
		}
		ok := func(result interface{}) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"jsonrpc": "2.0", "id": req.ID, "result": result,
			})
		}

		switch req.Method {
		case "web3_clientVersion":
			ok("FakeWallet/1.0")
		case "eth_requestAccounts":
			if f.reject {
				fail(4001, "User rejected the request.")
				return
			}
			f.authorized = f.prompted
			ok(f.prompted)
		case "eth_accounts":
			ok(f.authorized)
		case "eth_chainId":
			ok(f.chainID)
		case "wallet_switchEthereumChain":
			var param struct {
				ChainID string `json:"chainId"`
			}
			json.Unmarshal(req.Params[0], &param)
			if !f.known[param.ChainID] {
				fail(4902, "Unrecognized chain ID.")
				return
			}
			f.chainID = param.ChainID
			ok(nil)
		case "wallet_addEthereumChain":
			var param struct {
				ChainID string `json:"chainId"`
			}
			json.Unmarshal(req.Params[0], &param)
			f.known[param.ChainID] = true
			f.chainID = param.ChainID
			ok(nil)
		case "eth_getBalance":
			ok("0x3e8") // 1000
		case "personal_sign":
			ok("0xdeadbeef")
		case "eth_sendTransaction":
			ok("0xtxhash00000000000000000000000000000000000000000000000000000001")
		default:
			fail(-32601, "method not found")
		}
	}
}

const testAccount = "0xABC0000000000000000000000000000000000001"

func newFake() *fakeProvider {
	return &fakeProvider{
		prompted: []string{testAccount},
		chainID:  "0x128",
		known:    map[string]bool{"0x128": true},
	}
}

func startConnector(t *testing.T, f *fakeProvider) *Connector {
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	c := New(srv.URL, "testnet", 296)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConnect(t *testing.T) {
	c := startConnector(t, newFake())

	sess, err := c.Connect(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if sess.Backend != types.InjectedProvider {
		t.Fatal("wrong backend type")
	}
	if sess.AccountID != "0xabc0000000000000000000000000000000000001" {
		t.Fatalf("account not normalized: %s", sess.AccountID)
	}
	if sess.DisplayAddress != testAccount {
		t.Fatal("display address should keep provider casing")
	}
	if sess.NetworkName != "testnet" || sess.ChainID != 296 {
		t.Fatal("wrong network binding")
	}
	if sess.Balance != "1000" {
		t.Fatalf("wrong balance snapshot: %s", sess.Balance)
	}
	if sess.Signer == nil {
		t.Fatal("session missing signer")
	}
}

func TestConnectRejected(t *testing.T) {
	f := newFake()
	f.reject = true
	c := startConnector(t, f)

	_, err := c.Connect(context.Background())
	if !xerrors.Is(err, types.ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected, got %v", err)
	}
}

func TestConnectSwitchesChain(t *testing.T) {
	f := newFake()
	f.chainID = "0x1"
	f.known = map[string]bool{"0x1": true} // target chain unknown, must be added
	c := startConnector(t, f)

	sess, err := c.Connect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sess.ChainID != 296 {
		t.Fatal("chain not reconciled")
	}
	if f.chainID != "0x128" {
		t.Fatal("wallet chain not switched")
	}
}

func TestRestore(t *testing.T) {
	f := newFake()
	f.authorized = []string{testAccount}
	c := startConnector(t, f)

	rec := &types.SessionRecord{
		Backend:   types.InjectedProvider,
		AccountID: "0xabc0000000000000000000000000000000000001",
		ChainID:   296,
	}

	sess, err := c.Restore(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if !sess.Usable() {
		t.Fatal("restored session should carry a fresh signer")
	}
}

func TestRestoreLocked(t *testing.T) {
	f := newFake()
	f.authorized = nil // locked: nothing exposed silently
	c := startConnector(t, f)

	_, err := c.Restore(context.Background(), &types.SessionRecord{AccountID: "0xabc"})
	if !xerrors.Is(err, types.ErrNotRestorable) {
		t.Fatalf("expected ErrNotRestorable, got %v", err)
	}
}

func TestRestoreOwnershipChange(t *testing.T) {
	f := newFake()
	f.authorized = []string{"0xFFF0000000000000000000000000000000000009"}
	c := startConnector(t, f)

	_, err := c.Restore(context.Background(), &types.SessionRecord{
		AccountID: "0xabc0000000000000000000000000000000000001",
	})
	if !xerrors.Is(err, types.ErrAccountMismatch) {
		t.Fatalf("expected ErrAccountMismatch, got %v", err)
	}
}

func TestSignAndSend(t *testing.T) {
	c := startConnector(t, newFake())

	sess, err := c.Connect(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	sig, err := sess.Signer.SignMessage(context.Background(), []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sig) == 0 {
		t.Fatal("empty signature")
	}

	txID, err := sess.Signer.SendTransaction(context.Background(), &types.TxRequest{
		To:    "0x000000000000000000000000000000000000dead",
		Value: "100",
	})
	if err != nil {
		t.Fatal(err)
	}
	if txID == "" {
		t.Fatal("empty tx id")
	}
}
