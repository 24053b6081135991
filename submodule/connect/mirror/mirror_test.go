package mirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/xerrors"

	"github.com/talentchain/go-walletd/lib/types"
)

func TestBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/accounts/0.0.1234" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"account":"0.0.1234","balance":{"balance":150000000,"timestamp":"0.0"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	got, err := c.Balance(context.Background(), "0.0.1234")
	if err != nil {
		t.Fatal(err)
	}
	if got != "150000000" {
		t.Fatalf("balance %s", got)
	}
}

func TestBalanceNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Balance(context.Background(), "0.0.9999")
	if !xerrors.Is(err, types.ErrTransport) {
		t.Fatalf("want ErrTransport, got %v", err)
	}
}
