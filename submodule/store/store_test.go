package store

import (
	"testing"

	"github.com/talentchain/go-walletd/lib/backend/kv"
	"github.com/talentchain/go-walletd/lib/types"
)

func newTestStore() (*SessionStore, *kv.MemStore) {
	ms := kv.NewMemStore()
	return NewSessionStore(ms), ms
}

func TestRoundTrip(t *testing.T) {
	s, _ := newTestStore()

	rec := &types.SessionRecord{
		Backend:        types.RelayProtocol,
		AccountID:      "0xabc0000000000000000000000000000000000001",
		DisplayAddress: "0xABC0000000000000000000000000000000000001",
		Balance:        "1000",
		NetworkName:    "testnet",
		ChainID:        296,
		PairingTopic:   "topic-77",
	}

	if err := s.Save(rec); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("record absent after save")
	}
	if *got != *rec {
		t.Fatalf("round trip mismatch: %+v != %+v", got, rec)
	}
}

func TestLoadAbsent(t *testing.T) {
	s, _ := newTestStore()

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("expected absent record")
	}
}

func TestLoadCorruptClears(t *testing.T) {
	s, ms := newTestStore()

	if err := ms.Put(types.SessionKey, []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("corrupt record should read as absent")
	}

	has, err := ms.Has(types.SessionKey)
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Fatal("corrupt record should be removed")
	}
}

func TestSaveOverwrites(t *testing.T) {
	s, _ := newTestStore()

	first := &types.SessionRecord{Backend: types.NativeLedger, AccountID: "0.0.1001"}
	second := &types.SessionRecord{Backend: types.NativeLedger, AccountID: "0.0.2002"}

	if err := s.Save(first); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(second); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.AccountID != "0.0.2002" {
		t.Fatal("save did not overwrite")
	}
}

func TestClearIdempotent(t *testing.T) {
	s, _ := newTestStore()

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(&types.SessionRecord{Backend: types.RelayProtocol, AccountID: "0xdead"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("record should be gone")
	}
}
