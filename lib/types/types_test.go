package types

import (
	"encoding/json"
	"testing"
)

func TestBackendTypeJSON(t *testing.T) {
	for _, bt := range []BackendType{NativeLedger, InjectedProvider, RelayProtocol} {
		b, err := json.Marshal(bt)
		if err != nil {
			t.Fatal(err)
		}
		var got BackendType
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatal(err)
		}
		if got != bt {
			t.Fatalf("%s != %s", got, bt)
		}
	}

	var bad BackendType
	if err := json.Unmarshal([]byte(`"floppy"`), &bad); err == nil {
		t.Fatal("unknown backend must not parse")
	}
}

func TestParseChainID(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want uint64
	}{
		{"0x128", 296},
		{"296", 296},
		{"0x1", 1},
	} {
		got, err := ParseChainID(tc.in)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Fatalf("%s -> %d, want %d", tc.in, got, tc.want)
		}
	}

	if _, err := ParseChainID("nope"); err == nil {
		t.Fatal("garbage must not parse")
	}

	if HexChainID(296) != "0x128" {
		t.Fatalf("hex %s", HexChainID(296))
	}
}

func TestSameAccount(t *testing.T) {
	if !SameAccount("0xABC0000000000000000000000000000000000001", "0xabc0000000000000000000000000000000000001") {
		t.Fatal("hex addresses compare case-insensitively")
	}
	if SameAccount("0.0.1234", "0.0.4321") {
		t.Fatal("different ledger ids must differ")
	}
	if !SameAccount("0.0.1234", "0.0.1234") {
		t.Fatal("equal ledger ids")
	}
}

func TestSessionRecordRoundTrip(t *testing.T) {
	s := &Session{
		Backend:        RelayProtocol,
		AccountID:      "0xabc0000000000000000000000000000000000001",
		DisplayAddress: "0xABC0000000000000000000000000000000000001",
		Balance:        "42",
		NetworkName:    "testnet",
		ChainID:        296,
		PairingTopic:   "topic-9",
	}

	if s.Usable() {
		t.Fatal("session without signer is not usable")
	}

	rec := s.Record()
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	var back SessionRecord
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}

	restored := back.Session()
	if restored.AccountID != s.AccountID || restored.PairingTopic != s.PairingTopic ||
		restored.ChainID != s.ChainID || restored.Backend != s.Backend {
		t.Fatalf("round trip %+v", restored)
	}
	if restored.Signer != nil {
		t.Fatal("signer never survives persistence")
	}
}
