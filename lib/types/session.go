package types

import (
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/xerrors"
)

// BackendType names one concrete wallet technology.
type BackendType int

const (
	UnknownBackend BackendType = iota
	// NativeLedger is the ledger wallet reached through its own relay channel.
	NativeLedger
	// InjectedProvider is an extension EVM provider reachable over JSON-RPC.
	InjectedProvider
	// RelayProtocol is the generic relay-session protocol.
	RelayProtocol
)

func (bt BackendType) String() string {
	switch bt {
	case NativeLedger:
		return "ledger"
	case InjectedProvider:
		return "injected"
	case RelayProtocol:
		return "relay"
	default:
		return "unknown"
	}
}

// ParseBackendType maps a wire/cli name to its BackendType.
func ParseBackendType(s string) (BackendType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ledger", "nativeledger":
		return NativeLedger, nil
	case "injected", "injectedprovider", "evm":
		return InjectedProvider, nil
	case "relay", "relayprotocol":
		return RelayProtocol, nil
	default:
		return UnknownBackend, xerrors.Errorf("unknown backend type %q", s)
	}
}

func (bt BackendType) MarshalJSON() ([]byte, error) {
	return json.Marshal(bt.String())
}

func (bt *BackendType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := ParseBackendType(s)
	if err != nil {
		return err
	}
	*bt = t
	return nil
}

// Signer is the signing handle of a live session. It is owned by the
// connector that created it and is only valid while that connector's
// transport is alive.
type Signer interface {
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
	SendTransaction(ctx context.Context, tx *TxRequest) (string, error)
}

// Session is the in-memory unit of truth for "connected as account X via
// backend Y". At most one session is current at a time.
type Session struct {
	Backend        BackendType
	AccountID      string // ledger account id (0.0.x) or hex address
	DisplayAddress string
	Balance        string // last-known native balance, cache only
	NetworkName    string
	ChainID        uint64

	// PairingTopic identifies the relay pairing for relay-based backends;
	// empty for the injected provider.
	PairingTopic string

	// Signer is nil for a restored-but-unhydrated session.
	Signer Signer
}

// Usable reports whether the session can sign.
func (s *Session) Usable() bool {
	return s != nil && s.Signer != nil
}

// Record returns the serializable subset of the session.
func (s *Session) Record() *SessionRecord {
	return &SessionRecord{
		Backend:        s.Backend,
		AccountID:      s.AccountID,
		DisplayAddress: s.DisplayAddress,
		Balance:        s.Balance,
		NetworkName:    s.NetworkName,
		ChainID:        s.ChainID,
		PairingTopic:   s.PairingTopic,
	}
}

// SessionRecord is the persisted session descriptor. The signing handle
// cannot survive a restart and is deliberately absent.
type SessionRecord struct {
	Backend        BackendType `json:"backend"`
	AccountID      string      `json:"accountId"`
	DisplayAddress string      `json:"displayAddress"`
	Balance        string      `json:"balance"`
	NetworkName    string      `json:"networkName"`
	ChainID        uint64      `json:"chainId"`
	PairingTopic   string      `json:"pairingTopic,omitempty"`
}

// SessionKey is the single well-known store key; absent key means no session.
var SessionKey = []byte("session/current")

// Session rebuilds an in-memory session from the record; the signer stays
// nil until a connector rehydrates it.
func (r *SessionRecord) Session() *Session {
	return &Session{
		Backend:        r.Backend,
		AccountID:      r.AccountID,
		DisplayAddress: r.DisplayAddress,
		Balance:        r.Balance,
		NetworkName:    r.NetworkName,
		ChainID:        r.ChainID,
		PairingTopic:   r.PairingTopic,
	}
}

// SameAccount compares account identifiers, case-insensitively for hex
// addresses.
func SameAccount(a, b string) bool {
	if strings.HasPrefix(a, "0x") || strings.HasPrefix(b, "0x") {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// TxRequest is a normalized transaction submission.
type TxRequest struct {
	To    string `json:"to"`
	Value string `json:"value,omitempty"` // decimal, smallest unit
	Data  string `json:"data,omitempty"`  // 0x-prefixed
	Gas   uint64 `json:"gas,omitempty"`
}
