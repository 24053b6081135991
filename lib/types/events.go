package types

// EventType names a normalized session lifecycle event.
type EventType string

const (
	// EventConnected fires once per successful connect or silent restore.
	EventConnected EventType = "connected"
	// EventDisconnected fires on explicit or implicit teardown.
	EventDisconnected EventType = "disconnected"
	// EventAccountsChanged is the raw backend notification.
	EventAccountsChanged EventType = "accountsChanged"
	// EventAccountChanged is the normalized session update after a non-empty
	// account switch.
	EventAccountChanged EventType = "accountChanged"
	// EventChainChanged is the normalized chain switch notification.
	EventChainChanged EventType = "chainChanged"
	// EventNetworkMismatch is advisory: the live chain diverges from the
	// configured one.
	EventNetworkMismatch EventType = "networkMismatch"
)

// MismatchPayload carries both sides of a network mismatch.
type MismatchPayload struct {
	Current  string `json:"current"`
	Expected string `json:"expected"`
}

// BackendEventKind tags a connector-originated notification.
type BackendEventKind int

const (
	BackendAccountsChanged BackendEventKind = iota
	BackendChainChanged
	BackendDisconnected
)

// BackendEvent is what a connector pushes up to the session manager; the
// manager normalizes it into lifecycle events.
type BackendEvent struct {
	Kind BackendEventKind
	// Accounts for BackendAccountsChanged; empty slice means revoked.
	Accounts []string
	// Chain for BackendChainChanged, as reported by the backend (hex or
	// decimal string).
	Chain string
}
