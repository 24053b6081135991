package types

import "errors"

// Wallet error taxonomy. Connectors map backend-specific failures onto these
// sentinels (wrapped with context via xerrors) so callers can classify with
// errors.Is.
var (
	// ErrWalletUnavailable: backend not installed or not reachable.
	ErrWalletUnavailable = errors.New("wallet backend unavailable")
	// ErrUserRejected: the human declined the request.
	ErrUserRejected = errors.New("user rejected request")
	// ErrTimeout: no response within the bounded interval.
	ErrTimeout = errors.New("wallet request timed out")
	// ErrNetworkMismatch: session chain cannot be reconciled with the
	// configured one.
	ErrNetworkMismatch = errors.New("network mismatch")
	// ErrNotRestorable: silent restore impossible; a normal negative, not a
	// fault.
	ErrNotRestorable = errors.New("session not restorable without prompt")
	// ErrAccountMismatch: the backend exposes a different authorized account
	// than the saved session; a definite ownership change.
	ErrAccountMismatch = errors.New("authorized account differs from saved session")
	// ErrTransport: backend-originated failure during signing/submission.
	ErrTransport = errors.New("wallet transport error")

	ErrAlreadyConnecting = errors.New("connect already in progress")
	ErrAlreadyConnected  = errors.New("already connected")
	ErrNotConnected      = errors.New("not connected")
	ErrInvalidState      = errors.New("operation invalid in current state")
)
