// Package session holds the session manager: one state machine that owns
// the current wallet session, drives the backend adapters, persists the
// session record and publishes lifecycle events.
package session

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/xerrors"

	logging "github.com/talentchain/go-walletd/lib/log"
	"github.com/talentchain/go-walletd/lib/types"
	"github.com/talentchain/go-walletd/submodule/connect"
	"github.com/talentchain/go-walletd/submodule/event"
	"github.com/talentchain/go-walletd/submodule/health"
	sstore "github.com/talentchain/go-walletd/submodule/store"
)

var logger = logging.Logger("session")

// State is the manager's connection state. All transitions happen under the
// manager mutex; there are no concurrent writers.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Reconnecting
	Disconnected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

const defaultHealthInterval = 30 * time.Second

// Manager normalizes the three wallet backends behind one session.
type Manager struct {
	reg     *connect.Registry
	store   *sstore.SessionStore
	monitor *health.Monitor
	bus     *event.Bus

	networkName string
	chainID     uint64

	healthInterval time.Duration

	lk    sync.Mutex
	state State
	sess  *types.Session
	conn  connect.Connector
	stop  chan struct{}
}

func NewManager(reg *connect.Registry, st *sstore.SessionStore, monitor *health.Monitor, bus *event.Bus, networkName string, chainID uint64) *Manager {
	return &Manager{
		reg:            reg,
		store:          st,
		monitor:        monitor,
		bus:            bus,
		networkName:    networkName,
		chainID:        chainID,
		healthInterval: defaultHealthInterval,
		state:          Idle,
	}
}

// CurrentState returns the connection state.
func (m *Manager) CurrentState() State {
	m.lk.Lock()
	defer m.lk.Unlock()
	return m.state
}

// Current returns the live session, nil when not connected.
func (m *Manager) Current() *types.Session {
	m.lk.Lock()
	defer m.lk.Unlock()
	if m.state != Connected {
		return nil
	}
	return m.sess
}

func (m *Manager) IsConnected() bool {
	return m.Current() != nil
}

// Connect runs the interactive handshake against the bt adapter. A connect
// already in flight or an established session fails fast; the adapter is
// never invoked twice concurrently.
func (m *Manager) Connect(ctx context.Context, bt types.BackendType) (*types.Session, error) {
	m.lk.Lock()
	switch m.state {
	case Connecting, Reconnecting:
		m.lk.Unlock()
		return nil, types.ErrAlreadyConnecting
	case Connected:
		m.lk.Unlock()
		return nil, types.ErrAlreadyConnected
	}
	m.state = Connecting
	m.lk.Unlock()

	conn, err := m.reg.Get(bt)
	if err != nil {
		m.setState(Disconnected)
		return nil, err
	}

	// interactive; runs outside the lock so state queries stay responsive
	sess, err := conn.Connect(ctx)
	if err != nil {
		m.setState(Disconnected)
		return nil, err
	}

	m.lk.Lock()
	m.establish(conn, sess)
	m.lk.Unlock()

	m.bus.Emit(types.EventConnected, sess)
	return sess, nil
}

// Start attempts a silent restore of the persisted session. Failures are
// logged, never returned: a broken restore leaves the manager Disconnected
// until an explicit Connect. The record survives unless the backend reports
// a definite ownership change.
func (m *Manager) Start(ctx context.Context) error {
	rec, err := m.store.Load()
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	m.lk.Lock()
	if m.state != Idle && m.state != Disconnected {
		m.lk.Unlock()
		return nil
	}
	m.state = Reconnecting
	m.lk.Unlock()

	conn, err := m.reg.Get(rec.Backend)
	if err != nil {
		logger.Warnf("restore %s: %s", rec.Backend, err)
		m.setState(Disconnected)
		return nil
	}

	sess, err := conn.Restore(ctx, rec)
	if err != nil {
		if xerrors.Is(err, types.ErrAccountMismatch) {
			logger.Warnf("restore %s: account changed, dropping record: %s", rec.Backend, err)
			if cerr := m.store.Clear(); cerr != nil {
				logger.Warnf("clear session record: %s", cerr)
			}
		} else {
			logger.Infof("restore %s: %s", rec.Backend, err)
		}
		m.setState(Disconnected)
		return nil
	}

	if !m.monitor.Healthy(ctx, conn, sess) {
		logger.Infof("restore %s: restored session unhealthy", rec.Backend)
		m.setState(Disconnected)
		return nil
	}

	m.lk.Lock()
	m.establish(conn, sess)
	m.lk.Unlock()

	m.bus.Emit(types.EventConnected, sess)
	return nil
}

// establish installs the session and starts the event pump and health
// ticker. Caller holds the lock.
func (m *Manager) establish(conn connect.Connector, sess *types.Session) {
	m.conn = conn
	m.sess = sess
	m.state = Connected
	m.stop = make(chan struct{})

	if err := m.store.Save(sess.Record()); err != nil {
		logger.Warnf("persist session: %s", err)
	}

	go m.pump(conn, m.stop)
	go m.healthLoop(conn, m.stop)
}

// Disconnect tears the session down. Idempotent: disconnecting while
// already down is a no-op and emits nothing.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.lk.Lock()
	if m.state != Connected && m.state != Reconnecting {
		m.lk.Unlock()
		return nil
	}
	conn := m.conn
	m.teardown()
	m.lk.Unlock()

	if conn != nil {
		if err := conn.Disconnect(ctx); err != nil {
			logger.Warnf("backend disconnect: %s", err)
		}
	}
	if err := m.store.Clear(); err != nil {
		logger.Warnf("clear session record: %s", err)
	}

	m.bus.Emit(types.EventDisconnected, nil)
	return nil
}

// ResetConnectionState force-clears everything locally and leaves the
// manager Disconnected. No adapter calls, no events; the escape hatch for
// stuck UI state.
func (m *Manager) ResetConnectionState() {
	m.lk.Lock()
	m.teardown()
	m.lk.Unlock()

	if err := m.store.Clear(); err != nil {
		logger.Warnf("clear session record: %s", err)
	}
}

// teardown drops the live session and stops its background tasks. Caller
// holds the lock.
func (m *Manager) teardown() {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	m.conn = nil
	m.sess = nil
	m.state = Disconnected
}

func (m *Manager) setState(s State) {
	m.lk.Lock()
	m.state = s
	m.lk.Unlock()
}

// Balance reads a fresh balance for the current account and refreshes the
// cached snapshot.
func (m *Manager) Balance(ctx context.Context) (string, error) {
	m.lk.Lock()
	if m.state != Connected {
		m.lk.Unlock()
		return "", types.ErrNotConnected
	}
	conn, account := m.conn, m.sess.AccountID
	m.lk.Unlock()

	bal, err := conn.Balance(ctx, account)
	if err != nil {
		return "", err
	}

	m.lk.Lock()
	if m.state == Connected && m.sess != nil && m.sess.AccountID == account {
		m.sess.Balance = bal
	}
	m.lk.Unlock()
	return bal, nil
}

func (m *Manager) signer() (types.Signer, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	if m.state != Connected || m.sess == nil || m.sess.Signer == nil {
		return nil, types.ErrNotConnected
	}
	return m.sess.Signer, nil
}

// SignMessage signs msg with the current session. Interactive.
func (m *Manager) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	s, err := m.signer()
	if err != nil {
		return nil, err
	}
	return s.SignMessage(ctx, msg)
}

// SendTransaction submits tx through the current session. Interactive.
func (m *Manager) SendTransaction(ctx context.Context, tx *types.TxRequest) (string, error) {
	s, err := m.signer()
	if err != nil {
		return "", err
	}
	return s.SendTransaction(ctx, tx)
}

// CheckHealth probes the live connection.
func (m *Manager) CheckHealth(ctx context.Context) bool {
	m.lk.Lock()
	if m.state != Connected {
		m.lk.Unlock()
		return false
	}
	conn, sess := m.conn, m.sess
	m.lk.Unlock()

	return m.monitor.Healthy(ctx, conn, sess)
}

// CanRestore reports whether a persisted session could be restored without
// prompting. Advisory, touches nothing.
func (m *Manager) CanRestore(ctx context.Context) bool {
	rec, err := m.store.Load()
	if err != nil || rec == nil {
		return false
	}
	conn, err := m.reg.Get(rec.Backend)
	if err != nil {
		return false
	}
	return m.monitor.CanRestoreSilently(ctx, conn, rec)
}

// On registers handler for ev; handler must be a func taking one payload
// argument.
func (m *Manager) On(ev types.EventType, handler interface{}) error {
	return m.bus.On(ev, handler)
}

func (m *Manager) Off(ev types.EventType, handler interface{}) error {
	return m.bus.Off(ev, handler)
}

// pump normalizes backend notifications for one established connection.
// stopCh fences the pump to its own session generation: once teardown
// closes it, leftover events from the old connection are dropped.
func (m *Manager) pump(conn connect.Connector, stopCh chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case ev, ok := <-conn.Events():
			if !ok {
				return
			}
			select {
			case <-stopCh:
				return
			default:
			}
			m.handleBackendEvent(conn, ev)
		}
	}
}

func (m *Manager) handleBackendEvent(conn connect.Connector, ev types.BackendEvent) {
	m.lk.Lock()
	if m.state != Connected || m.conn != conn {
		m.lk.Unlock()
		return
	}

	switch ev.Kind {
	case types.BackendAccountsChanged:
		m.lk.Unlock()
		m.bus.Emit(types.EventAccountsChanged, ev.Accounts)

		if len(ev.Accounts) == 0 {
			m.implicitDisconnect(conn, true)
			return
		}
		m.switchAccount(conn, ev.Accounts[0])

	case types.BackendChainChanged:
		m.lk.Unlock()
		m.bus.Emit(types.EventChainChanged, ev.Chain)

		cur, err := types.ParseChainID(ev.Chain)
		if err != nil || cur != m.chainID {
			// advisory only: the session stays up, the app decides
			m.bus.Emit(types.EventNetworkMismatch, types.MismatchPayload{
				Current:  ev.Chain,
				Expected: strconv.FormatUint(m.chainID, 10),
			})
		}

	case types.BackendDisconnected:
		m.lk.Unlock()
		m.implicitDisconnect(conn, true)

	default:
		m.lk.Unlock()
	}
}

// implicitDisconnect handles backend-initiated teardown: revoked accounts,
// dead transports, failed health probes.
func (m *Manager) implicitDisconnect(conn connect.Connector, clearRecord bool) {
	m.lk.Lock()
	if m.state != Connected || m.conn != conn {
		m.lk.Unlock()
		return
	}
	m.teardown()
	m.lk.Unlock()

	if clearRecord {
		if err := m.store.Clear(); err != nil {
			logger.Warnf("clear session record: %s", err)
		}
	}
	m.bus.Emit(types.EventDisconnected, nil)
}

// switchAccount re-derives the session for a new active account on the same
// backend, then announces the normalized change.
func (m *Manager) switchAccount(conn connect.Connector, account string) {
	bal, err := conn.Balance(context.Background(), account)
	if err != nil {
		logger.Warnf("balance for switched account %s: %s", account, err)
		bal = "0"
	}

	m.lk.Lock()
	if m.state != Connected || m.conn != conn {
		m.lk.Unlock()
		return
	}
	m.sess.AccountID = strings.ToLower(account)
	m.sess.DisplayAddress = account
	m.sess.Balance = bal
	sess := m.sess
	if err := m.store.Save(sess.Record()); err != nil {
		logger.Warnf("persist switched session: %s", err)
	}
	m.lk.Unlock()

	m.bus.Emit(types.EventAccountChanged, sess)
}

// healthLoop periodically probes the live connection; a failed probe tears
// the session down but keeps the record, so a later restore can revive it.
func (m *Manager) healthLoop(conn connect.Connector, stopCh chan struct{}) {
	ticker := time.NewTicker(m.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}

		m.lk.Lock()
		if m.state != Connected || m.conn != conn {
			m.lk.Unlock()
			return
		}
		sess := m.sess
		m.lk.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.healthInterval)
		ok := m.monitor.Healthy(ctx, conn, sess)
		cancel()
		if ok {
			continue
		}

		logger.Warnf("health probe failed for %s, dropping session", sess.Backend)
		m.implicitDisconnect(conn, false)
		return
	}
}
