package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/xerrors"

	logging "github.com/talentchain/go-walletd/lib/log"
)

var logger = logging.Logger("relay")

// ErrClosed is returned for calls issued after the relay channel is torn down.
var ErrClosed = xerrors.New("relay connection closed")

// Message is one JSON-RPC 2.0 frame on the relay channel. Server-initiated
// frames carry a method and no id; responses carry an id and result/error.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the relay-side failure for one request.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

// Notification is a server-pushed frame (no id).
type Notification struct {
	Method string
	Params json.RawMessage
}

// Client is a websocket relay channel: request/response calls multiplexed
// with server-push notifications over one connection.
type Client struct {
	endpoint string
	conn     *websocket.Conn

	writeLk sync.Mutex

	pendingLk sync.Mutex
	pending   map[string]chan *Message

	notifyCh chan Notification

	closeOnce sync.Once
	closing   chan struct{}
}

// Dial opens the relay channel and starts the read loop.
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, xerrors.Errorf("dial relay %s: %w", endpoint, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close() // nolint: errcheck
	}

	c := &Client{
		endpoint: endpoint,
		conn:     conn,
		pending:  make(map[string]chan *Message),
		notifyCh: make(chan Notification, 16),
		closing:  make(chan struct{}),
	}

	go c.readLoop()

	return c, nil
}

// Call sends one request and waits for its response or ctx cancellation.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, xerrors.Errorf("marshal params for %s: %w", method, err)
		}
		raw = b
	}

	id := uuid.New().String()
	req := Message{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  raw,
	}

	respCh := make(chan *Message, 1)

	c.pendingLk.Lock()
	select {
	case <-c.closing:
		c.pendingLk.Unlock()
		return nil, ErrClosed
	default:
	}
	c.pending[id] = respCh
	c.pendingLk.Unlock()

	defer func() {
		c.pendingLk.Lock()
		delete(c.pending, id)
		c.pendingLk.Unlock()
	}()

	c.writeLk.Lock()
	err := c.conn.WriteJSON(&req)
	c.writeLk.Unlock()
	if err != nil {
		return nil, xerrors.Errorf("relay write %s: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp == nil {
			return nil, ErrClosed
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-c.closing:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Notify sends a fire-and-forget frame.
func (c *Client) Notify(method string, params interface{}) error {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		raw = b
	}

	c.writeLk.Lock()
	defer c.writeLk.Unlock()
	return c.conn.WriteJSON(&Message{JSONRPC: "2.0", Method: method, Params: raw})
}

// Notifications returns the server-push channel. It is closed when the
// connection goes away.
func (c *Client) Notifications() <-chan Notification {
	return c.notifyCh
}

func (c *Client) readLoop() {
	defer func() {
		c.pendingLk.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.pendingLk.Unlock()
		close(c.notifyCh)
	}()

	for {
		select {
		case <-c.closing:
			return
		default:
		}

		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.closing:
			default:
				logger.Debugf("relay read on %s: %s", c.endpoint, err)
				c.close()
			}
			return
		}

		if msg.ID != "" {
			c.pendingLk.Lock()
			ch, ok := c.pending[msg.ID]
			c.pendingLk.Unlock()
			if ok {
				m := msg
				ch <- &m
			}
			continue
		}

		if msg.Method == "" {
			continue
		}

		select {
		case c.notifyCh <- Notification{Method: msg.Method, Params: msg.Params}:
		default:
			// slow consumer; drop rather than stall the read loop
			logger.Warnf("dropping relay notification %s", msg.Method)
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closing)
		c.conn.Close() // nolint: errcheck
	})
}

// Close tears the channel down; pending calls fail with ErrClosed.
func (c *Client) Close() error {
	c.close()
	return nil
}
