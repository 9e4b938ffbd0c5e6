// Package obs is a minimal obs-websocket v5 client.
package obs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is matched by request errors whose target does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrClosed is returned once the connection is gone.
	ErrClosed = errors.New("obs connection closed")
)

// Screenshots are delivered inline as base64 PNG.
const readLimit = 64 << 20

// meterTTL is how long a volume meter reading stays valid.
const meterTTL = 3 * time.Second

// RequestError is a request OBS answered with a failure status.
type RequestError struct {
	RequestType string
	Code        int
	Comment     string
}

func (e *RequestError) Error() string {
	if e.Comment != "" {
		return fmt.Sprintf("obs %s failed (code %d): %s", e.RequestType, e.Code, e.Comment)
	}
	return fmt.Sprintf("obs %s failed (code %d)", e.RequestType, e.Code)
}

// Is matches ErrNotFound for ResourceNotFound responses.
func (e *RequestError) Is(target error) bool {
	return target == ErrNotFound && e.Code == CodeResourceNotFound
}

// Options configures a connection.
type Options struct {
	URL                string
	Password           string
	Timeout            time.Duration
	EventSubscriptions int
	Logger             *slog.Logger
}

type meterReading struct {
	level float64
	at    time.Time
}

// Client is a connected obs-websocket session.
type Client struct {
	conn    *websocket.Conn
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	pending map[string]chan *requestResponse
	meters  map[string]meterReading
	err     error

	closeOnce sync.Once
}

// Dial connects to OBS and completes the Hello/Identify handshake.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	conn, _, err := websocket.Dial(ctx, opts.URL, &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to obs at %s: %w", opts.URL, err)
	}
	conn.SetReadLimit(readLimit)

	negotiated, err := handshake(ctx, conn, opts)
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "handshake failed")
		return nil, err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		now:     time.Now,
		cancel:  cancel,
		done:    make(chan struct{}),
		pending: make(map[string]chan *requestResponse),
		meters:  make(map[string]meterReading),
	}
	go c.readLoop(readCtx)

	opts.Logger.Debug("connected to obs", "url", opts.URL, "rpc_version", negotiated)
	return c, nil
}

func handshake(ctx context.Context, conn *websocket.Conn, opts Options) (int, error) {
	var msg message
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		return 0, fmt.Errorf("read hello: %w", err)
	}
	if msg.Op != OpHello {
		return 0, fmt.Errorf("expected hello, got op %d", msg.Op)
	}
	var h hello
	if err := json.Unmarshal(msg.D, &h); err != nil {
		return 0, fmt.Errorf("decode hello: %w", err)
	}

	id := identify{RPCVersion: RPCVersion, EventSubscriptions: opts.EventSubscriptions}
	if h.Authentication != nil {
		if opts.Password == "" {
			return 0, errors.New("obs requires a password")
		}
		id.Authentication = AuthResponse(opts.Password, h.Authentication.Salt, h.Authentication.Challenge)
	}
	if err := wsjson.Write(ctx, conn, outgoing{Op: OpIdentify, D: id}); err != nil {
		return 0, fmt.Errorf("send identify: %w", err)
	}

	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		if status := websocket.CloseStatus(err); status != -1 {
			return 0, fmt.Errorf("obs rejected identify (close %d): %w", status, err)
		}
		return 0, fmt.Errorf("read identified: %w", err)
	}
	if msg.Op != OpIdentified {
		return 0, fmt.Errorf("expected identified, got op %d", msg.Op)
	}
	var ack identified
	if err := json.Unmarshal(msg.D, &ack); err != nil {
		return 0, fmt.Errorf("decode identified: %w", err)
	}
	return ack.NegotiatedRPCVersion, nil
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.done)

	for {
		var msg message
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			c.fail(err)
			return
		}

		switch msg.Op {
		case OpRequestResponse:
			var resp requestResponse
			if err := json.Unmarshal(msg.D, &resp); err != nil {
				c.logger.Warn("discarding malformed obs response", "error", err)
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[resp.RequestID]
			delete(c.pending, resp.RequestID)
			c.mu.Unlock()
			if ok {
				ch <- &resp
			}
		case OpEvent:
			var ev event
			if err := json.Unmarshal(msg.D, &ev); err != nil {
				c.logger.Warn("discarding malformed obs event", "error", err)
				continue
			}
			c.handleEvent(ev)
		}
	}
}

func (c *Client) handleEvent(ev event) {
	if ev.EventType != "InputVolumeMeters" {
		return
	}
	var data inputVolumeMeters
	if err := json.Unmarshal(ev.EventData, &data); err != nil {
		c.logger.Debug("bad InputVolumeMeters payload", "error", err)
		return
	}

	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, in := range data.Inputs {
		level := 0.0
		for _, ch := range in.InputLevelsMul {
			if len(ch) > 0 && ch[0] > level {
				level = ch[0]
			}
		}
		c.meters[in.InputName] = meterReading{level: level, at: now}
	}
}

// MeterLevel returns the latest magnitude reported for an input.
// Readings older than a few seconds count as absent.
func (c *Client) MeterLevel(input string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.meters[input]
	if !ok || c.now().Sub(r.at) > meterTTL {
		return 0, false
	}
	return r.level, true
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = fmt.Errorf("%w: %v", ErrClosed, err)
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Request sends a raw request and decodes responseData into out when non-nil.
func (c *Client) Request(ctx context.Context, requestType string, data, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	id := uuid.NewString()
	ch := make(chan *requestResponse, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := request{RequestType: requestType, RequestID: id, RequestData: data}
	if err := wsjson.Write(ctx, c.conn, outgoing{Op: OpRequest, D: req}); err != nil {
		return fmt.Errorf("send %s: %w", requestType, err)
	}

	var resp *requestResponse
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", requestType, ctx.Err())
	case r, ok := <-ch:
		if !ok {
			return c.Err()
		}
		resp = r
	}

	if !resp.RequestStatus.Result {
		return &RequestError{
			RequestType: requestType,
			Code:        resp.RequestStatus.Code,
			Comment:     resp.RequestStatus.Comment,
		}
	}
	if out != nil && len(resp.ResponseData) > 0 {
		if err := json.Unmarshal(resp.ResponseData, out); err != nil {
			return fmt.Errorf("decode %s response: %w", requestType, err)
		}
	}
	return nil
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close ends the session.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		alreadyGone := c.Err() != nil
		err = c.conn.Close(websocket.StatusNormalClosure, "")
		c.cancel()
		<-c.done
		if alreadyGone {
			err = nil
		}
	})
	return err
}
