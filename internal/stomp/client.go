package stomp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"matchme-client/internal/telemetry"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/go-stomp/stomp/v3/frame"
	"go.opentelemetry.io/otel/attribute"
)

/*
LEARNING: ONE SOCKET, TWO PUMPS

Each live connection has exactly one reader goroutine and one writer goroutine,
the same split the UI hub uses for its clients:

  - the reader decodes frames and hands MESSAGE frames to subscription handlers in
    arrival order (so per-topic ordering comes for free)
  - the writer owns every socket write, drains a queued send channel and emits
    heart-beats on the negotiated interval

A supervisor goroutine started by Activate dials, runs one connection to
completion, then waits a fixed delay and dials again until Deactivate.
*/

var (
	ErrNotConnected = errors.New("stomp: not connected")
	ErrClosed       = errors.New("stomp: client deactivated")

	errServerError = errors.New("stomp: server sent ERROR frame")
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	sendBuffer       = 256
)

type Config struct {
	URL               string
	ConnectHeaders    map[string]string
	ReconnectDelay    time.Duration
	HeartbeatIncoming time.Duration
	HeartbeatOutgoing time.Duration
	Dialer            *websocket.Dialer

	OnConnect    func()
	OnDisconnect func(err error)
	OnStompError func(f *frame.Frame)

	Logger *slog.Logger
}

type Client struct {
	cfg Config
	log *slog.Logger

	mu     sync.Mutex
	active bool
	conn   *connection
	subs   map[string]*Subscription
	nextID int
	cancel context.CancelFunc
}

// Subscription is one SUBSCRIBE bound to a destination. It survives reconnects
// until Unsubscribe is called.
type Subscription struct {
	ID          string
	Destination string

	handler func(*frame.Frame)
	client  *Client
}

func NewClient(cfg Config) *Client {
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		log:  logger,
		subs: make(map[string]*Subscription),
	}
}

// Activate starts the connect loop. Calling it on an active client does nothing.
func (c *Client) Activate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return
	}
	c.active = true

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)
}

// Deactivate stops reconnecting and closes the live connection, if any. It does
// not wait for the supervisor goroutine, so it is safe to call from callbacks.
func (c *Client) Deactivate() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.cancel()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		receipt := "disconnect-" + uuid.NewString()
		_ = conn.enqueue(Encode(frame.New(frame.DISCONNECT, frame.Receipt, receipt)))
		conn.close(ErrClosed)
	}
}

func (c *Client) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Subscribe registers handler for destination. When connected the SUBSCRIBE is sent
// immediately; otherwise it goes out with the next successful connect.
func (c *Client) Subscribe(destination string, handler func(*frame.Frame)) (*Subscription, error) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.nextID++
	sub := &Subscription{
		ID:          fmt.Sprintf("sub-%d", c.nextID),
		Destination: destination,
		handler:     handler,
		client:      c,
	}
	c.subs[sub.ID] = sub
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		if err := conn.enqueue(subscribeFrame(sub)); err != nil {
			c.log.Debug("stomp: subscribe deferred to next connect", "destination", destination, "error", err)
		}
	}
	return sub, nil
}

// Unsubscribe is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	c := s.client
	c.mu.Lock()
	if _, ok := c.subs[s.ID]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.subs, s.ID)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.enqueue(Encode(frame.New(frame.UNSUBSCRIBE, frame.Id, s.ID)))
	}
}

// Publish sends a SEND frame with a JSON body.
func (c *Client) Publish(destination string, body []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	f := frame.New(frame.SEND,
		frame.Destination, destination,
		frame.ContentType, "application/json",
	)
	f.Body = body
	return conn.enqueue(Encode(f))
}

func (c *Client) run(ctx context.Context) {
	for {
		c.connectOnce(ctx)

		select {
		case <-ctx.Done():
			c.log.Debug("stomp: connect loop stopped")
			return
		case <-time.After(c.cfg.ReconnectDelay):
			c.log.Info("stomp: reconnecting", "url", c.cfg.URL)
		}
	}
}

// connectOnce dials, runs one connection until it closes, and reports how it ended.
func (c *Client) connectOnce(ctx context.Context) {
	conn, err := c.handshake(ctx)
	if err != nil {
		if errors.Is(err, errServerError) || ctx.Err() != nil {
			return
		}
		c.log.Warn("stomp: connection failed", "url", c.cfg.URL, "error", err)
		c.notifyDisconnect(err)
		return
	}

	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		conn.close(ErrClosed)
		conn.ws.Close()
		return
	}
	c.conn = conn
	// SUBSCRIBE frames for subscriptions that outlived the previous connection
	resubscribe := make([][]byte, 0, len(c.subs))
	for _, sub := range c.subs {
		resubscribe = append(resubscribe, subscribeFrame(sub))
	}
	c.mu.Unlock()

	go conn.writePump()
	for _, f := range resubscribe {
		_ = conn.enqueue(f)
	}

	c.log.Info("stomp: connected", "url", c.cfg.URL, "resubscribed", len(resubscribe))
	if c.cfg.OnConnect != nil {
		c.cfg.OnConnect()
	}

	err = c.readPump(conn)
	conn.close(err)

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	if errors.Is(err, errServerError) {
		return
	}
	c.log.Info("stomp: disconnected", "error", err)
	c.notifyDisconnect(err)
}

func (c *Client) handshake(ctx context.Context) (*connection, error) {
	ctx, span := telemetry.StartSpan(ctx, "stomp.Handshake", attribute.String("url", c.cfg.URL))
	defer span.End()

	ws, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		telemetry.AddSpanError(ctx, err)
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2",
		frame.HeartBeat, fmt.Sprintf("%d,%d",
			c.cfg.HeartbeatOutgoing.Milliseconds(), c.cfg.HeartbeatIncoming.Milliseconds()),
	)
	if u, err := url.Parse(c.cfg.URL); err == nil {
		connect.Header.Set(frame.Host, u.Hostname())
	}
	for k, v := range c.cfg.ConnectHeaders {
		connect.Header.Set(k, v)
	}

	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, Encode(connect)); err != nil {
		ws.Close()
		telemetry.AddSpanError(ctx, err)
		return nil, fmt.Errorf("send CONNECT: %w", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			ws.Close()
			telemetry.AddSpanError(ctx, err)
			return nil, fmt.Errorf("await CONNECTED: %w", err)
		}
		frames, err := Decode(data)
		if err != nil {
			ws.Close()
			telemetry.AddSpanError(ctx, err)
			return nil, err
		}
		if len(frames) == 0 {
			continue
		}

		f := frames[0]
		switch f.Command {
		case frame.CONNECTED:
			_ = ws.SetReadDeadline(time.Time{})
			in, out := c.negotiate(f.Header.Get(frame.HeartBeat))
			span.SetAttributes(
				attribute.Int64("heartbeat.in_ms", in.Milliseconds()),
				attribute.Int64("heartbeat.out_ms", out.Milliseconds()),
			)
			return newConnection(ws, in, out), nil
		case frame.ERROR:
			ws.Close()
			c.log.Warn("stomp: handshake rejected", "message", f.Header.Get(frame.Message))
			telemetry.AddSpanError(ctx, errServerError)
			if c.cfg.OnStompError != nil {
				c.cfg.OnStompError(f)
			}
			return nil, errServerError
		default:
			ws.Close()
			return nil, fmt.Errorf("%w: expected CONNECTED, got %s", ErrMalformedFrame, f.Command)
		}
	}
}

// negotiate applies the 1.2 heart-beat rules: each direction runs at the slower of
// the two requested rates, or not at all if either side declines.
func (c *Client) negotiate(serverHeartBeat string) (in, out time.Duration) {
	sx, sy := parseHeartBeat(serverHeartBeat)
	cx, cy := c.cfg.HeartbeatOutgoing, c.cfg.HeartbeatIncoming

	if cx > 0 && sy > 0 {
		out = max(cx, sy)
	}
	if cy > 0 && sx > 0 {
		in = max(cy, sx)
	}
	return in, out
}

func (c *Client) readPump(conn *connection) error {
	for {
		if conn.incoming > 0 {
			_ = conn.ws.SetReadDeadline(time.Now().Add(2 * conn.incoming))
		}
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if conn.isClosed() {
				return ErrClosed
			}
			return err
		}

		frames, err := Decode(data)
		if err != nil {
			// Learning: a bad frame is dropped, the connection stays up
			c.log.Warn("stomp: dropping undecodable frame", "error", err)
		}
		for _, f := range frames {
			switch f.Command {
			case frame.MESSAGE:
				c.dispatch(f)
			case frame.ERROR:
				c.log.Warn("stomp: server error", "message", f.Header.Get(frame.Message))
				if c.cfg.OnStompError != nil {
					c.cfg.OnStompError(f)
				}
				return errServerError
			case frame.RECEIPT:
				c.log.Debug("stomp: receipt", "id", f.Header.Get(frame.ReceiptId))
			}
		}
	}
}

func (c *Client) dispatch(f *frame.Frame) {
	c.mu.Lock()
	sub := c.subs[f.Header.Get(frame.Subscription)]
	c.mu.Unlock()

	if sub == nil {
		c.log.Debug("stomp: message for unknown subscription",
			"subscription", f.Header.Get(frame.Subscription), "destination", f.Header.Get(frame.Destination))
		return
	}
	sub.handler(f)
}

func (c *Client) notifyDisconnect(err error) {
	if c.cfg.OnDisconnect != nil {
		c.cfg.OnDisconnect(err)
	}
}

func subscribeFrame(sub *Subscription) []byte {
	return Encode(frame.New(frame.SUBSCRIBE,
		frame.Id, sub.ID,
		frame.Destination, sub.Destination,
	))
}

// connection wraps one websocket for its lifetime.
type connection struct {
	ws       *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	incoming time.Duration
	outgoing time.Duration
}

func newConnection(ws *websocket.Conn, incoming, outgoing time.Duration) *connection {
	return &connection{
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		incoming: incoming,
		outgoing: outgoing,
	}
}

func (c *connection) enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrNotConnected
	}
}

func (c *connection) close(reason error) {
	c.once.Do(func() {
		slog.Debug("stomp: closing connection", "reason", reason)
		close(c.done)
	})
}

func (c *connection) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// writePump is the only goroutine that writes to the socket.
func (c *connection) writePump() {
	var beat <-chan time.Time
	if c.outgoing > 0 {
		ticker := time.NewTicker(c.outgoing)
		defer ticker.Stop()
		beat = ticker.C
	}
	defer c.ws.Close()

	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				c.close(err)
				return
			}
		case <-beat:
			if err := c.write(Heartbeat()); err != nil {
				c.close(err)
				return
			}
		case <-c.done:
			// flush what was queued before close (DISCONNECT, last sends)
			for {
				select {
				case data := <-c.send:
					_ = c.write(data)
				default:
					_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
					_ = c.ws.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (c *connection) write(data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}
