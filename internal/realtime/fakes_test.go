package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"matchme-client/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var errFakeNotConnected = errors.New("fake: not connected")

type published struct {
	Destination string
	Body        []byte
}

type fakeSub struct {
	topic   string
	handler func(Frame)
	closed  atomic.Bool
}

func (s *fakeSub) Unsubscribe() { s.closed.Store(true) }

// fakeTransport records what the session does and lets tests drive lifecycle
// hooks and inbound frames by hand.
type fakeTransport struct {
	token string
	hooks TransportHooks

	mu          sync.Mutex
	connected   bool
	activated   int
	deactivated int
	subs        []*fakeSub
	published   []published
}

func (f *fakeTransport) Activate() {
	f.mu.Lock()
	f.activated++
	f.mu.Unlock()
}

func (f *fakeTransport) Deactivate() {
	f.mu.Lock()
	f.deactivated++
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Subscribe(destination string, handler func(Frame)) (Unsubscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSub{topic: destination, handler: handler}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeTransport) Publish(destination string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return errFakeNotConnected
	}
	f.published = append(f.published, published{Destination: destination, Body: body})
	return nil
}

func (f *fakeTransport) connect() {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.hooks.OnConnect()
}

func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.hooks.OnDisconnect(err)
}

// deliver hands v to every open subscription on topic, as the reader goroutine
// would.
func (f *fakeTransport) deliver(t *testing.T, topic string, v any) {
	t.Helper()
	body, ok := v.([]byte)
	if !ok {
		var err error
		body, err = json.Marshal(v)
		require.NoError(t, err)
	}
	for _, sub := range f.openSubs(topic) {
		sub.handler(Frame{Destination: topic, Body: body})
	}
}

func (f *fakeTransport) openSubs(topic string) []*fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeSub
	for _, s := range f.subs {
		if s.topic == topic && !s.closed.Load() {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeTransport) subscribeCalls(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subs {
		if s.topic == topic {
			n++
		}
	}
	return n
}

func (f *fakeTransport) publishedTo(destination string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, p := range f.published {
		if p.Destination == destination {
			out = append(out, p)
		}
	}
	return out
}

type fakeFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
	calls      int

	// hold, when set, parks the first build until it is closed; entered is
	// closed once that build is parked
	hold    chan struct{}
	entered chan struct{}
}

func (ff *fakeFactory) build(token string, hooks TransportHooks) Transport {
	ff.mu.Lock()
	ff.calls++
	first := ff.calls == 1
	ff.mu.Unlock()

	if first && ff.hold != nil {
		close(ff.entered)
		<-ff.hold
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()
	t := &fakeTransport{token: token, hooks: hooks}
	ff.transports = append(ff.transports, t)
	return t
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.transports)
}

func (ff *fakeFactory) buildCalls() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.calls
}

func (f *fakeTransport) activations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activated
}

func (ff *fakeFactory) last() *fakeTransport {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.transports[len(ff.transports)-1]
}

type fakeIdentity struct {
	id    int64
	err   error
	calls atomic.Int32
}

func (f *fakeIdentity) Me(context.Context) (*models.User, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: f.id, Email: "alice@example.com"}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const (
	selfID    int64 = 1
	partnerID int64 = 2
	chatID    int64 = 10
)

var partnerMatch = models.Match{
	ID:               100,
	LikerID:          selfID,
	LikedID:          partnerID,
	LikedDisplayName: "Bob",
	LikedEmail:       "bob@example.com",
	Like:             true,
}

func testToken(t *testing.T, sub string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

type harness struct {
	session  *Session
	factory  *fakeFactory
	identity *fakeIdentity
	clock    *fakeClock
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		factory:  &fakeFactory{},
		identity: &fakeIdentity{id: selfID},
		clock:    newFakeClock(),
	}
	h.session = NewSession(Config{
		HeartbeatInterval: time.Hour,
		Clock:             h.clock.Now,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, h.factory.build, h.identity)
	t.Cleanup(h.session.Disconnect)
	return h
}

// connect runs Connect with the partner match and completes the handshake.
func (h *harness) connect(t *testing.T) *fakeTransport {
	t.Helper()
	h.session.Connect(testToken(t, "alice@example.com"),
		[]models.Match{partnerMatch}, map[int64]int64{partnerID: chatID})
	tr := h.factory.last()
	tr.connect()
	return tr
}

func incoming(senderID int64, content, sentAt string) models.IncomingMessage {
	return models.IncomingMessage{
		SenderID:          senderID,
		SenderDisplayName: "Bob",
		MessageContent:    content,
		SentAt:            sentAt,
	}
}
