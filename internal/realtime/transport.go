package realtime

import (
	"log/slog"
	"time"

	"matchme-client/internal/stomp"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

// Frame is an inbound message as the session sees it.
type Frame struct {
	Destination string
	Body        []byte
}

type Unsubscriber interface {
	Unsubscribe()
}

// Transport is the publish/subscribe connection the session drives. Subscriptions
// made through it outlive reconnects of the same transport.
type Transport interface {
	Activate()
	Deactivate()
	Connected() bool
	Subscribe(destination string, handler func(Frame)) (Unsubscriber, error)
	Publish(destination string, body []byte) error
}

// TransportHooks are the lifecycle callbacks the session installs on a transport.
type TransportHooks struct {
	OnConnect    func()
	OnDisconnect func(err error)
	OnError      func(message string)
}

// TransportFactory builds a transport authenticated with token.
type TransportFactory func(token string, hooks TransportHooks) Transport

type StompOptions struct {
	ReconnectDelay    time.Duration
	HeartbeatIncoming time.Duration
	HeartbeatOutgoing time.Duration
	Dialer            *websocket.Dialer
	Logger            *slog.Logger
}

// StompTransport returns a factory for STOMP-over-websocket transports to url.
// The bearer token travels in the CONNECT frame's Authorization header.
func StompTransport(url string, opts StompOptions) TransportFactory {
	return func(token string, hooks TransportHooks) Transport {
		client := stomp.NewClient(stomp.Config{
			URL:               url,
			ConnectHeaders:    map[string]string{"Authorization": "Bearer " + token},
			ReconnectDelay:    opts.ReconnectDelay,
			HeartbeatIncoming: opts.HeartbeatIncoming,
			HeartbeatOutgoing: opts.HeartbeatOutgoing,
			Dialer:            opts.Dialer,
			Logger:            opts.Logger,
			OnConnect:         hooks.OnConnect,
			OnDisconnect:      hooks.OnDisconnect,
			OnStompError: func(f *frame.Frame) {
				if hooks.OnError != nil {
					hooks.OnError(f.Header.Get(frame.Message))
				}
			},
		})
		return &stompTransport{client: client}
	}
}

type stompTransport struct {
	client *stomp.Client
}

func (t *stompTransport) Activate() { t.client.Activate() }
func (t *stompTransport) Deactivate() { t.client.Deactivate() }
func (t *stompTransport) Connected() bool { return t.client.Connected() }

func (t *stompTransport) Subscribe(destination string, handler func(Frame)) (Unsubscriber, error) {
	sub, err := t.client.Subscribe(destination, func(f *frame.Frame) {
		handler(Frame{Destination: f.Header.Get(frame.Destination), Body: f.Body})
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (t *stompTransport) Publish(destination string, body []byte) error {
	return t.client.Publish(destination, body)
}
