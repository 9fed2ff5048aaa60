// Package wsclient is the client side of GET /ws/stream. It implements
// subscriptions.Transport over one gorilla websocket connection.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"space-pulse/internal/events"
	"space-pulse/internal/logger"
	"space-pulse/internal/subscriptions"

	gorilla "github.com/gorilla/websocket"
)

const (
	// DefaultAckTimeout bounds how long Subscribe and Unsubscribe wait for the server.
	DefaultAckTimeout = 5 * time.Second

	writeTimeout = 10 * time.Second
	streamPath   = "/ws/stream"
)

var (
	// ErrClosed is returned by calls made after the connection went away.
	ErrClosed = errors.New("stream connection closed")
	// ErrAckTimeout is returned when the server did not answer a control frame in time.
	ErrAckTimeout = errors.New("timed out waiting for ack")
	// ErrRefused wraps the error text of a refused control frame.
	ErrRefused = errors.New("server refused")
)

var _ subscriptions.Transport = (*Transport)(nil)

// Dialer opens the websocket. Tests swap it for one with short timeouts.
var Dialer = &gorilla.Dialer{
	Proxy:            gorilla.DefaultDialer.Proxy,
	HandshakeTimeout: 10 * time.Second,
}

// StreamURL builds the stream address from an http(s) or ws(s) base URL.
func StreamURL(baseURL, token, codec string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + streamPath
	q := u.Query()
	q.Set("token", token)
	if codec != "" {
		q.Set("codec", codec)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Transport multiplexes channel subscriptions over one stream connection.
type Transport struct {
	conn       *gorilla.Conn
	codec      events.Codec
	log        *slog.Logger
	ackTimeout time.Duration

	writeMu sync.Mutex
	// ctrlMu keeps one control frame in flight so acks match by channel.
	ctrlMu sync.Mutex

	mu      sync.Mutex
	subs    map[events.Channel]*subscription
	pending *pendingControl
	err     error

	queue *dispatchQueue
	done  chan struct{}
}

type pendingControl struct {
	channel events.Channel
	reply   chan events.Frame
}

// Dial connects to the stream at baseURL and starts reading.
func Dial(ctx context.Context, baseURL, token, codecName string, log *slog.Logger) (*Transport, error) {
	codec, err := events.CodecByName(codecName)
	if err != nil {
		return nil, err
	}
	target, err := StreamURL(baseURL, token, codec.Name())
	if err != nil {
		return nil, err
	}

	conn, res, err := Dialer.DialContext(ctx, target, nil)
	if err != nil {
		if res != nil {
			return nil, fmt.Errorf("dial stream: %w (status %d)", err, res.StatusCode)
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	_ = res.Body.Close()

	t := &Transport{
		conn:       conn,
		codec:      codec,
		log:        logger.Or(log),
		ackTimeout: DefaultAckTimeout,
		subs:       make(map[events.Channel]*subscription),
		queue:      newDispatchQueue(),
		done:       make(chan struct{}),
	}
	go t.queue.run()
	go t.readLoop()
	return t, nil
}

// Done is closed when the read loop exits.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err returns the error that ended the connection, if any.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Subscribe opens ch on the server. Subscribing to an open channel returns the existing
// subscription without a round trip.
func (t *Transport) Subscribe(ch events.Channel) (subscriptions.Subscription, error) {
	if _, _, err := ch.Parse(); err != nil {
		return nil, err
	}

	t.ctrlMu.Lock()
	defer t.ctrlMu.Unlock()

	t.mu.Lock()
	if sub, ok := t.subs[ch]; ok {
		t.mu.Unlock()
		return sub, nil
	}
	t.mu.Unlock()

	if err := t.control(events.Frame{Op: events.OpSubscribe, Channel: ch}); err != nil {
		return nil, err
	}

	sub := &subscription{channel: ch, handlers: make(map[events.Type]subscriptions.Handler)}
	t.mu.Lock()
	t.subs[ch] = sub
	t.mu.Unlock()
	t.log.Debug("channel subscribed", "channel", string(ch))
	return sub, nil
}

// Unsubscribe closes ch. Events already queued for ch are discarded. Unknown channels are
// ignored.
func (t *Transport) Unsubscribe(ch events.Channel) error {
	t.ctrlMu.Lock()
	defer t.ctrlMu.Unlock()

	t.mu.Lock()
	_, ok := t.subs[ch]
	delete(t.subs, ch)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return t.control(events.Frame{Op: events.OpUnsubscribe, Channel: ch})
}

// control sends f and waits for the matching ack or error frame. ctrlMu must be held.
func (t *Transport) control(f events.Frame) error {
	p := &pendingControl{channel: f.Channel, reply: make(chan events.Frame, 1)}

	t.mu.Lock()
	if t.err != nil {
		err := t.err
		t.mu.Unlock()
		return err
	}
	t.pending = p
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		if t.pending == p {
			t.pending = nil
		}
		t.mu.Unlock()
	}()

	if err := t.write(f); err != nil {
		return err
	}

	timer := time.NewTimer(t.ackTimeout)
	defer timer.Stop()
	select {
	case reply := <-p.reply:
		if reply.Op == events.OpError {
			return fmt.Errorf("%w: %s %s: %s", ErrRefused, f.Op, f.Channel, reply.Error)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s %s", ErrAckTimeout, f.Op, f.Channel)
	case <-t.done:
		return ErrClosed
	}
}

func (t *Transport) write(f events.Frame) error {
	payload, err := t.codec.Encode(f)
	if err != nil {
		return err
	}
	messageType := gorilla.TextMessage
	if t.codec.Binary() {
		messageType = gorilla.BinaryMessage
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(messageType, payload)
}

func (t *Transport) readLoop() {
	defer close(t.done)
	defer t.queue.close()

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.fail(err)
			return
		}

		f, err := t.codec.Decode(data)
		if err != nil {
			// A frame with an unknown event type is skipped, the stream stays usable.
			t.log.Warn("undecodable frame dropped", "error", err, "channel", string(f.Channel))
			continue
		}

		switch f.Op {
		case events.OpEvent:
			t.dispatch(f)
		case events.OpAck, events.OpError:
			t.answer(f)
		default:
			t.log.Debug("unexpected frame", "op", string(f.Op))
		}
	}
}

func (t *Transport) fail(err error) {
	if gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
		err = ErrClosed
	} else {
		t.log.Warn("stream read failed", "error", err)
		err = fmt.Errorf("%w: %w", ErrClosed, err)
	}
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
}

func (t *Transport) answer(f events.Frame) {
	t.mu.Lock()
	p := t.pending
	if p != nil && (f.Channel == p.channel || f.Channel == "") {
		t.pending = nil
	} else {
		p = nil
	}
	t.mu.Unlock()

	if p == nil {
		if f.Op == events.OpError {
			t.log.Warn("server error frame", "channel", string(f.Channel), "error", f.Error)
		}
		return
	}
	p.reply <- f
}

func (t *Transport) dispatch(f events.Frame) {
	t.mu.Lock()
	sub, ok := t.subs[f.Channel]
	t.mu.Unlock()
	if !ok {
		return
	}
	ev := f.Event
	t.queue.push(func() {
		// the channel may have been released while the event waited
		t.mu.Lock()
		current := t.subs[f.Channel]
		t.mu.Unlock()
		if current != sub {
			return
		}
		if h := sub.handler(ev.Type()); h != nil {
			h(ev)
		}
	})
}

// Close sends a normal close frame and tears the connection down.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.err == nil {
		t.err = ErrClosed
	}
	t.mu.Unlock()

	t.writeMu.Lock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = t.conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""))
	t.writeMu.Unlock()

	err := t.conn.Close()
	<-t.done
	return err
}

type subscription struct {
	channel  events.Channel
	mu       sync.RWMutex
	handlers map[events.Type]subscriptions.Handler
}

func (s *subscription) Bind(typ events.Type, h subscriptions.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[typ] = h
}

func (s *subscription) Unbind(typ events.Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, typ)
}

func (s *subscription) handler(typ events.Type) subscriptions.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handlers[typ]
}
