// Package realtime fans committed changes out to stream connections over named channels.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"space-pulse/internal/events"
	"space-pulse/internal/logger"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrUnknownConn is returned for operations on a connection that is not attached.
	ErrUnknownConn = errors.New("connection not attached")
	// ErrTransportClosed is returned once the hub has been shut down.
	ErrTransportClosed = errors.New("realtime transport closed")
)

// Subscriber is the hub side of one stream connection.
type Subscriber struct {
	ConnID ulid.ULID
	UserID string
	Ch     chan Outbound
	Done   chan struct{}
}

// ConnInfo holds connection metadata
type ConnInfo struct {
	ConnectedAt time.Time
	Subscriber  *Subscriber
	channels    map[events.Channel]struct{}
}

// Hub routes outbound frames to the connections subscribed to a channel.
type Hub struct {
	mu         sync.RWMutex
	conns      map[ulid.ULID]*ConnInfo
	channels   map[events.Channel]map[ulid.ULID]*Subscriber
	bufferSize int
	dropped    uint64
	closed     bool
	metrics    *Metrics
}

// NewHub creates a hub whose connections buffer up to bufferSize frames.
func NewHub(bufferSize int, m *Metrics) *Hub {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Hub{
		conns:      make(map[ulid.ULID]*ConnInfo),
		channels:   make(map[events.Channel]map[ulid.ULID]*Subscriber),
		bufferSize: bufferSize,
		metrics:    m,
	}
}

func debugEnabled() (*slog.Logger, bool) {
	log := logger.L()
	return log, log != nil && log.Enabled(context.Background(), slog.LevelDebug)
}

// Attach registers a connection and returns its outbox. Attaching an id twice returns the
// existing subscriber.
func (h *Hub) Attach(connID ulid.ULID, userID string) (*Subscriber, error) {
	if log, ok := debugEnabled(); ok {
		log.Debug("attaching connection", "conn_id", connID.String(), "user_id", userID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrTransportClosed
	}
	if info, ok := h.conns[connID]; ok {
		return info.Subscriber, nil
	}

	sub := &Subscriber{
		ConnID: connID,
		UserID: userID,
		Ch:     make(chan Outbound, h.bufferSize),
		Done:   make(chan struct{}),
	}
	h.conns[connID] = &ConnInfo{
		ConnectedAt: time.Now(),
		Subscriber:  sub,
		channels:    make(map[events.Channel]struct{}),
	}
	h.metrics.connectionsChanged(1)
	return sub, nil
}

// Subscribe adds channel to the connection's subscriptions. Subscribing twice is a no-op.
func (h *Hub) Subscribe(connID ulid.ULID, channel events.Channel) error {
	if _, _, err := channel.Parse(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	info, ok := h.conns[connID]
	if !ok {
		return ErrUnknownConn
	}
	if _, dup := info.channels[channel]; dup {
		return nil
	}
	info.channels[channel] = struct{}{}

	subs := h.channels[channel]
	if subs == nil {
		subs = make(map[ulid.ULID]*Subscriber)
		h.channels[channel] = subs
	}
	subs[connID] = info.Subscriber
	h.metrics.subscriptionsChanged(1)

	if log, ok := debugEnabled(); ok {
		log.Debug("channel subscribed", "conn_id", connID.String(), "channel", string(channel))
	}
	return nil
}

// Unsubscribe drops channel from the connection. Unknown pairs are ignored.
func (h *Hub) Unsubscribe(connID ulid.ULID, channel events.Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	info, ok := h.conns[connID]
	if !ok {
		return
	}
	if _, ok := info.channels[channel]; !ok {
		return
	}
	h.unsubscribeLocked(connID, channel, info)
}

func (h *Hub) unsubscribeLocked(connID ulid.ULID, channel events.Channel, info *ConnInfo) {
	delete(info.channels, channel)
	if subs := h.channels[channel]; subs != nil {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	h.metrics.subscriptionsChanged(-1)
}

// UnsubscribeUser drops channel from every connection of userID and returns how many were
// subscribed.
func (h *Hub) UnsubscribeUser(userID string, channel events.Channel) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for connID, sub := range h.channels[channel] {
		if sub.UserID != userID {
			continue
		}
		h.unsubscribeLocked(connID, channel, h.conns[connID])
		n++
	}
	return n
}

// DropChannel unsubscribes every connection from channel and returns how many were
// subscribed.
func (h *Hub) DropChannel(channel events.Channel) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.channels[channel]
	n := len(subs)
	for connID := range subs {
		h.unsubscribeLocked(connID, channel, h.conns[connID])
	}
	return n
}

// Detach drops every subscription of the connection and closes its outbox.
func (h *Hub) Detach(connID ulid.ULID) {
	if log, ok := debugEnabled(); ok {
		log.Debug("detaching connection", "conn_id", connID.String())
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	info, ok := h.conns[connID]
	if !ok {
		return
	}
	for ch := range info.channels {
		h.unsubscribeLocked(connID, ch, info)
	}
	delete(h.conns, connID)
	close(info.Subscriber.Ch)
	close(info.Subscriber.Done)
	h.metrics.connectionsChanged(-1)
}

// Broadcast delivers out to every connection subscribed to its channel and returns how many
// outboxes accepted it.
func (h *Hub) Broadcast(out Outbound) int {
	log := logger.L()

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for id, sub := range h.channels[out.Channel] {
		if sendOrDrop(sub.Ch, out, func() { h.drop(log, id, out) }) {
			delivered++
		}
	}
	return delivered
}

// Send delivers out to one connection regardless of its subscriptions.
func (h *Hub) Send(connID ulid.ULID, out Outbound) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	info, ok := h.conns[connID]
	if !ok {
		return false
	}
	return sendOrDrop(info.Subscriber.Ch, out, func() { h.drop(logger.L(), connID, out) })
}

func (h *Hub) drop(log *slog.Logger, connID ulid.ULID, out Outbound) {
	atomic.AddUint64(&h.dropped, 1)
	h.metrics.frameDropped()
	if log != nil {
		log.Warn("outbox full, dropping frame", "conn_id", connID.String(), "channel", string(out.Channel), "event_type", string(out.Type))
	}
}

// sendOrDrop is the only place that can decide to drop a frame.
func sendOrDrop(ch chan Outbound, out Outbound, onDrop func()) bool {
	select {
	case ch <- out:
		return true
	default:
		onDrop()
		return false
	}
}

// Subscribed reports whether the connection listens on channel.
func (h *Hub) Subscribed(connID ulid.ULID, channel events.Channel) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	info, ok := h.conns[connID]
	if !ok {
		return false
	}
	_, ok = info.channels[channel]
	return ok
}

// Stats returns current counters for observability and tests.
func (h *Hub) Stats() (connections, subscriptions int, dropped uint64) {
	h.mu.RLock()
	connections = len(h.conns)
	for _, subs := range h.channels {
		subscriptions += len(subs)
	}
	h.mu.RUnlock()
	return connections, subscriptions, atomic.LoadUint64(&h.dropped)
}

// Closed reports whether Close was called.
func (h *Hub) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// Close detaches every connection and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	ids := make([]ulid.ULID, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Detach(id)
	}
}
