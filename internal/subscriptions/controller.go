// Package subscriptions keeps a client subscribed to exactly the channels its selection needs:
// the global channel for the whole session plus the channel of the active space.
package subscriptions

import (
	"log/slog"
	"sync"

	"space-pulse/internal/events"
	"space-pulse/internal/logger"
	"space-pulse/internal/replica"
)

// Handler receives one decoded event.
type Handler func(ev events.Event)

// Subscription is an open channel on the transport.
type Subscription interface {
	// Bind routes events of type t to h, replacing any previous binding for t.
	Bind(t events.Type, h Handler)
	// Unbind removes the binding for t.
	Unbind(t events.Type)
}

// Transport is the client side of the pub/sub layer. Subscribe and Unsubscribe are
// idempotent by channel name.
type Transport interface {
	Subscribe(ch events.Channel) (Subscription, error)
	Unsubscribe(ch events.Channel) error
}

// Sink receives every event the controller is bound to, tagged with its channel.
type Sink func(in replica.Inbound)

// State is the lifecycle state of the space subscription.
type State int

const (
	Idle State = iota
	Subscribed
)

func (s State) String() string {
	if s == Subscribed {
		return "subscribed"
	}
	return "idle"
}

// Controller owns the subscriptions of one client session.
type Controller struct {
	mu       sync.Mutex
	tr       Transport
	sink     Sink
	log      *slog.Logger
	global   Subscription
	spaceID  string
	spaceSub Subscription
	closed   bool
}

// New creates an idle controller.
func New(tr Transport, sink Sink, log *slog.Logger) *Controller {
	return &Controller{tr: tr, sink: sink, log: logger.Or(log)}
}

// Start subscribes to the global channel. Later calls do nothing.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.global != nil || c.closed {
		return
	}

	sub, err := c.tr.Subscribe(events.Global)
	if err != nil {
		c.log.Warn("global subscribe failed", "channel", string(events.Global), "error", err)
		return
	}
	c.bindAll(sub, events.Global, events.GlobalTypes)
	c.global = sub
}

// State returns the current state and the subscribed space, if any.
func (c *Controller) State() (State, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spaceSub == nil {
		return Idle, ""
	}
	return Subscribed, c.spaceID
}

// Select moves the space subscription to spaceID. The previous space is fully released
// before the new one is opened; selecting the current space does nothing. An empty id
// behaves like Clear.
func (c *Controller) Select(spaceID string) {
	if spaceID == "" {
		c.Clear()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || (c.spaceSub != nil && c.spaceID == spaceID) {
		return
	}
	c.releaseLocked()

	ch := events.SpaceChannel(spaceID)
	sub, err := c.tr.Subscribe(ch)
	if err != nil {
		// Stay idle so that selecting the space again retries.
		c.log.Warn("space subscribe failed", "channel", string(ch), "space_id", spaceID, "error", err)
		return
	}
	c.bindAll(sub, ch, events.SpaceTypes)
	c.spaceID = spaceID
	c.spaceSub = sub
}

// Clear releases the space subscription.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
}

// Close releases every subscription, global included.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.releaseLocked()
	if c.global == nil {
		return
	}
	c.unbindAll(c.global, events.GlobalTypes)
	if err := c.tr.Unsubscribe(events.Global); err != nil {
		c.log.Warn("global unsubscribe failed", "error", err)
	}
	c.global = nil
}

func (c *Controller) releaseLocked() {
	if c.spaceSub == nil {
		return
	}
	ch := events.SpaceChannel(c.spaceID)
	c.unbindAll(c.spaceSub, events.SpaceTypes)
	if err := c.tr.Unsubscribe(ch); err != nil {
		c.log.Warn("space unsubscribe failed", "channel", string(ch), "error", err)
	}
	c.spaceSub = nil
	c.spaceID = ""
}

func (c *Controller) bindAll(sub Subscription, ch events.Channel, types []events.Type) {
	for _, t := range types {
		sub.Bind(t, func(ev events.Event) {
			c.sink(replica.Inbound{Channel: ch, Event: ev})
		})
	}
}

func (c *Controller) unbindAll(sub Subscription, types []events.Type) {
	for _, t := range types {
		sub.Unbind(t)
	}
}
