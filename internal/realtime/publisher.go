package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"space-pulse/internal/events"
	"space-pulse/internal/logger"
)

var (
	// ErrPublishTopology is returned when an event is routed to a channel that may not carry it.
	ErrPublishTopology = errors.New("event rejected by channel topology")
	// ErrPublishEncode is returned when a frame cannot be encoded.
	ErrPublishEncode = errors.New("event could not be encoded")
)

// Publisher validates events against the channel topology and hands them to the hub.
type Publisher struct {
	hub     *Hub
	codecs  []events.Codec
	metrics *Metrics
	log     *slog.Logger
}

// NewPublisher creates a publisher that encodes every frame as JSON and CBOR.
func NewPublisher(hub *Hub, m *Metrics, log *slog.Logger) *Publisher {
	return &Publisher{
		hub:     hub,
		codecs:  []events.Codec{events.JSONCodec{}, events.NewCBORCodec()},
		metrics: m,
		log:     logger.Or(log),
	}
}

// Codecs returns the codecs every outbound frame is encoded with.
func (p *Publisher) Codecs() []events.Codec {
	return p.codecs
}

// Publish delivers ev on channel to every subscribed connection without blocking on any of
// them.
func (p *Publisher) Publish(_ context.Context, channel events.Channel, ev events.Event) error {
	if err := events.Validate(channel, ev); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishTopology, err)
	}
	if p.hub.Closed() {
		return ErrTransportClosed
	}

	out, err := NewOutbound(events.EventFrame(channel, ev), p.codecs...)
	if err != nil {
		return err
	}

	n := p.hub.Broadcast(out)
	p.metrics.eventPublished(ev.Type())
	if p.log != nil && p.log.Enabled(context.Background(), slog.LevelDebug) {
		p.log.Debug("event published", "channel", string(channel), "event_type", string(ev.Type()), "delivered", n)
	}
	p.revoke(channel, ev)
	return nil
}

// revoke ends the subscriptions an event takes away. It runs after the broadcast so the
// departing user still receives the event that explains why the channel went quiet.
func (p *Publisher) revoke(channel events.Channel, ev events.Event) {
	var (
		user string
		n    int
	)
	switch e := ev.(type) {
	case events.MemberLeft:
		user = e.UserID
		n = p.hub.UnsubscribeUser(e.UserID, channel)
	case events.MemberRemoved:
		user = e.TargetUserID
		n = p.hub.UnsubscribeUser(e.TargetUserID, channel)
	case events.SpaceDeleted:
		channel = events.SpaceChannel(e.SpaceID)
		n = p.hub.DropChannel(channel)
	default:
		return
	}
	if n > 0 {
		p.log.Info("subscriptions revoked", "channel", string(channel), "user_id", user, "event_type", string(ev.Type()), "connections", n)
	}
}

// Control encodes a control frame (ack or error) for a single connection.
func (p *Publisher) Control(f events.Frame) (Outbound, error) {
	return NewOutbound(f, p.codecs...)
}
