package realtime

import (
	"fmt"

	"space-pulse/internal/events"
)

// Outbound is a frame encoded once per codec so every connection can pick its wire format
// without re-encoding.
type Outbound struct {
	Channel events.Channel
	Op      events.Op
	Type    events.Type
	encoded map[string][]byte
}

// NewOutbound encodes f with every codec.
func NewOutbound(f events.Frame, codecs ...events.Codec) (Outbound, error) {
	out := Outbound{
		Channel: f.Channel,
		Op:      f.Op,
		encoded: make(map[string][]byte, len(codecs)),
	}
	if f.Event != nil {
		out.Type = f.Event.Type()
	}
	for _, c := range codecs {
		b, err := c.Encode(f)
		if err != nil {
			return Outbound{}, fmt.Errorf("%w: %s: %w", ErrPublishEncode, c.Name(), err)
		}
		out.encoded[c.Name()] = b
	}
	return out, nil
}

// Bytes returns the payload for the named codec.
func (o Outbound) Bytes(codec string) ([]byte, bool) {
	b, ok := o.encoded[codec]
	return b, ok
}
