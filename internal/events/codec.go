package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Op is the kind of a wire frame.
type Op string

const (
	OpEvent       Op = "event"
	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
	OpAck         Op = "ack"
	OpError       Op = "error"
)

// Frame is one message on the websocket. Event is set only for OpEvent frames.
type Frame struct {
	Op      Op
	Channel Channel
	Event   Event
	Error   string
}

// EventFrame wraps ev for delivery on channel.
func EventFrame(channel Channel, ev Event) Frame {
	return Frame{Op: OpEvent, Channel: channel, Event: ev}
}

// ErrUnknownCodec is returned by CodecByName for unsupported names.
var ErrUnknownCodec = errors.New("unknown codec")

// Codec turns frames into websocket payloads and back.
type Codec interface {
	Name() string
	// Binary reports whether frames must be sent as binary websocket messages.
	Binary() bool
	Encode(f Frame) ([]byte, error)
	Decode(b []byte) (Frame, error)
}

// CodecByName resolves the codec negotiated by a connection; "" selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return NewCBORCodec(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

type jsonWire struct {
	Op      Op              `json:"op"`
	Channel Channel         `json:"channel,omitempty"`
	Type    Type            `json:"event,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// JSONCodec is the default text codec.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }
func (JSONCodec) Binary() bool { return false }

func (JSONCodec) Encode(f Frame) ([]byte, error) {
	w := jsonWire{Op: f.Op, Channel: f.Channel, Error: f.Error}
	if f.Event != nil {
		data, err := json.Marshal(f.Event)
		if err != nil {
			return nil, err
		}
		w.Type = f.Event.Type()
		w.Data = data
	}
	return json.Marshal(w)
}

// Decode returns the frame even when its event payload is malformed; in that case the error
// wraps ErrMalformedPayload or ErrUnknownEvent and Frame.Event is nil.
func (JSONCodec) Decode(b []byte) (Frame, error) {
	var w jsonWire
	if err := json.Unmarshal(b, &w); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	f := Frame{Op: w.Op, Channel: w.Channel, Error: w.Error}
	if w.Op != OpEvent {
		return f, nil
	}
	ev, err := Decode(w.Type, w.Data, json.Unmarshal)
	if err != nil {
		return f, err
	}
	f.Event = ev
	return f, nil
}

type cborWire struct {
	Op      Op              `cbor:"op"`
	Channel Channel         `cbor:"channel,omitempty"`
	Type    Type            `cbor:"event,omitempty"`
	Data    cbor.RawMessage `cbor:"data,omitempty"`
	Error   string          `cbor:"error,omitempty"`
}

// CBORCodec is the binary codec. Times are encoded as RFC 3339 strings with nanoseconds so
// both codecs round-trip the same values.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec builds the binary codec.
func NewCBORCodec() CBORCodec {
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return CBORCodec{enc: enc, dec: dec}
}

func (CBORCodec) Name() string { return "cbor" }
func (CBORCodec) Binary() bool { return true }

func (c CBORCodec) Encode(f Frame) ([]byte, error) {
	w := cborWire{Op: f.Op, Channel: f.Channel, Error: f.Error}
	if f.Event != nil {
		data, err := c.enc.Marshal(f.Event)
		if err != nil {
			return nil, err
		}
		w.Type = f.Event.Type()
		w.Data = data
	}
	return c.enc.Marshal(w)
}

func (c CBORCodec) Decode(b []byte) (Frame, error) {
	var w cborWire
	if err := c.dec.Unmarshal(b, &w); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	f := Frame{Op: w.Op, Channel: w.Channel, Error: w.Error}
	if w.Op != OpEvent {
		return f, nil
	}
	ev, err := Decode(w.Type, w.Data, c.dec.Unmarshal)
	if err != nil {
		return f, err
	}
	f.Event = ev
	return f, nil
}
