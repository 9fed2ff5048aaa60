package events

import (
	"errors"
	"strings"
)

// Channel is the name of a pub/sub topic.
type Channel string

// Global carries space existence events only. Every session subscribes to it exactly once.
const Global Channel = "global"

const spacePrefix = "space-"

// ErrInvalidChannel is returned for names that are neither global nor space-<id>.
var ErrInvalidChannel = errors.New("invalid channel name")

// SpaceChannel returns the channel that carries content events for spaceID.
func SpaceChannel(spaceID string) Channel {
	return Channel(spacePrefix + spaceID)
}

// Parse splits a channel name. Wildcards and patterns are rejected.
func (c Channel) Parse() (spaceID string, global bool, err error) {
	if c == Global {
		return "", true, nil
	}
	id, ok := strings.CutPrefix(string(c), spacePrefix)
	if !ok || id == "" || strings.ContainsAny(id, "*?>#/ ") {
		return "", false, ErrInvalidChannel
	}
	return id, false, nil
}

// SpaceID returns the space a channel belongs to, or "" for global and invalid names.
func (c Channel) SpaceID() string {
	id, _, err := c.Parse()
	if err != nil {
		return ""
	}
	return id
}

// IsGlobal reports whether c is the global channel.
func (c Channel) IsGlobal() bool {
	return c == Global
}

// Scope tells which kind of channel an event type travels on.
type Scope int

const (
	ScopeSpace Scope = iota
	ScopeGlobal
)

// ErrWrongChannel is returned when an event is routed to a channel that may not carry it.
var ErrWrongChannel = errors.New("event not allowed on channel")

// Validate enforces the channel topology: global events only on global, space events only on
// the channel of the space they describe.
func Validate(c Channel, ev Event) error {
	spaceID, global, err := c.Parse()
	if err != nil {
		return err
	}
	if ev == nil {
		return ErrMalformedPayload
	}
	if ev.Type().Scope() == ScopeGlobal {
		if !global {
			return ErrWrongChannel
		}
		return nil
	}
	if global {
		return ErrWrongChannel
	}
	if target := ev.TargetSpace(); target != "" && target != spaceID {
		return ErrWrongChannel
	}
	return nil
}
