package spaces

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"space-pulse/cmd/server/ctxkeys"
	"space-pulse/cmd/server/handlers/httperr"
	"space-pulse/internal/events"
	"space-pulse/internal/logger"
	"space-pulse/internal/model"
	"space-pulse/internal/realtime"
	"space-pulse/internal/services/spaces"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/oklog/ulid/v2"
)

const (
	// WSClosePolicyViolation represents WebSocket close code for policy violation
	WSClosePolicyViolation = 1008

	wsWriteTimeout     = 10 * time.Second
	wsPingInterval     = 25 * time.Second
	wsPingWriteTimeout = 5 * time.Second
	wsMaxIncomingBytes = 64 << 10

	codecKey = "codec"

	msgFailedToCloseWebSocketConnection = "failed to close WebSocket connection"
)

// Hub is the part of realtime.Hub the stream needs.
type Hub interface {
	Attach(connID ulid.ULID, userID string) (*realtime.Subscriber, error)
	Subscribe(connID ulid.ULID, channel events.Channel) error
	Unsubscribe(connID ulid.ULID, channel events.Channel)
	Detach(connID ulid.ULID)
	Send(connID ulid.ULID, out realtime.Outbound) bool
}

// ControlEncoder encodes ack and error frames with every wire codec.
type ControlEncoder interface {
	Control(f events.Frame) (realtime.Outbound, error)
}

// Members answers whether a user may listen on a space channel.
type Members interface {
	GetMember(ctx context.Context, spaceID, userID string) (model.Member, error)
}

// TokenVerifier turns the token query parameter into a principal.
type TokenVerifier interface {
	Verify(raw string) (model.UserSnapshot, error)
}

// StreamHandlers serve GET /ws/stream.
type StreamHandlers struct {
	hub           Hub
	control       ControlEncoder
	members       Members
	tokens        TokenVerifier
	maxSessionSec int
}

// NewStreamHandlers creates the websocket handlers.
func NewStreamHandlers(hub Hub, control ControlEncoder, members Members, tokens TokenVerifier, maxSessionSec int) *StreamHandlers {
	return &StreamHandlers{
		hub:           hub,
		control:       control,
		members:       members,
		tokens:        tokens,
		maxSessionSec: maxSessionSec,
	}
}

// WSUpgrade authenticates the token query parameter and resolves the codec before the
// upgrade happens.
// @Summary Realtime stream
// @Description Websocket carrying space events. Send {"op":"subscribe","channel":"space-<id>"} to follow a space.
// @Tags realtime
// @Param token query string true "JWT"
// @Param codec query string false "json (default) or cbor"
// @Success 101
// @Failure 400 {object} httperr.E
// @Failure 401 {object} httperr.E
// @Router /ws/stream [get]
func (h *StreamHandlers) WSUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		logger.L().Warn("websocket upgrade required", "handler", "WSUpgrade", "path", c.Path())
		return httperr.Fail(httperr.E{Status: 400, Message: "WebSocket upgrade required"})
	}

	token := c.Query("token")
	if token == "" {
		logger.L().Warn("missing token in websocket upgrade", "handler", "WSUpgrade", "path", c.Path())
		return httperr.Fail(httperr.E{Status: 401, Message: "Missing token"})
	}

	principal, err := h.tokens.Verify(token)
	if err != nil {
		logger.L().Warn("invalid token in websocket upgrade", "handler", "WSUpgrade", "path", c.Path(), "error", err)
		return httperr.Fail(httperr.E{Status: 401, Message: "Invalid token"})
	}

	codec, err := events.CodecByName(c.Query("codec"))
	if err != nil {
		return httperr.Fail(httperr.E{Status: 400, Message: err.Error()})
	}

	c.Locals(ctxkeys.UserIDKey, principal.ID)
	c.Locals(ctxkeys.PrincipalKey, principal)
	c.Locals(codecKey, codec)
	c.Locals(ctxkeys.ParentCtxKey, c.UserContext())
	return c.Next()
}

// wsConnection holds connection-specific data
type wsConnection struct {
	userID   string
	connULID ulid.ULID
	connID   string
	codec    events.Codec

	// gorilla allows one writer at a time; pings, frames and the close frame share it.
	writeMu sync.Mutex
}

func (w *wsConnection) write(c *websocket.Conn, messageType int, data []byte, timeout time.Duration) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := c.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return c.WriteMessage(messageType, data)
}

// WSStream runs one stream connection until the client leaves, the session times out or
// the hub closes its outbox.
func (h *StreamHandlers) WSStream(c *websocket.Conn) {
	conn, parentCtx, err := h.initializeConnection(c)
	if err != nil {
		h.closeConnection(c)
		return
	}

	ctx, cancelCtx := context.WithCancel(parentCtx)
	defer cancelCtx()

	sub, err := h.hub.Attach(conn.connULID, conn.userID)
	if err != nil {
		logger.L().Warn("hub refused connection", "user_id", conn.userID, "conn_id", conn.connID, "error", err)
		h.closeConnection(c)
		return
	}
	defer h.hub.Detach(conn.connULID)

	if err := h.hub.Subscribe(conn.connULID, events.Global); err != nil {
		logger.L().Error("global subscribe failed", "user_id", conn.userID, "conn_id", conn.connID, "error", err)
		h.closeConnection(c)
		return
	}

	logger.L().Info("WebSocket connection established", "user_id", conn.userID, "conn_id", conn.connID, "codec", conn.codec.Name())

	sessionTimer := time.AfterFunc(time.Duration(h.maxSessionSec)*time.Second, func() {
		logger.L().Info("WebSocket session timeout", "user_id", conn.userID, "conn_id", conn.connID)
		h.sendCloseMessage(c, conn)
		h.closeConnection(c)
		cancelCtx()
	})
	defer sessionTimer.Stop()

	ping := h.startKeepAlive(c, conn)
	defer ping.Stop()

	go h.handleOutgoingMessages(ctx, c, conn, sub)

	h.handleIncomingMessages(ctx, c, conn)

	logger.L().Info("WebSocket connection closed", "user_id", conn.userID, "conn_id", conn.connID)
}

// initializeConnection validates and sets up the WebSocket connection
func (h *StreamHandlers) initializeConnection(c *websocket.Conn) (*wsConnection, context.Context, error) {
	userID, ok := c.Locals(ctxkeys.UserIDKey).(string)
	if !ok || userID == "" {
		logger.L().Error(ctxkeys.UserIDKey + " not found in WebSocket context")
		return nil, nil, errors.New(ctxkeys.UserIDKey + " not found")
	}

	parentCtx, ok := c.Locals(ctxkeys.ParentCtxKey).(context.Context)
	if !ok {
		logger.L().Error(ctxkeys.ParentCtxKey + " not found in WebSocket context")
		return nil, nil, errors.New(ctxkeys.ParentCtxKey + " not found")
	}

	codec, ok := c.Locals(codecKey).(events.Codec)
	if !ok {
		codec = events.JSONCodec{}
	}

	connULID := ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader)
	c.SetReadLimit(wsMaxIncomingBytes)

	return &wsConnection{
		userID:   userID,
		connULID: connULID,
		connID:   connULID.String(),
		codec:    codec,
	}, parentCtx, nil
}

// closeConnection safely closes the WebSocket connection
func (h *StreamHandlers) closeConnection(c *websocket.Conn) {
	if err := c.Close(); err != nil {
		logger.L().Debug(msgFailedToCloseWebSocketConnection, "error", err)
	}
}

// sendCloseMessage sends a close frame to the client
func (h *StreamHandlers) sendCloseMessage(c *websocket.Conn, conn *wsConnection) {
	msg := websocket.FormatCloseMessage(WSClosePolicyViolation, "session timeout")
	if err := conn.write(c, websocket.CloseMessage, msg, wsWriteTimeout); err != nil {
		logger.L().Error("failed to send close message", "error", err, "user_id", conn.userID, "conn_id", conn.connID)
	}
}

// startKeepAlive starts the keep-alive ping mechanism
func (h *StreamHandlers) startKeepAlive(c *websocket.Conn, conn *wsConnection) *time.Ticker {
	ping := time.NewTicker(wsPingInterval)
	go func() {
		for range ping.C {
			if err := conn.write(c, websocket.PingMessage, nil, wsPingWriteTimeout); err != nil {
				logger.L().Warn("failed to write ping message", "error", err, "user_id", conn.userID, "conn_id", conn.connID)
				return
			}
		}
	}()
	return ping
}

// handleOutgoingMessages drains the outbox in the codec the client negotiated.
func (h *StreamHandlers) handleOutgoingMessages(ctx context.Context, c *websocket.Conn, conn *wsConnection, sub *realtime.Subscriber) {
	defer func() {
		if r := recover(); r != nil {
			logger.L().Error("panic in WebSocket sender", "error", r, "user_id", conn.userID)
		}
	}()

	messageType := websocket.TextMessage
	if conn.codec.Binary() {
		messageType = websocket.BinaryMessage
	}

	for {
		select {
		case out, ok := <-sub.Ch:
			if !ok {
				h.closeConnection(c)
				return
			}
			payload, ok := out.Bytes(conn.codec.Name())
			if !ok {
				logger.L().Error("frame not encoded for codec", "codec", conn.codec.Name(), "event_type", string(out.Type), "conn_id", conn.connID)
				continue
			}
			if err := conn.write(c, messageType, payload, wsWriteTimeout); err != nil {
				logger.L().Warn("failed to write WebSocket message", "error", err, "user_id", conn.userID, "conn_id", conn.connID)
				return
			}
		case <-sub.Done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleIncomingMessages reads control frames until the connection fails.
func (h *StreamHandlers) handleIncomingMessages(ctx context.Context, c *websocket.Conn, conn *wsConnection) {
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.L().Warn("WebSocket error", "error", err, "user_id", conn.userID, "conn_id", conn.connID)
			}
			return
		}

		f, err := conn.codec.Decode(data)
		if err != nil {
			h.reply(conn, events.Frame{Op: events.OpError, Error: "malformed frame"})
			continue
		}
		h.reply(conn, h.handleControl(ctx, conn, f))
	}
}

// handleControl applies one subscribe or unsubscribe frame and returns the answer.
func (h *StreamHandlers) handleControl(ctx context.Context, conn *wsConnection, f events.Frame) events.Frame {
	fail := func(msg string) events.Frame {
		return events.Frame{Op: events.OpError, Channel: f.Channel, Error: msg}
	}

	switch f.Op {
	case events.OpSubscribe:
		spaceID, global, err := f.Channel.Parse()
		if err != nil {
			return fail(err.Error())
		}
		if !global {
			if _, err := h.members.GetMember(ctx, spaceID, conn.userID); err != nil {
				if errors.Is(err, spaces.ErrNotMember) || errors.Is(err, spaces.ErrSpaceNotFound) {
					logger.L().Info("space subscribe refused", "user_id", conn.userID, "space_id", spaceID, "error", err)
					return fail(err.Error())
				}
				logger.L().Error("membership lookup failed", "user_id", conn.userID, "space_id", spaceID, "error", err)
				return fail("membership lookup failed")
			}
		}
		if err := h.hub.Subscribe(conn.connULID, f.Channel); err != nil {
			return fail(err.Error())
		}
		return events.Frame{Op: events.OpAck, Channel: f.Channel}

	case events.OpUnsubscribe:
		if _, _, err := f.Channel.Parse(); err != nil {
			return fail(err.Error())
		}
		h.hub.Unsubscribe(conn.connULID, f.Channel)
		return events.Frame{Op: events.OpAck, Channel: f.Channel}
	}
	return fail(fmt.Sprintf("unsupported op %q", f.Op))
}

// reply queues a control frame behind the events already in the outbox.
func (h *StreamHandlers) reply(conn *wsConnection, f events.Frame) {
	out, err := h.control.Control(f)
	if err != nil {
		logger.L().Error("control frame encode failed", "error", err, "conn_id", conn.connID)
		return
	}
	if !h.hub.Send(conn.connULID, out) {
		logger.L().Warn("control frame dropped", "op", string(f.Op), "conn_id", conn.connID)
	}
}
