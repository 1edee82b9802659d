package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tcriess/lightspeed-presence/globals"
	"github.com/tcriess/lightspeed-presence/registry"
	"github.com/tcriess/lightspeed-presence/types"
)

const (
	maxMessageSize  = 8192
	pongWait        = 2 * time.Minute
	pingPeriod      = time.Minute
	writeWait       = 10 * time.Second
	sendChannelSize = 1000
)

// Client is a middleman between the websocket connection and the
// registries. It implements registry.Conn: the registries only ever see the
// Conn interface, never the websocket.
type Client struct {
	id   string
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	router *Router
	reg    *registry.Connection

	doneOnce sync.Once
	doneChan chan struct{}
}

func NewClient(id string, conn *websocket.Conn, router *Router) *Client {
	return &Client{
		id:       id,
		conn:     conn,
		send:     make(chan []byte, sendChannelSize),
		router:   router,
		doneChan: make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Send marshals one named event into the wire envelope and queues it.
// Best-effort: a slow consumer with a full queue loses the event rather
// than blocking the fan-out.
func (c *Client) Send(event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.sendEnvelope(types.WebsocketMessage{Event: event, Data: raw})
}

func (c *Client) sendEnvelope(msg types.WebsocketMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.doneChan:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		globals.AppLogger.Warn("send queue full, dropping event", "conn", c.id, "event", msg.Event)
		return nil
	}
}

// sendAck turns a handler result into an ack envelope correlated by the
// request's ack id.
func (c *Client) sendAck(ackId string, res *types.AckResult) {
	if res == nil || ackId == "" {
		return
	}
	res.AckId = ackId
	raw, err := json.Marshal(res)
	if err != nil {
		globals.AppLogger.Error("could not marshal ack", "conn", c.id, "error", err)
		return
	}
	if err := c.sendEnvelope(types.WebsocketMessage{Event: types.WireEventAck, Data: raw}); err != nil {
		globals.AppLogger.Debug("could not deliver ack", "conn", c.id, "error", err)
	}
}

// Alive reports whether the transport session still exists; the cleanup
// janitor treats this as authoritative.
func (c *Client) Alive() bool {
	select {
	case <-c.doneChan:
		return false
	default:
		return true
	}
}

// Close force-disconnects the peer.
func (c *Client) Close() {
	c.done()
	c.conn.Close()
}

func (c *Client) done() {
	c.doneOnce.Do(func() { close(c.doneChan) })
}

// ReadLoop pumps messages from the websocket connection into the event
// router.
//
// The application runs ReadLoop in a per-connection goroutine. The
// application ensures that there is at most one reader on a connection by
// executing all reads from this goroutine. Events from a single connection
// are processed in receipt order.
func (c *Client) ReadLoop(ctx context.Context) {
	defer func() {
		c.conn.Close()
		c.done()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Debug("websocket closed unexpectedly", "conn", c.id, "error", err)
			}
			return
		}
		msg := types.WebsocketMessage{}
		if err := json.Unmarshal(raw, &msg); err != nil {
			if sendErr := c.Send(types.WireEventError, types.NewErrorPayload(types.ErrCodeValidation, "malformed message envelope", nil)); sendErr != nil {
				globals.AppLogger.Debug("could not deliver error event", "conn", c.id, "error", sendErr)
			}
			continue
		}
		res := c.router.HandleEvent(ctx, c.reg, msg)
		c.sendAck(msg.AckId, res)
	}
}

// WriteLoop pumps messages from the send queue to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.done()
	}()
	for {
		select {
		case <-c.doneChan:
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				globals.AppLogger.Debug("could not write to ws connection, exiting write loop", "conn", c.id)
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				globals.AppLogger.Debug("could not send ping message, exiting write loop", "conn", c.id)
				return
			}
		}
	}
}
