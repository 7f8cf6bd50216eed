package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/cohort/internal/protocol"
	"github.com/immxrtalbeast/cohort/lib/logger/sl"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 20
	outgoingBuffer = 64
)

var ErrClosed = errors.New("signaling client closed")

// Client is a websocket connection to the relay from the participant side.
type Client struct {
	serverURL string
	log       *slog.Logger

	conn     *websocket.Conn
	incoming chan protocol.Message
	outgoing chan protocol.Message
	done     chan struct{}
	once     sync.Once
}

func NewClient(serverURL string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		serverURL: serverURL,
		log:       log,
		incoming:  make(chan protocol.Message, outgoingBuffer),
		outgoing:  make(chan protocol.Message, outgoingBuffer),
		done:      make(chan struct{}),
	}
}

// Connect dials the relay and starts the pumps.
func (c *Client) Connect(ctx context.Context) error {
	const op = "signaling.Client.Connect"

	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("%s: invalid server url: %w", op, err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.conn = conn

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.Close()
		close(c.incoming)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("signaling connection lost", sl.Err(err))
			}
			return
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Warn("signaling write failed", slog.String("type", msg.Type), sl.Err(err))
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues a message for the relay.
func (c *Client) Send(msg protocol.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming is closed once the connection is gone.
func (c *Client) Incoming() <-chan protocol.Message {
	return c.incoming
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection down. Calling it more than once is a no-op.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}
