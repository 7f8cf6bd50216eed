package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/cohort/internal/domain"
	"github.com/immxrtalbeast/cohort/internal/protocol"
	"github.com/immxrtalbeast/cohort/internal/service"
	"github.com/immxrtalbeast/cohort/lib/logger/sl"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// headroom for envelope fields around the largest payload
	readLimitSlack = 64 * 1024
	// frames up to this multiple of the largest legal payload still reach the
	// relay and get a typed room-error
	frameLimitFactor = 4
)

type WSOptions struct {
	SendBuffer     int
	MaxFileBytes   int64
	MaxSourceBytes int
	// MaxFrameBytes closes the connection on larger frames. Zero derives it
	// from the file and source caps.
	MaxFrameBytes int64
}

// WSController upgrades relay connections and runs one read loop and one
// write pump per connection.
type WSController struct {
	relay     service.RelayInteractor
	upgrader  websocket.Upgrader
	opts      WSOptions
	readLimit int64
	log       *slog.Logger
}

func NewWSController(relay service.RelayInteractor, origins *OriginPolicy, opts WSOptions, log *slog.Logger) *WSController {
	if log == nil {
		log = slog.Default()
	}
	readLimit := opts.MaxFrameBytes
	if readLimit <= 0 {
		readLimit = frameLimit(opts.MaxFileBytes, opts.MaxSourceBytes)
	}
	return &WSController{
		relay: relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return origins.Allowed(r.Header.Get("Origin"))
			},
		},
		opts:      opts,
		readLimit: readLimit,
		log:       log,
	}
}

func frameLimit(maxFileBytes int64, maxSourceBytes int) int64 {
	payload := domain.EncodedLimit(maxFileBytes)
	if src := int64(maxSourceBytes) * 2; src > payload {
		// sourceText may be JSON-escaped
		payload = src
	}
	return (payload + readLimitSlack) * frameLimitFactor
}

func (c *WSController) Connect(ctx *gin.Context) {
	const op = "api.http.ws.connect"

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Info("failed to upgrade connection", slog.String("op", op), sl.Err(err))
		return
	}

	session := domain.NewSession(uuid.NewString(), c.opts.SendBuffer)
	log := c.log.With(slog.String("op", op), slog.String("session", session.ID))

	if err := c.relay.Register(session); err != nil {
		log.Error("failed to register session", sl.Err(err))
		_ = conn.Close()
		return
	}
	log.Info("client connected", slog.String("remote", conn.RemoteAddr().String()))

	connCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.writePump(conn, session, log)
	c.readLoop(connCtx, conn, session, log)

	c.relay.Unregister(connCtx, session)
	_ = conn.Close()
}

func (c *WSController) readLoop(ctx context.Context, conn *websocket.Conn, session *domain.Session, log *slog.Logger) {
	conn.SetReadLimit(c.readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("connection closed unexpectedly", sl.Err(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			log.Debug("malformed frame dropped", slog.Int("bytes", len(data)))
			continue
		}

		_ = c.relay.Dispatch(ctx, session, msg)
	}
}

// writePump owns all writes to conn.
func (c *WSController) writePump(conn *websocket.Conn, session *domain.Session, log *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg := <-session.Events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("write failed", sl.Err(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-session.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
