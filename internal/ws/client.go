package ws

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"time"

	"ad-assistant/backend/internal/ids"
	"ad-assistant/backend/internal/models"
	"ad-assistant/backend/internal/repository"
	"ad-assistant/backend/internal/service"
	"ad-assistant/backend/internal/timeline"
	"ad-assistant/backend/pkg/errors"
	"ad-assistant/backend/pkg/logger"
	"ad-assistant/backend/pkg/middleware"
	"ad-assistant/backend/pkg/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024

	sendBuffer = 256
)

// Client is one websocket connection bound to a user's live timeline
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	tl     *timeline.Synchronizer
	log    *logger.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	release  func()
	unlisten func()
	once     sync.Once
}

// ServeWs upgrades an authenticated request and streams the caller's
// timeline, starting with a snapshot
func ServeWs(hub *Hub, c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.Error(errors.NewUnauthorizedError(errors.CodeAuthRequired, "Authentication required"))
		c.Abort()
		return
	}
	log := logger.FromContext(c.Request.Context()).WithUserID(userID)

	tl, release, err := hub.sessions.Acquire(c.Request.Context(), userID)
	if err != nil {
		log.LogError(err, "Failed to open session for websocket")
		c.Error(errors.NewServiceUnavailableError(errors.CodeUnavailable, "Chat is temporarily unavailable"))
		c.Abort()
		return
	}

	conn, err := hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		release()
		log.LogError(err, "Error upgrading connection")
		return
	}
	conn.EnableWriteCompression(true)

	ctx, cancel := context.WithCancel(logger.IntoContext(context.Background(), log))
	client := &Client{
		id:      ids.New("ws", time.Now()),
		userID:  userID,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		hub:     hub,
		tl:      tl,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		release: release,
	}

	events, unlisten := tl.Listen()
	client.unlisten = unlisten
	snapshot := tl.Snapshot()
	client.sendMessage(string(timeline.EventSnapshot), timeline.Event{Type: timeline.EventSnapshot, Timeline: &snapshot})

	if !hub.add(client) {
		client.close()
		return
	}
	log.Info("WebSocket connection established", "client_id", client.id)

	go client.writePump()
	go client.forward(events)
	go client.readPump()
}

// close is idempotent and safe from any goroutine
func (c *Client) close() {
	c.once.Do(func() {
		c.cancel()
		if c.unlisten != nil {
			c.unlisten()
		}
		c.release()
		c.conn.Close()
	})
}

func (c *Client) forward(events <-chan timeline.Event) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.sendMessage(string(ev.Type), ev)
		}
	}
}

func (c *Client) readPump() {
	defer c.hub.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("WebSocket read failed", "client_id", c.id, "error", err.Error())
			}
			return
		}

		var frame ws.Inbound
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendError("Invalid message format")
			continue
		}
		if frame.Type == ws.TypePing {
			c.sendMessage(ws.TypePong, ws.Pong{Timestamp: time.Now().UTC()})
			continue
		}

		go c.handleMessage(frame)
	}
}

func (c *Client) handleMessage(frame ws.Inbound) {
	switch frame.Type {
	case ws.TypeChat:
		c.handleChat(frame.Content)
	case ws.TypeLoadMore:
		if _, err := c.tl.LoadMore(c.ctx); err != nil {
			c.fail(err, "Failed to load messages")
		}
	case ws.TypeRefresh:
		if _, err := c.tl.Refresh(c.ctx); err != nil {
			c.fail(err, "Failed to load messages")
		}
	case ws.TypeClear:
		c.tl.Clear()
	case ws.TypeFeedback:
		c.handleFeedback(frame.Content)
	case ws.TypeImplement:
		c.handleImplement(frame.Content)
	default:
		c.sendError("Unknown message type: " + frame.Type)
	}
}

func (c *Client) handleChat(content json.RawMessage) {
	var req service.SendRequest
	if err := json.Unmarshal(content, &req); err != nil {
		c.sendError("Invalid chat message")
		return
	}

	result, err := c.hub.chat.SendMessage(c.ctx, c.userID, req)
	if err != nil {
		c.fail(err, service.MsgSendFailed)
		return
	}
	if result.Blocked {
		c.sendMessage(ws.TypeBlocked, result)
		return
	}
	c.sendMessage(ws.TypeSendResult, result)
}

func (c *Client) handleFeedback(content json.RawMessage) {
	var req ws.FeedbackRequest
	if err := json.Unmarshal(content, &req); err != nil || req.ID == "" || !models.Feedback(req.Feedback).Valid() {
		c.sendError("Invalid feedback")
		return
	}
	if _, err := c.tl.ToggleFeedback(c.ctx, req.ID, models.Feedback(req.Feedback)); err != nil {
		c.fail(err, "Failed to save feedback")
	}
}

func (c *Client) handleImplement(content json.RawMessage) {
	var ref ws.MessageRef
	if err := json.Unmarshal(content, &ref); err != nil || ref.ID == "" {
		c.sendError("Invalid message id")
		return
	}
	result, err := c.hub.executor.Implement(c.ctx, c.userID, ref.ID)
	if err != nil {
		c.fail(err, "Failed to implement changes")
		return
	}
	c.sendMessage(ws.TypeImplementResult, gin.H{"id": ref.ID, "result": result})
}

// fail logs err and tells the client message, or a more precise message for
// known conditions
func (c *Client) fail(err error, message string) {
	switch {
	case stderrors.Is(err, context.Canceled):
		return
	case stderrors.Is(err, repository.ErrNotFound):
		message = "Message not found"
	case stderrors.Is(err, timeline.ErrPending):
		message = "Message is still being saved"
	case stderrors.Is(err, service.ErrEmptyMessage):
		message = "Message content is required"
	default:
		c.log.LogError(err, message, "client_id", c.id)
	}
	c.sendError(message)
}

func (c *Client) sendError(message string) {
	c.sendMessage(ws.TypeError, ws.ErrorContent{Message: message})
}

func (c *Client) sendMessage(messageType string, content any) {
	data, err := json.Marshal(ws.Message{Type: messageType, Content: content})
	if err != nil {
		c.log.LogError(err, "Error marshaling websocket message", "type", messageType)
		return
	}

	select {
	case c.send <- data:
	case <-c.ctx.Done():
	default:
		c.log.Warn("Websocket client too slow, disconnecting", "client_id", c.id)
		c.close()
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
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

// Handler returns the gin handler for the websocket route
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) { ServeWs(h, c) }
}
