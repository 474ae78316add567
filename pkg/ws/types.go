// Package ws defines the frames exchanged with chat clients over the
// websocket connection.
package ws

import (
	"encoding/json"
	"time"
)

// Frame types sent by clients
const (
	TypePing      = "ping"
	TypeChat      = "chat"
	TypeLoadMore  = "load_more"
	TypeRefresh   = "refresh"
	TypeClear     = "clear"
	TypeFeedback  = "feedback"
	TypeImplement = "implement"
)

// Frame types sent by the server besides the timeline event types
const (
	TypePong            = "pong"
	TypeError           = "error"
	TypeBlocked         = "blocked"
	TypeSendResult      = "send_result"
	TypeImplementResult = "implement_result"
)

// Message is a server-to-client frame
type Message struct {
	Type    string `json:"type"`
	Content any    `json:"content,omitempty"`
}

// Inbound is a client-to-server frame. Content is decoded per Type.
type Inbound struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// MessageRef names a stored message
type MessageRef struct {
	ID string `json:"id"`
}

// FeedbackRequest toggles feedback on a message
type FeedbackRequest struct {
	ID       string `json:"id"`
	Feedback string `json:"feedback"`
}

// ErrorContent is the body of an error frame
type ErrorContent struct {
	Message string `json:"message"`
}

// Pong answers a ping
type Pong struct {
	Timestamp time.Time `json:"timestamp"`
}
