package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Role identifies the author of a chat message
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// Feedback is the user's rating of an assistant message
type Feedback string

const (
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
)

// Valid reports whether f is one of the accepted feedback values
func (f Feedback) Valid() bool {
	return f == FeedbackPositive || f == FeedbackNegative
}

// MessageMetadata is the structured payload stored alongside a message
type MessageMetadata struct {
	// OriginalClientID correlates a persisted row with the optimistic entry that produced it
	OriginalClientID        string   `json:"original_client_id,omitempty"`
	Type                    string   `json:"type,omitempty"`
	Operations              []any    `json:"operations,omitempty"`
	HasExecutableOperations bool     `json:"has_executable_operations,omitempty"`
	Timestamp               string   `json:"timestamp,omitempty"`
	Images                  []string `json:"images,omitempty"`
}

// Message represents a persisted chat message
type Message struct {
	ID          string                              `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID      string                              `json:"user_id" gorm:"type:varchar(64);not null;index:idx_chat_messages_user_created,priority:1"`
	Role        Role                                `json:"role" gorm:"type:varchar(16);not null"`
	Content     string                              `json:"content" gorm:"type:text"`
	Metadata    datatypes.JSONType[MessageMetadata] `json:"metadata"`
	Implemented bool                                `json:"implemented"`
	Feedback    *Feedback                           `json:"feedback" gorm:"type:varchar(16)"`
	CreatedAt   time.Time                           `json:"created_at" gorm:"index:idx_chat_messages_user_created,priority:2"`
}

// TableName overrides the default table name
func (Message) TableName() string {
	return "chat_messages"
}

// BeforeCreate assigns a durable identity when the caller did not provide one
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// ClientID returns the correlation id recorded when the message was sent
func (m *Message) ClientID() string {
	return m.Metadata.Data().OriginalClientID
}

// MessageType returns the metadata kind, defaulting to text
func (m *Message) MessageType() string {
	if t := m.Metadata.Data().Type; t != "" {
		return t
	}
	return "text"
}
