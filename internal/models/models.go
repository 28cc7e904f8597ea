// Package models holds the domain records shared by the REST client, the
// realtime connection and the chat state container.
package models

import (
	"bytes"
	"time"
)

// UserID identifies a user on the chat server.
type UserID int64

// TeamID identifies a team.
type TeamID int64

// ChannelID identifies a channel within a team.
type ChannelID int64

// MessageID identifies a channel or direct message.
type MessageID int64

// User is a chat server account.
type User struct {
	ID        UserID `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	IsActive  bool   `json:"is_active"`
	IsOnline  bool   `json:"is_online"`
	LastSeen  *Time  `json:"last_seen,omitempty"`
	CreatedAt Time   `json:"created_at"`
}

// Team is a workspace grouping channels and members.
type Team struct {
	ID          TeamID `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	IsPublic    bool   `json:"is_public"`
	CreatedBy   UserID `json:"created_by"`
	CreatedAt   Time   `json:"created_at"`
	Members     []User `json:"members"`
}

// HasMember reports whether id is listed among the team members.
func (t Team) HasMember(id UserID) bool {
	for _, m := range t.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Channel is a named group conversation scoped to a team.
type Channel struct {
	ID          ChannelID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsPrivate   bool      `json:"is_private"`
	TeamID      TeamID    `json:"team_id"`
	CreatedBy   UserID    `json:"created_by"`
	CreatedAt   Time      `json:"created_at"`
	Members     []User    `json:"members"`
}

// Message is a channel message.
type Message struct {
	ID              MessageID  `json:"id"`
	Content         string     `json:"content"`
	MessageType     string     `json:"message_type"`
	FileURL         string     `json:"file_url,omitempty"`
	ChannelID       ChannelID  `json:"channel_id"`
	SenderID        UserID     `json:"sender_id"`
	ParentMessageID *MessageID `json:"parent_message_id,omitempty"`
	IsEdited        bool       `json:"is_edited"`
	EditedAt        *Time      `json:"edited_at,omitempty"`
	CreatedAt       Time       `json:"created_at"`
	Sender          User       `json:"sender"`
}

// DirectMessage is a private one-to-one message.
type DirectMessage struct {
	ID          MessageID `json:"id"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	FileURL     string    `json:"file_url,omitempty"`
	SenderID    UserID    `json:"sender_id"`
	ReceiverID  UserID    `json:"receiver_id"`
	IsRead      bool      `json:"is_read"`
	ReadAt      *Time     `json:"read_at,omitempty"`
	IsEdited    bool      `json:"is_edited"`
	EditedAt    *Time     `json:"edited_at,omitempty"`
	CreatedAt   Time      `json:"created_at"`
	Sender      User      `json:"sender"`
	Receiver    User      `json:"receiver"`
}

// Presence values reported by user_status events.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusAway    = "away"
	StatusBusy    = "busy"
)

// UserPresence is the presence record served by the REST API.
type UserPresence struct {
	UserID       UserID `json:"user_id"`
	Status       string `json:"status"`
	LastActivity Time   `json:"last_activity"`
}

// serverLayouts are accepted when decoding timestamps. The server emits
// naive ISO-8601 values (no zone) which are taken as UTC.
var serverLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Time is a time.Time that tolerates the server's zone-less timestamps.
type Time struct {
	time.Time
}

// NewTime wraps t.
func NewTime(t time.Time) Time { return Time{t} }

// Equal reports whether t and u are the same instant.
func (t Time) Equal(u Time) bool { return t.Time.Equal(u.Time) }

// UnmarshalJSON implements json.Unmarshaler.
func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Time{}
		return nil
	}
	s := string(bytes.Trim(data, `"`))
	if s == "" {
		*t = Time{}
		return nil
	}
	var lastErr error
	for _, layout := range serverLayouts {
		v, err := time.Parse(layout, s)
		if err == nil {
			t.Time = v.UTC()
			return nil
		}
		lastErr = err
	}
	return lastErr
}
