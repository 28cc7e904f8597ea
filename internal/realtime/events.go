package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/matheus3301/teamchat/internal/models"
)

// Kind names an inbound event type as it appears in the frame's "type" field.
type Kind string

const (
	KindNewMessage       Kind = "new_message"
	KindNewDirectMessage Kind = "new_direct_message"
	KindTyping           Kind = "typing"
	KindUserStatus       Kind = "user_status"
	KindPong             Kind = "pong"
)

// ErrUnknownKind is returned by DecodeEvent for frame types it does not model.
var ErrUnknownKind = errors.New("unknown event kind")

// Event is an inbound server event. The set of implementations is closed.
type Event interface {
	Kind() Kind
	isEvent()
}

// NewMessage announces a message posted to a channel.
type NewMessage struct {
	MessageID   models.MessageID `json:"message_id"`
	Content     string           `json:"content"`
	Sender      models.User      `json:"sender"`
	ChannelID   models.ChannelID `json:"channel_id"`
	MessageType string           `json:"message_type"`
	CreatedAt   models.Time      `json:"created_at"`
}

// NewDirectMessage announces a direct message. Receiver is optional on the
// wire; ReceiverID is always set by the server.
type NewDirectMessage struct {
	MessageID   models.MessageID `json:"message_id"`
	Content     string           `json:"content"`
	Sender      models.User      `json:"sender"`
	ReceiverID  models.UserID    `json:"receiver_id"`
	Receiver    *models.User     `json:"receiver,omitempty"`
	MessageType string           `json:"message_type"`
	CreatedAt   models.Time      `json:"created_at"`
}

// Typing reports a user starting or stopping typing in a channel.
type Typing struct {
	UserID    models.UserID    `json:"user_id"`
	ChannelID models.ChannelID `json:"channel_id"`
	Typing    bool             `json:"typing"`
}

// UserStatus reports a presence change.
type UserStatus struct {
	UserID models.UserID `json:"user_id"`
	Status string        `json:"status"`
}

// Pong answers a ping.
type Pong struct{}

func (NewMessage) Kind() Kind       { return KindNewMessage }
func (NewDirectMessage) Kind() Kind { return KindNewDirectMessage }
func (Typing) Kind() Kind           { return KindTyping }
func (UserStatus) Kind() Kind       { return KindUserStatus }
func (Pong) Kind() Kind             { return KindPong }

func (NewMessage) isEvent()       {}
func (NewDirectMessage) isEvent() {}
func (Typing) isEvent()           {}
func (UserStatus) isEvent()       {}
func (Pong) isEvent()             {}

// frame is the envelope used in both directions.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DecodeEvent parses one text frame into its typed event.
func DecodeEvent(raw []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	var (
		evt Event
		err error
	)
	switch Kind(f.Type) {
	case KindNewMessage:
		evt, err = decodeData[NewMessage](f.Data)
	case KindNewDirectMessage:
		evt, err = decodeData[NewDirectMessage](f.Data)
	case KindTyping:
		evt, err = decodeData[Typing](f.Data)
	case KindUserStatus:
		evt, err = decodeData[UserStatus](f.Data)
	case KindPong:
		return Pong{}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, f.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Type, err)
	}
	return evt, nil
}

func decodeData[T Event](data json.RawMessage) (Event, error) {
	var v T
	if len(data) == 0 || string(data) == "null" {
		return nil, errors.New("missing data")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
