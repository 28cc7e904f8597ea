package realtime

import (
	"encoding/json"

	"github.com/matheus3301/teamchat/internal/models"
)

// Outbound is a frame the client sends. The set of implementations is closed.
type Outbound interface {
	frameType() string
}

// JoinChannel subscribes the connection to a channel's broadcasts.
type JoinChannel struct {
	ChannelID models.ChannelID `json:"channel_id"`
}

// LeaveChannel drops a channel subscription.
type LeaveChannel struct {
	ChannelID models.ChannelID `json:"channel_id"`
}

// TypingUpdate tells channel members the user started or stopped typing.
type TypingUpdate struct {
	ChannelID models.ChannelID `json:"channel_id"`
	Typing    bool             `json:"typing"`
}

// Ping keeps the presence record fresh; the server answers with pong.
type Ping struct{}

func (JoinChannel) frameType() string  { return "join_channel" }
func (LeaveChannel) frameType() string { return "leave_channel" }
func (TypingUpdate) frameType() string { return "typing" }
func (Ping) frameType() string         { return "ping" }

// EncodeOutbound renders o as a {"type", "data"} frame.
func EncodeOutbound(o Outbound) ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame{Type: o.frameType(), Data: data})
}
