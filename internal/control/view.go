// Package control exposes the daemon's chat controller over its gRPC socket.
// Requests and replies travel as google.protobuf.Struct values holding the
// JSON form of the request types and StateView.
package control

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/matheus3301/teamchat/internal/chat"
	"github.com/matheus3301/teamchat/internal/models"
	"github.com/matheus3301/teamchat/internal/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// StateView is the chat snapshot plus the realtime connection as seen by
// clients of the control service.
type StateView struct {
	Status    status.State `json:"status"`
	Connected bool         `json:"connected"`
	ConnID    string       `json:"conn_id,omitempty"`
	Attempts  int          `json:"attempts"`
	LastPong  time.Time    `json:"last_pong,omitzero"`

	Self           *models.User           `json:"self,omitempty"`
	Teams          []models.Team          `json:"teams"`
	CurrentTeam    *models.Team           `json:"current_team,omitempty"`
	Channels       []models.Channel       `json:"channels"`
	CurrentChannel *models.Channel        `json:"current_channel,omitempty"`
	CurrentDMPeer  *models.UserID         `json:"current_dm_peer,omitempty"`
	Messages       []models.Message       `json:"messages"`
	DirectMessages []models.DirectMessage `json:"direct_messages"`
	OnlineUsers    []models.UserID        `json:"online_users"`
	Typing         []TypingView           `json:"typing,omitempty"`
	Loading        bool                   `json:"loading"`
	Error          string                 `json:"error,omitempty"`
}

// TypingView lists the users typing in one channel.
type TypingView struct {
	ChannelID models.ChannelID `json:"channel_id"`
	Users     []models.UserID  `json:"users"`
}

// newStateView flattens st. Online users and typing channels are sorted.
func newStateView(st chat.State, conn Connection) StateView {
	v := StateView{
		Self:           st.Self,
		Teams:          st.Teams,
		CurrentTeam:    st.CurrentTeam,
		Channels:       st.Channels,
		CurrentChannel: st.CurrentChannel,
		CurrentDMPeer:  st.CurrentDMPeer,
		Messages:       st.Messages,
		DirectMessages: st.DirectMessages,
		OnlineUsers:    slices.Sorted(maps.Keys(st.OnlineUsers)),
		Loading:        st.Loading,
		Error:          st.Error,
	}
	for _, id := range slices.Sorted(maps.Keys(st.TypingUsers)) {
		v.Typing = append(v.Typing, TypingView{ChannelID: id, Users: st.Typing(id)})
	}
	if conn != nil {
		v.Status = conn.Status()
		v.Connected = conn.Connected()
		v.ConnID = conn.ConnID()
		v.Attempts = conn.Attempts()
		v.LastPong = conn.LastPong()
	}
	return v
}

// encode converts v to a Struct through its JSON form.
func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return s, nil
}

// decode fills v from s. A nil Struct leaves v untouched.
func decode(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
