package chat

import (
	"time"

	"github.com/matheus3301/teamchat/internal/models"
)

// Action is a state transition request. The set of implementations is
// closed; Reduce handles every one of them.
type Action interface {
	actionName() string
}

// Navigation.
type (
	SelectTeam struct {
		TeamID models.TeamID
	}
	SelectChannel struct {
		Channel models.Channel
	}
	SelectDMPeer struct {
		PeerID models.UserID
	}
)

// Inbound events and REST acknowledgements.
type (
	ReceiveChannelMessage struct {
		Message models.Message
	}
	ReceiveDirectMessage struct {
		Message models.DirectMessage
	}
	EditMessageAck struct {
		Message models.Message
	}
	DeleteMessageAck struct {
		MessageID models.MessageID
	}
	MarkDirectMessageReadAck struct {
		MessageID models.MessageID
		ReadAt    time.Time
	}
	SetTyping struct {
		ChannelID models.ChannelID
		UserID    models.UserID
		Typing    bool
	}
	SetOnlineUsers struct {
		UserIDs []models.UserID
	}
	UpdateUserStatus struct {
		UserID models.UserID
		Status string
	}
)

// Plain setters used by the controller after REST loads.
type (
	SetSelf struct {
		User models.User
	}
	SetTeams struct {
		Teams []models.Team
	}
	SetChannels struct {
		Channels []models.Channel
	}
	SetMessages struct {
		Messages []models.Message
	}
	SetDirectMessages struct {
		Messages []models.DirectMessage
	}
	SetLoading struct {
		Loading bool
	}
	SetError struct {
		Message string
	}
	ClearError struct{}
)

func (SelectTeam) actionName() string               { return "SelectTeam" }
func (SelectChannel) actionName() string            { return "SelectChannel" }
func (SelectDMPeer) actionName() string             { return "SelectDMPeer" }
func (ReceiveChannelMessage) actionName() string    { return "ReceiveChannelMessage" }
func (ReceiveDirectMessage) actionName() string     { return "ReceiveDirectMessage" }
func (EditMessageAck) actionName() string           { return "EditMessageAck" }
func (DeleteMessageAck) actionName() string         { return "DeleteMessageAck" }
func (MarkDirectMessageReadAck) actionName() string { return "MarkDirectMessageReadAck" }
func (SetTyping) actionName() string                { return "SetTyping" }
func (SetOnlineUsers) actionName() string           { return "SetOnlineUsers" }
func (UpdateUserStatus) actionName() string         { return "UpdateUserStatus" }
func (SetSelf) actionName() string                  { return "SetSelf" }
func (SetTeams) actionName() string                 { return "SetTeams" }
func (SetChannels) actionName() string              { return "SetChannels" }
func (SetMessages) actionName() string              { return "SetMessages" }
func (SetDirectMessages) actionName() string        { return "SetDirectMessages" }
func (SetLoading) actionName() string               { return "SetLoading" }
func (SetError) actionName() string                 { return "SetError" }
func (ClearError) actionName() string               { return "ClearError" }

// ActionName returns a stable label for logs and metrics.
func ActionName(a Action) string {
	if a == nil {
		return "nil"
	}
	return a.actionName()
}
