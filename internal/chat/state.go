// Package chat holds the client-side chat state: an immutable snapshot, the
// closed set of actions that transform it, and the controller that turns
// user intents into REST calls and actions.
package chat

import (
	"slices"

	"github.com/matheus3301/teamchat/internal/models"
)

// State is one snapshot. Snapshots returned by Store are never modified
// afterwards; callers must treat every slice, map and pointer as read-only.
type State struct {
	Self *models.User

	Teams       []models.Team
	CurrentTeam *models.Team

	Channels       []models.Channel
	CurrentChannel *models.Channel
	CurrentDMPeer  *models.UserID

	// Messages and DirectMessages are newest-first.
	Messages       []models.Message
	DirectMessages []models.DirectMessage

	OnlineUsers map[models.UserID]struct{}
	// TypingUsers never holds an empty set.
	TypingUsers map[models.ChannelID]map[models.UserID]struct{}

	Loading bool
	Error   string
}

// HasChannel reports whether id is among the loaded channels.
func (s State) HasChannel(id models.ChannelID) bool {
	return slices.ContainsFunc(s.Channels, func(c models.Channel) bool { return c.ID == id })
}

// IsOnline reports whether the user is in the online set.
func (s State) IsOnline(id models.UserID) bool {
	_, ok := s.OnlineUsers[id]
	return ok
}

// Typing returns the users typing in a channel in ascending id order.
func (s State) Typing(id models.ChannelID) []models.UserID {
	set := s.TypingUsers[id]
	if len(set) == 0 {
		return nil
	}
	out := make([]models.UserID, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	slices.Sort(out)
	return out
}

// CurrentChannelID returns the selected channel id, or 0.
func (s State) CurrentChannelID() models.ChannelID {
	if s.CurrentChannel == nil {
		return 0
	}
	return s.CurrentChannel.ID
}

// CurrentTeamID returns the selected team id, or 0.
func (s State) CurrentTeamID() models.TeamID {
	if s.CurrentTeam == nil {
		return 0
	}
	return s.CurrentTeam.ID
}

func ptr[T any](v T) *T { return &v }
