package chat

import (
	"maps"
	"slices"

	"github.com/matheus3301/teamchat/internal/models"
)

// Reduce returns the state that follows s after a. It never modifies s and
// never panics; an action whose precondition fails returns s unchanged.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case SelectTeam:
		return selectTeam(s, a)
	case SelectChannel:
		return selectChannel(s, a)
	case SelectDMPeer:
		return selectDMPeer(s, a)
	case ReceiveChannelMessage:
		return receiveChannelMessage(s, a)
	case ReceiveDirectMessage:
		return receiveDirectMessage(s, a)
	case EditMessageAck:
		return editMessage(s, a)
	case DeleteMessageAck:
		return deleteMessage(s, a)
	case MarkDirectMessageReadAck:
		return markRead(s, a)
	case SetTyping:
		return setTyping(s, a)
	case SetOnlineUsers:
		s.OnlineUsers = make(map[models.UserID]struct{}, len(a.UserIDs))
		for _, id := range a.UserIDs {
			s.OnlineUsers[id] = struct{}{}
		}
		return s
	case UpdateUserStatus:
		online := maps.Clone(s.OnlineUsers)
		if online == nil {
			online = make(map[models.UserID]struct{})
		}
		if a.Status == models.StatusOnline {
			online[a.UserID] = struct{}{}
		} else {
			delete(online, a.UserID)
		}
		s.OnlineUsers = online
		return s
	case SetSelf:
		s.Self = ptr(a.User)
		return s
	case SetTeams:
		s.Teams = slices.Clone(a.Teams)
		return s
	case SetChannels:
		s.Channels = slices.Clone(a.Channels)
		return s
	case SetMessages:
		s.Messages = slices.Clone(a.Messages)
		return s
	case SetDirectMessages:
		s.DirectMessages = slices.Clone(a.Messages)
		return s
	case SetLoading:
		s.Loading = a.Loading
		return s
	case SetError:
		s.Error = a.Message
		s.Loading = false
		return s
	case ClearError:
		s.Error = ""
		return s
	default:
		return s
	}
}

func selectTeam(s State, a SelectTeam) State {
	i := slices.IndexFunc(s.Teams, func(t models.Team) bool { return t.ID == a.TeamID })
	if i < 0 {
		return s
	}
	s.CurrentTeam = ptr(s.Teams[i])
	return s
}

func selectChannel(s State, a SelectChannel) State {
	if s.CurrentTeam == nil || a.Channel.TeamID != s.CurrentTeam.ID {
		return s
	}
	s.CurrentChannel = ptr(a.Channel)
	s.CurrentDMPeer = nil
	s.Messages = nil
	return s
}

func selectDMPeer(s State, a SelectDMPeer) State {
	if s.CurrentTeam == nil || !s.CurrentTeam.HasMember(a.PeerID) {
		return s
	}
	if s.Self != nil && s.Self.ID == a.PeerID {
		return s
	}
	s.CurrentDMPeer = ptr(a.PeerID)
	s.CurrentChannel = nil
	s.DirectMessages = nil
	return s
}

// receiveChannelMessage prepends without re-sorting. Only the selected
// channel's list is held, so messages for other known channels are dropped.
func receiveChannelMessage(s State, a ReceiveChannelMessage) State {
	m := a.Message
	if !s.HasChannel(m.ChannelID) || s.CurrentChannelID() != m.ChannelID {
		return s
	}
	if slices.ContainsFunc(s.Messages, func(x models.Message) bool { return x.ID == m.ID }) {
		return s
	}
	s.Messages = prepend(s.Messages, m)
	return s
}

func receiveDirectMessage(s State, a ReceiveDirectMessage) State {
	m := a.Message
	if slices.ContainsFunc(s.DirectMessages, func(x models.DirectMessage) bool { return x.ID == m.ID }) {
		return s
	}
	s.DirectMessages = prepend(s.DirectMessages, m)
	return s
}

func editMessage(s State, a EditMessageAck) State {
	i := slices.IndexFunc(s.Messages, func(x models.Message) bool { return x.ID == a.Message.ID })
	if i < 0 {
		return s
	}
	msgs := slices.Clone(s.Messages)
	msgs[i] = a.Message
	msgs[i].IsEdited = true
	s.Messages = msgs
	return s
}

func deleteMessage(s State, a DeleteMessageAck) State {
	i := slices.IndexFunc(s.Messages, func(x models.Message) bool { return x.ID == a.MessageID })
	if i < 0 {
		return s
	}
	// Delete on a fresh copy; slices.Delete shifts in place.
	s.Messages = slices.Delete(slices.Clone(s.Messages), i, i+1)
	return s
}

func markRead(s State, a MarkDirectMessageReadAck) State {
	i := slices.IndexFunc(s.DirectMessages, func(x models.DirectMessage) bool { return x.ID == a.MessageID })
	if i < 0 {
		return s
	}
	dms := slices.Clone(s.DirectMessages)
	dms[i].IsRead = true
	dms[i].ReadAt = ptr(models.NewTime(a.ReadAt))
	s.DirectMessages = dms
	return s
}

func setTyping(s State, a SetTyping) State {
	typing := maps.Clone(s.TypingUsers)
	if typing == nil {
		typing = make(map[models.ChannelID]map[models.UserID]struct{})
	}
	users := maps.Clone(typing[a.ChannelID])
	if users == nil {
		users = make(map[models.UserID]struct{})
	}
	if a.Typing {
		users[a.UserID] = struct{}{}
	} else {
		delete(users, a.UserID)
	}
	if len(users) == 0 {
		delete(typing, a.ChannelID)
	} else {
		typing[a.ChannelID] = users
	}
	s.TypingUsers = typing
	return s
}

func prepend[T any](list []T, v T) []T {
	out := make([]T, 0, len(list)+1)
	out = append(out, v)
	return append(out, list...)
}
