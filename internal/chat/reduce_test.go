package chat

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/matheus3301/teamchat/internal/models"
)

func teamState() State {
	team := models.Team{ID: 1, Name: "core", Members: []models.User{{ID: 1}, {ID: 2}, {ID: 3}}}
	return State{
		Self:        &models.User{ID: 1, Username: "me"},
		Teams:       []models.Team{team, {ID: 2, Name: "other"}},
		CurrentTeam: &team,
		Channels: []models.Channel{
			{ID: 5, Name: "general", TeamID: 1},
			{ID: 6, Name: "random", TeamID: 1},
		},
	}
}

func withChannel(s State, id models.ChannelID) State {
	for _, ch := range s.Channels {
		if ch.ID == id {
			return Reduce(s, SelectChannel{Channel: ch})
		}
	}
	panic("unknown channel")
}

func msg(id models.MessageID, channel models.ChannelID, content string) models.Message {
	return models.Message{ID: id, ChannelID: channel, Content: content}
}

func ids(msgs []models.Message) []models.MessageID {
	out := make([]models.MessageID, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestReceiveIntoSelectedChannel(t *testing.T) {
	s := withChannel(teamState(), 5)

	s = Reduce(s, ReceiveChannelMessage{Message: msg(1, 5, "hi")})

	want := []models.Message{msg(1, 5, "hi")}
	if diff := cmp.Diff(want, s.Messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestReceivePrependsWithoutResort(t *testing.T) {
	s := withChannel(teamState(), 5)
	older := msg(1, 5, "first")
	older.CreatedAt = models.NewTime(time.Unix(2000, 0))
	newer := msg(2, 5, "second")
	newer.CreatedAt = models.NewTime(time.Unix(1000, 0)) // earlier timestamp, later arrival

	s = Reduce(s, ReceiveChannelMessage{Message: older})
	s = Reduce(s, ReceiveChannelMessage{Message: newer})

	if diff := cmp.Diff([]models.MessageID{2, 1}, ids(s.Messages)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestReceiveIgnoresUnknownOrUnselectedChannel(t *testing.T) {
	s := withChannel(teamState(), 5)

	s = Reduce(s, ReceiveChannelMessage{Message: msg(1, 99, "unknown")})
	s = Reduce(s, ReceiveChannelMessage{Message: msg(2, 6, "other channel")})

	if len(s.Messages) != 0 {
		t.Errorf("messages = %v, want none", ids(s.Messages))
	}
}

func TestReceiveDeduplicates(t *testing.T) {
	s := withChannel(teamState(), 5)
	s = Reduce(s, ReceiveChannelMessage{Message: msg(1, 5, "hi")})
	s = Reduce(s, ReceiveChannelMessage{Message: msg(1, 5, "hi")})
	if len(s.Messages) != 1 {
		t.Errorf("replayed message inserted twice: %v", ids(s.Messages))
	}

	dm := models.DirectMessage{ID: 9, SenderID: 2, ReceiverID: 1}
	s = Reduce(s, ReceiveDirectMessage{Message: dm})
	s = Reduce(s, ReceiveDirectMessage{Message: dm})
	if len(s.DirectMessages) != 1 {
		t.Errorf("direct messages = %d, want 1", len(s.DirectMessages))
	}
}

func TestSelectionIsExclusive(t *testing.T) {
	s := withChannel(teamState(), 5)
	if s.CurrentChannel == nil || s.CurrentDMPeer != nil {
		t.Fatalf("after SelectChannel: channel=%v peer=%v", s.CurrentChannel, s.CurrentDMPeer)
	}

	s = Reduce(s, SelectDMPeer{PeerID: 2})
	if s.CurrentChannel != nil || s.CurrentDMPeer == nil || *s.CurrentDMPeer != 2 {
		t.Fatalf("after SelectDMPeer: channel=%v peer=%v", s.CurrentChannel, s.CurrentDMPeer)
	}

	s = withChannel(s, 6)
	if s.CurrentChannel == nil || s.CurrentChannel.ID != 6 || s.CurrentDMPeer != nil {
		t.Fatalf("after second SelectChannel: channel=%v peer=%v", s.CurrentChannel, s.CurrentDMPeer)
	}
}

func TestSelectionExclusiveUnderRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := teamState()
	for i := 0; i < 500; i++ {
		switch rng.Intn(3) {
		case 0:
			s = Reduce(s, SelectChannel{Channel: s.Channels[rng.Intn(len(s.Channels))]})
		case 1:
			s = Reduce(s, SelectDMPeer{PeerID: models.UserID(rng.Intn(5))})
		case 2:
			s = Reduce(s, SelectChannel{Channel: models.Channel{ID: 77, TeamID: 2}})
		}
		if s.CurrentChannel != nil && s.CurrentDMPeer != nil {
			t.Fatalf("step %d: both channel %d and peer %d selected", i, s.CurrentChannel.ID, *s.CurrentDMPeer)
		}
	}
}

func TestSelectPreconditions(t *testing.T) {
	base := withChannel(teamState(), 5)
	base = Reduce(base, ReceiveChannelMessage{Message: msg(1, 5, "keep")})

	tests := []struct {
		name   string
		action Action
	}{
		{"unknown team", SelectTeam{TeamID: 42}},
		{"channel of another team", SelectChannel{Channel: models.Channel{ID: 8, TeamID: 2}}},
		{"peer outside team", SelectDMPeer{PeerID: 99}},
		{"self as peer", SelectDMPeer{PeerID: 1}},
		{"edit unknown message", EditMessageAck{Message: msg(404, 5, "x")}},
		{"delete unknown message", DeleteMessageAck{MessageID: 404}},
		{"mark unknown dm read", MarkDirectMessageReadAck{MessageID: 404}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reduce(base, tt.action)
			if diff := cmp.Diff(base, got); diff != "" {
				t.Errorf("state changed (-before +after):\n%s", diff)
			}
		})
	}
}

func TestSelectChannelClearsMessages(t *testing.T) {
	s := withChannel(teamState(), 5)
	s = Reduce(s, ReceiveChannelMessage{Message: msg(1, 5, "hi")})
	s = withChannel(s, 6)
	if len(s.Messages) != 0 {
		t.Errorf("messages = %v after switching channel", ids(s.Messages))
	}
}

func TestSelectTeam(t *testing.T) {
	s := Reduce(teamState(), SelectTeam{TeamID: 2})
	if s.CurrentTeamID() != 2 {
		t.Errorf("current team = %d, want 2", s.CurrentTeamID())
	}
}

func TestEditPreservesPosition(t *testing.T) {
	s := withChannel(teamState(), 5)
	s = Reduce(s, SetMessages{Messages: []models.Message{msg(3, 5, "c"), msg(2, 5, "b"), msg(1, 5, "a")}})
	before := s

	s = Reduce(s, EditMessageAck{Message: msg(2, 5, "b2")})

	if diff := cmp.Diff([]models.MessageID{3, 2, 1}, ids(s.Messages)); diff != "" {
		t.Fatalf("order changed (-want +got):\n%s", diff)
	}
	if s.Messages[1].Content != "b2" || !s.Messages[1].IsEdited {
		t.Errorf("edited entry = %+v", s.Messages[1])
	}
	for _, i := range []int{0, 2} {
		if diff := cmp.Diff(before.Messages[i], s.Messages[i]); diff != "" {
			t.Errorf("index %d changed:\n%s", i, diff)
		}
	}
	if before.Messages[1].Content != "b" {
		t.Error("previous snapshot was mutated")
	}
}

func TestDeletePreservesOrder(t *testing.T) {
	s := withChannel(teamState(), 5)
	s = Reduce(s, SetMessages{Messages: []models.Message{msg(4, 5, ""), msg(3, 5, ""), msg(2, 5, ""), msg(1, 5, "")}})
	before := s

	s = Reduce(s, DeleteMessageAck{MessageID: 3})

	if diff := cmp.Diff([]models.MessageID{4, 2, 1}, ids(s.Messages)); diff != "" {
		t.Errorf("after delete (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]models.MessageID{4, 3, 2, 1}, ids(before.Messages)); diff != "" {
		t.Errorf("previous snapshot mutated (-want +got):\n%s", diff)
	}
}

func TestTypingStartStopRemovesEntry(t *testing.T) {
	s := Reduce(State{}, SetTyping{ChannelID: 5, UserID: 9, Typing: true})
	if got := s.Typing(5); len(got) != 1 || got[0] != 9 {
		t.Fatalf("Typing(5) = %v", got)
	}
	s = Reduce(s, SetTyping{ChannelID: 5, UserID: 9, Typing: false})
	if _, ok := s.TypingUsers[5]; ok {
		t.Errorf("channel 5 still present: %v", s.TypingUsers)
	}
}

func TestTypingMapNeverHoldsEmptySets(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := State{}
	for i := 0; i < 1000; i++ {
		s = Reduce(s, SetTyping{
			ChannelID: models.ChannelID(rng.Intn(3) + 1),
			UserID:    models.UserID(rng.Intn(4) + 1),
			Typing:    rng.Intn(2) == 0,
		})
		for ch, users := range s.TypingUsers {
			if len(users) == 0 {
				t.Fatalf("step %d: channel %d has an empty typing set", i, ch)
			}
		}
	}
}

func TestTypingDoesNotMutatePrevious(t *testing.T) {
	s1 := Reduce(State{}, SetTyping{ChannelID: 5, UserID: 1, Typing: true})
	s2 := Reduce(s1, SetTyping{ChannelID: 5, UserID: 2, Typing: true})
	if len(s1.TypingUsers[5]) != 1 || len(s2.TypingUsers[5]) != 2 {
		t.Errorf("s1=%v s2=%v", s1.TypingUsers, s2.TypingUsers)
	}
}

func TestUserStatus(t *testing.T) {
	s := Reduce(State{}, UpdateUserStatus{UserID: 3, Status: models.StatusOnline})
	if !s.IsOnline(3) {
		t.Fatal("user 3 not online")
	}
	s = Reduce(s, UpdateUserStatus{UserID: 3, Status: models.StatusOffline})
	if s.IsOnline(3) {
		t.Error("user 3 still online after offline status")
	}

	s = Reduce(s, SetOnlineUsers{UserIDs: []models.UserID{1, 2}})
	s = Reduce(s, UpdateUserStatus{UserID: 2, Status: models.StatusAway})
	if !s.IsOnline(1) || s.IsOnline(2) {
		t.Errorf("online = %v", s.OnlineUsers)
	}
	s = Reduce(s, SetOnlineUsers{UserIDs: []models.UserID{7}})
	if s.IsOnline(1) || !s.IsOnline(7) {
		t.Errorf("SetOnlineUsers did not replace the set: %v", s.OnlineUsers)
	}
}

func TestMarkDirectMessageRead(t *testing.T) {
	s := Reduce(State{}, SetDirectMessages{Messages: []models.DirectMessage{{ID: 1}, {ID: 2}}})
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	next := Reduce(s, MarkDirectMessageReadAck{MessageID: 2, ReadAt: at})
	if !next.DirectMessages[1].IsRead || !next.DirectMessages[1].ReadAt.Time.Equal(at) {
		t.Errorf("dm = %+v", next.DirectMessages[1])
	}
	if s.DirectMessages[1].IsRead {
		t.Error("previous snapshot mutated")
	}
}

func TestErrorField(t *testing.T) {
	s := Reduce(State{Loading: true}, SetError{Message: "Failed to load teams"})
	if s.Error != "Failed to load teams" || s.Loading {
		t.Errorf("state = %+v", s)
	}
	s = Reduce(s, SetError{Message: "Failed to load channels"})
	if s.Error != "Failed to load channels" {
		t.Errorf("error not overwritten: %q", s.Error)
	}
	s = Reduce(s, ClearError{})
	if s.Error != "" {
		t.Errorf("error = %q after ClearError", s.Error)
	}
}

func TestNilActionIsNoop(t *testing.T) {
	s := teamState()
	if diff := cmp.Diff(s, Reduce(s, nil)); diff != "" {
		t.Errorf("nil action changed state:\n%s", diff)
	}
}
