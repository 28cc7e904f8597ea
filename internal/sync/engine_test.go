package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/matheus3301/teamchat/internal/chat"
	"github.com/matheus3301/teamchat/internal/models"
	"github.com/matheus3301/teamchat/internal/realtime"
	"go.uber.org/zap"
)

type fakeSource struct {
	handlers map[realtime.Kind]realtime.Handler
}

func newFakeSource() *fakeSource {
	return &fakeSource{handlers: make(map[realtime.Kind]realtime.Handler)}
}

func (s *fakeSource) Subscribe(kind realtime.Kind, h realtime.Handler) { s.handlers[kind] = h }
func (s *fakeSource) Unsubscribe(kind realtime.Kind)                   { delete(s.handlers, kind) }

func (s *fakeSource) emit(t *testing.T, evt realtime.Event) {
	t.Helper()
	h, ok := s.handlers[evt.Kind()]
	if !ok {
		t.Fatalf("no handler for %s", evt.Kind())
	}
	h(evt)
}

type fakeUsers struct {
	mu    gosync.Mutex
	users []models.User
	err   error
	calls int
}

func (f *fakeUsers) Users(context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.users, f.err
}

// selectedStore returns a store with team 1, channel 5 selected.
func selectedStore() *chat.Store {
	s := chat.NewStore(nil, nil, nil)
	s.Dispatch(chat.SetSelf{User: models.User{ID: 1}})
	s.Dispatch(chat.SetTeams{Teams: []models.Team{{ID: 1, Members: []models.User{{ID: 1}, {ID: 2}}}}})
	s.Dispatch(chat.SelectTeam{TeamID: 1})
	ch := models.Channel{ID: 5, TeamID: 1}
	s.Dispatch(chat.SetChannels{Channels: []models.Channel{ch}})
	s.Dispatch(chat.SelectChannel{Channel: ch})
	return s
}

func newTestEngine(t *testing.T, users UserLister) (*Engine, *fakeSource, *chat.Store, *Directory) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	src := newFakeSource()
	store := selectedStore()
	dir := NewDirectory(ctx, users, time.Minute, zap.NewNop())
	e := NewEngine(src, store, dir, zap.NewNop())
	e.Start()
	t.Cleanup(e.Stop)
	return e, src, store, dir
}

func TestStartInstallsAndStopRemovesHandlers(t *testing.T) {
	src := newFakeSource()
	e := NewEngine(src, chat.NewStore(nil, nil, nil), nil, nil)
	e.Start()
	for _, k := range handledKinds {
		if _, ok := src.handlers[k]; !ok {
			t.Errorf("no handler for %s", k)
		}
	}
	e.Stop()
	if len(src.handlers) != 0 {
		t.Errorf("handlers left after Stop: %v", src.handlers)
	}
}

func TestNewMessageLandsInSelectedChannel(t *testing.T) {
	_, src, store, dir := newTestEngine(t, &fakeUsers{})
	sender := models.User{ID: 2, Username: "ana"}
	created := models.NewTime(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	src.emit(t, realtime.NewMessage{MessageID: 10, Content: "hi", Sender: sender, ChannelID: 5, MessageType: "text", CreatedAt: created})

	want := []models.Message{{
		ID:          10,
		Content:     "hi",
		MessageType: "text",
		ChannelID:   5,
		SenderID:    2,
		CreatedAt:   created,
		Sender:      sender,
	}}
	if diff := cmp.Diff(want, store.State().Messages); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}
	if u, ok := dir.cached(2); !ok || u.Username != "ana" {
		t.Errorf("sender not remembered: %+v %v", u, ok)
	}
}

func TestDirectMessageReceiverFromPayload(t *testing.T) {
	users := &fakeUsers{}
	_, src, store, _ := newTestEngine(t, users)
	receiver := &models.User{ID: 1, Username: "me"}

	src.emit(t, realtime.NewDirectMessage{MessageID: 11, Sender: models.User{ID: 2}, ReceiverID: 1, Receiver: receiver})

	got := store.State().DirectMessages
	if len(got) != 1 || got[0].ReceiverID != 1 || got[0].Receiver.Username != "me" || got[0].SenderID != 2 {
		t.Errorf("direct messages = %+v", got)
	}
	if got := users.callCount(); got != 0 {
		t.Errorf("directory refreshed %d times, want 0", got)
	}
}

func TestDirectMessageReceiverFromDirectory(t *testing.T) {
	users := &fakeUsers{users: []models.User{{ID: 3, Username: "bo"}}}
	_, src, store, dir := newTestEngine(t, users)

	// The first message misses and carries the bare id while the
	// directory refreshes in the background.
	src.emit(t, realtime.NewDirectMessage{MessageID: 12, Sender: models.User{ID: 2}, ReceiverID: 3})
	dir.Wait()
	src.emit(t, realtime.NewDirectMessage{MessageID: 13, Sender: models.User{ID: 2}, ReceiverID: 3})

	got := store.State().DirectMessages
	if len(got) != 2 || got[0].Receiver != (models.User{ID: 3}) || got[1].Receiver.Username != "bo" {
		t.Errorf("direct messages = %+v", got)
	}
	if got := users.callCount(); got != 1 {
		t.Errorf("directory refreshed %d times, want 1", got)
	}
}

func TestDirectMessageReceiverUnknown(t *testing.T) {
	users := &fakeUsers{err: errors.New("offline")}
	_, src, store, dir := newTestEngine(t, users)

	src.emit(t, realtime.NewDirectMessage{MessageID: 14, Sender: models.User{ID: 2}, ReceiverID: 9})
	dir.Wait()

	got := store.State().DirectMessages
	if len(got) != 1 || got[0].Receiver != (models.User{ID: 9}) {
		t.Errorf("direct messages = %+v", got)
	}
}

func TestTypingWithoutChannelIgnored(t *testing.T) {
	_, src, store, _ := newTestEngine(t, &fakeUsers{})

	src.emit(t, realtime.Typing{UserID: 2, Typing: true})
	if len(store.State().TypingUsers) != 0 {
		t.Errorf("typing = %v, want empty", store.State().TypingUsers)
	}

	src.emit(t, realtime.Typing{UserID: 2, ChannelID: 5, Typing: true})
	if got := store.State().Typing(5); len(got) != 1 || got[0] != 2 {
		t.Errorf("Typing(5) = %v, want [2]", got)
	}
}

func TestUserStatus(t *testing.T) {
	_, src, store, _ := newTestEngine(t, &fakeUsers{})

	src.emit(t, realtime.UserStatus{UserID: 4, Status: models.StatusOnline})
	if !store.State().IsOnline(4) {
		t.Error("user 4 not online")
	}
	src.emit(t, realtime.UserStatus{UserID: 4, Status: models.StatusOffline})
	if store.State().IsOnline(4) {
		t.Error("user 4 still online")
	}
}
