// Package sync feeds realtime events into the chat state.
package sync

import (
	"github.com/matheus3301/teamchat/internal/chat"
	"github.com/matheus3301/teamchat/internal/logging"
	"github.com/matheus3301/teamchat/internal/models"
	"github.com/matheus3301/teamchat/internal/realtime"
	"go.uber.org/zap"
)

// Source is where realtime handlers are installed; realtime.Manager
// satisfies it.
type Source interface {
	Subscribe(kind realtime.Kind, h realtime.Handler)
	Unsubscribe(kind realtime.Kind)
}

// Dispatcher applies actions; chat.Store satisfies it.
type Dispatcher interface {
	Dispatch(a chat.Action) chat.State
}

var handledKinds = []realtime.Kind{
	realtime.KindNewMessage,
	realtime.KindNewDirectMessage,
	realtime.KindTyping,
	realtime.KindUserStatus,
}

// Engine translates inbound events into chat actions. Handlers run on the
// connection's reader goroutine, one event at a time.
type Engine struct {
	src    Source
	store  Dispatcher
	dir    *Directory
	logger *zap.Logger
}

// NewEngine creates a new sync engine. dir may be nil.
func NewEngine(src Source, store Dispatcher, dir *Directory, logger *zap.Logger) *Engine {
	return &Engine{
		src:    src,
		store:  store,
		dir:    dir,
		logger: logging.OrNop(logger).Named("sync"),
	}
}

// Start installs the event handlers.
func (e *Engine) Start() {
	e.src.Subscribe(realtime.KindNewMessage, e.onNewMessage)
	e.src.Subscribe(realtime.KindNewDirectMessage, e.onNewDirectMessage)
	e.src.Subscribe(realtime.KindTyping, e.onTyping)
	e.src.Subscribe(realtime.KindUserStatus, e.onUserStatus)
}

// Stop removes the handlers.
func (e *Engine) Stop() {
	for _, k := range handledKinds {
		e.src.Unsubscribe(k)
	}
}

func (e *Engine) onNewMessage(evt realtime.Event) {
	ev, ok := evt.(realtime.NewMessage)
	if !ok {
		return
	}
	e.remember(ev.Sender)
	e.store.Dispatch(chat.ReceiveChannelMessage{Message: models.Message{
		ID:          ev.MessageID,
		Content:     ev.Content,
		MessageType: ev.MessageType,
		ChannelID:   ev.ChannelID,
		SenderID:    ev.Sender.ID,
		CreatedAt:   ev.CreatedAt,
		Sender:      ev.Sender,
	}})
}

func (e *Engine) onNewDirectMessage(evt realtime.Event) {
	ev, ok := evt.(realtime.NewDirectMessage)
	if !ok {
		return
	}
	e.remember(ev.Sender)
	e.store.Dispatch(chat.ReceiveDirectMessage{Message: models.DirectMessage{
		ID:          ev.MessageID,
		Content:     ev.Content,
		MessageType: ev.MessageType,
		SenderID:    ev.Sender.ID,
		ReceiverID:  ev.ReceiverID,
		CreatedAt:   ev.CreatedAt,
		Sender:      ev.Sender,
		Receiver:    e.receiver(ev),
	}})
}

// receiver prefers the payload's object, then the directory, then a bare
// record carrying only the id. It never waits on the network.
func (e *Engine) receiver(ev realtime.NewDirectMessage) models.User {
	if ev.Receiver != nil {
		e.remember(*ev.Receiver)
		return *ev.Receiver
	}
	if e.dir != nil {
		if u, ok := e.dir.Resolve(ev.ReceiverID); ok {
			return u
		}
		e.logger.Debug("receiver not in directory", zap.Int64("user_id", int64(ev.ReceiverID)))
	}
	return models.User{ID: ev.ReceiverID}
}

func (e *Engine) onTyping(evt realtime.Event) {
	ev, ok := evt.(realtime.Typing)
	if !ok || ev.ChannelID == 0 {
		return
	}
	e.store.Dispatch(chat.SetTyping{ChannelID: ev.ChannelID, UserID: ev.UserID, Typing: ev.Typing})
}

func (e *Engine) onUserStatus(evt realtime.Event) {
	ev, ok := evt.(realtime.UserStatus)
	if !ok {
		return
	}
	e.store.Dispatch(chat.UpdateUserStatus{UserID: ev.UserID, Status: ev.Status})
}

func (e *Engine) remember(u models.User) {
	if e.dir != nil {
		e.dir.Remember(u)
	}
}

