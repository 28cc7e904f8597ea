package daemon

import (
	"github.com/matheus3301/teamchat/internal/bus"
	"github.com/matheus3301/teamchat/internal/chat"
	"github.com/matheus3301/teamchat/internal/models"
	"github.com/matheus3301/teamchat/internal/realtime"
	"github.com/matheus3301/teamchat/internal/status"
	"go.uber.org/zap"
)

type stateSource interface {
	State() chat.State
}

// rejoiner is the part of the manager used to restore the channel
// subscription after a reconnect.
type rejoiner interface {
	JoinChannel(id models.ChannelID) bool
}

// watch follows session, connection and chat events: the health service
// tracks the connection state, the selected channel is rejoined on every new
// connection, and connection events and chat errors are logged. The
// returned func stops it.
func watch(d lifecycleParams) func() {
	return follow(d.Bus, d.Server, d.Store, d.Manager, d.Logger)
}

func follow(b *bus.Bus, srv *Server, st stateSource, rt rejoiner, logger *zap.Logger) func() {
	statusCh, unsubStatus := b.Subscribe("session.", 16)
	connCh, unsubConn := b.Subscribe("conn.", 16)
	chatCh, unsubChat := b.Subscribe("chat.", 64)
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		var chatLog chatLogger
		for {
			select {
			case evt := <-statusCh:
				change, ok := evt.Payload.(status.StatusChange)
				if !ok {
					continue
				}
				srv.SetRealtime(change.To == status.Connected)
				logger.Info("session status", zap.String("from", string(change.From)), zap.String("to", string(change.To)))
			case evt := <-connCh:
				logConnEvent(logger, evt)
				if evt.Kind != bus.KindConnected {
					continue
				}
				if id := st.State().CurrentChannelID(); id != 0 {
					rt.JoinChannel(id)
				}
			case evt := <-chatCh:
				if change, ok := evt.Payload.(chat.StateChange); ok {
					chatLog.observe(logger, change)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		unsubStatus()
		unsubConn()
		unsubChat()
		close(done)
		<-stopped
	}
}

func logConnEvent(logger *zap.Logger, evt bus.Event) {
	switch p := evt.Payload.(type) {
	case realtime.ConnectedInfo:
		logger.Info("realtime connected", zap.String("conn_id", p.ConnID), zap.String("url", p.URL))
	case realtime.DisconnectedInfo:
		logger.Info("realtime disconnected", zap.String("conn_id", p.ConnID), zap.String("reason", p.Reason))
	case realtime.ReconnectAttempt:
		logger.Info("realtime reconnecting", zap.Int("attempt", p.Attempt), zap.Int("max", p.Max), zap.Duration("delay", p.Delay))
	case realtime.ExhaustedInfo:
		logger.Warn("realtime reconnect exhausted", zap.Int("attempts", p.Attempts))
	}
}

// chatLogger logs changes of the stored error and of the open conversation.
type chatLogger struct {
	lastErr     string
	lastChannel models.ChannelID
	lastPeer    models.UserID
}

func (c *chatLogger) observe(logger *zap.Logger, change chat.StateChange) {
	st := change.State
	if st.Error != c.lastErr && st.Error != "" {
		logger.Warn("chat error", zap.String("action", change.Action), zap.String("error", st.Error))
	}
	c.lastErr = st.Error

	var peer models.UserID
	if st.CurrentDMPeer != nil {
		peer = *st.CurrentDMPeer
	}
	channel := st.CurrentChannelID()
	switch {
	case channel != 0 && channel != c.lastChannel:
		logger.Info("channel selected", zap.Int64("channel_id", int64(channel)), zap.String("name", st.CurrentChannel.Name))
	case peer != 0 && peer != c.lastPeer:
		logger.Info("direct conversation selected", zap.Int64("peer_id", int64(peer)))
	}
	c.lastChannel, c.lastPeer = channel, peer
}
