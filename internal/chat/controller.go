package chat

import (
	"context"
	"slices"
	"time"

	"github.com/matheus3301/teamchat/internal/api"
	"github.com/matheus3301/teamchat/internal/logging"
	"github.com/matheus3301/teamchat/internal/models"
	"github.com/matheus3301/teamchat/internal/typing"
	"go.uber.org/zap"
)

// API is the part of the REST client the controller calls.
type API interface {
	CurrentUser(ctx context.Context) (*models.User, error)
	Teams(ctx context.Context) ([]models.Team, error)
	TeamChannels(ctx context.Context, team models.TeamID) ([]models.Channel, error)
	OnlineUsers(ctx context.Context) ([]models.UserID, error)
	ChannelMessages(ctx context.Context, id models.ChannelID, page, perPage int) ([]models.Message, error)
	DirectMessages(ctx context.Context, peer models.UserID, page, perPage int) ([]models.DirectMessage, error)
	SendChannelMessage(ctx context.Context, req api.SendMessageRequest) (*models.Message, error)
	SendDirectMessage(ctx context.Context, req api.SendDirectMessageRequest) (*models.DirectMessage, error)
	UpdateMessage(ctx context.Context, id models.MessageID, content string) (*models.Message, error)
	DeleteMessage(ctx context.Context, id models.MessageID) error
	MarkDirectMessageRead(ctx context.Context, id models.MessageID) error
	JoinChannel(ctx context.Context, id models.ChannelID) error
	LeaveChannel(ctx context.Context, id models.ChannelID) error
	CreateChannel(ctx context.Context, req api.CreateChannelRequest) (*models.Channel, error)
}

// Realtime is the part of the connection manager the controller calls.
type Realtime interface {
	JoinChannel(id models.ChannelID) bool
	LeaveChannel(id models.ChannelID) bool
	SendTyping(id models.ChannelID, typing bool) bool
}

// Error messages stored in State.Error.
const (
	ErrLoadInitialData    = "Failed to load initial data"
	ErrLoadTeams          = "Failed to load teams"
	ErrLoadChannels       = "Failed to load channels"
	ErrLoadMessages       = "Failed to load messages"
	ErrLoadDirectMessages = "Failed to load direct messages"
	ErrSendMessage        = "Failed to send message"
	ErrSendDirectMessage  = "Failed to send direct message"
	ErrEditMessage        = "Failed to edit message"
	ErrDeleteMessage      = "Failed to delete message"
	ErrMarkRead           = "Failed to mark message as read"
	ErrJoinChannel        = "Failed to join channel"
	ErrLeaveChannel       = "Failed to leave channel"
	ErrCreateChannel      = "Failed to create channel"
)

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	PerPage   int
	StopAfter time.Duration
	Logger    *zap.Logger
}

// Controller performs the side effects behind user intents. REST failures
// never propagate: they land in State.Error. No message is inserted
// optimistically; new messages arrive through the realtime connection.
type Controller struct {
	store   *Store
	api     API
	rt      Realtime
	typing  *typing.Notifier
	perPage int
	log     *zap.Logger
}

// NewController wires a controller to its collaborators.
func NewController(store *Store, client API, rt Realtime, opts ControllerOptions) *Controller {
	if opts.PerPage <= 0 {
		opts.PerPage = 50
	}
	return &Controller{
		store:   store,
		api:     client,
		rt:      rt,
		typing:  typing.New(rt, opts.StopAfter),
		perPage: opts.PerPage,
		log:     logging.OrNop(opts.Logger).Named("controller"),
	}
}

// State returns the current snapshot.
func (c *Controller) State() State { return c.store.State() }

func (c *Controller) fail(msg string, err error) {
	c.log.Warn(msg, zap.Error(err))
	c.store.Dispatch(SetError{Message: msg})
}

// LoadInitialData loads the current user, the teams (selecting the first)
// and the online set.
func (c *Controller) LoadInitialData(ctx context.Context) {
	c.store.Dispatch(SetLoading{Loading: true})
	defer c.store.Dispatch(SetLoading{Loading: false})

	me, err := c.api.CurrentUser(ctx)
	if err != nil {
		c.fail(ErrLoadInitialData, err)
		return
	}
	c.store.Dispatch(SetSelf{User: *me})

	c.LoadTeams(ctx)

	online, err := c.api.OnlineUsers(ctx)
	if err != nil {
		c.fail(ErrLoadInitialData, err)
		return
	}
	c.store.Dispatch(SetOnlineUsers{UserIDs: online})
}

// LoadTeams refreshes the team list and selects the first team when none is.
func (c *Controller) LoadTeams(ctx context.Context) {
	teams, err := c.api.Teams(ctx)
	if err != nil {
		c.fail(ErrLoadTeams, err)
		return
	}
	st := c.store.Dispatch(SetTeams{Teams: teams})
	if len(teams) > 0 && st.CurrentTeam == nil {
		c.SelectTeam(ctx, teams[0].ID)
	}
}

// SelectTeam makes team current and loads its channels.
func (c *Controller) SelectTeam(ctx context.Context, team models.TeamID) {
	st := c.store.Dispatch(SelectTeam{TeamID: team})
	if st.CurrentTeamID() != team {
		return
	}
	c.LoadChannels(ctx, team)
}

// LoadChannels refreshes the channels of team. The first channel is
// selected when nothing of this team is selected yet.
func (c *Controller) LoadChannels(ctx context.Context, team models.TeamID) {
	channels, err := c.api.TeamChannels(ctx, team)
	if err != nil {
		c.fail(ErrLoadChannels, err)
		return
	}
	if c.store.State().CurrentTeamID() != team {
		c.log.Debug("discard channels of deselected team", zap.Int64("team_id", int64(team)))
		return
	}
	st := c.store.Dispatch(SetChannels{Channels: channels})
	if len(channels) == 0 {
		return
	}
	stale := st.CurrentChannel != nil && st.CurrentChannel.TeamID != team
	if stale || (st.CurrentChannel == nil && st.CurrentDMPeer == nil) {
		c.SelectChannel(ctx, channels[0])
	}
}

// SelectChannel leaves the previous channel on the socket, joins ch and
// loads its latest page.
func (c *Controller) SelectChannel(ctx context.Context, ch models.Channel) {
	prev := c.store.State().CurrentChannel
	st := c.store.Dispatch(SelectChannel{Channel: ch})
	if st.CurrentChannelID() != ch.ID {
		return
	}
	c.typing.Blur()
	if prev != nil && prev.ID != ch.ID {
		c.rt.LeaveChannel(prev.ID)
	}
	c.rt.JoinChannel(ch.ID)
	c.LoadMessages(ctx, ch.ID)
}

// SelectDirectMessagePeer switches to the conversation with peer.
func (c *Controller) SelectDirectMessagePeer(ctx context.Context, peer models.UserID) {
	prev := c.store.State().CurrentChannel
	st := c.store.Dispatch(SelectDMPeer{PeerID: peer})
	if st.CurrentDMPeer == nil || *st.CurrentDMPeer != peer {
		return
	}
	c.typing.Blur()
	if prev != nil {
		c.rt.LeaveChannel(prev.ID)
	}
	c.LoadDirectMessages(ctx, peer)
}

// LoadMessages loads the latest page of channel. The server returns it
// oldest-first; the state keeps newest-first. Messages that arrived over
// the socket meanwhile stay in front.
func (c *Controller) LoadMessages(ctx context.Context, channel models.ChannelID) {
	page, err := c.api.ChannelMessages(ctx, channel, 1, c.perPage)
	if err != nil {
		c.fail(ErrLoadMessages, err)
		return
	}
	st := c.store.State()
	if st.CurrentChannelID() != channel {
		c.log.Debug("discard messages of deselected channel", zap.Int64("channel_id", int64(channel)))
		return
	}
	slices.Reverse(page)
	c.store.Dispatch(SetMessages{Messages: mergeNewer(st.Messages, page, func(m models.Message) models.MessageID { return m.ID })})
}

// LoadDirectMessages loads the latest page of the conversation with peer.
func (c *Controller) LoadDirectMessages(ctx context.Context, peer models.UserID) {
	page, err := c.api.DirectMessages(ctx, peer, 1, c.perPage)
	if err != nil {
		c.fail(ErrLoadDirectMessages, err)
		return
	}
	st := c.store.State()
	if st.CurrentDMPeer == nil || *st.CurrentDMPeer != peer {
		c.log.Debug("discard direct messages of deselected peer", zap.Int64("peer_id", int64(peer)))
		return
	}
	slices.Reverse(page)
	c.store.Dispatch(SetDirectMessages{Messages: mergeNewer(st.DirectMessages, page, func(m models.DirectMessage) models.MessageID { return m.ID })})
}

// SendMessage posts content to channel, or to the selected channel when
// channel is 0.
func (c *Controller) SendMessage(ctx context.Context, content string, channel models.ChannelID) {
	if channel == 0 {
		channel = c.store.State().CurrentChannelID()
	}
	if channel == 0 {
		return
	}
	c.typing.Sent()
	if _, err := c.api.SendChannelMessage(ctx, api.SendMessageRequest{Content: content, ChannelID: channel}); err != nil {
		c.fail(ErrSendMessage, err)
	}
}

func (c *Controller) SendDirectMessage(ctx context.Context, content string, receiver models.UserID) {
	if _, err := c.api.SendDirectMessage(ctx, api.SendDirectMessageRequest{Content: content, ReceiverID: receiver}); err != nil {
		c.fail(ErrSendDirectMessage, err)
	}
}

func (c *Controller) EditMessage(ctx context.Context, id models.MessageID, content string) {
	updated, err := c.api.UpdateMessage(ctx, id, content)
	if err != nil {
		c.fail(ErrEditMessage, err)
		return
	}
	c.store.Dispatch(EditMessageAck{Message: *updated})
}

func (c *Controller) DeleteMessage(ctx context.Context, id models.MessageID) {
	if err := c.api.DeleteMessage(ctx, id); err != nil {
		c.fail(ErrDeleteMessage, err)
		return
	}
	c.store.Dispatch(DeleteMessageAck{MessageID: id})
}

func (c *Controller) MarkDirectMessageRead(ctx context.Context, id models.MessageID) {
	if err := c.api.MarkDirectMessageRead(ctx, id); err != nil {
		c.fail(ErrMarkRead, err)
		return
	}
	c.store.Dispatch(MarkDirectMessageReadAck{MessageID: id, ReadAt: time.Now().UTC()})
}

// JoinChannel joins on the server and refreshes the current team's channels.
func (c *Controller) JoinChannel(ctx context.Context, id models.ChannelID) {
	if err := c.api.JoinChannel(ctx, id); err != nil {
		c.fail(ErrJoinChannel, err)
		return
	}
	if team := c.store.State().CurrentTeamID(); team != 0 {
		c.LoadChannels(ctx, team)
	}
}

func (c *Controller) LeaveChannel(ctx context.Context, id models.ChannelID) {
	if err := c.api.LeaveChannel(ctx, id); err != nil {
		c.fail(ErrLeaveChannel, err)
		return
	}
	if team := c.store.State().CurrentTeamID(); team != 0 {
		c.LoadChannels(ctx, team)
	}
}

func (c *Controller) CreateChannel(ctx context.Context, req api.CreateChannelRequest) {
	if _, err := c.api.CreateChannel(ctx, req); err != nil {
		c.fail(ErrCreateChannel, err)
		return
	}
	c.LoadChannels(ctx, req.TeamID)
}

// Input records a keystroke in the selected channel's composer.
func (c *Controller) Input() {
	c.typing.Input(c.store.State().CurrentChannelID())
}

// Blur records the composer losing focus.
func (c *Controller) Blur() { c.typing.Blur() }

func (c *Controller) ClearError() { c.store.Dispatch(ClearError{}) }

// Close stops the typing timer, sending a stop if one is owed.
func (c *Controller) Close() { c.typing.Close() }

// mergeNewer returns page preceded by the entries of current that page does
// not contain, in their existing order.
func mergeNewer[T any](current, page []T, id func(T) models.MessageID) []T {
	seen := make(map[models.MessageID]struct{}, len(page))
	for _, m := range page {
		seen[id(m)] = struct{}{}
	}
	var out []T
	for _, m := range current {
		if _, ok := seen[id(m)]; !ok {
			out = append(out, m)
		}
	}
	return append(out, page...)
}
