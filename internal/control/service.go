package control

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/teamchat/internal/api"
	"github.com/matheus3301/teamchat/internal/chat"
	"github.com/matheus3301/teamchat/internal/logging"
	"github.com/matheus3301/teamchat/internal/models"
	"github.com/matheus3301/teamchat/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "teamchat.v1.Control"

// Controller is the chat controller the service drives. *chat.Controller
// satisfies it.
type Controller interface {
	State() chat.State
	LoadInitialData(ctx context.Context)
	SelectTeam(ctx context.Context, team models.TeamID)
	SelectChannel(ctx context.Context, ch models.Channel)
	SelectDirectMessagePeer(ctx context.Context, peer models.UserID)
	LoadMessages(ctx context.Context, channel models.ChannelID)
	LoadDirectMessages(ctx context.Context, peer models.UserID)
	SendMessage(ctx context.Context, content string, channel models.ChannelID)
	SendDirectMessage(ctx context.Context, content string, receiver models.UserID)
	EditMessage(ctx context.Context, id models.MessageID, content string)
	DeleteMessage(ctx context.Context, id models.MessageID)
	MarkDirectMessageRead(ctx context.Context, id models.MessageID)
	JoinChannel(ctx context.Context, id models.ChannelID)
	LeaveChannel(ctx context.Context, id models.ChannelID)
	CreateChannel(ctx context.Context, req api.CreateChannelRequest)
	Input()
	Blur()
	ClearError()
}

// Connection reports the realtime link. *realtime.Manager satisfies it.
type Connection interface {
	Status() status.State
	Connected() bool
	Attempts() int
	ConnID() string
	LastPong() time.Time
}

// Request bodies. Zero ids mean "the current selection" where noted.
type (
	TeamRequest struct {
		TeamID models.TeamID `json:"team_id"`
	}
	ChannelRequest struct {
		ChannelID models.ChannelID `json:"channel_id"`
	}
	PeerRequest struct {
		UserID models.UserID `json:"user_id"`
	}
	// SendRequest posts to ChannelID, or the selected channel when 0.
	SendRequest struct {
		ChannelID models.ChannelID `json:"channel_id,omitempty"`
		Content   string           `json:"content"`
	}
	DirectRequest struct {
		UserID  models.UserID `json:"user_id"`
		Content string        `json:"content"`
	}
	EditRequest struct {
		MessageID models.MessageID `json:"message_id"`
		Content   string           `json:"content"`
	}
	MessageRequest struct {
		MessageID models.MessageID `json:"message_id"`
	}
	// CreateChannelRequest creates in TeamID, or the selected team when 0.
	CreateChannelRequest struct {
		TeamID      models.TeamID `json:"team_id,omitempty"`
		Name        string        `json:"name"`
		Description string        `json:"description,omitempty"`
		Private     bool          `json:"private,omitempty"`
	}
	TypingRequest struct {
		Active bool `json:"active"`
	}
	empty struct{}
)

// Service serves the control RPCs. Actions run one at a time so the error a
// call reports is the one its own controller call stored.
type Service struct {
	ctl  Controller
	conn Connection
	log  *zap.Logger
	mu   sync.Mutex
}

// NewService returns a service over ctl. conn may be nil.
func NewService(ctl Controller, conn Connection, log *zap.Logger) *Service {
	return &Service{ctl: ctl, conn: conn, log: logging.OrNop(log).Named("control")}
}

// Register installs the service on srv.
func (s *Service) Register(srv grpc.ServiceRegistrar) {
	srv.RegisterService(&serviceDesc, s)
}

func (s *Service) view() StateView { return newStateView(s.ctl.State(), s.conn) }

// act runs fn against the controller and reports the error it stored.
func (s *Service) act(name string, fn func()) (StateView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctl.ClearError()
	fn()
	v := s.view()
	if v.Error != "" {
		s.log.Info("action failed", zap.String("action", name), zap.String("error", v.Error))
		return v, grpcstatus.Error(codes.Aborted, v.Error)
	}
	s.log.Debug("action done", zap.String("action", name))
	return v, nil
}

func invalid(msg string) error { return grpcstatus.Error(codes.InvalidArgument, msg) }

func (s *Service) getState(_ context.Context, _ empty) (StateView, error) {
	return s.view(), nil
}

func (s *Service) reload(ctx context.Context, _ empty) (StateView, error) {
	return s.act("reload", func() { s.ctl.LoadInitialData(ctx) })
}

func (s *Service) selectTeam(ctx context.Context, r TeamRequest) (StateView, error) {
	st := s.ctl.State()
	if !slices.ContainsFunc(st.Teams, func(t models.Team) bool { return t.ID == r.TeamID }) {
		return StateView{}, grpcstatus.Errorf(codes.NotFound, "team %d not loaded", r.TeamID)
	}
	return s.act("select_team", func() { s.ctl.SelectTeam(ctx, r.TeamID) })
}

func (s *Service) selectChannel(ctx context.Context, r ChannelRequest) (StateView, error) {
	st := s.ctl.State()
	i := slices.IndexFunc(st.Channels, func(c models.Channel) bool { return c.ID == r.ChannelID })
	if i < 0 {
		return StateView{}, grpcstatus.Errorf(codes.NotFound, "channel %d not in the current team", r.ChannelID)
	}
	ch := st.Channels[i]
	return s.act("select_channel", func() { s.ctl.SelectChannel(ctx, ch) })
}

func (s *Service) selectPeer(ctx context.Context, r PeerRequest) (StateView, error) {
	if r.UserID <= 0 {
		return StateView{}, invalid("user_id is required")
	}
	return s.act("select_peer", func() { s.ctl.SelectDirectMessagePeer(ctx, r.UserID) })
}

// refresh reloads the latest page of the open conversation.
func (s *Service) refresh(ctx context.Context, _ empty) (StateView, error) {
	st := s.ctl.State()
	switch {
	case st.CurrentDMPeer != nil:
		peer := *st.CurrentDMPeer
		return s.act("refresh", func() { s.ctl.LoadDirectMessages(ctx, peer) })
	case st.CurrentChannel != nil:
		id := st.CurrentChannel.ID
		return s.act("refresh", func() { s.ctl.LoadMessages(ctx, id) })
	}
	return StateView{}, grpcstatus.Error(codes.FailedPrecondition, "no conversation selected")
}

func (s *Service) sendMessage(ctx context.Context, r SendRequest) (StateView, error) {
	if strings.TrimSpace(r.Content) == "" {
		return StateView{}, invalid("content is required")
	}
	if r.ChannelID == 0 && s.ctl.State().CurrentChannelID() == 0 {
		return StateView{}, grpcstatus.Error(codes.FailedPrecondition, "no channel selected")
	}
	return s.act("send_message", func() { s.ctl.SendMessage(ctx, r.Content, r.ChannelID) })
}

func (s *Service) sendDirectMessage(ctx context.Context, r DirectRequest) (StateView, error) {
	if r.UserID <= 0 {
		return StateView{}, invalid("user_id is required")
	}
	if strings.TrimSpace(r.Content) == "" {
		return StateView{}, invalid("content is required")
	}
	return s.act("send_direct_message", func() { s.ctl.SendDirectMessage(ctx, r.Content, r.UserID) })
}

func (s *Service) editMessage(ctx context.Context, r EditRequest) (StateView, error) {
	if r.MessageID <= 0 {
		return StateView{}, invalid("message_id is required")
	}
	if strings.TrimSpace(r.Content) == "" {
		return StateView{}, invalid("content is required")
	}
	return s.act("edit_message", func() { s.ctl.EditMessage(ctx, r.MessageID, r.Content) })
}

func (s *Service) deleteMessage(ctx context.Context, r MessageRequest) (StateView, error) {
	if r.MessageID <= 0 {
		return StateView{}, invalid("message_id is required")
	}
	return s.act("delete_message", func() { s.ctl.DeleteMessage(ctx, r.MessageID) })
}

func (s *Service) markRead(ctx context.Context, r MessageRequest) (StateView, error) {
	if r.MessageID <= 0 {
		return StateView{}, invalid("message_id is required")
	}
	return s.act("mark_read", func() { s.ctl.MarkDirectMessageRead(ctx, r.MessageID) })
}

func (s *Service) joinChannel(ctx context.Context, r ChannelRequest) (StateView, error) {
	if r.ChannelID <= 0 {
		return StateView{}, invalid("channel_id is required")
	}
	return s.act("join_channel", func() { s.ctl.JoinChannel(ctx, r.ChannelID) })
}

func (s *Service) leaveChannel(ctx context.Context, r ChannelRequest) (StateView, error) {
	if r.ChannelID <= 0 {
		return StateView{}, invalid("channel_id is required")
	}
	return s.act("leave_channel", func() { s.ctl.LeaveChannel(ctx, r.ChannelID) })
}

func (s *Service) createChannel(ctx context.Context, r CreateChannelRequest) (StateView, error) {
	if strings.TrimSpace(r.Name) == "" {
		return StateView{}, invalid("name is required")
	}
	team := r.TeamID
	if team == 0 {
		team = s.ctl.State().CurrentTeamID()
	}
	if team == 0 {
		return StateView{}, grpcstatus.Error(codes.FailedPrecondition, "no team selected")
	}
	req := api.CreateChannelRequest{Name: r.Name, Description: r.Description, IsPrivate: r.Private, TeamID: team}
	return s.act("create_channel", func() { s.ctl.CreateChannel(ctx, req) })
}

// typing feeds the composer: active records a keystroke, inactive a blur.
func (s *Service) typing(_ context.Context, r TypingRequest) (StateView, error) {
	if r.Active {
		s.ctl.Input()
	} else {
		s.ctl.Blur()
	}
	return s.view(), nil
}

// handler is the type grpc checks a registered implementation against.
type handler interface {
	view() StateView
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*handler)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetState", (*Service).getState),
		unary("Reload", (*Service).reload),
		unary("SelectTeam", (*Service).selectTeam),
		unary("SelectChannel", (*Service).selectChannel),
		unary("SelectPeer", (*Service).selectPeer),
		unary("Refresh", (*Service).refresh),
		unary("SendMessage", (*Service).sendMessage),
		unary("SendDirectMessage", (*Service).sendDirectMessage),
		unary("EditMessage", (*Service).editMessage),
		unary("DeleteMessage", (*Service).deleteMessage),
		unary("MarkRead", (*Service).markRead),
		unary("JoinChannel", (*Service).joinChannel),
		unary("LeaveChannel", (*Service).leaveChannel),
		unary("CreateChannel", (*Service).createChannel),
		unary("Typing", (*Service).typing),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "teamchat/control.proto",
}

// unary adapts a typed method to a grpc.MethodDesc.
func unary[Req any](name string, fn func(*Service, context.Context, Req) (StateView, error)) grpc.MethodDesc {
	call := func(srv any, ctx context.Context, in *structpb.Struct) (any, error) {
		var req Req
		if err := decode(in, &req); err != nil {
			return nil, invalid(err.Error())
		}
		v, err := fn(srv.(*Service), ctx, req)
		if err != nil {
			return nil, err
		}
		out, err := encode(v)
		if err != nil {
			return nil, grpcstatus.Error(codes.Internal, err.Error())
		}
		return out, nil
	}
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv, ctx, req.(*structpb.Struct))
			})
		},
	}
}
