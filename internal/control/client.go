package control

import (
	"context"
	"fmt"

	"github.com/matheus3301/teamchat/internal/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the control service of a running daemon.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to the daemon listening on socketPath. The caller closes the
// returned connection.
func Dial(socketPath string) (*Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("dial control socket: %w", err)
	}
	return NewClient(conn), conn, nil
}

func (c *Client) call(ctx context.Context, method string, req any) (StateView, error) {
	in, err := encode(req)
	if err != nil {
		return StateView{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return StateView{}, err
	}
	var v StateView
	if err := decode(out, &v); err != nil {
		return StateView{}, err
	}
	return v, nil
}

func (c *Client) State(ctx context.Context) (StateView, error) {
	return c.call(ctx, "GetState", empty{})
}

// Reload reloads the current user, the teams and the online set.
func (c *Client) Reload(ctx context.Context) (StateView, error) {
	return c.call(ctx, "Reload", empty{})
}

func (c *Client) SelectTeam(ctx context.Context, id models.TeamID) (StateView, error) {
	return c.call(ctx, "SelectTeam", TeamRequest{TeamID: id})
}

func (c *Client) SelectChannel(ctx context.Context, id models.ChannelID) (StateView, error) {
	return c.call(ctx, "SelectChannel", ChannelRequest{ChannelID: id})
}

func (c *Client) SelectPeer(ctx context.Context, id models.UserID) (StateView, error) {
	return c.call(ctx, "SelectPeer", PeerRequest{UserID: id})
}

// Refresh reloads the latest page of the open conversation.
func (c *Client) Refresh(ctx context.Context) (StateView, error) {
	return c.call(ctx, "Refresh", empty{})
}

// SendMessage posts to channel, or the selected channel when channel is 0.
func (c *Client) SendMessage(ctx context.Context, channel models.ChannelID, content string) (StateView, error) {
	return c.call(ctx, "SendMessage", SendRequest{ChannelID: channel, Content: content})
}

func (c *Client) SendDirectMessage(ctx context.Context, user models.UserID, content string) (StateView, error) {
	return c.call(ctx, "SendDirectMessage", DirectRequest{UserID: user, Content: content})
}

func (c *Client) EditMessage(ctx context.Context, id models.MessageID, content string) (StateView, error) {
	return c.call(ctx, "EditMessage", EditRequest{MessageID: id, Content: content})
}

func (c *Client) DeleteMessage(ctx context.Context, id models.MessageID) (StateView, error) {
	return c.call(ctx, "DeleteMessage", MessageRequest{MessageID: id})
}

func (c *Client) MarkRead(ctx context.Context, id models.MessageID) (StateView, error) {
	return c.call(ctx, "MarkRead", MessageRequest{MessageID: id})
}

func (c *Client) JoinChannel(ctx context.Context, id models.ChannelID) (StateView, error) {
	return c.call(ctx, "JoinChannel", ChannelRequest{ChannelID: id})
}

func (c *Client) LeaveChannel(ctx context.Context, id models.ChannelID) (StateView, error) {
	return c.call(ctx, "LeaveChannel", ChannelRequest{ChannelID: id})
}

func (c *Client) CreateChannel(ctx context.Context, req CreateChannelRequest) (StateView, error) {
	return c.call(ctx, "CreateChannel", req)
}

// Typing reports composer activity in the selected channel.
func (c *Client) Typing(ctx context.Context, active bool) (StateView, error) {
	return c.call(ctx, "Typing", TypingRequest{Active: active})
}
