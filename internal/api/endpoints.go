package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/matheus3301/teamchat/internal/models"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// AuthResponse is returned by a successful login.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// CreateChannelRequest is the body of POST /channels.
type CreateChannelRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	IsPrivate   bool          `json:"is_private"`
	TeamID      models.TeamID `json:"team_id"`
}

// SendMessageRequest is the body of POST /messages/channel.
type SendMessageRequest struct {
	Content         string            `json:"content"`
	MessageType     string            `json:"message_type,omitempty"`
	FileURL         string            `json:"file_url,omitempty"`
	ChannelID       models.ChannelID  `json:"channel_id"`
	ParentMessageID *models.MessageID `json:"parent_message_id,omitempty"`
}

// SendDirectMessageRequest is the body of POST /messages/direct.
type SendDirectMessageRequest struct {
	Content     string        `json:"content"`
	MessageType string        `json:"message_type,omitempty"`
	FileURL     string        `json:"file_url,omitempty"`
	ReceiverID  models.UserID `json:"receiver_id"`
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentUser returns the account the token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Users(ctx context.Context) ([]models.User, error) {
	var out []models.User
	err := c.do(ctx, http.MethodGet, "/users", nil, nil, &out)
	return out, err
}

func (c *Client) User(ctx context.Context, id models.UserID) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%d", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UserPresence(ctx context.Context, id models.UserID) (*models.UserPresence, error) {
	var out models.UserPresence
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%d/presence", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OnlineUsers returns the ids of users currently online.
func (c *Client) OnlineUsers(ctx context.Context) ([]models.UserID, error) {
	var out []models.UserID
	err := c.do(ctx, http.MethodGet, "/users/online/list", nil, nil, &out)
	return out, err
}

func (c *Client) Teams(ctx context.Context) ([]models.Team, error) {
	var out []models.Team
	err := c.do(ctx, http.MethodGet, "/teams", nil, nil, &out)
	return out, err
}

// TeamChannels lists the channels of a team visible to the caller.
func (c *Client) TeamChannels(ctx context.Context, team models.TeamID) ([]models.Channel, error) {
	var out []models.Channel
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/channels/team/%d", team), nil, nil, &out)
	return out, err
}

func (c *Client) CreateChannel(ctx context.Context, req CreateChannelRequest) (*models.Channel, error) {
	var out models.Channel
	if err := c.do(ctx, http.MethodPost, "/channels", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JoinChannel(ctx context.Context, id models.ChannelID) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%d/join", id), nil, nil, nil)
}

func (c *Client) LeaveChannel(ctx context.Context, id models.ChannelID) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%d/leave", id), nil, nil, nil)
}

func (c *Client) SendChannelMessage(ctx context.Context, req SendMessageRequest) (*models.Message, error) {
	var out models.Message
	if err := c.do(ctx, http.MethodPost, "/messages/channel", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendDirectMessage(ctx context.Context, req SendDirectMessageRequest) (*models.DirectMessage, error) {
	var out models.DirectMessage
	if err := c.do(ctx, http.MethodPost, "/messages/direct", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChannelMessages returns one page of a channel's history. The server
// orders pages oldest-first.
func (c *Client) ChannelMessages(ctx context.Context, id models.ChannelID, page, perPage int) ([]models.Message, error) {
	var out []models.Message
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/messages/channel/%d", id), pageQuery(page, perPage), nil, &out)
	return out, err
}

// DirectMessages returns one page of the conversation with peer.
func (c *Client) DirectMessages(ctx context.Context, peer models.UserID, page, perPage int) ([]models.DirectMessage, error) {
	var out []models.DirectMessage
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/messages/direct/%d", peer), pageQuery(page, perPage), nil, &out)
	return out, err
}

func (c *Client) UpdateMessage(ctx context.Context, id models.MessageID, content string) (*models.Message, error) {
	var out models.Message
	body := struct {
		Content string `json:"content"`
	}{content}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/messages/%d", id), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteMessage(ctx context.Context, id models.MessageID) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/messages/%d", id), nil, nil, nil)
}

func (c *Client) MarkDirectMessageRead(ctx context.Context, id models.MessageID) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/messages/direct/%d/mark-read", id), nil, nil, nil)
}
