package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/teamchat/internal/control"
	"github.com/matheus3301/teamchat/internal/models"
	"github.com/matheus3301/teamchat/internal/session"
	"github.com/spf13/cobra"
	grpcstatus "google.golang.org/grpc/status"
)

// chatCommands drive the running daemon through its control service.
func chatCommands(g *globalFlags) []*cobra.Command {
	return []*cobra.Command{
		buildStateCmd(g),
		buildTeamsCmd(g),
		buildChannelsCmd(g),
		buildHistoryCmd(g),
		buildSendCmd(g),
		buildDMCmd(g),
		buildEditCmd(g),
		buildDeleteCmd(g),
		buildMarkReadCmd(g),
		buildSelectCmd(g),
		buildSelectTeamCmd(g),
		buildSelectDMCmd(g),
		buildJoinCmd(g),
		buildLeaveCmd(g),
		buildCreateChannelCmd(g),
		buildReloadCmd(g),
	}
}

type controlCall func(ctx context.Context, c *control.Client) (control.StateView, error)

// withControl runs call against the session's daemon and renders the
// returned view, as JSON when --json is set.
func (g *globalFlags) withControl(cmd *cobra.Command, call controlCall, render func(io.Writer, control.StateView)) error {
	name, err := g.sessionName()
	if err != nil {
		return err
	}
	if !daemonRunning(name) {
		return fmt.Errorf("daemon for session %q is not running; start teamchatd first", name)
	}
	client, conn, err := control.Dial(session.SocketPath(name))
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()
	v, err := call(ctx, client)
	if err != nil {
		if st, ok := grpcstatus.FromError(err); ok {
			return errors.New(st.Message())
		}
		return err
	}
	out := cmd.OutOrStdout()
	if g.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	render(out, v)
	return nil
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, arg)
	}
	return id, nil
}

func buildStateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the daemon's chat state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withControl(cmd, func(ctx context.Context, c *control.Client) (control.StateView, error) {
				return c.State(ctx)
			}, printState)
		},
	}
}

func printState(w io.Writer, v control.StateView) {
	fmt.Fprintf(w, "Realtime: %s", v.Status)
	if v.Attempts > 0 {
		fmt.Fprintf(w, " (attempt %d)", v.Attempts)
	}
	fmt.Fprintln(w)
	if v.Self != nil {
		fmt.Fprintf(w, "User:     %s (id %d)\n", v.Self.Username, v.Self.ID)
	}
	if v.CurrentTeam != nil {
		fmt.Fprintf(w, "Team:     %s (id %d)\n", v.CurrentTeam.Name, v.CurrentTeam.ID)
	}
	switch {
	case v.CurrentChannel != nil:
		fmt.Fprintf(w, "Channel:  #%s (id %d), %d messages\n", v.CurrentChannel.Name, v.CurrentChannel.ID, len(v.Messages))
	case v.CurrentDMPeer != nil:
		fmt.Fprintf(w, "Direct:   user %d, %d messages\n", *v.CurrentDMPeer, len(v.DirectMessages))
	}
	fmt.Fprintf(w, "Online:   %d users\n", len(v.OnlineUsers))
	for _, t := range v.Typing {
		fmt.Fprintf(w, "Typing:   channel %d: %v\n", t.ChannelID, t.Users)
	}
	if v.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", v.Error)
	}
}

func buildTeamsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "teams",
		Short: "List the teams of the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withControl(cmd, func(ctx context.Context, c *control.Client) (control.StateView, error) {
				return c.State(ctx)
			}, func(w io.Writer, v control.StateView) {
				for _, t := range v.Teams {
					mark := " "
					if v.CurrentTeam != nil && v.CurrentTeam.ID == t.ID {
						mark = "*"
					}
					fmt.Fprintf(w, "%s %d\t%s\n", mark, t.ID, t.Name)
				}
			})
		},
	}
}

func buildChannelsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List the channels of the current team",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withControl(cmd, func(ctx context.Context, c *control.Client) (control.StateView, error) {
				return c.State(ctx)
			}, printChannels)
		},
	}
}

func printChannels(w io.Writer, v control.StateView) {
	for _, ch := range v.Channels {
		mark := " "
		if v.CurrentChannel != nil && v.CurrentChannel.ID == ch.ID {
			mark = "*"
		}
		private := ""
		if ch.IsPrivate {
			private = " (private)"
		}
		fmt.Fprintf(w, "%s %d\t#%s%s\n", mark, ch.ID, ch.Name, private)
	}
}

func buildHistoryCmd(g *globalFlags) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the messages of the open conversation, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withControl(cmd, func(ctx context.Context, c *control.Client) (control.StateView, error) {
				if refresh {
					return c.Refresh(ctx)
				}
				return c.State(ctx)
			}, printHistory)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "reload the latest page from the server first")
	return cmd
}

func printHistory(w io.Writer, v control.StateView) {
	if v.CurrentDMPeer != nil {
		for _, m := range slices.Backward(v.DirectMessages) {
			printLine(w, m.ID, m.CreatedAt, m.Sender, m.Content, m.IsEdited)
		}
		return
	}
	for _, m := range slices.Backward(v.Messages) {
		printLine(w, m.ID, m.CreatedAt, m.Sender, m.Content, m.IsEdited)
	}
}

func printLine(w io.Writer, id models.MessageID, at models.Time, sender models.User, content string, edited bool) {
	who := sender.Username
	if who == "" {
		who = "user " + strconv.FormatInt(int64(sender.ID), 10)
	}
	suffix := ""
	if edited {
		suffix = " (edited)"
	}
	fmt.Fprintf(w, "[%d] %s %s: %s%s\n", id, at.Local().Format("2006-01-02 15:04"), who, content, suffix)
}

// printDone acknowledges an action without further output.
func printDone(msg string) func(io.Writer, control.StateView) {
	return func(w io.Writer, _ control.StateView) { fmt.Fprintln(w, msg) }
}

func buildSendCmd(g *globalFlags) *cobra.Command {
	var channel int64
	cmd := &cobra.Command{
		Use:   "send <text>...",
		Short: "Send a message to the selected channel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return g.withControl(cmd, func(ctx context.Context, c *control.Client) (control.StateView, error) {
				return c.SendMessage(ctx, models.ChannelID(channel), text)
			}, printDone("Sent."))
		},
	}
	cmd.Flags().Int64Var(&channel, "channel", 0, "channel id (default: the selected channel)")
	return cmd
}

func buildDMCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "dm <user-id> <text>...",
		Short: "Send a direct message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			text := strings.Join(args[1:], " ")
			return g.withControl(cmd, func(ctx context.Context, c *control.Client) (control.StateView, error) {
				return c.SendDirectMessage(ctx, models.UserID(id), text)
			}, printDone("Sent."))
		},
	}
}

func buildEditCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <message-id> <text>...",
		Short: "Replace the content of one of your messages",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "message id")
			if err != nil {
				return err
			}
			text := strings.Join(args[1:], " ")
			return g.withControl(cmd, func(ctx context.Context, c *control.Client) (control.StateView, error) {
				return c.EditMessage(ctx, models.MessageID(id), text)
			}, printDone("Edited."))
		},
	}
}

// messageCmd builds a command taking a single message id.
func messageCmd(g *globalFlags, use, short, done string, call func(*control.Client, context.Context, models.MessageID) (control.StateView, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <message-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "message id")
			if err != nil {
				return err
			}
			return g.withControl(cmd, func(ctx context.Context, c *control.Client) (control.StateView, error) {
				return call(c, ctx, models.MessageID(id))
			}, printDone(done))
		},
	}
}

func buildDeleteCmd(g *globalFlags) *cobra.Command {
	return messageCmd(g, "delete", "Delete one of your messages", "Deleted.", (*control.Client).DeleteMessage)
}

func buildMarkReadCmd(g *globalFlags) *cobra.Command {
	return messageCmd(g, "mark-read", "Mark a direct message as read", "Marked read.", (*control.Client).MarkRead)
}

// channelCmd builds a command taking a single channel id.
func channelCmd(g *globalFlags, use, short string, call func(*control.Client, context.Context, models.ChannelID) (control.StateView, error), render func(io.Writer, control.StateView)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <channel-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "channel id")
			if err != nil {
				return err
			}
			return g.withControl(cmd, func(ctx context.Context, c *control.Client) (control.StateView, error) {
				return call(c, ctx, models.ChannelID(id))
			}, render)
		},
	}
}

func buildSelectCmd(g *globalFlags) *cobra.Command {
	return channelCmd(g, "select", "Open a channel of the current team", (*control.Client).SelectChannel, printHistory)
}

func buildJoinCmd(g *globalFlags) *cobra.Command {
	return channelCmd(g, "join", "Join a channel", (*control.Client).JoinChannel, printChannels)
}

func buildLeaveCmd(g *globalFlags) *cobra.Command {
	return channelCmd(g, "leave", "Leave a channel", (*control.Client).LeaveChannel, printChannels)
}

func buildSelectTeamCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "select-team <team-id>",
		Short: "Switch to another team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "team id")
			if err != nil {
				return err
			}
			return g.withControl(cmd, func(ctx context.Context, c *control.Client) (control.StateView, error) {
				return c.SelectTeam(ctx, models.TeamID(id))
			}, printChannels)
		},
	}
}

func buildSelectDMCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "select-dm <user-id>",
		Short: "Open the direct conversation with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			return g.withControl(cmd, func(ctx context.Context, c *control.Client) (control.StateView, error) {
				return c.SelectPeer(ctx, models.UserID(id))
			}, printHistory)
		},
	}
}

func buildCreateChannelCmd(g *globalFlags) *cobra.Command {
	var req control.CreateChannelRequest
	var team int64
	cmd := &cobra.Command{
		Use:   "create-channel <name>",
		Short: "Create a channel in the current team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			req.TeamID = models.TeamID(team)
			return g.withControl(cmd, func(ctx context.Context, c *control.Client) (control.StateView, error) {
				return c.CreateChannel(ctx, req)
			}, printChannels)
		},
	}
	cmd.Flags().StringVar(&req.Description, "description", "", "channel description")
	cmd.Flags().BoolVar(&req.Private, "private", false, "create a private channel")
	cmd.Flags().Int64Var(&team, "team", 0, "team id (default: the current team)")
	return cmd
}

func buildReloadCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the user, teams and online set from the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withControl(cmd, func(ctx context.Context, c *control.Client) (control.StateView, error) {
				return c.Reload(ctx)
			}, printState)
		},
	}
}
