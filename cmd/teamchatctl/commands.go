package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/teamchat/internal/api"
	"github.com/matheus3301/teamchat/internal/config"
	"github.com/matheus3301/teamchat/internal/control"
	"github.com/matheus3301/teamchat/internal/daemon"
	"github.com/matheus3301/teamchat/internal/lock"
	"github.com/matheus3301/teamchat/internal/session"
	"github.com/matheus3301/teamchat/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type globalFlags struct {
	session    string
	configPath string
	json       bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "teamchatctl",
		Short:         "Manage teamchat sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.session, "session", "", "session name (overrides config default)")
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default ~/.teamchat/config.toml)")
	cmd.PersistentFlags().BoolVar(&g.json, "json", false, "output in JSON format")
	cmd.AddCommand(
		buildLoginCmd(g),
		buildRegisterCmd(g),
		buildLogoutCmd(g),
		buildStatusCmd(g),
		buildWhoamiCmd(g),
	)
	cmd.AddCommand(chatCommands(g)...)
	return cmd
}

func (g *globalFlags) sessionName() (string, error) {
	name := session.Resolve(g.session, g.configPath)
	if err := session.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

func (g *globalFlags) config() (*config.Config, error) {
	path := g.configPath
	if path == "" {
		path = session.ConfigPath()
	}
	return config.LoadOrDefault(path)
}

// openStore opens the session database, creating it when needed.
func openStore(name string) (*store.DB, error) {
	if err := session.EnsureDir(name); err != nil {
		return nil, err
	}
	db, err := store.Open(session.DBPath(name))
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func buildLoginCmd(g *globalFlags) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, g, username)
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username (prompted when empty)")
	return cmd
}

func runLogin(cmd *cobra.Command, g *globalFlags, username string) error {
	name, err := g.sessionName()
	if err != nil {
		return err
	}
	cfg, err := g.config()
	if err != nil {
		return err
	}

	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	if username == "" {
		username = prompt(in, out, "Username")
	}
	password := promptPassword(cmd, in, out, "Password")
	if username == "" || password == "" {
		return errors.New("username and password are required")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	auth, err := api.New(api.Options{BaseURL: cfg.Server.APIURL}).Login(ctx, api.LoginRequest{Username: username, Password: password})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	me, err := api.New(api.Options{BaseURL: cfg.Server.APIURL, Tokens: api.StaticToken(auth.AccessToken)}).CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("fetch current user: %w", err)
	}

	db, err := openStore(name)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err := db.Tokens(name).Set(auth.AccessToken, *me); err != nil {
		return fmt.Errorf("store token: %w", err)
	}

	fmt.Fprintf(out, "Logged in as %s (session %q).\n", me.Username, name)
	if daemonRunning(name) {
		fmt.Fprintln(out, "Restart teamchatd to connect with the new token.")
	}
	return nil
}

func buildRegisterCmd(g *globalFlags) *cobra.Command {
	var req api.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			if req.Username == "" {
				req.Username = prompt(in, out, "Username")
			}
			if req.Email == "" {
				req.Email = prompt(in, out, "Email")
			}
			req.Password = promptPassword(cmd, in, out, "Password")
			if req.Username == "" || req.Email == "" || req.Password == "" {
				return errors.New("username, email and password are required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			user, err := api.New(api.Options{BaseURL: cfg.Server.APIURL}).Register(ctx, req)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			fmt.Fprintf(out, "Registered %s (id %d). Run teamchatctl login next.\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "account username")
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.FullName, "full-name", "", "display name")
	return cmd
}

func buildLogoutCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := g.sessionName()
			if err != nil {
				return err
			}
			db, err := openStore(name)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			if err := db.Tokens(name).Clear(); err != nil {
				return fmt.Errorf("clear token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged out of session %q.\n", name)
			return nil
		},
	}
}

// statusReport is the --json rendering of the status command.
type statusReport struct {
	Session  string    `json:"session"`
	Running  bool      `json:"running"`
	PID      int       `json:"pid,omitempty"`
	Since    time.Time `json:"since,omitzero"`
	Realtime string    `json:"realtime"`
	State    string    `json:"state,omitempty"`
	Attempts int       `json:"attempts,omitempty"`
	LastPong time.Time `json:"last_pong,omitzero"`
	Error    string    `json:"error,omitempty"`
}

func buildStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon runs and its realtime connection is up",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := g.sessionName()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			return printStatus(cmd.OutOrStdout(), collectStatus(ctx, name), g.json)
		},
	}
}

func collectStatus(ctx context.Context, name string) statusReport {
	r := statusReport{Session: name, Realtime: "UNKNOWN"}
	owner, err := lock.ReadOwner(session.LockPath(name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.Error = err.Error()
		}
		r.Realtime = "DOWN"
		return r
	}
	r.Running, r.PID, r.Since = true, owner.PID, owner.Since

	st, err := checkHealth(ctx, session.SocketPath(name))
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Realtime = st.String()

	client, conn, err := control.Dial(session.SocketPath(name))
	if err != nil {
		r.Error = err.Error()
		return r
	}
	defer func() { _ = conn.Close() }()
	v, err := client.State(ctx)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.State, r.Attempts, r.LastPong = string(v.Status), v.Attempts, v.LastPong
	return r
}

func checkHealth(ctx context.Context, socketPath string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	defer func() { _ = conn.Close() }()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: daemon.RealtimeService})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check: %w", err)
	}
	return resp.Status, nil
}

func printStatus(w io.Writer, r statusReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	fmt.Fprintf(w, "Session:  %s\n", r.Session)
	if !r.Running {
		fmt.Fprintln(w, "Daemon:   not running")
	} else {
		fmt.Fprintf(w, "Daemon:   running (PID %d since %s)\n", r.PID, r.Since.Local().Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Realtime: %s\n", r.Realtime)
	if r.State != "" {
		fmt.Fprintf(w, "State:    %s", r.State)
		if r.Attempts > 0 {
			fmt.Fprintf(w, " (attempt %d)", r.Attempts)
		}
		fmt.Fprintln(w)
	}
	if !r.LastPong.IsZero() {
		fmt.Fprintf(w, "Pong:     %s\n", r.LastPong.Local().Format(time.RFC3339))
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", r.Error)
	}
	return nil
}

func buildWhoamiCmd(g *globalFlags) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the account the session is logged in as",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := g.sessionName()
			if err != nil {
				return err
			}
			db, err := openStore(name)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			s, err := db.LoadSession(name)
			if errors.Is(err, store.ErrNoSession) {
				return fmt.Errorf("session %q is not logged in", name)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !remote {
				fmt.Fprintf(out, "%s (id %d)\n", s.Username, s.UserID)
				return nil
			}

			cfg, err := g.config()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			client := api.New(api.Options{BaseURL: cfg.Server.APIURL, Tokens: db.Tokens(name)})
			me, err := client.CurrentUser(ctx)
			if api.IsUnauthorized(err) {
				return fmt.Errorf("stored token was rejected; run teamchatctl login")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s (id %d, %s)\n", me.Username, me.ID, me.Email)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "verify the token against the server")
	return cmd
}

func daemonRunning(name string) bool {
	_, err := lock.ReadOwner(session.LockPath(name))
	return err == nil
}

func prompt(in *bufio.Reader, out io.Writer, label string) string {
	fmt.Fprintf(out, "%s: ", label)
	text, err := in.ReadString('\n')
	if err != nil && text == "" {
		return ""
	}
	return strings.TrimSpace(text)
}

// promptPassword reads without echo when input is a terminal.
func promptPassword(cmd *cobra.Command, in *bufio.Reader, out io.Writer, label string) string {
	fmt.Fprintf(out, "%s: ", label)
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		text, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err == nil {
			return strings.TrimSpace(string(text))
		}
	}
	text, err := in.ReadString('\n')
	if err != nil && text == "" {
		return ""
	}
	return strings.TrimSpace(text)
}
