package daemon

import (
	"context"
	"errors"
	"sync"

	"github.com/matheus3301/teamchat/internal/api"
	"github.com/matheus3301/teamchat/internal/bus"
	"github.com/matheus3301/teamchat/internal/chat"
	"github.com/matheus3301/teamchat/internal/config"
	"github.com/matheus3301/teamchat/internal/control"
	"github.com/matheus3301/teamchat/internal/lock"
	"github.com/matheus3301/teamchat/internal/logging"
	"github.com/matheus3301/teamchat/internal/metrics"
	"github.com/matheus3301/teamchat/internal/realtime"
	"github.com/matheus3301/teamchat/internal/session"
	"github.com/matheus3301/teamchat/internal/status"
	"github.com/matheus3301/teamchat/internal/store"
	intsync "github.com/matheus3301/teamchat/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	ConfigPath  string // optional override; empty = ~/.teamchat/config.toml
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideMetrics,
			provideLock,
			provideStore,
			provideTokens,
			provideAPIClient,
			provideManager,
			provideChatStore,
			provideController,
			provideControlService,
			provideDirectory,
			provideSyncEngine,
			NewServer,
			NewMetricsServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = session.ConfigPath()
	}
	return config.LoadOrDefault(path)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideMetrics() *metrics.Metrics {
	return metrics.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is only opened by its holder.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideTokens(p Params, db *store.DB) *store.TokenStore {
	return db.Tokens(p.SessionName)
}

func provideAPIClient(cfg *config.Config, tokens *store.TokenStore, m *metrics.Metrics, logger *zap.Logger) *api.Client {
	return api.New(api.Options{
		BaseURL: cfg.Server.APIURL,
		Tokens:  tokens,
		Logger:  logger.Named("api"),
		Metrics: m,
	})
}

func provideManager(cfg *config.Config, machine *status.Machine, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *realtime.Manager {
	return realtime.New(realtime.Options{
		URL:               cfg.Server.WSURL,
		Dialer:            realtime.WebsocketDialer{HandshakeTimeout: cfg.Realtime.HandshakeTimeout.Duration},
		MaxAttempts:       cfg.Realtime.MaxReconnectAttempts,
		BaseDelay:         cfg.Realtime.ReconnectBaseDelay.Duration,
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval.Duration,
		Status:            machine,
		Bus:               b,
		Metrics:           m,
		Logger:            logger,
	})
}

func provideChatStore(b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *chat.Store {
	return chat.NewStore(b, m, logger)
}

func provideController(cfg *config.Config, st *chat.Store, client *api.Client, mgr *realtime.Manager, logger *zap.Logger) *chat.Controller {
	return chat.NewController(st, client, mgr, chat.ControllerOptions{
		PerPage:   cfg.History.PerPage,
		StopAfter: cfg.Typing.StopAfter.Duration,
		Logger:    logger,
	})
}

func provideControlService(ctl *chat.Controller, mgr *realtime.Manager, logger *zap.Logger) *control.Service {
	return control.NewService(ctl, mgr, logger)
}

// provideDirectory ties the cache's cleanup goroutine to the app lifetime.
func provideDirectory(lc fx.Lifecycle, client *api.Client, logger *zap.Logger) *intsync.Directory {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.StopHook(cancel))
	return intsync.NewDirectory(ctx, client, 0, logger)
}

func provideSyncEngine(mgr *realtime.Manager, st *chat.Store, dir *intsync.Directory, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(mgr, st, dir, logger)
}

type lifecycleParams struct {
	fx.In

	Params     Params
	Server     *Server
	Metrics    *MetricsServer
	Lock       *lock.Lock
	DB         *store.DB
	Tokens     *store.TokenStore
	Client     *api.Client
	Manager    *realtime.Manager
	Controller *chat.Controller
	Store      *chat.Store
	Directory  *intsync.Directory
	Engine     *intsync.Engine
	Machine    *status.Machine
	Bus        *bus.Bus
	Logger     *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleParams) {
	ctx, cancel := context.WithCancel(context.Background())
	var stopWatch func()
	// bg tracks the initial connect and data load.
	var bg sync.WaitGroup

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Install realtime handlers before the first connection.
			d.Engine.Start()

			// A rejected token ends the realtime session until the next login.
			d.Client.SetOnUnauthorized(func() {
				d.Logger.Warn("token rejected, auth required")
				d.Manager.RequireAuth()
				d.Bus.Emit(bus.KindLoggedOut, d.Params.SessionName)
			})

			stopWatch = watch(d)

			// Start gRPC server in background.
			go func() {
				if err := d.Server.Start(); err != nil {
					d.Logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			d.Metrics.Start()

			// Transition state based on auth status.
			token := d.Tokens.Token()
			if token == "" {
				d.Logger.Info("no token found, auth required")
				_ = d.Machine.Transition(status.AuthRequired)
				return nil
			}
			bg.Go(func() {
				if err := d.Manager.Connect(ctx, token); err != nil && !errors.Is(err, context.Canceled) {
					d.Logger.Warn("initial connect failed, reconnecting", zap.Error(err))
				}
				if err := d.Directory.Fill(ctx); err != nil {
					d.Logger.Warn("user directory fill failed", zap.Error(err))
				}
				d.Controller.LoadInitialData(ctx)
			})
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := waitFor(stopCtx, bg.Wait); err != nil {
				d.Logger.Warn("initial load still running", zap.Error(err))
			}
			d.Engine.Stop()
			d.Controller.Close()
			if err := d.Manager.Close(stopCtx); err != nil {
				d.Logger.Warn("realtime shutdown incomplete", zap.Error(err))
			}
			if err := waitFor(stopCtx, d.Directory.Wait); err != nil {
				d.Logger.Warn("directory refresh still running", zap.Error(err))
			}
			if stopWatch != nil {
				stopWatch()
			}
			d.Metrics.Stop(stopCtx)
			d.Server.Stop(stopCtx)
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("daemon stopped")
			_ = d.Logger.Sync()
			return nil
		},
	})
}

// waitFor runs wait and returns once it does or ctx is done.
func waitFor(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
