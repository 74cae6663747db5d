package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatline/internal/api"
	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/config"
	"github.com/matheus3301/chatline/internal/feed"
	"github.com/matheus3301/chatline/internal/lock"
	"github.com/matheus3301/chatline/internal/logging"
	"github.com/matheus3301/chatline/internal/outbox"
	"github.com/matheus3301/chatline/internal/roster"
	"github.com/matheus3301/chatline/internal/session"
	"github.com/matheus3301/chatline/internal/status"
	"github.com/matheus3301/chatline/internal/store"
	intsync "github.com/matheus3301/chatline/internal/sync"
	"github.com/matheus3301/chatline/internal/transport"
	"github.com/matheus3301/chatline/internal/transport/ws"
	"github.com/matheus3301/chatline/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      *config.Config
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideTransport,
			provideRoster,
			provideSender,
			provideFeedManager,
			provideSyncEngine,
			provideSessionService,
			api.NewRosterService,
			api.NewFeedService,
			provideContactService,
			provideEventService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	level, err := p.Config.Log.ZapLevel()
	if err != nil {
		return nil, err
	}
	return logging.New(session.LogPath(p.SessionName), p.SessionName, level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
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

// provideStore depends on the lock so two daemons never migrate the same database.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
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
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

type transportResult struct {
	fx.Out

	Transport transport.Transport
	// Adapter is nil unless the session runs on WhatsApp.
	Adapter *wa.Adapter
}

func provideTransport(p Params, db *store.DB, b *bus.Bus, machine *status.Machine, logger *zap.Logger) (transportResult, error) {
	cfg := p.Config.Transport
	switch cfg.Kind {
	case config.TransportWhatsApp:
		adapter, err := wa.NewAdapter(context.Background(), session.DevicePath(p.SessionName), db, b, machine, logger.Named("wa"))
		if err != nil {
			return transportResult{}, err
		}
		return transportResult{Transport: adapter, Adapter: adapter}, nil
	case config.TransportRelay:
		client := ws.New(ws.Config{
			URL:          cfg.RelayURL,
			SelfID:       cfg.SelfID,
			PingInterval: cfg.PingInterval,
			ReconnectMin: cfg.ReconnectMin,
			ReconnectMax: cfg.ReconnectMax,
			HistoryLimit: cfg.HistoryLimit,
		}, b, machine, logger.Named("relay"))
		return transportResult{Transport: client}, nil
	}
	return transportResult{}, fmt.Errorf("unknown transport kind %q", cfg.Kind)
}

func provideRoster(b *bus.Bus) *roster.Roster {
	return roster.New(b)
}

func provideSender(p Params, t transport.Transport, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(t, b, logger.Named("outbox"), p.Config.Transport.SendTimeout)
}

func provideFeedManager(r *roster.Roster, db *store.DB, t transport.Transport, sender *outbox.Sender, b *bus.Bus, logger *zap.Logger) *feed.Manager {
	return feed.NewManager(r, store.NewDirectory(db), t, sender, b, logger.Named("feed"))
}

func provideSyncEngine(m *feed.Manager, db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(m, store.NewJournal(db, 0), b, logger.Named("sync"))
}

func provideSessionService(p Params, m *status.Machine, t transport.Transport, adapter *wa.Adapter, r *roster.Roster, db *store.DB, sender *outbox.Sender) *api.SessionService {
	info := api.SessionInfo{
		Name:      p.SessionName,
		Transport: p.Config.Transport.Kind,
		SelfID:    p.Config.Transport.SelfID,
	}
	var auth api.Authenticator
	if adapter != nil {
		auth = adapter
		info.SelfID = adapter.PhoneNumber()
	}
	return api.NewSessionService(info, m, t, auth, r, db, sender)
}

func provideContactService(db *store.DB, m *feed.Manager, adapter *wa.Adapter) *api.ContactService {
	var importer api.ContactImporter
	if adapter != nil {
		importer = adapter
	}
	return api.NewContactService(db, m, importer)
}

func provideEventService(p Params, b *bus.Bus, logger *zap.Logger) *api.EventService {
	return api.NewEventService(b, p.SessionName, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, srv *Server, lk *lock.Lock, db *store.DB, t transport.Transport, engine *intsync.Engine, sender *outbox.Sender, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The engine subscribes before the transport can publish anything.
			engine.Start(context.Background())
			sender.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			logger.Info("starting transport", zap.String("kind", p.Config.Transport.Kind))
			go func() {
				if err := t.Connect(context.Background()); err != nil {
					logger.Error("transport connect failed", zap.Error(err))
					machine.Settle(status.Error)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := t.Close(); err != nil {
				logger.Warn("error closing transport", zap.Error(err))
			}
			sender.Stop()
			engine.Stop()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
