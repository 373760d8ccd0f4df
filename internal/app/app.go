// Package app wires all Arcsong subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the operational HTTP endpoints until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSessionStore, WithLedger, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/arcsong/arcsong/internal/config"
	"github.com/arcsong/arcsong/internal/director"
	"github.com/arcsong/arcsong/internal/episode"
	"github.com/arcsong/arcsong/internal/health"
	"github.com/arcsong/arcsong/internal/ledger"
	ledgerpg "github.com/arcsong/arcsong/internal/ledger/postgres"
	"github.com/arcsong/arcsong/internal/memorybank"
	bankpg "github.com/arcsong/arcsong/internal/memorybank/postgres"
	"github.com/arcsong/arcsong/internal/observe"
	"github.com/arcsong/arcsong/internal/sessionstore"
	sessionpg "github.com/arcsong/arcsong/internal/sessionstore/postgres"
	"github.com/arcsong/arcsong/internal/sessionstore/redisstore"
	"github.com/arcsong/arcsong/pkg/provider/embeddings"
	"github.com/arcsong/arcsong/pkg/provider/llm"
)

// Providers holds one interface value per provider slot. Nil Embeddings means
// memories are stored without vectors. Populated by main.go via the config
// registry.
type Providers struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes and exposes the director to a transport.
type App struct {
	cfg       *config.Config
	providers *Providers
	logger    *slog.Logger
	metrics   *observe.Metrics

	sessions sessionstore.Store
	sparks   ledger.Ledger
	catalog  *episode.MemCatalog
	memory   memorybank.Bank
	guidance *director.GuidanceGenerator
	eval     *director.EvaluationEngine
	director *director.Director

	// checkers feed the /readyz endpoint.
	checkers []health.Checker

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSessionStore injects a session store instead of creating one from config.
func WithSessionStore(s sessionstore.Store) Option {
	return func(a *App) { a.sessions = s }
}

// WithLedger injects a spark ledger instead of creating one from config.
func WithLedger(l ledger.Ledger) Option {
	return func(a *App) { a.sparks = l }
}

// WithMemoryBank injects a memory bank instead of creating one from config.
func WithMemoryBank(b memorybank.Bank) Option {
	return func(a *App) { a.memory = b }
}

// WithMetrics injects a metrics set instead of using the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the application logger. The default is [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, fmt.Errorf("app: an LLM provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initSessions(ctx); err != nil {
		return nil, fmt.Errorf("app: init sessions: %w", err)
	}
	if err := a.initSparks(ctx); err != nil {
		return nil, fmt.Errorf("app: init sparks: %w", err)
	}
	if err := a.initMemoryBank(ctx); err != nil {
		return nil, fmt.Errorf("app: init memory bank: %w", err)
	}
	if err := a.initCatalog(); err != nil {
		return nil, fmt.Errorf("app: init episode catalog: %w", err)
	}
	if err := a.initDirector(); err != nil {
		return nil, fmt.Errorf("app: init director: %w", err)
	}

	return a, nil
}

// initSessions sets up the session store selected by the config backend.
func (a *App) initSessions(ctx context.Context) error {
	if a.sessions != nil {
		return nil
	}

	switch a.cfg.Sessions.Backend {
	case config.BackendPostgres:
		store, err := sessionpg.NewStore(ctx, a.cfg.Sessions.PostgresDSN)
		if err != nil {
			return err
		}
		a.sessions = store
		a.checkers = append(a.checkers, health.Ping("sessions", store))
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Sessions.RedisAddr,
			Password: a.cfg.Sessions.RedisPassword,
		})
		store := redisstore.NewStore(client, a.cfg.Sessions.RedisTTL)
		a.sessions = store
		a.checkers = append(a.checkers, health.Ping("sessions", store))
		a.closers = append(a.closers, client.Close)

	default:
		a.logger.Warn("using in-memory session store; sessions are lost on restart")
		a.sessions = sessionstore.NewMemStore()
	}
	return nil
}

// initSparks sets up the spark ledger.
func (a *App) initSparks(ctx context.Context) error {
	if a.sparks != nil {
		return nil
	}

	if dsn := a.cfg.Sparks.PostgresDSN; dsn != "" {
		l, err := ledgerpg.NewLedger(ctx, dsn)
		if err != nil {
			return err
		}
		a.sparks = l
		a.checkers = append(a.checkers, health.Ping("sparks", l))
		a.closers = append(a.closers, func() error {
			l.Close()
			return nil
		})
		return nil
	}

	a.logger.Warn("using in-memory spark ledger; paid visuals will be denied until balances are granted")
	a.sparks = ledger.NewMemLedger(nil)
	return nil
}

// initMemoryBank sets up the pgvector memory bank, or an in-memory one when
// no DSN is configured.
func (a *App) initMemoryBank(ctx context.Context) error {
	if a.memory != nil {
		return nil
	}

	if dsn := a.cfg.Memory.PostgresDSN; dsn != "" {
		if a.providers.Embeddings == nil {
			a.logger.Warn("no embeddings provider; memories will be stored without vectors and recalled by recency")
		}
		bank, err := bankpg.NewBank(ctx, dsn, a.providers.Embeddings, a.cfg.Memory.EmbeddingDimensions, a.logger)
		if err != nil {
			return err
		}
		a.memory = bank
		a.checkers = append(a.checkers, health.Ping("memory", bank))
		a.closers = append(a.closers, func() error {
			bank.Close()
			return nil
		})
		return nil
	}

	a.memory = &memorybank.MemBank{}
	return nil
}

// initCatalog loads the episode template catalog.
func (a *App) initCatalog() error {
	path := a.cfg.Episodes.CatalogPath
	if path == "" {
		a.catalog = episode.NewMemCatalog()
		return nil
	}

	cf, err := episode.LoadCatalogFile(path)
	if err != nil {
		return err
	}
	catalog, err := episode.BuildCatalog(cf)
	if err != nil {
		return err
	}
	a.catalog = catalog
	a.logger.Info("loaded episode catalog", "path", path, "templates", catalog.Len())
	return nil
}

// initDirector assembles the director from the engines.
func (a *App) initDirector() error {
	a.guidance = director.NewGuidanceGenerator(a.providers.LLM, a.cfg.Director.TensionNoteTimeout, a.metrics, a.logger)
	a.eval = director.NewEvaluationEngine(a.providers.LLM, a.cfg.Director.EvaluationTimeout, a.metrics, a.logger)
	gate := director.NewResourceGate(a.sparks, a.logger)

	d, err := director.New(director.Config{
		Sessions:   a.sessions,
		Catalog:    a.catalog,
		Guidance:   a.guidance,
		Evaluation: a.eval,
		Gate:       gate,
		Memory:     a.memory,
		Metrics:    a.metrics,
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}
	a.director = d
	return nil
}

// ApplyConfig applies a hot-reloadable config change to the running
// application: the episode catalog is reloaded when its path changed, and the
// director's model call budgets are retuned. Log level changes are handled by
// the caller, which owns the handler.
func (a *App) ApplyConfig(diff config.ConfigDiff) error {
	if diff.CatalogPathChanged {
		if err := a.reloadCatalog(diff.NewCatalogPath); err != nil {
			return fmt.Errorf("app: reload catalog: %w", err)
		}
	}
	if diff.DirectorChanged {
		a.guidance.SetNoteTimeout(diff.NewDirector.TensionNoteTimeout)
		a.eval.SetTimeout(diff.NewDirector.EvaluationTimeout)
		a.logger.Info("director timeouts retuned",
			"evaluation_timeout", diff.NewDirector.EvaluationTimeout,
			"tension_note_timeout", diff.NewDirector.TensionNoteTimeout)
	}
	return nil
}

// reloadCatalog swaps the catalog contents in place so the director, which
// holds the same catalog, sees the new templates immediately.
func (a *App) reloadCatalog(path string) error {
	if path == "" {
		a.catalog.Replace()
		a.logger.Warn("episode catalog path removed; catalog is now empty")
		return nil
	}

	cf, err := episode.LoadCatalogFile(path)
	if err != nil {
		return err
	}
	a.catalog.Replace(cf.Episodes...)
	a.logger.Info("episode catalog reloaded", "path", path, "templates", a.catalog.Len())
	return nil
}

// Director exposes the wired director for transports and tests.
func (a *App) Director() *director.Director {
	return a.director
}

// Sessions exposes the wired session store.
func (a *App) Sessions() sessionstore.Store {
	return a.sessions
}

// OpsHandler builds the operational HTTP handler: /healthz, /readyz, and
// /metrics, all wrapped in the observability middleware.
func (a *App) OpsHandler() http.Handler {
	mux := http.NewServeMux()
	health.New(a.checkers...).Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	return observe.Middleware(a.metrics)(mux)
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.logger.Warn("closer error", "index", i, "err", err)
			}
		}

		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}
