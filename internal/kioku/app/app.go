// Package app wires Kioku's stores, pipeline and background loops together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/bdobrica/Kioku/internal/kioku/commands"
	"github.com/bdobrica/Kioku/internal/kioku/config"
	"github.com/bdobrica/Kioku/internal/kioku/coordinator"
	"github.com/bdobrica/Kioku/internal/kioku/expansion"
	"github.com/bdobrica/Kioku/internal/kioku/graph"
	"github.com/bdobrica/Kioku/internal/kioku/memory"
	"github.com/bdobrica/Kioku/internal/kioku/metrics"
	"github.com/bdobrica/Kioku/internal/kioku/modules"
	"github.com/bdobrica/Kioku/internal/kioku/reinforce"
	"github.com/bdobrica/Kioku/internal/kioku/store"
	"github.com/bdobrica/Kioku/internal/kioku/updater"
)

// ErrNotInitialized is returned by New when the memory or connections
// document is missing.
var ErrNotInitialized = errors.New("data directory is not initialized (run `kioku init`)")

// App holds every long-lived component.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	backend   store.Backend
	memory    *memory.Log
	compactor *memory.Compactor
	tracker   *reinforce.Tracker
	graph     *graph.Graph
	registry  *modules.Registry
	index     *modules.Index
	updater   *updater.Updater
	commands  *commands.Dispatcher
	coord     *coordinator.Coordinator

	promRegistry *prometheus.Registry
	metrics      *metrics.Collector

	closers []func()
}

// OpenBackend opens the configured storage backend, creating its
// directory when needed.
func OpenBackend(cfg config.Config) (store.Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		path := cfg.DatabasePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		db, err := store.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.BackendDir, "":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		dir, err := store.NewDir(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return dir, nil
	default:
		return nil, fmt.Errorf("app: unknown backend %q", cfg.Backend)
	}
}

// Init seeds empty memory, connections and reinforcement documents and
// creates the modules directory. Existing valid documents are kept.
func Init(ctx context.Context, cfg config.Config) error {
	b, err := OpenBackend(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := memory.Init(ctx, b, cfg.MaxEntries); err != nil {
		return fmt.Errorf("app: init memory: %w", err)
	}
	if err := graph.Init(ctx, b); err != nil {
		return fmt.Errorf("app: init connections: %w", err)
	}
	if err := reinforce.Init(ctx, b, reinforce.Settings{RepetitionThreshold: cfg.RepetitionThreshold}); err != nil {
		return fmt.Errorf("app: init reinforcement: %w", err)
	}
	if err := os.MkdirAll(cfg.ModulesPath(), 0o755); err != nil {
		return fmt.Errorf("app: init modules: %w", err)
	}
	return nil
}

// New opens the backend and every store. The data directory must have been
// initialized.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{cfg: cfg, logger: logger}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("app: ready", "backend", cfg.Backend, "data_dir", cfg.DataDir, "modules", a.index.Len())
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	backend, err := OpenBackend(cfg)
	if err != nil {
		return err
	}
	a.backend = backend
	a.closers = append(a.closers, func() {
		if err := backend.Close(); err != nil {
			logger.Warn("app: closing backend", "err", err)
		}
	})

	a.promRegistry = prometheus.NewRegistry()
	a.promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.promRegistry)

	if a.memory, err = memory.Open(ctx, backend, logger); err != nil {
		return notInitialized(err)
	}
	a.closers = append(a.closers, a.memory.Close)

	if a.graph, err = graph.Open(ctx, backend, logger); err != nil {
		return notInitialized(err)
	}
	a.closers = append(a.closers, a.graph.Close)

	a.tracker, err = reinforce.Open(ctx, backend, reinforce.TrackerConfig{RepetitionThreshold: cfg.RepetitionThreshold}, logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.tracker.Close)

	if a.registry, err = modules.OpenRegistry(ctx, backend, logger); err != nil {
		return err
	}
	a.closers = append(a.closers, a.registry.Close)

	a.compactor = memory.NewCompactor(a.memory, backend, memory.CompactorConfig{
		Interval:  cfg.CompactInterval,
		MinLength: cfg.CompactMinLength,
		OnRun:     func(_ int, err error) { a.metrics.Compaction(err) },
	}, logger)
	a.closers = append(a.closers, a.compactor.Close)

	a.index = modules.NewIndex(cfg.ModulesPath(), logger)
	a.index.OnReload(a.metrics.Descriptors)
	if _, err := a.index.Reload(); err != nil {
		return err
	}

	a.updater = updater.New(cfg.Workspace, a.registry, logger)
	a.commands = commands.NewDispatcher(a.updater, logger)

	a.coord, err = coordinator.New(coordinator.Config{
		InteractionThreshold: cfg.InteractionThreshold,
		ModuleStrengthLimit:  cfg.ModuleStrengthLimit,
		HelperTarget:         cfg.HelperTarget,
	}, coordinator.Deps{
		Memory:       a.memory,
		Graph:        a.graph,
		Expander:     expansion.New(a.memory, a.tracker, a.graph, logger),
		Tracker:      a.tracker,
		Modules:      modules.NewCreator(cfg.ModulesPath(), a.registry, logger),
		Capabilities: a.index,
		Helper:       a.updater,
		Commands:     a.commands,
		Metrics:      a.metrics,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	if n, err := a.memory.Len(ctx); err == nil {
		a.metrics.HistoryLength(n)
	}
	return nil
}

func notInitialized(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("app: %w: %w", ErrNotInitialized, err)
	}
	return err
}

// Process runs one interaction through the pipeline.
func (a *App) Process(ctx context.Context, in coordinator.Interaction) (*coordinator.Report, error) {
	return a.coord.ProcessInteraction(ctx, in)
}

// Run starts the compaction loop, the descriptor watcher (when enabled)
// and the health server (when an address is configured), and blocks until
// ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.compactor.Run(ctx) })

	if a.cfg.WatchModules {
		w := modules.NewWatcher(a.index, 0, a.logger)
		g.Go(func() error { return w.Run(ctx) })
	}

	if a.cfg.HTTPAddr != "" {
		hs := NewHealthServer(a.cfg.HTTPAddr, a, a.promRegistry)
		g.Go(func() error { return hs.Serve(ctx) })
	}

	a.logger.Info("app: running", "watch_modules", a.cfg.WatchModules, "http_addr", a.cfg.HTTPAddr)
	return g.Wait()
}

// Close releases every component in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Status summarises the stores for /status and `kioku strength`.
type Status struct {
	HistoryLength int `json:"history_length"`
	Topics        int `json:"topics"`
	Nodes         int `json:"nodes"`
	Edges         int `json:"edges"`
	Modules       int `json:"modules"`
	LongMemories  int `json:"long_memories"`
}

// Status reads the current store sizes.
func (a *App) Status(ctx context.Context) (Status, error) {
	n, err := a.memory.Len(ctx)
	if err != nil {
		return Status{}, err
	}
	strengths, err := a.tracker.Snapshot(ctx)
	if err != nil {
		return Status{}, err
	}
	doc, err := a.graph.Snapshot(ctx)
	if err != nil {
		return Status{}, err
	}
	lm, err := a.compactor.LongMemory(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		HistoryLength: n,
		Topics:        len(strengths),
		Nodes:         len(doc.Nodes),
		Edges:         len(doc.Edges),
		Modules:       a.index.Len(),
		LongMemories:  len(lm.Memories),
	}, nil
}

// Config returns the configuration the app was built with.
func (a *App) Config() config.Config { return a.cfg }

// Memory returns the memory log.
func (a *App) Memory() *memory.Log { return a.memory }

// Compactor returns the long-memory compactor.
func (a *App) Compactor() *memory.Compactor { return a.compactor }

// Tracker returns the reinforcement tracker.
func (a *App) Tracker() *reinforce.Tracker { return a.tracker }

// Graph returns the connection graph.
func (a *App) Graph() *graph.Graph { return a.graph }

// Registry returns the module registry.
func (a *App) Registry() *modules.Registry { return a.registry }

// Updater returns the workspace updater.
func (a *App) Updater() *updater.Updater { return a.updater }

// Index returns the capability descriptor index.
func (a *App) Index() *modules.Index { return a.index }

// Commands returns the in-band command dispatcher, e.g. to register task
// handlers.
func (a *App) Commands() *commands.Dispatcher { return a.commands }

// Gatherer exposes the metrics registry.
func (a *App) Gatherer() prometheus.Gatherer { return a.promRegistry }
