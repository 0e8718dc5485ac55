// Package daemon wires the Discovery Registry, FMDM store, Broadcast
// Throttler, WebSocket server, Model Download Manager, Folder Lifecycle
// Manager, and Configuration Interface into one process, and translates
// OS signals into graceful shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/okets/folderd/internal/config"
	"github.com/okets/folderd/internal/download"
	"github.com/okets/folderd/internal/fmdm"
	"github.com/okets/folderd/internal/folder"
	"github.com/okets/folderd/internal/registry"
	"github.com/okets/folderd/internal/throttle"
	"github.com/okets/folderd/internal/wsserver"
	"github.com/okets/folderd/pkg/logger"
)

// ErrShutdownTimeout is returned when graceful shutdown exceeds Config.ShutdownTimeout.
var ErrShutdownTimeout = errors.New("shutdown timed out")

// wsPortEnv overrides the derived WebSocket port, used by tests to avoid
// colliding on the canonical 31850 across parallel runs.
const wsPortEnv = "FOLDERD_WS_PORT"

// Config holds everything needed to wire an Orchestrator. Zero-value fields
// fall back to production defaults; tests override Fs, Backends, Indexer,
// and CuratedModels to avoid touching the real filesystem or network.
type Config struct {
	Host     string
	HTTPPort int
	WSPort   int
	StateDir string
	Version  string

	MaxUpdatesPerSecond float64
	DebounceMs          int
	EnsureTimeoutMs     int
	ShutdownTimeout     time.Duration

	Fs            afero.Fs
	Logger        logger.Logger
	Backends      map[string]download.Backend
	Indexer       folder.Indexer
	CuratedModels []fmdm.CuratedModelInfo
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = 31849
	}
	if c.WSPort == 0 {
		c.WSPort = c.HTTPPort + 1
	}
	if override := os.Getenv(wsPortEnv); override != "" {
		if port, err := strconv.Atoi(override); err == nil {
			c.WSPort = port
		}
	}
	if c.MaxUpdatesPerSecond == 0 {
		c.MaxUpdatesPerSecond = 10
	}
	if c.DebounceMs == 0 {
		c.DebounceMs = 50
	}
	if c.EnsureTimeoutMs == 0 {
		c.EnsureTimeoutMs = 5 * 60 * 1000
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.Fs == nil {
		c.Fs = afero.NewOsFs()
	}
	if c.Logger == nil {
		c.Logger = logger.NewNopLogger()
	}
	if c.Indexer == nil {
		c.Indexer = newNoopIndexer()
	}
	if c.Backends == nil {
		c.Backends = defaultBackends()
	}
	if c.CuratedModels == nil {
		c.CuratedModels = defaultCuratedModels()
	}
}

// Orchestrator owns the wired component graph for one daemon process.
type Orchestrator struct {
	cfg Config

	registry    *registry.Registry
	configStore *config.Store
	store       *fmdm.Store
	throttler   *throttle.Throttler
	ws          *wsserver.Server
	downloads   *download.Manager
	lifecycle   *folder.Manager
	validator   *folder.Validator
}

// New wires every component but starts nothing; call Start to bind ports
// and register with the host.
func New(cfg Config) *Orchestrator {
	cfg.applyDefaults()

	store := fmdm.New(cfg.Version)

	router := download.NewRouter()
	for prefix, backend := range cfg.Backends {
		router.Register(prefix, backend)
	}
	downloads := download.New(download.Config{Store: store, Router: router, Logger: cfg.Logger})

	lifecycle := folder.New(folder.Config{
		Store:           store,
		Models:          downloads,
		Indexer:         cfg.Indexer,
		Logger:          cfg.Logger,
		EnsureTimeoutMs: cfg.EnsureTimeoutMs,
	})

	configStore := config.New(cfg.Fs, cfg.StateDir)

	o := &Orchestrator{
		cfg:         cfg,
		registry:    registry.New(cfg.Fs, cfg.StateDir),
		configStore: configStore,
		store:       store,
		throttler:   throttle.New(cfg.MaxUpdatesPerSecond, cfg.DebounceMs),
		downloads:   downloads,
		lifecycle:   lifecycle,
	}
	o.validator = folder.NewValidator(o.existingPaths)

	o.ws = wsserver.New(wsserver.Config{
		Store:     store,
		Throttler: o.throttler,
		Folders:   o,
		Models:    o,
		Logger:    cfg.Logger,
	})
	return o
}

// Start registers with the host registry, loads persisted folders, seeds
// curated models, binds the WebSocket port, and starts every loaded folder's
// lifecycle. If restart is true and a live daemon is already registered, it
// is signaled to stop first and its registry entry is reclaimed.
func (o *Orchestrator) Start(ctx context.Context, restart bool) error {
	if restart {
		if err := o.stopExisting(); err != nil {
			return fmt.Errorf("stop existing daemon: %w", err)
		}
	}

	info := registry.Info{
		PID:       os.Getpid(),
		HTTPPort:  o.cfg.HTTPPort,
		WSPort:    o.cfg.WSPort,
		StartTime: time.Now(),
		Version:   o.cfg.Version,
	}
	if err := o.registry.Register(info); err != nil {
		return err
	}

	entries, err := o.configStore.Load()
	if err != nil {
		_ = o.registry.Cleanup(info.PID)
		return fmt.Errorf("load folder config: %w", err)
	}

	o.store.SetCuratedModels(o.cfg.CuratedModels, fmdm.ModelCheckComplete)

	folders := make([]fmdm.FolderEntry, 0, len(entries))
	for _, e := range entries {
		folders = append(folders, fmdm.FolderEntry{Path: e.Path, Model: e.Model, Status: fmdm.StatusPending})
	}
	o.store.UpdateFolders(folders)

	if err := o.ws.Start(ctx, o.cfg.WSPort); err != nil {
		_ = o.registry.Cleanup(info.PID)
		return fmt.Errorf("start websocket server: %w", err)
	}

	for _, f := range folders {
		o.lifecycle.StartFolder(f)
	}

	o.cfg.Logger.Info("folderd started: pid=%d host=%s httpPort=%d wsPort=%d", info.PID, o.cfg.Host, o.cfg.HTTPPort, o.cfg.WSPort)
	return nil
}

// Shutdown tears down every component within Config.ShutdownTimeout,
// forcing progress if a step hangs past the deadline.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		o.downloads.CancelAll()
		for _, p := range o.existingPaths() {
			o.lifecycle.StopFolder(p)
		}
		_ = o.ws.Stop(ctx)
		o.throttler.Dispose()
		_ = o.registry.Cleanup(os.Getpid())
	}()

	select {
	case <-done:
		o.cfg.Logger.Info("folderd stopped")
		return nil
	case <-time.After(o.cfg.ShutdownTimeout):
		o.cfg.Logger.Warning("shutdown exceeded %s, forcing exit", o.cfg.ShutdownTimeout)
		return ErrShutdownTimeout
	}
}

func (o *Orchestrator) existingPaths() []string {
	snap := o.store.GetSnapshot()
	paths := make([]string, 0, len(snap.Folders))
	for _, f := range snap.Folders {
		paths = append(paths, f.Path)
	}
	return paths
}
