package folder

import (
	"context"
	"fmt"
	"sync"

	"github.com/okets/folderd/internal/fmdm"
	"github.com/okets/folderd/pkg/logger"
)

// Indexer performs the actual indexing work for one folder. It is supplied
// by the orchestrator; this package only drives the state machine around
// it. Indexer itself is an out-of-scope collaborator (chunking/embedding
// are not defined by this core).
type Indexer interface {
	Index(ctx context.Context, path, model string) error
}

// ModelAvailability is the subset of the Model Download Manager's contract
// the lifecycle manager needs.
type ModelAvailability interface {
	EnsureModelAvailable(ctx context.Context, modelID, folderPath string, timeoutMs int) bool
	IsModelAvailable(modelID string) bool
}

type runningFolder struct {
	cancel context.CancelFunc
}

// Manager drives each folder through pending -> downloading-model ->
// indexing -> active/error.
type Manager struct {
	mu      sync.Mutex
	running map[string]*runningFolder

	store   *fmdm.Store
	models  ModelAvailability
	indexer Indexer
	logger  logger.Logger

	ensureTimeoutMs int
}

// Config wires a Manager's dependencies.
type Config struct {
	Store           *fmdm.Store
	Models          ModelAvailability
	Indexer         Indexer
	Logger          logger.Logger
	EnsureTimeoutMs int // defaults to 5 minutes if zero
}

// New constructs a Manager.
func New(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	if cfg.EnsureTimeoutMs == 0 {
		cfg.EnsureTimeoutMs = 5 * 60 * 1000
	}
	return &Manager{
		running:         make(map[string]*runningFolder),
		store:           cfg.Store,
		models:          cfg.Models,
		indexer:         cfg.Indexer,
		logger:          cfg.Logger,
		ensureTimeoutMs: cfg.EnsureTimeoutMs,
	}
}

// StartFolder is idempotent per path: if a lifecycle is already running
// for path, this is a no-op.
func (m *Manager) StartFolder(entry fmdm.FolderEntry) {
	m.mu.Lock()
	if _, ok := m.running[entry.Path]; ok {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.running[entry.Path] = &runningFolder{cancel: cancel}
	m.mu.Unlock()

	go m.drive(ctx, entry)
}

// StopFolder cancels any in-flight indexing work scoped to path. A shared
// model download is never cancelled on behalf of one folder; only this
// folder's own goroutine exits its wait.
func (m *Manager) StopFolder(path string) {
	m.mu.Lock()
	rf, ok := m.running[path]
	delete(m.running, path)
	m.mu.Unlock()
	if ok {
		rf.cancel()
	}
}

func (m *Manager) drive(ctx context.Context, entry fmdm.FolderEntry) {
	defer func() {
		m.mu.Lock()
		delete(m.running, entry.Path)
		m.mu.Unlock()
	}()

	if !m.modelInstalled(entry.Model) {
		m.store.UpdateFolderStatus(entry.Path, fmdm.StatusDownloadingModel, 0, "")
		ok := m.models.EnsureModelAvailable(ctx, entry.Model, entry.Path, m.ensureTimeoutMs)
		if ctx.Err() != nil {
			return
		}
		if !ok {
			m.store.UpdateFolderStatus(entry.Path, fmdm.StatusError, 0, fmt.Sprintf("model %s unavailable", entry.Model))
			return
		}
	}

	m.index(ctx, entry)
}

func (m *Manager) index(ctx context.Context, entry fmdm.FolderEntry) {
	m.store.UpdateFolderStatus(entry.Path, fmdm.StatusIndexing, 0, "")
	if err := m.indexer.Index(ctx, entry.Path, entry.Model); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Warning("indexing failed for %s: %v", entry.Path, err)
		m.store.UpdateFolderStatus(entry.Path, fmdm.StatusError, 0, err.Error())
		return
	}
	m.store.UpdateFolderStatus(entry.Path, fmdm.StatusActive, 100, "")
}

// Rescan re-enters indexing for an already-active folder.
func (m *Manager) Rescan(entry fmdm.FolderEntry) {
	m.StartFolder(entry)
}

func (m *Manager) modelInstalled(modelID string) bool {
	for _, model := range m.store.GetSnapshot().CuratedModels {
		if model.ID == modelID {
			return model.Installed
		}
	}
	return false
}
