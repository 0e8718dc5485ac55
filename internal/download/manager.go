// Package download implements the Model Download Manager: a deduplicated,
// priority-ordered, single-flight-per-model download queue that drives
// progress into the FMDM store and dispatches to a per-prefix Backend.
package download

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/okets/folderd/internal/fmdm"
	"github.com/okets/folderd/pkg/logger"
)

// errCancelled is delivered to EnsureModelAvailable waiters when CancelAll
// tears down their in-flight or queued request.
var errCancelled = errors.New("download cancelled")

// startProgress is the progress simulator's floor: a download is always
// reported at least 5% underway the moment it starts.
const startProgress = 5

// Priority mirrors the lineage's own queue priority ordering: higher
// numeric value sorts first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

type request struct {
	modelID   string
	priority  Priority
	folders   map[string]struct{}
	cancel    context.CancelFunc
	startedAt time.Time
}

// Manager admits download requests, dedupes against active and queued
// work, and runs exactly one active download at a time.
type Manager struct {
	mu      sync.Mutex
	active  *request
	waiting []*request

	store  *fmdm.Store
	router *Router
	logger logger.Logger

	waiters map[string][]chan error // modelID -> channels to close/send on terminal state
	idle    bool
}

// Config wires a Manager's dependencies.
type Config struct {
	Store  *fmdm.Store
	Router *Router
	Logger logger.Logger
}

// New constructs a Manager. Logger defaults to a NopLogger if nil.
func New(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	return &Manager{
		store:   cfg.Store,
		router:  cfg.Router,
		logger:  cfg.Logger,
		waiters: make(map[string][]chan error),
		idle:    true,
	}
}

// RequestDownload is idempotent: already-installed models are a no-op,
// already-active or already-queued requests merge requestingFolders (set
// union) and upgrade priority only when the new priority is strictly
// higher.
func (m *Manager) RequestDownload(modelID string, folders []string, priority Priority) {
	if m.isInstalled(modelID) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.modelID == modelID {
		addFolders(m.active.folders, folders)
		return
	}
	for _, req := range m.waiting {
		if req.modelID == modelID {
			addFolders(req.folders, folders)
			if priority > req.priority {
				req.priority = priority
				m.resortLocked()
			}
			return
		}
	}

	req := &request{modelID: modelID, priority: priority, folders: newFolderSet(folders)}
	if m.active == nil {
		m.startLocked(req)
		return
	}
	m.insertLocked(req)
}

func (m *Manager) insertLocked(req *request) {
	idx := len(m.waiting)
	for i, existing := range m.waiting {
		if existing.priority < req.priority {
			idx = i
			break
		}
	}
	m.waiting = append(m.waiting, nil)
	copy(m.waiting[idx+1:], m.waiting[idx:])
	m.waiting[idx] = req
}

func (m *Manager) resortLocked() {
	reordered := append([]*request(nil), m.waiting...)
	m.waiting = m.waiting[:0]
	for _, req := range reordered {
		m.insertLocked(req)
	}
}

func (m *Manager) startLocked(req *request) {
	ctx, cancel := context.WithCancel(context.Background())
	req.cancel = cancel
	req.startedAt = time.Now()
	m.active = req
	m.idle = false
	go m.run(ctx, req)
}

// run executes one download: marks FMDM downloading, runs the backend
// concurrently with a progress simulator, reconciles terminal state, then
// releases the slot and starts the next request.
func (m *Manager) run(ctx context.Context, req *request) {
	m.store.UpdateModelDownloadStatus(req.modelID, fmdm.ModelDownloadStarted, startProgress, "")

	backend, err := m.router.Resolve(req.modelID)
	if err != nil {
		m.finish(req, err)
		return
	}

	simDone := make(chan struct{})
	go m.simulateProgress(ctx, req.modelID, simDone)

	backendErr := backend.Download(ctx, req.modelID)
	close(simDone)

	m.finish(req, backendErr)
}

func (m *Manager) finish(req *request, err error) {
	m.mu.Lock()
	released := m.active != req
	m.mu.Unlock()
	if released {
		// CancelAll already marked this request failed and freed its slot.
		return
	}

	if err != nil {
		m.logger.Warning("model download failed for %s: %v", req.modelID, err)
		m.store.UpdateModelDownloadStatus(req.modelID, fmdm.ModelDownloadFailed, 0, err.Error())
	} else {
		m.logger.Info("model download completed for %s, started %s", req.modelID, humanize.Time(req.startedAt))
		m.store.UpdateModelDownloadStatus(req.modelID, fmdm.ModelDownloadCompleted, 100, "")
	}
	m.notifyWaiters(req.modelID, err)

	m.mu.Lock()
	m.active = nil
	var next *request
	if len(m.waiting) > 0 {
		next = m.waiting[0]
		m.waiting = m.waiting[1:]
	} else {
		m.idle = true
	}
	if next != nil {
		m.startLocked(next)
	}
	m.mu.Unlock()
}

func (m *Manager) notifyWaiters(modelID string, err error) {
	m.mu.Lock()
	chans := m.waiters[modelID]
	delete(m.waiters, modelID)
	m.mu.Unlock()
	for _, ch := range chans {
		ch <- err
		close(ch)
	}
}

// IsModelAvailable reports installed ∨ downloading ∨ queued.
func (m *Manager) IsModelAvailable(modelID string) bool {
	if m.isInstalled(modelID) {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil && m.active.modelID == modelID {
		return true
	}
	for _, req := range m.waiting {
		if req.modelID == modelID {
			return true
		}
	}
	return false
}

// EnsureModelAvailable requests modelID at PriorityHigh and waits
// cooperatively until it is installed, failed, or timeoutMs elapses. It
// never holds m.mu during the wait.
func (m *Manager) EnsureModelAvailable(ctx context.Context, modelID, folderPath string, timeoutMs int) bool {
	if m.isInstalled(modelID) {
		return true
	}

	ch := make(chan error, 1)
	m.mu.Lock()
	m.waiters[modelID] = append(m.waiters[modelID], ch)
	m.mu.Unlock()

	m.RequestDownload(modelID, []string{folderPath}, PriorityHigh)

	timeout := time.Duration(timeoutMs) * time.Millisecond
	select {
	case err := <-ch:
		return err == nil
	case <-time.After(timeout):
		return false
	case <-ctx.Done():
		return false
	}
}

// CancelAll clears the queue and marks any active download failed without
// waiting for the backend to unwind (fire-and-forget).
func (m *Manager) CancelAll() {
	m.mu.Lock()
	active := m.active
	waiting := m.waiting
	m.active = nil
	m.waiting = nil
	m.idle = true
	m.mu.Unlock()

	if active != nil {
		active.cancel()
		m.store.UpdateModelDownloadStatus(active.modelID, fmdm.ModelDownloadFailed, 0, "cancelled")
		m.notifyWaiters(active.modelID, errCancelled)
	}
	for _, req := range waiting {
		m.store.UpdateModelDownloadStatus(req.modelID, fmdm.ModelDownloadFailed, 0, "cancelled")
		m.notifyWaiters(req.modelID, errCancelled)
	}
}

func (m *Manager) isInstalled(modelID string) bool {
	for _, model := range m.store.GetSnapshot().CuratedModels {
		if model.ID == modelID {
			return model.Installed
		}
	}
	return false
}

func addFolders(set map[string]struct{}, folders []string) {
	for _, f := range folders {
		set[f] = struct{}{}
	}
}

func newFolderSet(folders []string) map[string]struct{} {
	set := make(map[string]struct{}, len(folders))
	addFolders(set, folders)
	return set
}
