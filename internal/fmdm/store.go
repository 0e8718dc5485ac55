package fmdm

import "sync"

// Subscriber receives a copy of every new Snapshot, in the order the store
// produces them. It must not block on slow I/O; the store invokes
// subscribers synchronously from the mutating call.
type Subscriber func(Snapshot)

// Store holds the authoritative Snapshot and notifies subscribers, in
// registration order, of every mutation. All mutating methods are safe for
// concurrent use.
type Store struct {
	mu          sync.RWMutex
	snapshot    Snapshot
	subs        []subscription
	nextSubID   int
}

type subscription struct {
	id int
	fn Subscriber
}

// New creates a Store seeded with the given daemon version and no folders,
// models, or clients.
func New(daemonVersion string) *Store {
	return &Store{
		snapshot: Snapshot{
			DaemonVersion:    daemonVersion,
			Folders:          []FolderEntry{},
			CuratedModels:    []CuratedModelInfo{},
			Clients:          []ClientSession{},
			ModelCheckStatus: ModelCheckPending,
		},
	}
}

// GetSnapshot returns the current snapshot. The returned value is a
// defensive copy-by-reference of immutable slices; callers must not mutate
// its contents.
func (s *Store) GetSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Unsubscribe cancels a prior Subscribe registration. Safe to call more
// than once.
type Unsubscribe func()

// Subscribe registers fn to be called with every future snapshot. It does
// not immediately call fn with the current snapshot; callers that need the
// current state call GetSnapshot first.
func (s *Store) Subscribe(fn Subscriber) Unsubscribe {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// mutate applies fn to a clone of the current snapshot under the write
// lock, installs the result, and returns it for publishing.
func (s *Store) mutate(fn func(*Snapshot)) Snapshot {
	s.mu.Lock()
	next := s.snapshot.clone()
	fn(&next)
	s.snapshot = next
	subs := append([]subscription(nil), s.subs...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(next)
	}
	return next
}

// UpdateFolders replaces the full folder list, e.g. from a config load at
// startup. Each entry's status is whatever the caller supplies.
func (s *Store) UpdateFolders(folders []FolderEntry) Snapshot {
	return s.mutate(func(snap *Snapshot) {
		snap.Folders = append([]FolderEntry(nil), folders...)
	})
}

// AddFolder appends a new folder entry. No-op if path already exists.
func (s *Store) AddFolder(entry FolderEntry) Snapshot {
	return s.mutate(func(snap *Snapshot) {
		for _, f := range snap.Folders {
			if f.Path == entry.Path {
				return
			}
		}
		snap.Folders = append(snap.Folders, entry)
	})
}

// RemoveFolder deletes the folder entry at path, if present.
func (s *Store) RemoveFolder(path string) Snapshot {
	return s.mutate(func(snap *Snapshot) {
		out := snap.Folders[:0:0]
		for _, f := range snap.Folders {
			if f.Path != path {
				out = append(out, f)
			}
		}
		snap.Folders = out
	})
}

// UpdateFolderStatus is a no-op for an unknown path; it never creates a
// folder.
func (s *Store) UpdateFolderStatus(path string, status FolderStatus, progress int, lastErr string) Snapshot {
	return s.mutate(func(snap *Snapshot) {
		for i := range snap.Folders {
			if snap.Folders[i].Path == path {
				snap.Folders[i].Status = status
				snap.Folders[i].Progress = progress
				snap.Folders[i].LastError = lastErr
				return
			}
		}
	})
}

// ModelDownloadState is the terminal/non-terminal state a model transitions
// through while UpdateModelDownloadStatus reconciles it.
type ModelDownloadState string

const (
	ModelDownloadStarted   ModelDownloadState = "started"
	ModelDownloadProgress  ModelDownloadState = "progress"
	ModelDownloadCompleted ModelDownloadState = "completed"
	ModelDownloadFailed    ModelDownloadState = "failed"
)

// UpdateModelDownloadStatus reconciles both the CuratedModelInfo flags for
// modelID and every folder bound to that model: on progress, folders in
// downloading-model mirror the model's progress; on completed they move to
// pending (the lifecycle manager picks them up from there into indexing);
// on failed they move to error carrying errMsg.
func (s *Store) UpdateModelDownloadStatus(modelID string, state ModelDownloadState, progress int, errMsg string) Snapshot {
	return s.mutate(func(snap *Snapshot) {
		for i := range snap.CuratedModels {
			m := &snap.CuratedModels[i]
			if m.ID != modelID {
				continue
			}
			switch state {
			case ModelDownloadStarted, ModelDownloadProgress:
				m.Downloading = true
				m.Installed = false
				m.DownloadProgress = progress
				m.DownloadError = ""
			case ModelDownloadCompleted:
				m.Downloading = false
				m.Installed = true
				m.DownloadProgress = 100
				m.DownloadError = ""
			case ModelDownloadFailed:
				m.Downloading = false
				m.Installed = false
				m.DownloadProgress = 0
				m.DownloadError = errMsg
			}
			m.LastChecked = nowFn()
		}

		for i := range snap.Folders {
			f := &snap.Folders[i]
			if f.Model != modelID || f.Status != StatusDownloadingModel {
				continue
			}
			switch state {
			case ModelDownloadProgress, ModelDownloadStarted:
				f.Progress = progress
			case ModelDownloadCompleted:
				f.Status = StatusPending
				f.Progress = 0
			case ModelDownloadFailed:
				f.Status = StatusError
				f.LastError = errMsg
			}
		}
	})
}

// SetCuratedModels replaces the curated-model catalog, e.g. once at
// startup, along with the overall check status.
func (s *Store) SetCuratedModels(models []CuratedModelInfo, checkStatus ModelCheckStatus) Snapshot {
	return s.mutate(func(snap *Snapshot) {
		snap.CuratedModels = append([]CuratedModelInfo(nil), models...)
		snap.ModelCheckStatus = checkStatus
	})
}

// UpdateClients replaces the full client session list. Called by the
// WebSocket server on every accept/close.
func (s *Store) UpdateClients(clients []ClientSession) Snapshot {
	return s.mutate(func(snap *Snapshot) {
		snap.Clients = append([]ClientSession(nil), clients...)
	})
}

// nowFn is indirected so tests can pin LastChecked deterministically.
var nowFn = defaultNow
