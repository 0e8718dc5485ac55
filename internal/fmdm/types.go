// Package fmdm holds the Folder-Model Data Model: the single authoritative
// snapshot of folders, curated models, and connected clients that every
// other component reads from and the WebSocket server fans out.
package fmdm

import "time"

// FolderStatus is the lifecycle state of a FolderEntry.
type FolderStatus string

const (
	StatusPending           FolderStatus = "pending"
	StatusDownloadingModel  FolderStatus = "downloading-model"
	StatusIndexing          FolderStatus = "indexing"
	StatusActive            FolderStatus = "active"
	StatusError             FolderStatus = "error"
)

// FolderEntry describes one indexed folder.
type FolderEntry struct {
	Path      string       `json:"path"`
	Model     string       `json:"model"`
	Status    FolderStatus `json:"status"`
	Progress  int          `json:"progress,omitempty"`
	LastError string       `json:"lastError,omitempty"`
}

// ModelType categorizes a curated model by its backend.
type ModelType string

const (
	ModelTypeGPU    ModelType = "gpu"
	ModelTypeCPU    ModelType = "cpu"
	ModelTypeOllama ModelType = "ollama"
)

// CuratedModelInfo describes one embedding model known to the daemon.
type CuratedModelInfo struct {
	ID               string    `json:"id"`
	Type             ModelType `json:"type"`
	Installed        bool      `json:"installed"`
	Downloading      bool      `json:"downloading"`
	DownloadProgress int       `json:"downloadProgress"`
	DownloadError    string    `json:"downloadError,omitempty"`
	LastChecked      time.Time `json:"lastChecked"`
}

// ClientType identifies the kind of client a session belongs to.
type ClientType string

const (
	ClientTUI     ClientType = "tui"
	ClientCLI     ClientType = "cli"
	ClientWeb     ClientType = "web"
	ClientUnknown ClientType = "unknown"
)

// ClientSession describes one connected WebSocket client.
type ClientSession struct {
	ID          string     `json:"id"`
	Type        ClientType `json:"type"`
	ConnectedAt time.Time  `json:"connectedAt"`
	Initialized bool       `json:"initialized"`
}

// ModelCheckStatus summarizes the state of the curated-model availability
// probe run at startup.
type ModelCheckStatus string

const (
	ModelCheckPending  ModelCheckStatus = "pending"
	ModelCheckComplete ModelCheckStatus = "complete"
)

// Snapshot is one immutable, fully-consistent view of the system. Every
// mutation to the store produces a fresh Snapshot; old references remain
// valid and are never mutated in place.
type Snapshot struct {
	DaemonVersion    string             `json:"daemonVersion"`
	Folders          []FolderEntry      `json:"folders"`
	CuratedModels    []CuratedModelInfo `json:"curatedModels"`
	Clients          []ClientSession    `json:"clients"`
	ModelCheckStatus ModelCheckStatus   `json:"modelCheckStatus"`
}

func (s Snapshot) clone() Snapshot {
	next := s
	next.Folders = append([]FolderEntry(nil), s.Folders...)
	next.CuratedModels = append([]CuratedModelInfo(nil), s.CuratedModels...)
	next.Clients = append([]ClientSession(nil), s.Clients...)
	return next
}
