// Package registry enforces single-daemon-per-host semantics through a
// create-exclusive lock file and exposes discovery info to anyone on the
// host that needs to find the running daemon.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

const fileName = "daemon.json"

// ErrAlreadyRunning is returned by Register when a live daemon already
// holds the registry entry.
var ErrAlreadyRunning = errors.New("daemon already running")

// Info is published by the registered daemon and consumed by anything that
// wants to find it (a restart invocation, a status command).
type Info struct {
	PID       int       `json:"pid"`
	HTTPPort  int       `json:"httpPort"`
	WSPort    int       `json:"wsPort"`
	StartTime time.Time `json:"startTime"`
	Version   string    `json:"version"`
}

// AlreadyRunningError carries the registered instance's info so callers can
// report or signal it.
type AlreadyRunningError struct {
	Existing Info
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("%v: pid %d", ErrAlreadyRunning, e.Existing.PID)
}

func (e *AlreadyRunningError) Unwrap() error { return ErrAlreadyRunning }

// Registry manages the on-disk daemon registration file.
type Registry struct {
	fs   afero.Fs
	path string
}

// New creates a Registry rooted at dir/daemon.json. Callers typically pass
// afero.NewOsFs() in production and afero.NewMemMapFs() in tests.
func New(fs afero.Fs, dir string) *Registry {
	return &Registry{fs: fs, path: filepath.Join(dir, fileName)}
}

// Register atomically publishes info as the host's daemon. It fails with an
// *AlreadyRunningError if a live daemon is already registered; if a stale
// entry is found (pid no longer alive) it is removed and registration is
// retried once.
func (r *Registry) Register(info Info) error {
	if err := r.fs.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		err := r.createExclusive(info)
		if err == nil {
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("write registry file: %w", err)
		}
		existing, readErr := r.readLocked()
		if readErr != nil {
			// Unreadable entry: treat as stale and overwrite.
			if rmErr := r.fs.Remove(r.path); rmErr != nil {
				return fmt.Errorf("remove corrupt registry entry: %w", rmErr)
			}
			continue
		}
		if isProcessRunning(existing.PID) {
			return &AlreadyRunningError{Existing: existing}
		}
		if rmErr := r.fs.Remove(r.path); rmErr != nil {
			return fmt.Errorf("remove stale registry entry: %w", rmErr)
		}
	}
	return fmt.Errorf("register daemon: exhausted retries")
}

func (r *Registry) createExclusive(info Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	f, err := r.fs.OpenFile(r.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

func (r *Registry) readLocked() (Info, error) {
	data, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("decode registry entry: %w", err)
	}
	return info, nil
}

// Discover reads the registry entry, returning ok=false if absent or stale
// (pid no longer live, in which case the stale entry is removed as a
// best-effort side effect).
func (r *Registry) Discover() (info Info, ok bool, err error) {
	info, err = r.readLocked()
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, false, nil
		}
		return Info{}, false, err
	}
	if !isProcessRunning(info.PID) {
		_ = r.fs.Remove(r.path)
		return Info{}, false, nil
	}
	return info, true, nil
}

// Cleanup removes the registry entry if and only if it still names the
// current process. Safe to call on normal shutdown and best-effort on
// abnormal exit.
func (r *Registry) Cleanup(pid int) error {
	info, err := r.readLocked()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.PID != pid {
		return nil
	}
	err = r.fs.Remove(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// isProcessRunning reports whether pid names a live process, using signal 0
// which probes existence without actually delivering a signal.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
