package daemon

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/okets/folderd/internal/registry"
)

const (
	restartGraceTimeout = 5 * time.Second
	restartPollInterval = 100 * time.Millisecond
)

// stopExisting signals a previously registered daemon to exit and waits for
// it, escalating to SIGKILL if it outlives the grace window, then cleans up
// its stale registry entry. A no-op if nothing is registered.
func (o *Orchestrator) stopExisting() error {
	return stopRegistered(o.registry)
}

// StopRunning signals whatever daemon is registered under stateDir to exit,
// for use by the standalone "stop" CLI command which has no Orchestrator of
// its own.
func StopRunning(fs afero.Fs, stateDir string) error {
	return stopRegistered(registry.New(fs, stateDir))
}

func stopRegistered(reg *registry.Registry) error {
	info, ok, err := reg.Discover()
	if err != nil {
		return fmt.Errorf("discover existing daemon: %w", err)
	}
	if !ok {
		return nil
	}

	process, err := os.FindProcess(info.PID)
	if err != nil {
		return fmt.Errorf("find process %d: %w", info.PID, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal existing daemon: %w", err)
	}

	deadline := time.Now().Add(restartGraceTimeout)
	for time.Now().Before(deadline) {
		if process.Signal(syscall.Signal(0)) != nil {
			return reg.Cleanup(info.PID)
		}
		time.Sleep(restartPollInterval)
	}

	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("force kill existing daemon: %w", err)
	}
	time.Sleep(restartPollInterval)
	return reg.Cleanup(info.PID)
}
