package download

import (
	"context"
	"time"

	"github.com/okets/folderd/internal/fmdm"
)

// simulatorCadence is the simulator's tick interval, ~800ms.
const simulatorCadence = 800 * time.Millisecond

// simulatorCap is the ceiling the simulator never exceeds; the manager
// writes 100% itself once the backend call succeeds.
const simulatorCap = 90

// progressSteps is a fixed, documented non-uniform increment table: larger
// steps through the middle of the range, smaller near the ends. A fixed
// table rather than randomized increments keeps monotonicity assertions
// in tests deterministic.
var progressSteps = []int{3, 5, 8, 10, 12, 12, 10, 8, 5, 3, 2, 2, 1}

// simulateProgress advances modelID's progress on simulatorCadence until
// simDone closes or it reaches simulatorCap. Backends provide no granular
// callbacks, so this is a UI-only affordance; the step from the cap to 100%
// comes from the manager's completion write after the backend returns.
func (m *Manager) simulateProgress(ctx context.Context, modelID string, simDone <-chan struct{}) {
	ticker := time.NewTicker(simulatorCadence)
	defer ticker.Stop()

	progress := startProgress
	step := 0
	for {
		select {
		case <-simDone:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if progress >= simulatorCap {
				return
			}
			if step < len(progressSteps) {
				progress += progressSteps[step]
				step++
			} else {
				progress += 1
			}
			if progress > simulatorCap {
				progress = simulatorCap
			}
			m.store.UpdateModelDownloadStatus(modelID, fmdm.ModelDownloadProgress, progress, "")
		}
	}
}
