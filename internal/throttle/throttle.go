// Package throttle coalesces a flood of broadcast requests into a bounded
// rate of actual broadcasts, so an indexing progress storm cannot flood
// connected clients with one WebSocket frame per percent of progress.
package throttle

import "time"

// Emitter is invoked once the throttler decides to flush. Only the most
// recently registered Emitter survives a coalescing window.
type Emitter func()

// Throttler runs a single background goroutine implementing the
// active-object pattern: a debounce timer and a token timer, driven by a
// request channel, with no locks shared with callers.
type Throttler struct {
	requestCh chan Emitter
	doneCh    chan struct{}
	stopCh    chan struct{}
}

// New starts a Throttler that flushes at most once per token, replenished
// at maxUpdatesPerSecond, with a debounceMs trailing-edge delay before the
// first flush of a burst.
func New(maxUpdatesPerSecond float64, debounceMs int) *Throttler {
	t := &Throttler{
		requestCh: make(chan Emitter, 1),
		doneCh:    make(chan struct{}),
		stopCh:    make(chan struct{}),
	}
	go t.run(maxUpdatesPerSecond, debounceMs)
	return t
}

// RequestBroadcast registers fn as the emitter to invoke on the next flush.
// Calling it again before the flush fires replaces the pending emitter;
// intermediate calls are coalesced, matching the rule that only the latest
// snapshot matters.
func (t *Throttler) RequestBroadcast(fn Emitter) {
	select {
	case t.requestCh <- fn:
	default:
		// A request is already pending; drain it and install the latest.
		select {
		case <-t.requestCh:
		default:
		}
		select {
		case t.requestCh <- fn:
		case <-t.doneCh:
		}
	}
}

// Dispose cancels any pending flush and stops the background goroutine.
// Safe to call once; a second call is a no-op.
func (t *Throttler) Dispose() {
	select {
	case <-t.doneCh:
		return
	default:
	}
	close(t.stopCh)
	<-t.doneCh
}

func (t *Throttler) run(maxUpdatesPerSecond float64, debounceMs int) {
	defer close(t.doneCh)

	interval := time.Duration(float64(time.Second) / maxUpdatesPerSecond)
	debounce := time.Duration(debounceMs) * time.Millisecond

	var pending Emitter
	var debounceTimer, tokenTimer *time.Timer
	var debounceCh, tokenCh <-chan time.Time
	tokenReady := true

	stopTimer := func(timer *time.Timer) {
		if timer != nil {
			timer.Stop()
		}
	}
	defer func() {
		stopTimer(debounceTimer)
		stopTimer(tokenTimer)
	}()

	flush := func() {
		if pending == nil {
			return
		}
		emit := pending
		pending = nil
		emit()
		tokenReady = false
		tokenTimer = time.NewTimer(interval)
		tokenCh = tokenTimer.C
	}

	for {
		select {
		case <-t.stopCh:
			return

		case fn := <-t.requestCh:
			pending = fn
			if debounceCh == nil {
				debounceTimer = time.NewTimer(debounce)
				debounceCh = debounceTimer.C
			}

		case <-debounceCh:
			debounceCh = nil
			if tokenReady {
				flush()
			}
			// else: wait for the token timer to fire; flush happens there.

		case <-tokenCh:
			tokenCh = nil
			tokenReady = true
			if pending != nil {
				flush()
			}
		}
	}
}
