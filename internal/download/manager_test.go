package download

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okets/folderd/internal/fmdm"
)

func newTestManager(t *testing.T, backend Backend) (*Manager, *fmdm.Store) {
	t.Helper()
	store := fmdm.New("test")
	store.SetCuratedModels([]fmdm.CuratedModelInfo{{ID: "cpu:m"}}, fmdm.ModelCheckComplete)
	router := NewRouter()
	router.Register("cpu", backend)
	mgr := New(Config{Store: store, Router: router})
	return mgr, store
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func modelByID(snap fmdm.Snapshot, id string) fmdm.CuratedModelInfo {
	for _, m := range snap.CuratedModels {
		if m.ID == id {
			return m
		}
	}
	return fmdm.CuratedModelInfo{}
}

func TestRequestDownload_InstalledModelIsNoop(t *testing.T) {
	mgr, store := newTestManager(t, BackendFunc(func(ctx context.Context, modelID string) error {
		t.Fatal("backend should not be invoked for an installed model")
		return nil
	}))
	store.UpdateModelDownloadStatus("cpu:m", fmdm.ModelDownloadCompleted, 100, "")

	mgr.RequestDownload("cpu:m", []string{"/a"}, PriorityNormal)

	time.Sleep(20 * time.Millisecond)
}

func TestRequestDownload_SucceedsAndInstalls(t *testing.T) {
	mgr, store := newTestManager(t, BackendFunc(func(ctx context.Context, modelID string) error {
		return nil
	}))

	mgr.RequestDownload("cpu:m", []string{"/a"}, PriorityNormal)

	waitForCondition(t, time.Second, func() bool {
		return modelByID(store.GetSnapshot(), "cpu:m").Installed
	})
}

func TestRequestDownload_BackendFailureSetsDownloadError(t *testing.T) {
	mgr, store := newTestManager(t, BackendFunc(func(ctx context.Context, modelID string) error {
		return errors.New("boom")
	}))

	mgr.RequestDownload("cpu:m", []string{"/a"}, PriorityNormal)

	waitForCondition(t, time.Second, func() bool {
		m := modelByID(store.GetSnapshot(), "cpu:m")
		return m.DownloadError == "boom"
	})
}

func TestRequestDownload_FloodProducesOneActiveDownload(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	mgr, store := newTestManager(t, BackendFunc(func(ctx context.Context, modelID string) error {
		atomic.AddInt32(&calls, 1)
		<-release
		return nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mgr.RequestDownload("cpu:m", []string{"/a"}, PriorityNormal)
		}(i)
	}
	wg.Wait()
	close(release)

	waitForCondition(t, time.Second, func() bool {
		return modelByID(store.GetSnapshot(), "cpu:m").Installed
	})
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("backend invoked %d times, want 1", got)
	}
}

func TestRequestDownload_MergesFoldersIntoActive(t *testing.T) {
	release := make(chan struct{})
	mgr, _ := newTestManager(t, BackendFunc(func(ctx context.Context, modelID string) error {
		<-release
		return nil
	}))

	mgr.RequestDownload("cpu:m", []string{"/a"}, PriorityNormal)
	waitForCondition(t, time.Second, func() bool {
		mgr.mu.Lock()
		defer mgr.mu.Unlock()
		return mgr.active != nil
	})

	mgr.RequestDownload("cpu:m", []string{"/b"}, PriorityNormal)

	mgr.mu.Lock()
	_, hasA := mgr.active.folders["/a"]
	_, hasB := mgr.active.folders["/b"]
	mgr.mu.Unlock()
	close(release)

	if !hasA || !hasB {
		t.Fatalf("active.folders missing merged entries: a=%v b=%v", hasA, hasB)
	}
}

func TestRequestDownload_PriorityUpgradeReordersQueue(t *testing.T) {
	release := make(chan struct{})
	mgr, _ := newTestManager(t, BackendFunc(func(ctx context.Context, modelID string) error {
		<-release
		return nil
	}))

	// cpu:m occupies the active slot; queue two more behind it.
	mgr.RequestDownload("cpu:m", []string{"/active"}, PriorityNormal)
	waitForCondition(t, time.Second, func() bool {
		mgr.mu.Lock()
		defer mgr.mu.Unlock()
		return mgr.active != nil
	})

	router := mgr.router
	router.Register("gpu", BackendFunc(func(ctx context.Context, modelID string) error { return nil }))

	mgr.RequestDownload("gpu:low", []string{"/low"}, PriorityLow)
	mgr.RequestDownload("gpu:high", []string{"/high"}, PriorityLow)
	mgr.RequestDownload("gpu:high", []string{"/high2"}, PriorityHigh)

	mgr.mu.Lock()
	first := mgr.waiting[0].modelID
	mgr.mu.Unlock()
	close(release)

	if first != "gpu:high" {
		t.Fatalf("waiting[0] = %s, want gpu:high after priority upgrade", first)
	}
}

func TestIsModelAvailable_TrueWhileDownloading(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	mgr, _ := newTestManager(t, BackendFunc(func(ctx context.Context, modelID string) error {
		<-release
		return nil
	}))

	mgr.RequestDownload("cpu:m", []string{"/a"}, PriorityNormal)
	waitForCondition(t, time.Second, func() bool {
		return mgr.IsModelAvailable("cpu:m")
	})
}

func TestEnsureModelAvailable_ReturnsTrueOnSuccess(t *testing.T) {
	mgr, _ := newTestManager(t, BackendFunc(func(ctx context.Context, modelID string) error {
		return nil
	}))

	ok := mgr.EnsureModelAvailable(context.Background(), "cpu:m", "/a", 1000)
	if !ok {
		t.Fatal("EnsureModelAvailable() = false, want true")
	}
}

func TestEnsureModelAvailable_TimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	mgr, _ := newTestManager(t, BackendFunc(func(ctx context.Context, modelID string) error {
		<-release
		return nil
	}))

	ok := mgr.EnsureModelAvailable(context.Background(), "cpu:m", "/a", 20)
	if ok {
		t.Fatal("EnsureModelAvailable() = true, want false on timeout")
	}
}

func TestCancelAll_MarksActiveAndQueuedFailed(t *testing.T) {
	release := make(chan struct{})
	mgr, store := newTestManager(t, BackendFunc(func(ctx context.Context, modelID string) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	defer close(release)

	mgr.RequestDownload("cpu:m", []string{"/a"}, PriorityNormal)
	waitForCondition(t, time.Second, func() bool {
		mgr.mu.Lock()
		defer mgr.mu.Unlock()
		return mgr.active != nil
	})

	mgr.CancelAll()

	waitForCondition(t, time.Second, func() bool {
		return modelByID(store.GetSnapshot(), "cpu:m").DownloadError == "cancelled"
	})

	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if mgr.active != nil || len(mgr.waiting) != 0 {
		t.Fatalf("queue not cleared: active=%v waiting=%v", mgr.active, mgr.waiting)
	}
}
