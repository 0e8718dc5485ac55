package logger

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
)

func TestStandardLogger_Levels(t *testing.T) {
	cases := []struct {
		name   string
		log    func(*StandardLogger)
		prefix string
		text   string
	}{
		{"info", func(l *StandardLogger) { l.Info("daemon started on port %d", 31849) }, "[INFO]", "daemon started on port 31849"},
		{"warning", func(l *StandardLogger) { l.Warning("retrying folder scan: %s", "timeout") }, "[WARNING]", "retrying folder scan: timeout"},
		{"error", func(l *StandardLogger) { l.Error("failed to bind websocket: %v", errors.New("address in use")) }, "[ERROR]", "failed to bind websocket: address in use"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			l := NewStandardLogger(log.New(buf, "", 0))
			tc.log(l)

			out := buf.String()
			if !strings.Contains(out, tc.prefix) {
				t.Errorf("expected %s prefix, got: %s", tc.prefix, out)
			}
			if !strings.Contains(out, tc.text) {
				t.Errorf("expected message %q, got: %s", tc.text, out)
			}
		})
	}
}

func TestStandardLogger_Close(t *testing.T) {
	l := NewStandardLogger(log.New(&bytes.Buffer{}, "", 0))
	if err := l.Close(); err != nil {
		t.Errorf("expected nil error, got: %v", err)
	}
}

func TestNopLogger_DiscardsEverything(t *testing.T) {
	l := NewNopLogger()

	l.Info("folder %s added", "/home/user/docs")
	l.Warning("model %s not yet installed", "cpu:minilm-l6-v2")
	l.Error("indexer failed: %v", errors.New("boom"))

	if err := l.Close(); err != nil {
		t.Errorf("expected nil error, got: %v", err)
	}
}

func TestMockLogger_RecordsFormattedCalls(t *testing.T) {
	l := NewMockLogger()

	l.Info("folder %s started", "/data/a")
	l.Info("folder %s active", "/data/a")
	l.Warning("model %s download stalled", "gpu:bge-large-en")
	l.Error("folder %s: %v", "/data/a", errors.New("path missing"))

	wantInfo := []string{"folder /data/a started", "folder /data/a active"}
	if len(l.InfoCalls) != len(wantInfo) {
		t.Fatalf("expected %d info calls, got %d", len(wantInfo), len(l.InfoCalls))
	}
	for i, want := range wantInfo {
		if l.InfoCalls[i] != want {
			t.Errorf("info[%d]: expected %q, got %q", i, want, l.InfoCalls[i])
		}
	}

	if len(l.WarningCalls) != 1 || l.WarningCalls[0] != "model gpu:bge-large-en download stalled" {
		t.Errorf("unexpected warning calls: %v", l.WarningCalls)
	}
	if len(l.ErrorCalls) != 1 || l.ErrorCalls[0] != "folder /data/a: path missing" {
		t.Errorf("unexpected error calls: %v", l.ErrorCalls)
	}
}

func TestMockLogger_Close(t *testing.T) {
	l := NewMockLogger()
	if l.CloseCalled {
		t.Error("CloseCalled should be false initially")
	}
	if err := l.Close(); err != nil {
		t.Errorf("expected nil error, got: %v", err)
	}
	if !l.CloseCalled {
		t.Error("CloseCalled should be true after Close()")
	}
}

// failingCloseLogger lets tests exercise MultiLogger's Close error
// propagation without a real file descriptor.
type failingCloseLogger struct {
	NopLogger
	closeErr error
}

func (f *failingCloseLogger) Close() error { return f.closeErr }

var _ Logger = (*failingCloseLogger)(nil)

func TestMultiLogger_BroadcastsToConsoleAndFile(t *testing.T) {
	console := &bytes.Buffer{}
	file := &bytes.Buffer{}
	multi := NewMultiLogger(
		NewStandardLogger(log.New(console, "", 0)),
		NewStandardLogger(log.New(file, "", 0)),
	)

	multi.Info("folderd started: pid=1 host=127.0.0.1 httpPort=31849 wsPort=31850")

	for _, out := range []string{console.String(), file.String()} {
		if !strings.Contains(out, "folderd started") {
			t.Errorf("expected both backends to receive the line, got: %q", out)
		}
	}
}

func TestMultiLogger_EmptyLoggers(t *testing.T) {
	multi := NewMultiLogger()

	multi.Info("test")
	multi.Warning("test")
	multi.Error("test")
	if err := multi.Close(); err != nil {
		t.Errorf("expected nil error, got: %v", err)
	}
}

func TestMultiLogger_Close_ReturnsFirstErrorButClosesAll(t *testing.T) {
	err1 := errors.New("console close failed")
	err2 := errors.New("file close failed")

	failing1 := &failingCloseLogger{closeErr: err1}
	mock := NewMockLogger()
	failing2 := &failingCloseLogger{closeErr: err2}

	multi := NewMultiLogger(failing1, mock, failing2)

	err := multi.Close()
	if !errors.Is(err, err1) {
		t.Errorf("expected first error %v, got %v", err1, err)
	}
	if !mock.CloseCalled {
		t.Error("expected mock logger to be closed even after an earlier backend failed")
	}
}

func TestMultiLogger_Close_AllSucceed(t *testing.T) {
	mock1 := NewMockLogger()
	mock2 := NewMockLogger()
	multi := NewMultiLogger(mock1, mock2)

	if err := multi.Close(); err != nil {
		t.Errorf("expected nil error, got: %v", err)
	}
	if !mock1.CloseCalled || !mock2.CloseCalled {
		t.Error("expected both backends to be closed")
	}
}
