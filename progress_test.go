package geocsv

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type countingReporter struct {
	calls atomic.Int64
}

func (r *countingReporter) ProgressMessage() string {
	return "tick " + strings.Repeat("#", int(r.calls.Add(1)))
}

func (r *countingReporter) TaskDescription() string { return "test task" }

func TestRunProgressMonitor(t *testing.T) {
	var out lockedBuffer
	logger := slog.New(slog.NewTextHandler(&out, nil))
	r := &countingReporter{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunProgressMonitor(ctx, r, 5*time.Millisecond, logger)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for r.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunProgressMonitor did not stop after cancel")
	}

	if r.calls.Load() < 2 {
		t.Fatalf("ProgressMessage called %d times, want >= 2", r.calls.Load())
	}
	log := out.String()
	for _, want := range []string{"progress monitoring started", "test task", "tick #", "progress monitoring finished"} {
		if !strings.Contains(log, want) {
			t.Errorf("log output missing %q:\n%s", want, log)
		}
	}
}

func TestRunProgressMonitorDisabled(t *testing.T) {
	r := &countingReporter{}
	RunProgressMonitor(context.Background(), r, 0, nil)
	if r.calls.Load() != 0 {
		t.Errorf("disabled monitor called ProgressMessage %d times", r.calls.Load())
	}
}
