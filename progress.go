package geocsv

import (
	"context"
	"log/slog"
	"time"
)

// ProgressReporter is implemented by tasks that can describe their progress.
// Both methods must be safe to call from another goroutine.
type ProgressReporter interface {
	ProgressMessage() string
	TaskDescription() string
}

// RunProgressMonitor logs r's progress message every interval until ctx is
// done. It only ever reads from r. A non-positive interval returns at once.
func RunProgressMonitor(ctx context.Context, r ProgressReporter, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = discardLogger()
	}
	task := r.TaskDescription()
	logger.Info("progress monitoring started", "task", task)
	defer logger.Info("progress monitoring finished", "task", task)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info(r.ProgressMessage())
		}
	}
}
