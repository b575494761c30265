package analytics

import (
	"context"
	"time"

	"github.com/cuongbtq/colorize-be/internal/domain"
	"github.com/cuongbtq/colorize-be/internal/durable"
)

// Recorder writes analytics events through the durable executor.
type Recorder struct {
	store Store
	exec  *durable.Executor
	now   func() time.Time
}

func NewRecorder(store Store, exec *durable.Executor) *Recorder {
	return &Recorder{
		store: store,
		exec:  exec,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Record stores one event, defaulting platform and timestamp.
func (r *Recorder) Record(ctx context.Context, event domain.ColorizeEvent) error {
	if event.Platform == "" {
		event.Platform = domain.PlatformUnknown
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now()
	}

	return r.exec.Execute(ctx, "insert_event", func(ctx context.Context) error {
		return r.store.InsertEvent(ctx, event)
	})
}
