package notify

import (
	"context"

	"github.com/sokonilabs/sokoni-backend/pkg/logger"
)

// LogDispatcher writes messages to the structured log instead of an external
// channel. It stands in for the real messaging integration in environments
// that have none configured.
type LogDispatcher struct {
	logg *logger.Logger
}

// NewLogDispatcher builds a log-backed dispatcher.
func NewLogDispatcher(logg *logger.Logger) *LogDispatcher {
	return &LogDispatcher{logg: logg}
}

func (d *LogDispatcher) Send(ctx context.Context, destination, message string) error {
	logCtx := d.logg.WithFields(ctx, map[string]any{
		"destination": destination,
		"message":     message,
	})
	d.logg.Info(logCtx, "notification dispatched to log")
	return nil
}
