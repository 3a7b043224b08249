// Package audit appends the immutable action trail. Every successful Store
// or Product mutation records one Log row and mirrors the event onto the
// Kafka stream. Both writes are best-effort with respect to the primary
// mutation: a failed append is reported as a warning, never as a failure of
// the mutation itself.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shelftrack/shelftrack/internal/backend"
	"github.com/shelftrack/shelftrack/internal/logging"
	"github.com/shelftrack/shelftrack/internal/models"
)

const Collection = "logs"

// Publisher is the event-stream sink. Nil-safe at the Logger level so tests
// and brokerless deployments run without Kafka.
type Publisher interface {
	Publish(ctx context.Context, key string, event map[string]any) error
}

type Logger struct {
	Backend *backend.Backend
	Events  Publisher

	now func() time.Time
}

func New(b *backend.Backend, events Publisher) *Logger {
	return &Logger{Backend: b, Events: events, now: time.Now}
}

// Record appends one Log row. The returned error is a warning for the
// caller to surface, distinct from the primary mutation's result.
func (l *Logger) Record(ctx context.Context, ownerID, storeID, action string) error {
	entry := models.Log{
		ID:        uuid.NewString(),
		StoreID:   storeID,
		OwnerID:   ownerID,
		Action:    action,
		Timestamp: l.now(),
	}
	if err := backend.Create(ctx, l.Backend, Collection, &entry); err != nil {
		logging.FromContext(ctx).Warn("audit_append_failed", "action", action, "error", err)
		return err
	}
	return nil
}

// Emit publishes the mutation onto the event stream. Failures are logged
// and swallowed; the stream is an observer, not a participant.
func (l *Logger) Emit(ctx context.Context, eventType, ownerID string, payload map[string]any) {
	if l.Events == nil {
		return
	}
	event := map[string]any{"type": eventType, "owner_id": ownerID}
	for k, v := range payload {
		event[k] = v
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := l.Events.Publish(pubCtx, ownerID, event); err != nil {
		logging.FromContext(ctx).Error("event_publish_failed", "type", eventType, "error", err)
	}
}
