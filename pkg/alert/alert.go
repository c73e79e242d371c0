package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/repscore/pkg/activity"
	"github.com/google/uuid"
)

// EventBatchFailed is raised when a batch run has at least one failed entity.
const EventBatchFailed = "batch.failed"

// Notification is the data sent to alert destinations. ID is shared by every
// destination a notification is broadcast to, so receivers can deduplicate.
type Notification struct {
	ID       string                   `json:"id"`
	Event    string                   `json:"event"`
	Title    string                   `json:"title"`
	Body     string                   `json:"body"`
	RunID    string                   `json:"run_id"`
	Kind     activity.EntityKind      `json:"kind"`
	Total    int                      `json:"total"`
	Failures []activity.EntityFailure `json:"failures"`
}

// FromBatch builds a notification for a batch run. It returns nil when the
// run had no failures.
func FromBatch(kind activity.EntityKind, res activity.BatchResult) *Notification {
	if len(res.Failed) == 0 {
		return nil
	}
	total := res.Succeeded + len(res.Failed)
	return &Notification{
		ID:       uuid.NewString(),
		Event:    EventBatchFailed,
		Title:    fmt.Sprintf("repscore: %d of %d %s recomputes failed", len(res.Failed), total, kind),
		Body:     fmt.Sprintf("Batch %s finished in %s", res.RunID, res.Duration.Round(time.Millisecond)),
		RunID:    res.RunID,
		Kind:     kind,
		Total:    total,
		Failures: res.Failed,
	}
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if m == nil || n == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}
