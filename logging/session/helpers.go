package session

import (
	"context"

	"pubkey-quest/engine/logging"
)

const (
	// EventResumeChecked is emitted after the active-combat query on load.
	EventResumeChecked logging.EventType = "session.resume_checked"
	// EventAutoPause is emitted when the server reports an idle pause.
	EventAutoPause logging.EventType = "session.auto_pause"
	// EventArrival is emitted when travel completes during a sync cycle.
	EventArrival logging.EventType = "session.arrival"
)

// ResumePayload records the outcome of the load-time combat query.
type ResumePayload struct {
	ActiveCombat bool `json:"activeCombat"`
}

// ResumeChecked publishes the load-time query result.
func ResumeChecked(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload ResumePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventResumeChecked,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
		Payload:  payload,
	})
}

// AutoPause publishes an idle pause event.
func AutoPause(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAutoPause,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
	})
}

// Arrival publishes a travel completion event.
func Arrival(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventArrival,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
	})
}
