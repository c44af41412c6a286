package clocksync

import (
	"context"

	"pubkey-quest/engine/logging"
)

const (
	// EventResync is emitted when the clock accepts an authoritative correction.
	EventResync logging.EventType = "clock.resync"
	// EventRollover is emitted when interpolation or a correction crosses midnight.
	EventRollover logging.EventType = "clock.rollover"
	// EventTickApplied is emitted when a sync cycle lands and its response is applied.
	EventTickApplied logging.EventType = "sync.tick_applied"
	// EventTickSkipped is emitted when a firing is dropped by the single-flight guard.
	EventTickSkipped logging.EventType = "sync.tick_skipped"
	// EventTickFailed is emitted when a sync round-trip errors out.
	EventTickFailed logging.EventType = "sync.tick_failed"
	// EventTickRejected is emitted when the server answers success=false.
	EventTickRejected logging.EventType = "sync.tick_rejected"
)

// ResyncPayload captures the correction the clock accepted.
type ResyncPayload struct {
	PreviousMinutes int  `json:"previousMinutes"`
	Minutes         int  `json:"minutes"`
	Day             int  `json:"day"`
	DriftMinutes    int  `json:"driftMinutes"`
	Forced          bool `json:"forced,omitempty"`
}

// RolloverPayload records the day boundary crossing.
type RolloverPayload struct {
	Day int `json:"day"`
}

// AppliedPayload summarizes a completed sync cycle.
type AppliedPayload struct {
	DurationMs int64 `json:"durationMs"`
	HasDelta   bool  `json:"hasDelta,omitempty"`
	Arrived    bool  `json:"arrived,omitempty"`
	AutoPause  bool  `json:"autoPause,omitempty"`
}

// SkipPayload names why a firing was dropped.
type SkipPayload struct {
	Reason string `json:"reason"`
}

// FailurePayload carries the round-trip error text.
type FailurePayload struct {
	Error string `json:"error"`
}

// RejectPayload carries the server's refusal message.
type RejectPayload struct {
	Message string `json:"message,omitempty"`
}

// Resync publishes a clock correction event.
func Resync(ctx context.Context, pub logging.Publisher, tick uint64, payload ResyncPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventResync,
		Tick:     tick,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryClock,
		Payload:  payload,
	})
}

// Rollover publishes a midnight crossing event.
func Rollover(ctx context.Context, pub logging.Publisher, tick uint64, payload RolloverPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRollover,
		Tick:     tick,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryClock,
		Payload:  payload,
	})
}

// TickApplied publishes a completed sync cycle event.
func TickApplied(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload AppliedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickApplied,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategorySync,
		Payload:  payload,
	})
}

// TickSkipped publishes a skipped firing event.
func TickSkipped(ctx context.Context, pub logging.Publisher, tick uint64, payload SkipPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickSkipped,
		Tick:     tick,
		Severity: logging.SeverityDebug,
		Category: logging.CategorySync,
		Payload:  payload,
	})
}

// TickFailed publishes a failed round-trip event.
func TickFailed(ctx context.Context, pub logging.Publisher, tick uint64, payload FailurePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickFailed,
		Tick:     tick,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySync,
		Payload:  payload,
	})
}

// TickRejected publishes a server refusal event.
func TickRejected(ctx context.Context, pub logging.Publisher, tick uint64, payload RejectPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickRejected,
		Tick:     tick,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySync,
		Payload:  payload,
	})
}
