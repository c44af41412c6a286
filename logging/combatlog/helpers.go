package combatlog

import (
	"context"

	"pubkey-quest/engine/logging"
)

const (
	// EventStarted is emitted when a combat session opens.
	EventStarted logging.EventType = "combat.started"
	// EventInput is emitted for every accepted player input.
	EventInput logging.EventType = "combat.input"
	// EventTransition is emitted when the session changes phase.
	EventTransition logging.EventType = "combat.transition"
	// EventRejected is emitted when the server refuses an input.
	EventRejected logging.EventType = "combat.rejected"
	// EventResumed is emitted when an active session is rebuilt on load.
	EventResumed logging.EventType = "combat.resumed"
	// EventEnded is emitted when the session is dismissed.
	EventEnded logging.EventType = "combat.ended"
)

// StartPayload describes the opening state of an encounter.
type StartPayload struct {
	Monster string `json:"monster"`
	Range   int    `json:"range"`
}

// InputPayload captures an accepted input and the state it ran under.
type InputPayload struct {
	Input     string `json:"input"`
	TurnPhase string `json:"turnPhase,omitempty"`
	Range     int    `json:"range"`
}

// TransitionPayload records a phase change.
type TransitionPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// RejectPayload records a refused input and the server's message.
type RejectPayload struct {
	Input   string `json:"input"`
	Message string `json:"message,omitempty"`
}

// ResumePayload describes a session rebuilt mid-fight.
type ResumePayload struct {
	Phase   string `json:"phase"`
	Monster string `json:"monster,omitempty"`
	Range   int    `json:"range"`
}

// Started publishes a combat open event.
func Started(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, target logging.EntityRef, payload StartPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventStarted,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{target},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
	})
}

// Input publishes an accepted input event.
func Input(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload InputPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventInput,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryCombat,
		Payload:  payload,
	})
}

// Transition publishes a phase change event.
func Transition(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload TransitionPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTransition,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
	})
}

// Rejected publishes a refused input event.
func Rejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload RejectPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRejected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryCombat,
		Payload:  payload,
	})
}

// Resumed publishes a session rebuild event.
func Resumed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ResumePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventResumed,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
	})
}

// Ended publishes a session dismissal event.
func Ended(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEnded,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
	})
}
