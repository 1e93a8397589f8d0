package agent

import "github.com/shrimp/shrimp/pkg/models"

// EventSink receives the streaming event sequence the turn orchestrator
// emits during a turn. Implementations must tolerate being called from the
// orchestrator's single goroutine for that turn; no internal locking is
// required since events for a given turn have a single producer.
type EventSink interface {
	Emit(models.TurnEvent)
}

// EventSinkFunc adapts a plain function to an EventSink.
type EventSinkFunc func(models.TurnEvent)

func (f EventSinkFunc) Emit(e models.TurnEvent) { f(e) }

// NopSink discards every event; used by the trigger-run executor, which
// invokes the orchestrator non-streaming.
type NopSink struct{}

func (NopSink) Emit(models.TurnEvent) {}
