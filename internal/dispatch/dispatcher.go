// Package dispatch submits prompts that other views leave in the pending
// slot, once the session is free to take them.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"cortexchat/internal/agent"
	"cortexchat/internal/appstate"
	"cortexchat/internal/logging"
	"cortexchat/internal/telemetry"
)

// Session is the part of agent.Session the dispatcher drives.
type Session interface {
	Status() agent.Status
	Submit(ctx context.Context, text, focalID string) (*agent.Turn, error)
	Subscribe() (<-chan struct{}, func())
	ConversationID() string
}

// Dispatcher watches the pending-prompt slot. A pending value is submitted
// when the session is not streaming and the value differs from the last one
// dispatched. Only an immediate repeat is suppressed: A, B, A dispatches
// three times. A suppressed repeat stays in the slot.
type Dispatcher struct {
	state   *appstate.State
	session Session
	metrics *telemetry.Metrics

	mu   sync.Mutex
	last string
}

// New creates a dispatcher. metrics may be nil.
func New(state *appstate.State, session Session, metrics *telemetry.Metrics) *Dispatcher {
	return &Dispatcher{state: state, session: session, metrics: metrics}
}

// Evaluate dispatches the pending prompt if the rules allow it and reports
// whether a turn was started.
func (d *Dispatcher) Evaluate(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending := d.state.PendingPrompt()
	if pending == "" || pending == d.last {
		return false
	}
	if d.session.Status() == agent.StatusStreaming {
		logging.DispatchDebug("pending prompt deferred: turn in flight")
		return false
	}

	// Submit admits atomically. Losing the race to another sender leaves the
	// prompt pending for the next evaluation.
	turn, err := d.session.Submit(ctx, pending, d.state.FocalID())
	if err != nil {
		if errors.Is(err, agent.ErrTurnInFlight) {
			logging.DispatchDebug("pending prompt deferred: lost admission race")
		} else {
			logging.DispatchWarn("pending prompt not submitted: %v", err)
		}
		return false
	}

	d.last = pending
	d.state.ClearPendingIf(pending)
	d.metrics.Dispatched()
	logging.Dispatch("dispatched pending prompt as turn %s", turn.MessageID)
	logging.AuditFor(d.session.ConversationID()).Log(logging.AuditEvent{
		EventType: logging.AuditPromptDispatched,
		MessageID: turn.MessageID,
		Target:    pending,
		Success:   true,
	})
	return true
}

// LastDispatched returns the marker of the last submitted prompt.
func (d *Dispatcher) LastDispatched() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Run evaluates once, then after every change to the application state or
// the session, until ctx ends or both sources close.
func (d *Dispatcher) Run(ctx context.Context) error {
	stateCh, cancelState := d.state.Subscribe()
	defer cancelState()
	sessCh, cancelSess := d.session.Subscribe()
	defer cancelSess()

	d.Evaluate(ctx)
	for stateCh != nil || sessCh != nil {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-stateCh:
			if !ok {
				stateCh = nil
				continue
			}
		case _, ok := <-sessCh:
			if !ok {
				sessCh = nil
				continue
			}
		}
		d.Evaluate(ctx)
	}
	return nil
}
