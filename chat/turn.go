package chat

import (
	"context"

	"github.com/qmuntal/stateless"

	"github.com/example/chatbot/logger"
)

// Turn lifecycle states.
const (
	stateResolving     = "Resolving"
	stateContextLoaded = "ContextLoaded"
	stateInvoking      = "Invoking"
	statePersisting    = "Persisting"
	stateDone          = "Done"
	stateFailed        = "Failed"
)

// Turn lifecycle triggers.
const (
	triggerContextAssembled = "ContextAssembled"
	triggerInvoke           = "Invoke"
	triggerUpstreamReplied  = "UpstreamReplied"
	triggerPersisted        = "Persisted"
	triggerFail             = "Fail"
)

// turn tracks the lifecycle of a single chat turn through the orchestration
// pipeline. Any state can fail.
type turn struct {
	fsm *stateless.StateMachine
}

func newTurn() *turn {
	fsm := stateless.NewStateMachine(stateResolving)

	fsm.Configure(stateResolving).
		Permit(triggerContextAssembled, stateContextLoaded).
		Permit(triggerFail, stateFailed)
	fsm.Configure(stateContextLoaded).
		Permit(triggerInvoke, stateInvoking).
		Permit(triggerFail, stateFailed)
	fsm.Configure(stateInvoking).
		Permit(triggerUpstreamReplied, statePersisting).
		Permit(triggerFail, stateFailed)
	fsm.Configure(statePersisting).
		Permit(triggerPersisted, stateDone).
		Permit(triggerFail, stateFailed)

	fsm.OnTransitioned(func(_ context.Context, tr stateless.Transition) {
		logger.L.Debug("turn transition", "from", tr.Source, "to", tr.Destination)
	})

	return &turn{fsm: fsm}
}

// advance fires a lifecycle trigger. Transitions are fixed at construction,
// so a rejection here is a programming error worth surfacing in logs.
func (t *turn) advance(trigger string) {
	if err := t.fsm.Fire(trigger); err != nil {
		logger.L.Error("invalid turn transition", "trigger", trigger, "state", t.state(), "error", err)
	}
}

// fail moves the turn to the terminal Failed state, from any state.
func (t *turn) fail() {
	if t.state() == stateFailed || t.state() == stateDone {
		return
	}
	t.advance(triggerFail)
}

func (t *turn) state() string {
	s, _ := t.fsm.MustState().(string)
	return s
}
