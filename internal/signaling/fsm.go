package signaling

import (
	"context"

	"github.com/looplab/fsm"
)

// Call states for one driver.
const (
	StateIdle       = "idle"
	StateRequesting = "requesting" // outgoing request, waiting for answer
	StateRinging    = "ringing"    // incoming request, waiting for answer
	StateActive     = "active"
)

// Call events.
const (
	EventRequest = "event_request" // caller side of a new negotiation
	EventRing    = "event_ring"    // callee side of a new negotiation
	EventAccept  = "event_accept"
	EventReject  = "event_reject"
	EventEnd     = "event_end"
	EventReset   = "event_reset" // disconnect or forced teardown
)

// callFSM tracks one driver's call state plus the peer of the current
// negotiation or call.
type callFSM struct {
	*fsm.FSM
	peerID        string
	negotiationID string
	emergency     bool
}

func newCallFSM() *callFSM {
	c := &callFSM{}

	events := fsm.Events{
		{Name: EventRequest, Src: []string{StateIdle}, Dst: StateRequesting},
		{Name: EventRing, Src: []string{StateIdle}, Dst: StateRinging},
		{Name: EventAccept, Src: []string{StateRequesting, StateRinging}, Dst: StateActive},
		{Name: EventReject, Src: []string{StateRequesting, StateRinging}, Dst: StateIdle},
		{Name: EventEnd, Src: []string{StateRequesting, StateRinging, StateActive}, Dst: StateIdle},
		{Name: EventReset, Src: []string{StateIdle, StateRequesting, StateRinging, StateActive}, Dst: StateIdle},
	}

	callbacks := fsm.Callbacks{
		// Guard: accepting requires a live negotiation peer.
		"before_" + EventAccept: wrapEvent(c.guardHasPeer),

		"enter_" + StateIdle: wrapEvent(c.actionClearPeer),
	}

	c.FSM = fsm.NewFSM(StateIdle, events, callbacks)
	return c
}

func (c *callFSM) guardHasPeer(ctx context.Context, e *fsm.Event) error {
	if c.peerID == "" {
		e.Cancel(fsm.NoTransitionError{})
	}
	return nil
}

func (c *callFSM) actionClearPeer(ctx context.Context, e *fsm.Event) error {
	c.peerID = ""
	c.negotiationID = ""
	c.emergency = false
	return nil
}

func wrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}
