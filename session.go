package zkclient

import (
	"context"

	"github.com/looplab/fsm"
)

const (
	StateDisconnected = "DISCONNECTED"
	StateConnecting   = "CONNECTING"
	StateConnected    = "CONNECTED"
)

const (
	eventDial        = "dial"
	eventEstablished = "established"
	eventAbort       = "abort"
	eventClose       = "close"
)

// sessionState tracks the connection lifecycle. Retries inside Connect are
// not visible as states.
type sessionState struct {
	fsm *fsm.FSM
}

func newSessionState(log Logger) *sessionState {
	s := &sessionState{}
	s.fsm = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: eventDial, Src: []string{StateDisconnected}, Dst: StateConnecting},
			{Name: eventEstablished, Src: []string{StateConnecting}, Dst: StateConnected},
			{Name: eventAbort, Src: []string{StateConnecting}, Dst: StateDisconnected},
			{Name: eventClose, Src: []string{StateConnecting, StateConnected}, Dst: StateDisconnected},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debugf("session %s -> %s (%s)", e.Src, e.Dst, e.Event)
			},
		},
	)
	return s
}

func (s *sessionState) Current() string {
	return s.fsm.Current()
}

func (s *sessionState) Connected() bool {
	return s.fsm.Is(StateConnected)
}

func (s *sessionState) fire(event string) error {
	if !s.fsm.Can(event) {
		return fsm.InvalidEventError{Event: event, State: s.fsm.Current()}
	}
	return s.fsm.Event(context.Background(), event)
}

func (s *sessionState) Dial() error        { return s.fire(eventDial) }
func (s *sessionState) Established() error { return s.fire(eventEstablished) }
func (s *sessionState) Abort() error       { return s.fire(eventAbort) }

// Close is a no-op when already disconnected.
func (s *sessionState) Close() {
	if s.fsm.Can(eventClose) {
		_ = s.fsm.Event(context.Background(), eventClose)
	}
}
