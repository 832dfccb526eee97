// Package fsm defines the override transition states and their legal moves.
package fsm

import (
	"errors"
	"fmt"
)

type State string

type Event string

const (
	StateNormal        State = "normal"
	StateTransitioning State = "transitioning"
	StateOverride      State = "override"
)

const (
	EventPositive      Event = "positive"
	EventNegative      Event = "negative"
	EventFailed        Event = "failed"
	EventFadeComplete  Event = "fade_complete"
	EventPlaybackEnded Event = "playback_ended"
	EventForceRevert   Event = "force_revert"
)

// ErrIgnored marks an event that is not valid in the current state.
// Callers drop such events; the state is returned unchanged.
var ErrIgnored = errors.New("event ignored")

func Transition(current State, event Event) (State, error) {
	switch event {
	case EventNegative, EventFailed:
		if !known(current) {
			return current, fmt.Errorf("unknown state %q", current)
		}
		return current, nil
	}

	switch current {
	case StateNormal:
		switch event {
		case EventPositive:
			return StateTransitioning, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateTransitioning:
		switch event {
		case EventFadeComplete:
			return StateOverride, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateOverride:
		switch event {
		case EventPlaybackEnded, EventForceRevert:
			return StateNormal, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func known(state State) bool {
	switch state {
	case StateNormal, StateTransitioning, StateOverride:
		return true
	default:
		return false
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("%w: %s --(%s)--> ?", ErrIgnored, state, event)
}
