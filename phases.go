package main

import (
	"errors"
	"fmt"
)

// SessionStatus is the top-level lifecycle of a tasting session.
type SessionStatus string

const (
	StatusDraft     SessionStatus = "draft"
	StatusWaiting   SessionStatus = "waiting"
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusReveal    SessionStatus = "reveal"
	StatusCompleted SessionStatus = "completed"
)

// TastingPhase is one step of the guided sequence each whiskey walks
// through while the session is active.
type TastingPhase string

const (
	PhasePour        TastingPhase = "pour"
	PhaseNose        TastingPhase = "nose"
	PhaseTasteNeat   TastingPhase = "taste-neat"
	PhaseTasteWater  TastingPhase = "taste-water"
	PhaseScore       TastingPhase = "score"
	PhasePalateReset TastingPhase = "palate-reset"
)

// phaseSequence is the fixed per-whiskey order. Advancing past the last
// entry moves to the next whiskey's pour.
var phaseSequence = []TastingPhase{
	PhasePour,
	PhaseNose,
	PhaseTasteNeat,
	PhaseTasteWater,
	PhaseScore,
	PhasePalateReset,
}

func phaseIndex(p TastingPhase) int {
	for i, candidate := range phaseSequence {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Transition names a moderator action on the session status machine.
type Transition string

const (
	TransitionOpen     Transition = "open"
	TransitionStart    Transition = "start"
	TransitionPause    Transition = "pause"
	TransitionResume   Transition = "resume"
	TransitionReveal   Transition = "reveal"
	TransitionComplete Transition = "complete"
)

// transitions maps each action to the statuses it may leave from.
var transitions = map[Transition]map[SessionStatus]SessionStatus{
	TransitionOpen:     {StatusDraft: StatusWaiting},
	TransitionStart:    {StatusWaiting: StatusActive},
	TransitionPause:    {StatusActive: StatusPaused},
	TransitionResume:   {StatusPaused: StatusActive},
	TransitionReveal:   {StatusActive: StatusReveal, StatusPaused: StatusReveal},
	TransitionComplete: {StatusReveal: StatusCompleted},
}

var (
	errBadTransition = errors.New("transition not allowed")
	errFlightDone    = errors.New("flight complete")
)

// nextStatus applies a moderator transition to the current status.
func nextStatus(current SessionStatus, t Transition) (SessionStatus, error) {
	allowed, ok := transitions[t]
	if !ok {
		return current, fmt.Errorf("%w: unknown transition %q", errBadTransition, t)
	}
	next, ok := allowed[current]
	if !ok {
		return current, fmt.Errorf("%w: cannot %s a %s session", errBadTransition, t, current)
	}
	return next, nil
}

// advancePhase moves the tasting forward one step: through the phase
// sequence of the current whiskey, then on to the next whiskey's pour.
// flight is the number of whiskeys; progress is forward-only. Once the
// last whiskey has finished palate-reset, errFlightDone is returned and
// the moderator's next move is the reveal.
func advancePhase(phase TastingPhase, index, flight int) (TastingPhase, int, error) {
	if flight <= 0 {
		return phase, index, errors.New("flight is empty")
	}
	if index < 0 || index >= flight {
		return phase, index, fmt.Errorf("whiskey index %d out of range", index)
	}
	pi := phaseIndex(phase)
	if pi < 0 {
		return phase, index, fmt.Errorf("unknown tasting phase %q", phase)
	}
	if pi+1 < len(phaseSequence) {
		return phaseSequence[pi+1], index, nil
	}
	if index+1 >= flight {
		return phase, index, errFlightDone
	}
	return PhasePour, index + 1, nil
}

// scoreWindowOpen reports whether a taster may submit or revise a score
// for the whiskey at position target. Scores open once the whiskey's
// score phase is reached and stay open (for revision) until reveal, but
// only while the session is active.
func scoreWindowOpen(status SessionStatus, phase TastingPhase, current, target int) bool {
	if status != StatusActive {
		return false
	}
	if target < current {
		return true
	}
	if target > current {
		return false
	}
	return phaseIndex(phase) >= phaseIndex(PhaseScore)
}

// joinable reports whether new tasters may enter a session in the given
// status. Locking is checked separately.
func joinable(status SessionStatus) bool {
	switch status {
	case StatusWaiting, StatusActive, StatusPaused:
		return true
	default:
		return false
	}
}
