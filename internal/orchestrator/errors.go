package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by StartShow while a show is live.
	ErrAlreadyRunning = errors.New("a show is already live")
	// ErrNoActiveShow is returned by show-scoped operations when nothing is live.
	ErrNoActiveShow = errors.New("no show is live")
	// ErrStaleTransition is returned by ManualTransitionFrom when the segment
	// it names is no longer current. Callers should treat it as benign.
	ErrStaleTransition = errors.New("segment is no longer current")
)

// Transition phases reported in TransitionError.
const (
	PhaseNextShowNumber = "next_show_number"
	PhaseCreateShow     = "create_show"
	PhaseCloseSegment   = "close_segment"
	PhaseCreateSegment  = "create_segment"
	PhaseUpdateShow     = "update_show"
	PhaseSaveContent    = "save_content"
	PhaseEndShow        = "end_show"
)

// TransitionError reports a durable write that failed mid-transition. The
// in-memory state reflects the last write that succeeded and automatic
// transitions stop until an operator intervenes.
type TransitionError struct {
	Phase     string
	ShowID    string
	SegmentID string
	Err       error
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("transition failed at %s (show %s", e.Phase, e.ShowID)
	if e.SegmentID != "" {
		msg += ", segment " + e.SegmentID
	}
	return msg + "): " + e.Err.Error()
}

func (e *TransitionError) Unwrap() error { return e.Err }
