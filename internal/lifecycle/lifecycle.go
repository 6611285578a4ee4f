package lifecycle

import (
	"time"

	"github.com/predictrack/predictrack-go/internal/model"
)

// Engine computes derived poll state. It owns no state and has no side
// effects; every mutating operation consults it before touching a store.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Status derives the lifecycle state of a poll at the given instant:
// RESOLVED if the poll is resolved, else CLOSED once the deadline has
// passed, else ACTIVE.
func (e *Engine) Status(p *model.Poll, now time.Time) model.PollStatus {
	if p.Resolved {
		return model.StatusResolved
	}
	if !now.Before(p.Deadline) {
		return model.StatusClosed
	}
	return model.StatusActive
}

// CanVote reports whether votes and stakes are still admitted.
func (e *Engine) CanVote(p *model.Poll, now time.Time) bool {
	return e.Status(p, now) == model.StatusActive
}

// CanResolve reports whether the poll can still be resolved. The deadline is
// deliberately not checked: a creator may resolve early.
func (e *Engine) CanResolve(p *model.Poll) bool {
	return !p.Resolved
}

// ValidOption reports whether idx indexes into the poll's options.
func (e *Engine) ValidOption(p *model.Poll, idx int) bool {
	return idx >= 0 && idx < len(p.Options)
}
