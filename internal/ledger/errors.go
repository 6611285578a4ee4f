package ledger

import (
	"errors"

	"github.com/predictrack/predictrack-go/internal/store"
)

// Business-rule and infrastructure failures surfaced by the ledger.
// Handlers map these to HTTP statuses with errors.Is.
var (
	ErrNotFound            = errors.New("poll not found")
	ErrInvalidOption       = errors.New("invalid option index")
	ErrInvalidAmount       = errors.New("stake amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyVoted        = errors.New("user already voted on this poll")
	ErrPollClosed          = errors.New("poll is closed")
	ErrAlreadyResolved     = errors.New("poll already resolved")
	ErrNotResolved         = errors.New("poll not resolved yet")
	ErrAlreadyClaimed      = errors.New("position already claimed")
	ErrWrongOption         = errors.New("position is not on the correct option")
	ErrNoReward            = errors.New("position has no reward")
	ErrStakingDisabled     = errors.New("staking is not enabled for this poll")
	ErrPositionNotFound    = errors.New("staking position not found")
)

// ErrServiceUnavailable is surfaced when neither store could commit.
var ErrServiceUnavailable = store.ErrUnavailable
