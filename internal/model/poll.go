package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PollStatus is the derived lifecycle state of a poll. It is never stored;
// it is computed from Resolved and Deadline at read time.
type PollStatus string

const (
	StatusActive   PollStatus = "ACTIVE"
	StatusClosed   PollStatus = "CLOSED"
	StatusResolved PollStatus = "RESOLVED"
)

// Origin marks which store last accepted a record. Records written while the
// remote ledger was unreachable carry OriginLocal until a merge reconciles them.
type Origin string

const (
	OriginRemote Origin = "remote"
	OriginLocal  Origin = "local"
)

// VoteRecord is a single user's plain (non-staked) vote on a poll.
type VoteRecord struct {
	Option int       `json:"option"`
	CastAt time.Time `json:"castAt"`
}

// Poll is a prediction poll with fixed options and a deadline.
// Options are fixed at creation. Resolved is monotonic: once true it never
// flips back, and CorrectOption is only set together with it.
type Poll struct {
	ID             string                `json:"id"`
	Creator        string                `json:"creator"`
	Title          string                `json:"title"`
	Description    string                `json:"description,omitempty"`
	Options        []string              `json:"options"`
	Deadline       time.Time             `json:"deadline"`
	StakingEnabled bool                  `json:"isStakingEnabled"`
	Resolved       bool                  `json:"isResolved"`
	CorrectOption  *int                  `json:"correctOption,omitempty"`
	Votes          map[string]VoteRecord `json:"votes,omitempty"`
	VoteCounts     []int                 `json:"voteCounts"`
	OptionStakes   []decimal.Decimal     `json:"optionStakes"`
	TotalStaked    decimal.Decimal       `json:"totalStaked"`
	RewardPool     decimal.Decimal       `json:"rewardPool"`
	Origin         Origin                `json:"origin,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (p *Poll) Clone() *Poll {
	cp := *p
	cp.Options = append([]string(nil), p.Options...)
	cp.VoteCounts = append([]int(nil), p.VoteCounts...)
	cp.OptionStakes = append([]decimal.Decimal(nil), p.OptionStakes...)
	if p.CorrectOption != nil {
		idx := *p.CorrectOption
		cp.CorrectOption = &idx
	}
	if p.Votes != nil {
		cp.Votes = make(map[string]VoteRecord, len(p.Votes))
		for addr, v := range p.Votes {
			cp.Votes[addr] = v
		}
	}
	return &cp
}

// PollResponse is the API shape for poll lookups.
type PollResponse struct {
	ID             string          `json:"id"`
	Creator        string          `json:"creator"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Options        []string        `json:"options"`
	Deadline       time.Time       `json:"deadline"`
	Status         PollStatus      `json:"status"`
	StakingEnabled bool            `json:"isStakingEnabled"`
	Resolved       bool            `json:"isResolved"`
	CorrectOption  *int            `json:"correctOption,omitempty"`
	VoteCounts     []int           `json:"voteCounts"`
	TotalVotes     int             `json:"totalVotes"`
	TotalStaked    decimal.Decimal `json:"totalStaked"`
	Origin         Origin          `json:"origin,omitempty"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// CreatePollRequest is the API request body for creating a poll.
type CreatePollRequest struct {
	Creator        string    `json:"creator"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Options        []string  `json:"options"`
	Deadline       time.Time `json:"deadline"`
	StakingEnabled bool      `json:"isStakingEnabled"`
}

// VoteRequest is the API request body for casting a plain vote.
type VoteRequest struct {
	User   string `json:"user"`
	Option int    `json:"option"`
}

// ResolveRequest is the API request body for resolving a poll.
type ResolveRequest struct {
	CorrectOption int `json:"correctOption"`
}
