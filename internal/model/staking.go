package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StakingPosition is one stake placed by a user on one option of one poll.
// A user may hold several positions per poll; each is claimed independently.
type StakingPosition struct {
	PollID       string           `json:"pollId"`
	UserAddress  string           `json:"userAddress"`
	Option       int              `json:"option"`
	StakeAmount  decimal.Decimal  `json:"stakeAmount"`
	StakedAt     time.Time        `json:"timestamp"`
	Claimed      bool             `json:"isClaimed"`
	RewardAmount *decimal.Decimal `json:"rewardAmount,omitempty"`
}

// PositionKey is the local-cache key layout for a user's positions on a poll.
func PositionKey(user, pollID string) string {
	return user + "_" + pollID
}

// PollStakingInfo aggregates every staking fact about one poll.
// Invariant: TotalStaked equals the sum of OptionStakes and the sum of all
// position stake amounts.
type PollStakingInfo struct {
	PollID        string                       `json:"pollId"`
	TotalStaked   decimal.Decimal              `json:"totalStaked"`
	OptionStakes  []decimal.Decimal            `json:"optionStakes"`
	UserStakes    map[string][]StakingPosition `json:"userStakes"`
	Resolved      bool                         `json:"isResolved"`
	CorrectOption *int                         `json:"correctOption,omitempty"`
	RewardPool    decimal.Decimal              `json:"rewardPool"`
}

// StakeRequest is the API request body for placing a stake.
type StakeRequest struct {
	User   string          `json:"user"`
	Option int             `json:"option"`
	Amount decimal.Decimal `json:"amount"`
}

// StakeResponse is the API response after a successful stake.
type StakeResponse struct {
	Success  bool            `json:"success"`
	Position StakingPosition `json:"position"`
	NewTotal decimal.Decimal `json:"newTotalStaked"`
}

// ClaimRequest is the API request body for claiming a reward.
type ClaimRequest struct {
	User          string `json:"user"`
	PositionIndex int    `json:"positionIndex"`
}

// ClaimResponse is the API response after a successful claim.
type ClaimResponse struct {
	Success bool            `json:"success"`
	Amount  decimal.Decimal `json:"amount"`
}
