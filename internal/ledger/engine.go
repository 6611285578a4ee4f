// Package ledger implements the staking and reward engine: poll creation,
// voting, stake placement, one-shot resolution and exactly-once claim
// settlement. Every mutation on a poll is serialized behind a per-poll lock
// and validated against the lifecycle engine before any store write.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/predictrack/predictrack-go/internal/balance"
	"github.com/predictrack/predictrack-go/internal/bus"
	"github.com/predictrack/predictrack-go/internal/lifecycle"
	"github.com/predictrack/predictrack-go/internal/model"
	"github.com/predictrack/predictrack-go/internal/store"
	"github.com/predictrack/predictrack-go/pkg/addr"
)

// RewardPoolAccount holds every staked amount until resolution pays it out.
const RewardPoolAccount = "predictrack:reward-pool"

// Invalidator drops cached reads after a successful mutation. May be nil.
type Invalidator interface {
	InvalidatePoll(ctx context.Context, pollID string) error
	InvalidatePollList(ctx context.Context) error
}

// Engine applies the staking business rules in front of the store.
type Engine struct {
	stores    store.Store
	balances  balance.Ledger
	lifecycle *lifecycle.Engine
	bus       *bus.Bus
	cache     Invalidator
	log       zerolog.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(stores store.Store, balances balance.Ledger, b *bus.Bus, cache Invalidator, log zerolog.Logger) *Engine {
	return &Engine{
		stores:    stores,
		balances:  balances,
		lifecycle: lifecycle.NewEngine(),
		bus:       b,
		cache:     cache,
		log:       log,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// SetClock overrides the engine's time source, for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// lockPoll returns the mutex serializing all mutations on one poll id.
func (e *Engine) lockPoll(pollID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[pollID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[pollID] = l
	}
	return l
}

// CreatePoll creates a new ACTIVE poll with fixed options.
func (e *Engine) CreatePoll(ctx context.Context, req model.CreatePollRequest) (*model.Poll, error) {
	if len(req.Options) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 options", ErrInvalidOption)
	}

	id, err := e.stores.AllocateID(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	p := &model.Poll{
		ID:             id,
		Creator:        req.Creator,
		Title:          req.Title,
		Description:    req.Description,
		Options:        append([]string(nil), req.Options...),
		Deadline:       req.Deadline,
		StakingEnabled: req.StakingEnabled,
		Votes:          make(map[string]model.VoteRecord),
		VoteCounts:     make([]int, len(req.Options)),
		OptionStakes:   zeroStakes(len(req.Options)),
		TotalStaked:    decimal.Zero,
		RewardPool:     decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.stores.PutPoll(ctx, p); err != nil {
		return nil, err
	}

	e.invalidateList(ctx)
	e.publish(model.EventPollCreated, p.ID, map[string]string{"creator": req.Creator})
	e.log.Info().Str("poll_id", p.ID).Str("creator", addr.Short(req.Creator)).Msg("poll created")
	return p, nil
}

// Vote records a plain (unstaked) vote. At most one vote per (poll, user).
func (e *Engine) Vote(ctx context.Context, pollID, user string, option int) error {
	lock := e.lockPoll(pollID)
	lock.Lock()
	defer lock.Unlock()

	p, err := e.getPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if err := e.checkOpen(p); err != nil {
		return err
	}
	if !e.lifecycle.ValidOption(p, option) {
		return ErrInvalidOption
	}
	if _, voted := p.Votes[user]; voted {
		return ErrAlreadyVoted
	}

	now := e.now().UTC()
	if p.Votes == nil {
		p.Votes = make(map[string]model.VoteRecord)
	}
	p.Votes[user] = model.VoteRecord{Option: option, CastAt: now}
	p.VoteCounts[option]++
	p.UpdatedAt = now

	if err := e.stores.PutPoll(ctx, p); err != nil {
		return err
	}

	e.invalidate(ctx, pollID)
	e.publish(model.EventVote, pollID, map[string]string{
		"user":   user,
		"option": strconv.Itoa(option),
	})
	return nil
}

// Stake debits the user, appends a position and updates the poll aggregates.
// All three effects commit or none do: a store failure refunds the debit.
func (e *Engine) Stake(ctx context.Context, pollID, user string, option int, amount decimal.Decimal) (*model.StakingPosition, error) {
	lock := e.lockPoll(pollID)
	lock.Lock()
	defer lock.Unlock()

	p, err := e.getPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if !p.StakingEnabled {
		return nil, ErrStakingDisabled
	}
	if err := e.checkOpen(p); err != nil {
		return nil, err
	}
	if !e.lifecycle.ValidOption(p, option) {
		return nil, ErrInvalidOption
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	ok, err := e.balances.Transfer(ctx, user, RewardPoolAccount, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientBalance
	}

	now := e.now().UTC()
	pos := model.StakingPosition{
		PollID:      pollID,
		UserAddress: user,
		Option:      option,
		StakeAmount: amount,
		StakedAt:    now,
	}

	previous, err := e.stores.GetPositions(ctx, user, pollID)
	if err != nil {
		e.refund(ctx, user, amount)
		return nil, err
	}
	if err := e.stores.PutPositions(ctx, user, pollID, append(previous, pos)); err != nil {
		e.refund(ctx, user, amount)
		return nil, err
	}

	p.OptionStakes[option] = p.OptionStakes[option].Add(amount)
	p.TotalStaked = p.TotalStaked.Add(amount)
	p.UpdatedAt = now
	if err := e.stores.PutPoll(ctx, p); err != nil {
		// Roll the position append back before refunding.
		_ = e.stores.PutPositions(ctx, user, pollID, previous)
		e.refund(ctx, user, amount)
		return nil, err
	}

	e.invalidate(ctx, pollID)
	e.publish(model.EventVote, pollID, map[string]string{
		"user":   user,
		"option": strconv.Itoa(option),
		"amount": amount.String(),
	})
	return &pos, nil
}

// Resolve marks the poll resolved exactly once and computes rewards for
// every unclaimed position on the correct option:
//
//	m = totalStaked / optionStakes[correct]
//	reward = stakeAmount * m
//
// When the correct option attracted no stake, no rewards are computed and
// the pool stays undistributed on the poll record.
func (e *Engine) Resolve(ctx context.Context, pollID string, correctOption int) error {
	lock := e.lockPoll(pollID)
	lock.Lock()
	defer lock.Unlock()

	p, err := e.getPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if !e.lifecycle.CanResolve(p) {
		return ErrAlreadyResolved
	}
	if !e.lifecycle.ValidOption(p, correctOption) {
		return ErrInvalidOption
	}

	now := e.now().UTC()
	p.Resolved = true
	p.CorrectOption = &correctOption
	p.RewardPool = p.TotalStaked
	p.UpdatedAt = now

	var rewarded map[string][]model.StakingPosition
	if p.OptionStakes[correctOption].IsPositive() {
		multiplier := p.TotalStaked.Div(p.OptionStakes[correctOption])
		rewarded, err = e.assignRewards(ctx, pollID, correctOption, multiplier)
		if err != nil {
			e.rollbackRewards(ctx, pollID, rewarded)
			return err
		}
	}

	if err := e.stores.PutPoll(ctx, p); err != nil {
		// Strip the persisted rewards so a later resolve starts clean.
		e.rollbackRewards(ctx, pollID, rewarded)
		return err
	}

	e.invalidate(ctx, pollID)
	e.publish(model.EventPollResolved, pollID, map[string]string{
		"correctOption": strconv.Itoa(correctOption),
		"rewardPool":    p.RewardPool.String(),
	})
	e.log.Info().
		Str("poll_id", pollID).
		Int("correct_option", correctOption).
		Str("reward_pool", p.RewardPool.String()).
		Msg("poll resolved")
	return nil
}

// assignRewards writes the computed reward onto every unclaimed winning
// position and returns the pre-write sequences, keyed by user, so the caller
// can restore them if resolution does not commit.
func (e *Engine) assignRewards(ctx context.Context, pollID string, correctOption int, multiplier decimal.Decimal) (map[string][]model.StakingPosition, error) {
	written := make(map[string][]model.StakingPosition)

	all, err := e.stores.ListPositions(ctx, pollID)
	if err != nil {
		return written, err
	}

	users := make(map[string]struct{})
	for _, pos := range all {
		users[pos.UserAddress] = struct{}{}
	}

	for user := range users {
		seq, err := e.stores.GetPositions(ctx, user, pollID)
		if err != nil {
			return written, err
		}
		previous := append([]model.StakingPosition(nil), seq...)
		changed := false
		for i := range seq {
			if seq[i].Option != correctOption || seq[i].Claimed {
				continue
			}
			reward := seq[i].StakeAmount.Mul(multiplier)
			seq[i].RewardAmount = &reward
			changed = true
		}
		if !changed {
			continue
		}
		if err := e.stores.PutPositions(ctx, user, pollID, seq); err != nil {
			return written, err
		}
		written[user] = previous
	}
	return written, nil
}

// rollbackRewards restores position sequences written by a resolve attempt
// that failed before committing the resolved poll.
func (e *Engine) rollbackRewards(ctx context.Context, pollID string, previous map[string][]model.StakingPosition) {
	for user, seq := range previous {
		if err := e.stores.PutPositions(ctx, user, pollID, seq); err != nil {
			e.log.Error().Err(err).Str("poll_id", pollID).Str("user", addr.Short(user)).
				Msg("reward rollback failed, positions inconsistent")
		}
	}
}

// Claim settles one position exactly once: the reward transfers out of the
// pool account and the position flips to claimed. Concurrent attempts on
// the same position serialize on the poll lock so only one succeeds.
func (e *Engine) Claim(ctx context.Context, pollID, user string, positionIndex int) (decimal.Decimal, error) {
	lock := e.lockPoll(pollID)
	lock.Lock()
	defer lock.Unlock()

	p, err := e.getPoll(ctx, pollID)
	if err != nil {
		return decimal.Zero, err
	}
	if !p.Resolved {
		return decimal.Zero, ErrNotResolved
	}

	seq, err := e.stores.GetPositions(ctx, user, pollID)
	if err != nil {
		return decimal.Zero, err
	}
	if positionIndex < 0 || positionIndex >= len(seq) {
		return decimal.Zero, ErrPositionNotFound
	}

	pos := seq[positionIndex]
	if pos.Claimed {
		return decimal.Zero, ErrAlreadyClaimed
	}
	if p.CorrectOption == nil || pos.Option != *p.CorrectOption {
		return decimal.Zero, ErrWrongOption
	}
	if pos.RewardAmount == nil || !pos.RewardAmount.IsPositive() {
		return decimal.Zero, ErrNoReward
	}
	reward := *pos.RewardAmount

	ok, err := e.balances.Transfer(ctx, RewardPoolAccount, user, reward)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, fmt.Errorf("reward pool underfunded for poll %s", pollID)
	}

	seq[positionIndex].Claimed = true
	if err := e.stores.PutPositions(ctx, user, pollID, seq); err != nil {
		// Undo the payout so a retry stays safe.
		_, _ = e.balances.Transfer(ctx, user, RewardPoolAccount, reward)
		return decimal.Zero, err
	}

	e.invalidate(ctx, pollID)
	e.publish(model.EventRewardClaimed, pollID, map[string]string{
		"user":   user,
		"amount": reward.String(),
	})
	return reward, nil
}

// StakingInfo assembles the per-poll staking aggregate.
func (e *Engine) StakingInfo(ctx context.Context, pollID string) (*model.PollStakingInfo, error) {
	p, err := e.getPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	all, err := e.stores.ListPositions(ctx, pollID)
	if err != nil {
		return nil, err
	}
	userStakes := make(map[string][]model.StakingPosition)
	for _, pos := range all {
		userStakes[pos.UserAddress] = append(userStakes[pos.UserAddress], pos)
	}

	return &model.PollStakingInfo{
		PollID:        p.ID,
		TotalStaked:   p.TotalStaked,
		OptionStakes:  append([]decimal.Decimal(nil), p.OptionStakes...),
		UserStakes:    userStakes,
		Resolved:      p.Resolved,
		CorrectOption: p.CorrectOption,
		RewardPool:    p.RewardPool,
	}, nil
}

// UserPositions returns one user's positions on one poll, in stake order.
func (e *Engine) UserPositions(ctx context.Context, user, pollID string) ([]model.StakingPosition, error) {
	return e.stores.GetPositions(ctx, user, pollID)
}

func (e *Engine) getPoll(ctx context.Context, pollID string) (*model.Poll, error) {
	p, err := e.stores.GetPoll(ctx, pollID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return p, err
}

// checkOpen distinguishes a resolved poll from one past its deadline.
func (e *Engine) checkOpen(p *model.Poll) error {
	if p.Resolved {
		return ErrAlreadyResolved
	}
	if !e.lifecycle.CanVote(p, e.now()) {
		return ErrPollClosed
	}
	return nil
}

func (e *Engine) refund(ctx context.Context, user string, amount decimal.Decimal) {
	if ok, err := e.balances.Transfer(ctx, RewardPoolAccount, user, amount); err != nil || !ok {
		e.log.Error().Err(err).Str("user", addr.Short(user)).Str("amount", amount.String()).
			Msg("stake refund failed, balance ledger inconsistent")
	}
}

func (e *Engine) publish(typ model.EventType, pollID string, payload map[string]string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(model.Event{Type: typ, PollID: pollID, Payload: payload, Timestamp: e.now().UTC()})
}

func (e *Engine) invalidate(ctx context.Context, pollID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.InvalidatePoll(ctx, pollID); err != nil {
		e.log.Warn().Err(err).Str("poll_id", pollID).Msg("cache invalidate failed")
	}
	e.invalidateList(ctx)
}

func (e *Engine) invalidateList(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.InvalidatePollList(ctx); err != nil {
		e.log.Warn().Err(err).Msg("cache list invalidate failed")
	}
}

func zeroStakes(n int) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = decimal.Zero
	}
	return out
}
