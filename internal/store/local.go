package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/predictrack/predictrack-go/internal/model"
)

// LocalStore is the in-memory fallback cache. It is always writable, so the
// ledger keeps a committed path even when the remote ledger is down. Records
// it originates carry local ids ("local-N") until a merge reconciles them.
type LocalStore struct {
	mu        sync.RWMutex
	polls     map[string]*model.Poll
	positions map[string][]model.StakingPosition // keyed user_pollId
	counter   int64
}

func NewLocalStore() *LocalStore {
	return &LocalStore{
		polls:     make(map[string]*model.Poll),
		positions: make(map[string][]model.StakingPosition),
	}
}

func (s *LocalStore) AllocateID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return fmt.Sprintf("local-%d", s.counter), nil
}

func (s *LocalStore) GetPoll(ctx context.Context, id string) (*model.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.polls[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *LocalStore) PutPoll(ctx context.Context, p *model.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls[p.ID] = p.Clone()
	return nil
}

func (s *LocalStore) ListPolls(ctx context.Context) ([]*model.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Poll, 0, len(s.polls))
	for _, p := range s.polls {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *LocalStore) GetPositions(ctx context.Context, user, pollID string) ([]model.StakingPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePositions(s.positions[model.PositionKey(user, pollID)]), nil
}

func (s *LocalStore) PutPositions(ctx context.Context, user, pollID string, positions []model.StakingPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[model.PositionKey(user, pollID)] = clonePositions(positions)
	return nil
}

func (s *LocalStore) ListPositions(ctx context.Context, pollID string) ([]model.StakingPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.StakingPosition
	for _, seq := range s.positions {
		for _, pos := range seq {
			if pos.PollID == pollID {
				out = append(out, clonePosition(pos))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StakedAt.Before(out[j].StakedAt) })
	return out, nil
}

// PositionKeys returns every (user, poll) key currently held. Used by the
// merge pass to enumerate position sequences without knowing users upfront.
func (s *LocalStore) PositionKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.positions))
	for k := range s.positions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clonePositions(in []model.StakingPosition) []model.StakingPosition {
	if in == nil {
		return nil
	}
	out := make([]model.StakingPosition, len(in))
	for i, pos := range in {
		out[i] = clonePosition(pos)
	}
	return out
}

func clonePosition(pos model.StakingPosition) model.StakingPosition {
	if pos.RewardAmount != nil {
		r := *pos.RewardAmount
		pos.RewardAmount = &r
	}
	return pos
}
