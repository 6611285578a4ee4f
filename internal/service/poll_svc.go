package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/predictrack/predictrack-go/internal/lifecycle"
	"github.com/predictrack/predictrack-go/internal/model"
	"github.com/predictrack/predictrack-go/internal/store"
)

// PollService is the read side: it serves poll lookups and listings through
// the hybrid resolver with a cache-aside layer in front.
type PollService struct {
	stores    store.Store
	cache     *Cache
	lifecycle *lifecycle.Engine
	log       zerolog.Logger
}

func NewPollService(stores store.Store, cache *Cache, log zerolog.Logger) *PollService {
	return &PollService{
		stores:    stores,
		cache:     cache,
		lifecycle: lifecycle.NewEngine(),
		log:       log,
	}
}

// GetPoll returns the API response for one poll, cached.
func (s *PollService) GetPoll(ctx context.Context, pollID string) (*model.PollResponse, error) {
	if data, err := s.cache.GetPoll(ctx, pollID); err == nil && data != nil {
		var resp model.PollResponse
		if err := json.Unmarshal(data, &resp); err == nil {
			// Status depends on the clock, so recompute it on every read.
			resp.Status = statusFromResponse(&resp, time.Now())
			return &resp, nil
		}
	}

	p, err := s.stores.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	resp := s.buildResponse(p, time.Now())
	if err := s.cache.SetPoll(ctx, pollID, resp); err != nil {
		s.log.Warn().Err(err).Str("poll_id", pollID).Msg("cache set failed")
	}
	return &resp, nil
}

// ListPolls returns every poll, active ones first ordered by deadline, then
// closed/resolved ones by most recent update.
func (s *PollService) ListPolls(ctx context.Context) ([]model.PollResponse, error) {
	if data, err := s.cache.GetPollList(ctx); err == nil && data != nil {
		var cached []model.PollResponse
		if err := json.Unmarshal(data, &cached); err == nil {
			now := time.Now()
			for i := range cached {
				cached[i].Status = statusFromResponse(&cached[i], now)
			}
			return cached, nil
		}
	}

	polls, err := s.stores.ListPolls(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]model.PollResponse, 0, len(polls))
	for _, p := range polls {
		out = append(out, s.buildResponse(p, now))
	}
	sort.SliceStable(out, func(i, j int) bool {
		iActive := out[i].Status == model.StatusActive
		jActive := out[j].Status == model.StatusActive
		if iActive != jActive {
			return iActive
		}
		if iActive {
			return out[i].Deadline.Before(out[j].Deadline)
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})

	if err := s.cache.SetPollList(ctx, out); err != nil {
		s.log.Warn().Err(err).Msg("cache list set failed")
	}
	return out, nil
}

func (s *PollService) buildResponse(p *model.Poll, now time.Time) model.PollResponse {
	return model.PollResponse{
		ID:             p.ID,
		Creator:        p.Creator,
		Title:          p.Title,
		Description:    p.Description,
		Options:        p.Options,
		Deadline:       p.Deadline,
		Status:         s.lifecycle.Status(p, now),
		StakingEnabled: p.StakingEnabled,
		Resolved:       p.Resolved,
		CorrectOption:  p.CorrectOption,
		VoteCounts:     p.VoteCounts,
		TotalVotes:     len(p.Votes),
		TotalStaked:    p.TotalStaked,
		Origin:         p.Origin,
		UpdatedAt:      p.UpdatedAt,
	}
}

func statusFromResponse(r *model.PollResponse, now time.Time) model.PollStatus {
	if r.Resolved {
		return model.StatusResolved
	}
	if !now.Before(r.Deadline) {
		return model.StatusClosed
	}
	return model.StatusActive
}
