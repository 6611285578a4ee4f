// Package hybrid presents a single read/write surface over two ledger
// stores: the authoritative remote ledger and the always-writable local
// cache. Writes go remote-first and fall back to local; reads prefer local;
// a periodic merge reconciles divergent copies by last-write-wins.
package hybrid

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/predictrack/predictrack-go/internal/model"
	"github.com/predictrack/predictrack-go/internal/store"
)

const defaultRemoteTimeout = 3 * time.Second

// Resolver implements store.Store over the remote/local pair.
type Resolver struct {
	remote  store.Store // nil when no remote ledger is configured
	local   *store.LocalStore
	timeout time.Duration
	log     zerolog.Logger

	// mergeMu serializes merge passes against each other. Mutations do not
	// take it: the merge is last-write-wins by UpdatedAt, so a mutation that
	// interleaves with a merge simply wins the next pass.
	mergeMu sync.Mutex

	remoteUp     atomic.Bool
	fallbacks    atomic.Uint64
	lastMergeAt  atomic.Value // time.Time
	lastMergeErr atomic.Value // string
}

func NewResolver(remote store.Store, local *store.LocalStore, timeout time.Duration, log zerolog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	r := &Resolver{
		remote:  remote,
		local:   local,
		timeout: timeout,
		log:     log,
	}
	r.remoteUp.Store(remote != nil)
	r.lastMergeAt.Store(time.Time{})
	r.lastMergeErr.Store("")
	return r
}

func (r *Resolver) remoteCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// AllocateID asks the remote ledger for an id first so polls created while
// it is reachable carry remote ids; otherwise the local counter assigns one.
func (r *Resolver) AllocateID(ctx context.Context) (string, error) {
	if r.remote != nil {
		rctx, cancel := r.remoteCtx(ctx)
		id, err := r.remote.AllocateID(rctx)
		cancel()
		if err == nil {
			return id, nil
		}
		r.noteFallback("allocate_id", err)
	}
	return r.local.AllocateID(ctx)
}

// GetPoll prefers the local cache for latency; on a local miss it consults
// the remote ledger and mirrors any hit back into the cache. A remote failure
// that is not a miss surfaces as ErrUnavailable so callers can tell "no such
// poll" from "remote down and not yet cached".
func (r *Resolver) GetPoll(ctx context.Context, id string) (*model.Poll, error) {
	p, err := r.local.GetPoll(ctx, id)
	if err == nil {
		return p, nil
	}
	if r.remote == nil {
		return nil, store.ErrNotFound
	}

	rctx, cancel := r.remoteCtx(ctx)
	defer cancel()
	p, err = r.remote.GetPoll(rctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		r.noteFallback("get_poll", err)
		return nil, store.ErrUnavailable
	}
	r.remoteUp.Store(true)
	p.Origin = model.OriginRemote
	_ = r.local.PutPoll(ctx, p)
	return p, nil
}

// PutPoll writes remote-first. On remote success the confirmed state is
// mirrored into the local cache; on remote failure the record commits
// locally and carries OriginLocal until a merge reconciles it.
func (r *Resolver) PutPoll(ctx context.Context, p *model.Poll) error {
	if r.remote != nil {
		rctx, cancel := r.remoteCtx(ctx)
		err := r.remote.PutPoll(rctx, p)
		cancel()
		if err == nil {
			r.remoteUp.Store(true)
			p.Origin = model.OriginRemote
			return r.local.PutPoll(ctx, p)
		}
		r.noteFallback("put_poll", err)
	}

	p.Origin = model.OriginLocal
	if err := r.local.PutPoll(ctx, p); err != nil {
		return store.ErrUnavailable
	}
	return nil
}

func (r *Resolver) ListPolls(ctx context.Context) ([]*model.Poll, error) {
	return r.local.ListPolls(ctx)
}

func (r *Resolver) GetPositions(ctx context.Context, user, pollID string) ([]model.StakingPosition, error) {
	positions, err := r.local.GetPositions(ctx, user, pollID)
	if err == nil && len(positions) > 0 {
		return positions, nil
	}
	if r.remote == nil {
		return positions, err
	}

	rctx, cancel := r.remoteCtx(ctx)
	defer cancel()
	remotePositions, rerr := r.remote.GetPositions(rctx, user, pollID)
	if rerr != nil {
		r.noteFallback("get_positions", rerr)
		return positions, err
	}
	if len(remotePositions) > 0 {
		_ = r.local.PutPositions(ctx, user, pollID, remotePositions)
		return remotePositions, nil
	}
	return positions, err
}

func (r *Resolver) PutPositions(ctx context.Context, user, pollID string, positions []model.StakingPosition) error {
	if r.remote != nil {
		rctx, cancel := r.remoteCtx(ctx)
		err := r.remote.PutPositions(rctx, user, pollID, positions)
		cancel()
		if err == nil {
			r.remoteUp.Store(true)
			return r.local.PutPositions(ctx, user, pollID, positions)
		}
		r.noteFallback("put_positions", err)
	}

	if err := r.local.PutPositions(ctx, user, pollID, positions); err != nil {
		return store.ErrUnavailable
	}
	return nil
}

func (r *Resolver) ListPositions(ctx context.Context, pollID string) ([]model.StakingPosition, error) {
	return r.local.ListPositions(ctx, pollID)
}

// FallbackCount returns how many operations fell back to the local store.
func (r *Resolver) FallbackCount() uint64 {
	return r.fallbacks.Load()
}

func (r *Resolver) noteFallback(op string, err error) {
	r.remoteUp.Store(false)
	r.fallbacks.Add(1)
	r.log.Warn().Err(err).Str("op", op).Msg("hybrid: remote ledger unreachable, using local cache")
}

// Status describes the resolver's view of the two stores for the sync API.
type Status struct {
	RemoteConfigured bool      `json:"remoteConfigured"`
	RemoteReachable  bool      `json:"remoteReachable"`
	Fallbacks        uint64    `json:"fallbacks"`
	LastMergeAt      time.Time `json:"lastMergeAt"`
	LastMergeError   string    `json:"lastMergeError,omitempty"`
	LocalOriginPolls int       `json:"localOriginPolls"`
}

func (r *Resolver) Status(ctx context.Context) Status {
	localOrigin := 0
	if polls, err := r.local.ListPolls(ctx); err == nil {
		for _, p := range polls {
			if p.Origin == model.OriginLocal {
				localOrigin++
			}
		}
	}
	return Status{
		RemoteConfigured: r.remote != nil,
		RemoteReachable:  r.remoteUp.Load(),
		Fallbacks:        r.fallbacks.Load(),
		LastMergeAt:      r.lastMergeAt.Load().(time.Time),
		LastMergeError:   r.lastMergeErr.Load().(string),
		LocalOriginPolls: localOrigin,
	}
}
