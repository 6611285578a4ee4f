package hybrid

import (
	"context"
	"strings"
	"time"

	"github.com/predictrack/predictrack-go/internal/model"
	"github.com/predictrack/predictrack-go/internal/store"
)

// Merge reconciles the two stores. Per poll id the copy with the greater
// UpdatedAt wins and is written back to the loser; position sequences are
// append-only, so the richer sequence wins per (user, poll) key.
func (r *Resolver) Merge(ctx context.Context) error {
	if r.remote == nil {
		return nil
	}

	r.mergeMu.Lock()
	defer r.mergeMu.Unlock()

	start := time.Now()
	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	remotePolls, err := r.remote.ListPolls(rctx)
	cancel()
	if err != nil {
		r.noteFallback("merge", err)
		r.lastMergeErr.Store(err.Error())
		return err
	}
	r.remoteUp.Store(true)

	localPolls, err := r.local.ListPolls(ctx)
	if err != nil {
		r.lastMergeErr.Store(err.Error())
		return err
	}
	localByID := make(map[string]*model.Poll, len(localPolls))
	for _, p := range localPolls {
		localByID[p.ID] = p
	}

	pulled, pushed := 0, 0
	for _, remote := range remotePolls {
		local, ok := localByID[remote.ID]
		delete(localByID, remote.ID)

		switch {
		case !ok || remote.UpdatedAt.After(local.UpdatedAt):
			// Remote copy is newer: overwrite the cache.
			remote.Origin = model.OriginRemote
			if err := r.local.PutPoll(ctx, remote); err != nil {
				r.lastMergeErr.Store(err.Error())
				return err
			}
			pulled++
		case local.UpdatedAt.After(remote.UpdatedAt):
			// Local copy was written during a remote outage: push it back.
			if err := r.pushPoll(ctx, local); err != nil {
				r.lastMergeErr.Store(err.Error())
				return err
			}
			pushed++
		}
	}

	// Whatever remains in localByID never reached the remote ledger.
	for _, local := range localByID {
		if err := r.pushPoll(ctx, local); err != nil {
			r.lastMergeErr.Store(err.Error())
			return err
		}
		pushed++
	}

	if err := r.mergePositions(ctx); err != nil {
		r.lastMergeErr.Store(err.Error())
		return err
	}

	r.lastMergeAt.Store(time.Now().UTC())
	r.lastMergeErr.Store("")
	if pulled > 0 || pushed > 0 {
		r.log.Info().
			Int("pulled", pulled).
			Int("pushed", pushed).
			Dur("duration_ms", time.Since(start)).
			Msg("hybrid: merge complete")
	}
	return nil
}

func (r *Resolver) pushPoll(ctx context.Context, p *model.Poll) error {
	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.remote.PutPoll(rctx, p); err != nil {
		return err
	}
	p.Origin = model.OriginRemote
	return r.local.PutPoll(ctx, p)
}

// mergePositions walks every locally known (user, poll) key and reconciles
// it with the remote sequence.
func (r *Resolver) mergePositions(ctx context.Context) error {
	for _, key := range r.local.PositionKeys() {
		user, pollID, ok := splitPositionKey(key)
		if !ok {
			continue
		}

		localSeq, err := r.local.GetPositions(ctx, user, pollID)
		if err != nil {
			return err
		}

		rctx, cancel := context.WithTimeout(ctx, r.timeout)
		remoteSeq, err := r.remote.GetPositions(rctx, user, pollID)
		cancel()
		if err != nil {
			return err
		}

		merged := MergePositionSeqs(localSeq, remoteSeq)
		if len(merged) > len(remoteSeq) || claimedCount(merged) > claimedCount(remoteSeq) {
			rctx, cancel := context.WithTimeout(ctx, r.timeout)
			err = r.remote.PutPositions(rctx, user, pollID, merged)
			cancel()
			if err != nil {
				return err
			}
		}
		if len(merged) > len(localSeq) || claimedCount(merged) > claimedCount(localSeq) {
			if err := r.local.PutPositions(ctx, user, pollID, merged); err != nil {
				return err
			}
		}
	}
	return nil
}

// MergePositionSeqs combines two copies of one (user, poll) position
// sequence. Positions are append-only and Claimed is monotonic, so the
// longer sequence is the base and per-index claim flags and rewards are
// taken from whichever copy has them.
func MergePositionSeqs(a, b []model.StakingPosition) []model.StakingPosition {
	longer, shorter := a, b
	if len(b) > len(a) {
		longer, shorter = b, a
	}

	out := make([]model.StakingPosition, len(longer))
	copy(out, longer)
	for i := range shorter {
		if shorter[i].Claimed {
			out[i].Claimed = true
		}
		if out[i].RewardAmount == nil && shorter[i].RewardAmount != nil {
			reward := *shorter[i].RewardAmount
			out[i].RewardAmount = &reward
		}
	}
	return out
}

func claimedCount(seq []model.StakingPosition) int {
	n := 0
	for _, pos := range seq {
		if pos.Claimed {
			n++
		}
	}
	return n
}

// Poll ids (UUIDs or "local-N") never contain underscores, so the last
// underscore separates the user address from the poll id.
func splitPositionKey(key string) (user, pollID string, ok bool) {
	i := strings.LastIndex(key, "_")
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

var _ store.Store = (*Resolver)(nil)
