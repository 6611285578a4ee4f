// Package store defines the ledger persistence port and its two
// implementations: the authoritative remote ledger (Postgres) and the
// always-writable local fallback cache (in-memory).
package store

import (
	"context"
	"errors"

	"github.com/predictrack/predictrack-go/internal/model"
)

var (
	// ErrNotFound is returned when a poll id has no record in the store.
	ErrNotFound = errors.New("store: not found")
	// ErrUnavailable is returned when neither the remote ledger nor the
	// local cache could commit an operation.
	ErrUnavailable = errors.New("store: unavailable")
)

// Store is the persistence port shared by the remote ledger and the local
// cache. Every poll carries UpdatedAt so divergent copies can be merged by
// last-write-wins.
type Store interface {
	// AllocateID returns a fresh poll id. Remote ids are UUIDs; local ids
	// come from a monotonically increasing counter.
	AllocateID(ctx context.Context) (string, error)

	GetPoll(ctx context.Context, id string) (*model.Poll, error)
	PutPoll(ctx context.Context, p *model.Poll) error
	ListPolls(ctx context.Context) ([]*model.Poll, error)

	// Positions are keyed by (userAddress, pollId) and stored as the full
	// ordered sequence for that key. PositionIndex in the API is an index
	// into this sequence.
	GetPositions(ctx context.Context, user, pollID string) ([]model.StakingPosition, error)
	PutPositions(ctx context.Context, user, pollID string, positions []model.StakingPosition) error
	ListPositions(ctx context.Context, pollID string) ([]model.StakingPosition, error)
}
