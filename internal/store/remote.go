package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/predictrack/predictrack-go/internal/model"
)

// RemoteStore is the authoritative ledger, backed by Postgres. All amounts
// travel as numeric text so no precision is lost in transit.
type RemoteStore struct {
	pool *pgxpool.Pool
}

func NewRemoteStore(pool *pgxpool.Pool) *RemoteStore {
	return &RemoteStore{pool: pool}
}

// EnsureSchema creates the ledger tables if they do not exist yet.
func (s *RemoteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS polls (
			id              TEXT PRIMARY KEY,
			creator         TEXT NOT NULL,
			title           TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			options         JSONB NOT NULL,
			deadline        TIMESTAMPTZ NOT NULL,
			staking_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			resolved        BOOLEAN NOT NULL DEFAULT FALSE,
			correct_option  INT,
			votes           JSONB NOT NULL DEFAULT '{}',
			vote_counts     JSONB NOT NULL DEFAULT '[]',
			option_stakes   JSONB NOT NULL DEFAULT '[]',
			total_staked    NUMERIC(30,10) NOT NULL DEFAULT 0,
			reward_pool     NUMERIC(30,10) NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS staking_positions (
			user_address  TEXT NOT NULL,
			poll_id       TEXT NOT NULL,
			idx           INT NOT NULL,
			option        INT NOT NULL,
			stake_amount  NUMERIC(30,10) NOT NULL,
			staked_at     TIMESTAMPTZ NOT NULL,
			claimed       BOOLEAN NOT NULL DEFAULT FALSE,
			reward_amount NUMERIC(30,10),
			PRIMARY KEY (user_address, poll_id, idx)
		);
		CREATE INDEX IF NOT EXISTS idx_positions_poll ON staking_positions (poll_id);`)
	return err
}

func (s *RemoteStore) AllocateID(ctx context.Context) (string, error) {
	return uuid.NewString(), nil
}

const pollColumns = `
	id, creator, title, description, options, deadline, staking_enabled,
	resolved, correct_option, votes, vote_counts, option_stakes,
	total_staked::text, reward_pool::text, created_at, updated_at`

func (s *RemoteStore) GetPoll(ctx context.Context, id string) (*model.Poll, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls WHERE id = $1`, id)
	p, err := scanPoll(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// PutPoll upserts the full poll record keyed by id.
func (s *RemoteStore) PutPoll(ctx context.Context, p *model.Poll) error {
	optionsJSON, err := json.Marshal(p.Options)
	if err != nil {
		return err
	}
	votesJSON, err := json.Marshal(p.Votes)
	if err != nil {
		return err
	}
	countsJSON, err := json.Marshal(p.VoteCounts)
	if err != nil {
		return err
	}
	stakesJSON, err := marshalDecimals(p.OptionStakes)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO polls (id, creator, title, description, options, deadline,
			staking_enabled, resolved, correct_option, votes, vote_counts,
			option_stakes, total_staked, reward_pool, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::numeric, $14::numeric, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			resolved = EXCLUDED.resolved,
			correct_option = EXCLUDED.correct_option,
			votes = EXCLUDED.votes,
			vote_counts = EXCLUDED.vote_counts,
			option_stakes = EXCLUDED.option_stakes,
			total_staked = EXCLUDED.total_staked,
			reward_pool = EXCLUDED.reward_pool,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.Creator, p.Title, p.Description, optionsJSON, p.Deadline,
		p.StakingEnabled, p.Resolved, p.CorrectOption, votesJSON, countsJSON,
		stakesJSON, p.TotalStaked.String(), p.RewardPool.String(),
		p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *RemoteStore) ListPolls(ctx context.Context) ([]*model.Poll, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pollColumns+` FROM polls ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var polls []*model.Poll
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, err
		}
		polls = append(polls, p)
	}
	return polls, rows.Err()
}

// PutPositions replaces the position sequence for one (user, poll) key
// atomically. The sequence is append-mostly so a full rewrite stays small.
func (s *RemoteStore) PutPositions(ctx context.Context, user, pollID string, positions []model.StakingPosition) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `DELETE FROM staking_positions WHERE user_address = $1 AND poll_id = $2`, user, pollID)
	if err != nil {
		return err
	}

	for i, pos := range positions {
		var reward *string
		if pos.RewardAmount != nil {
			r := pos.RewardAmount.String()
			reward = &r
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO staking_positions (user_address, poll_id, idx, option,
				stake_amount, staked_at, claimed, reward_amount)
			VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8::numeric)`,
			user, pollID, i, pos.Option, pos.StakeAmount.String(),
			pos.StakedAt, pos.Claimed, reward)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *RemoteStore) GetPositions(ctx context.Context, user, pollID string) ([]model.StakingPosition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_address, poll_id, option, stake_amount::text, staked_at,
		       claimed, reward_amount::text
		FROM staking_positions
		WHERE user_address = $1 AND poll_id = $2
		ORDER BY idx ASC`, user, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

func (s *RemoteStore) ListPositions(ctx context.Context, pollID string) ([]model.StakingPosition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_address, poll_id, option, stake_amount::text, staked_at,
		       claimed, reward_amount::text
		FROM staking_positions
		WHERE poll_id = $1
		ORDER BY staked_at ASC, idx ASC`, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

func scanPoll(row pgx.Row) (*model.Poll, error) {
	var (
		p           model.Poll
		optionsJSON []byte
		votesJSON   []byte
		countsJSON  []byte
		stakesJSON  []byte
		totalStaked string
		rewardPool  string
	)
	err := row.Scan(&p.ID, &p.Creator, &p.Title, &p.Description, &optionsJSON,
		&p.Deadline, &p.StakingEnabled, &p.Resolved, &p.CorrectOption,
		&votesJSON, &countsJSON, &stakesJSON, &totalStaked, &rewardPool,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(optionsJSON, &p.Options); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(votesJSON, &p.Votes); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(countsJSON, &p.VoteCounts); err != nil {
		return nil, err
	}
	if p.OptionStakes, err = unmarshalDecimals(stakesJSON); err != nil {
		return nil, err
	}
	if p.TotalStaked, err = decimal.NewFromString(totalStaked); err != nil {
		return nil, err
	}
	if p.RewardPool, err = decimal.NewFromString(rewardPool); err != nil {
		return nil, err
	}
	p.Origin = model.OriginRemote
	return &p, nil
}

func scanPositions(rows pgx.Rows) ([]model.StakingPosition, error) {
	var out []model.StakingPosition
	for rows.Next() {
		var (
			pos    model.StakingPosition
			amount string
			reward *string
		)
		err := rows.Scan(&pos.UserAddress, &pos.PollID, &pos.Option, &amount,
			&pos.StakedAt, &pos.Claimed, &reward)
		if err != nil {
			return nil, err
		}
		if pos.StakeAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if reward != nil {
			r, err := decimal.NewFromString(*reward)
			if err != nil {
				return nil, err
			}
			pos.RewardAmount = &r
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func marshalDecimals(in []decimal.Decimal) ([]byte, error) {
	strs := make([]string, len(in))
	for i, d := range in {
		strs[i] = d.String()
	}
	return json.Marshal(strs)
}

func unmarshalDecimals(data []byte) ([]decimal.Decimal, error) {
	var strs []string
	if err := json.Unmarshal(data, &strs); err != nil {
		return nil, err
	}
	out := make([]decimal.Decimal, len(strs))
	for i, s := range strs {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}
