package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/predictrack/predictrack-go/internal/balance"
	"github.com/predictrack/predictrack-go/internal/bus"
	"github.com/predictrack/predictrack-go/internal/hybrid"
	"github.com/predictrack/predictrack-go/internal/model"
	"github.com/predictrack/predictrack-go/internal/store"
)

func newOutageResolver(local *store.LocalStore) store.Store {
	return hybrid.NewResolver(downRemote{}, local, time.Second, zerolog.Nop())
}

func newTestEngine() (*Engine, *balance.MemoryLedger, *store.LocalStore) {
	local := store.NewLocalStore()
	balances := balance.NewMemoryLedger()
	eng := NewEngine(local, balances, bus.New(zerolog.Nop()), nil, zerolog.Nop())
	return eng, balances, local
}

func createTestPoll(t *testing.T, eng *Engine, staking bool) *model.Poll {
	t.Helper()
	p, err := eng.CreatePoll(context.Background(), model.CreatePollRequest{
		Creator:        "creator",
		Title:          "who wins",
		Options:        []string{"A", "B"},
		Deadline:       time.Now().Add(24 * time.Hour),
		StakingEnabled: staking,
	})
	if err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}
	return p
}

func TestCreatePoll_RequiresTwoOptions(t *testing.T) {
	eng, _, _ := newTestEngine()
	_, err := eng.CreatePoll(context.Background(), model.CreatePollRequest{
		Creator:  "creator",
		Title:    "degenerate",
		Options:  []string{"only"},
		Deadline: time.Now().Add(time.Hour),
	})
	if !errors.Is(err, ErrInvalidOption) {
		t.Errorf("err = %v, want ErrInvalidOption", err)
	}
}

func TestVote_SingleVotePerUser(t *testing.T) {
	eng, _, _ := newTestEngine()
	p := createTestPoll(t, eng, false)
	ctx := context.Background()

	if err := eng.Vote(ctx, p.ID, "alice", 0); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if err := eng.Vote(ctx, p.ID, "alice", 1); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("second vote err = %v, want ErrAlreadyVoted", err)
	}

	got, _ := eng.getPoll(ctx, p.ID)
	if len(got.Votes) != 1 {
		t.Errorf("vote records = %d, want exactly 1", len(got.Votes))
	}
	if got.VoteCounts[0] != 1 || got.VoteCounts[1] != 0 {
		t.Errorf("counts = %v, want [1 0]", got.VoteCounts)
	}
}

func TestVote_Validation(t *testing.T) {
	eng, _, _ := newTestEngine()
	p := createTestPoll(t, eng, false)
	ctx := context.Background()

	tests := []struct {
		name    string
		pollID  string
		option  int
		wantErr error
	}{
		{"unknown poll", "missing", 0, ErrNotFound},
		{"negative option", p.ID, -1, ErrInvalidOption},
		{"option out of range", p.ID, 2, ErrInvalidOption},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := eng.Vote(ctx, tt.pollID, "bob", tt.option); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVote_AfterDeadlineFails(t *testing.T) {
	eng, _, _ := newTestEngine()
	p := createTestPoll(t, eng, false)

	eng.SetClock(func() time.Time { return time.Now().Add(48 * time.Hour) })
	if err := eng.Vote(context.Background(), p.ID, "alice", 0); !errors.Is(err, ErrPollClosed) {
		t.Errorf("err = %v, want ErrPollClosed", err)
	}
}

func TestStake_Conservation(t *testing.T) {
	eng, balances, _ := newTestEngine()
	p := createTestPoll(t, eng, true)
	ctx := context.Background()

	stakes := []struct {
		user   string
		option int
		amount int64
	}{
		{"alice", 0, 10}, {"alice", 0, 20}, {"bob", 1, 40}, {"carol", 1, 30},
	}
	for _, s := range stakes {
		balances.Seed(s.user, decimal.NewFromInt(1000))
	}

	for _, s := range stakes {
		if _, err := eng.Stake(ctx, p.ID, s.user, s.option, decimal.NewFromInt(s.amount)); err != nil {
			t.Fatalf("Stake(%s): %v", s.user, err)
		}

		got, _ := eng.getPoll(ctx, p.ID)
		sum := decimal.Zero
		for _, os := range got.OptionStakes {
			sum = sum.Add(os)
		}
		if !got.TotalStaked.Equal(sum) {
			t.Fatalf("after %s: totalStaked %s != sum of option stakes %s", s.user, got.TotalStaked, sum)
		}
	}

	info, err := eng.StakingInfo(ctx, p.ID)
	if err != nil {
		t.Fatalf("StakingInfo: %v", err)
	}
	positionSum := decimal.Zero
	for _, seq := range info.UserStakes {
		for _, pos := range seq {
			positionSum = positionSum.Add(pos.StakeAmount)
		}
	}
	if !info.TotalStaked.Equal(positionSum) {
		t.Errorf("totalStaked %s != sum of positions %s", info.TotalStaked, positionSum)
	}
	if !info.TotalStaked.Equal(decimal.NewFromInt(100)) {
		t.Errorf("totalStaked = %s, want 100", info.TotalStaked)
	}

	pool, _ := balances.GetBalance(ctx, RewardPoolAccount)
	if !pool.Equal(decimal.NewFromInt(100)) {
		t.Errorf("pool account = %s, want 100", pool)
	}
}

func TestStake_Preconditions(t *testing.T) {
	eng, balances, _ := newTestEngine()
	staking := createTestPoll(t, eng, true)
	plain := createTestPoll(t, eng, false)
	balances.Seed("alice", decimal.NewFromInt(5))
	ctx := context.Background()

	ten := decimal.NewFromInt(10)
	tests := []struct {
		name    string
		pollID  string
		option  int
		amount  decimal.Decimal
		wantErr error
	}{
		{"staking disabled", plain.ID, 0, ten, ErrStakingDisabled},
		{"invalid option", staking.ID, 5, ten, ErrInvalidOption},
		{"zero amount", staking.ID, 0, decimal.Zero, ErrInvalidAmount},
		{"negative amount", staking.ID, 0, decimal.NewFromInt(-1), ErrInvalidAmount},
		{"insufficient balance", staking.ID, 0, ten, ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := eng.Stake(ctx, tt.pollID, "alice", tt.option, tt.amount); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// A failed stake must not have touched the balance.
	left, _ := balances.GetBalance(ctx, "alice")
	if !left.Equal(decimal.NewFromInt(5)) {
		t.Errorf("balance = %s after failed stakes, want 5", left)
	}
}

func TestResolve_Idempotence(t *testing.T) {
	eng, balances, _ := newTestEngine()
	p := createTestPoll(t, eng, true)
	ctx := context.Background()
	balances.Seed("alice", decimal.NewFromInt(100))
	eng.Stake(ctx, p.ID, "alice", 0, decimal.NewFromInt(50))

	if err := eng.Resolve(ctx, p.ID, 0); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	first, _ := eng.StakingInfo(ctx, p.ID)

	if err := eng.Resolve(ctx, p.ID, 1); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("second resolve err = %v, want ErrAlreadyResolved", err)
	}

	second, _ := eng.StakingInfo(ctx, p.ID)
	if *second.CorrectOption != *first.CorrectOption || !second.RewardPool.Equal(first.RewardPool) {
		t.Error("failed second resolve mutated state")
	}
}

func TestResolve_BeforeDeadlineAllowed(t *testing.T) {
	eng, _, _ := newTestEngine()
	p := createTestPoll(t, eng, true)

	// Deadline is a day away; early resolution is still accepted.
	if err := eng.Resolve(context.Background(), p.ID, 0); err != nil {
		t.Errorf("early resolve: %v", err)
	}
}

func TestResolve_RewardConservation(t *testing.T) {
	eng, balances, _ := newTestEngine()
	p := createTestPoll(t, eng, true)
	ctx := context.Background()

	for user, stake := range map[string]struct {
		option int
		amount int64
	}{
		"alice": {0, 10}, "bob": {0, 20}, "carol": {1, 70},
	} {
		balances.Seed(user, decimal.NewFromInt(100))
		if _, err := eng.Stake(ctx, p.ID, user, stake.option, decimal.NewFromInt(stake.amount)); err != nil {
			t.Fatalf("Stake(%s): %v", user, err)
		}
	}

	if err := eng.Resolve(ctx, p.ID, 0); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	info, _ := eng.StakingInfo(ctx, p.ID)
	rewardSum := decimal.Zero
	for _, seq := range info.UserStakes {
		for _, pos := range seq {
			if pos.RewardAmount != nil {
				rewardSum = rewardSum.Add(*pos.RewardAmount)
			}
		}
	}

	// Sum of winner rewards equals the whole staked pool (within rounding).
	diff := rewardSum.Sub(info.TotalStaked).Abs()
	if diff.GreaterThan(decimal.NewFromFloat(0.000001)) {
		t.Errorf("reward sum %s != total staked %s", rewardSum, info.TotalStaked)
	}
}

func TestScenario_ProportionalPayout(t *testing.T) {
	eng, balances, _ := newTestEngine()
	p := createTestPoll(t, eng, true)
	ctx := context.Background()

	// A=30 (alice 10, bob 20), B=70 (carol). Multiplier on A = 100/30.
	balances.Seed("alice", decimal.NewFromInt(10))
	balances.Seed("bob", decimal.NewFromInt(20))
	balances.Seed("carol", decimal.NewFromInt(70))
	eng.Stake(ctx, p.ID, "alice", 0, decimal.NewFromInt(10))
	eng.Stake(ctx, p.ID, "bob", 0, decimal.NewFromInt(20))
	eng.Stake(ctx, p.ID, "carol", 1, decimal.NewFromInt(70))

	if err := eng.Resolve(ctx, p.ID, 0); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	positions, _ := eng.UserPositions(ctx, "alice", p.ID)
	if positions[0].RewardAmount == nil {
		t.Fatal("winning position got no reward")
	}
	want := decimal.NewFromInt(10).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(30))
	if diff := positions[0].RewardAmount.Sub(want).Abs(); diff.GreaterThan(decimal.NewFromFloat(0.0001)) {
		t.Errorf("alice reward = %s, want ~%s", positions[0].RewardAmount, want)
	}

	got, err := eng.Claim(ctx, p.ID, "alice", 0)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	aliceBalance, _ := balances.GetBalance(ctx, "alice")
	if !aliceBalance.Equal(got) {
		t.Errorf("balance = %s, want claimed amount %s", aliceBalance, got)
	}

	// Losing side cannot claim.
	if _, err := eng.Claim(ctx, p.ID, "carol", 0); !errors.Is(err, ErrWrongOption) {
		t.Errorf("carol claim err = %v, want ErrWrongOption", err)
	}
}

func TestResolve_ZeroStakeOnCorrectOption(t *testing.T) {
	eng, balances, _ := newTestEngine()
	p := createTestPoll(t, eng, true)
	ctx := context.Background()

	balances.Seed("alice", decimal.NewFromInt(50))
	eng.Stake(ctx, p.ID, "alice", 0, decimal.NewFromInt(50))

	// Option 1 received nothing; the pool is not distributed.
	if err := eng.Resolve(ctx, p.ID, 1); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	positions, _ := eng.UserPositions(ctx, "alice", p.ID)
	if positions[0].RewardAmount != nil {
		t.Error("losing position was assigned a reward")
	}
	if _, err := eng.Claim(ctx, p.ID, "alice", 0); !errors.Is(err, ErrWrongOption) {
		t.Errorf("claim err = %v, want ErrWrongOption", err)
	}

	info, _ := eng.StakingInfo(ctx, p.ID)
	if !info.RewardPool.Equal(decimal.NewFromInt(50)) {
		t.Errorf("reward pool = %s, want retained 50", info.RewardPool)
	}
}

// failNextPutPoll wraps a LocalStore and fails the next PutPoll once.
type failNextPutPoll struct {
	*store.LocalStore
	armed bool
}

var errPutFailed = errors.New("store: put poll failed")

func (s *failNextPutPoll) PutPoll(ctx context.Context, p *model.Poll) error {
	if s.armed {
		s.armed = false
		return errPutFailed
	}
	return s.LocalStore.PutPoll(ctx, p)
}

func TestResolve_FailedWriteLeavesNoRewards(t *testing.T) {
	failing := &failNextPutPoll{LocalStore: store.NewLocalStore()}
	balances := balance.NewMemoryLedger()
	eng := NewEngine(failing, balances, bus.New(zerolog.Nop()), nil, zerolog.Nop())
	ctx := context.Background()

	p := createTestPoll(t, eng, true)
	balances.Seed("alice", decimal.NewFromInt(10))
	if _, err := eng.Stake(ctx, p.ID, "alice", 0, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("Stake: %v", err)
	}

	failing.armed = true
	if err := eng.Resolve(ctx, p.ID, 0); !errors.Is(err, errPutFailed) {
		t.Fatalf("Resolve err = %v, want store failure", err)
	}

	// The failed resolve must not have altered the ledger.
	got, _ := eng.getPoll(ctx, p.ID)
	if got.Resolved {
		t.Error("failed resolve marked the poll resolved")
	}
	positions, _ := eng.UserPositions(ctx, "alice", p.ID)
	if positions[0].RewardAmount != nil {
		t.Errorf("failed resolve persisted rewardAmount=%s", positions[0].RewardAmount)
	}

	// Resolving the other option afterwards must not expose a stale reward
	// from the failed attempt.
	if err := eng.Resolve(ctx, p.ID, 1); err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	positions, _ = eng.UserPositions(ctx, "alice", p.ID)
	if positions[0].RewardAmount != nil {
		t.Errorf("losing position carries rewardAmount=%s after resolution", positions[0].RewardAmount)
	}
	if _, err := eng.Claim(ctx, p.ID, "alice", 0); !errors.Is(err, ErrWrongOption) {
		t.Errorf("claim err = %v, want ErrWrongOption", err)
	}
}

func TestClaim_BeforeResolutionFails(t *testing.T) {
	eng, balances, _ := newTestEngine()
	p := createTestPoll(t, eng, true)
	ctx := context.Background()
	balances.Seed("alice", decimal.NewFromInt(10))
	eng.Stake(ctx, p.ID, "alice", 0, decimal.NewFromInt(10))

	if _, err := eng.Claim(ctx, p.ID, "alice", 0); !errors.Is(err, ErrNotResolved) {
		t.Errorf("err = %v, want ErrNotResolved", err)
	}
}

func TestClaim_ExactlyOnceUnderRace(t *testing.T) {
	eng, balances, _ := newTestEngine()
	p := createTestPoll(t, eng, true)
	ctx := context.Background()
	balances.Seed("alice", decimal.NewFromInt(100))
	eng.Stake(ctx, p.ID, "alice", 0, decimal.NewFromInt(100))
	if err := eng.Resolve(ctx, p.ID, 0); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Claim(ctx, p.ID, "alice", 0)
		}(i)
	}
	wg.Wait()

	succeeded, alreadyClaimed := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAlreadyClaimed):
			alreadyClaimed++
		default:
			t.Errorf("unexpected claim error: %v", err)
		}
	}
	if succeeded != 1 || alreadyClaimed != attempts-1 {
		t.Errorf("succeeded=%d alreadyClaimed=%d, want 1 and %d", succeeded, alreadyClaimed, attempts-1)
	}

	// Exactly one payout: alice staked 100, won the whole pool back.
	aliceBalance, _ := balances.GetBalance(ctx, "alice")
	if !aliceBalance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s, want 100 after single payout", aliceBalance)
	}
	pool, _ := balances.GetBalance(ctx, RewardPoolAccount)
	if !pool.IsZero() {
		t.Errorf("pool = %s, want 0", pool)
	}
}

func TestStake_ConcurrentConservation(t *testing.T) {
	eng, balances, _ := newTestEngine()
	p := createTestPoll(t, eng, true)
	ctx := context.Background()

	const stakers = 16
	var wg sync.WaitGroup
	for i := 0; i < stakers; i++ {
		user := "user-" + string(rune('a'+i))
		balances.Seed(user, decimal.NewFromInt(10))
		wg.Add(1)
		go func(user string, option int) {
			defer wg.Done()
			if _, err := eng.Stake(ctx, p.ID, user, option, decimal.NewFromInt(10)); err != nil {
				t.Errorf("Stake(%s): %v", user, err)
			}
		}(user, i%2)
	}
	wg.Wait()

	got, _ := eng.getPoll(ctx, p.ID)
	sum := decimal.Zero
	for _, os := range got.OptionStakes {
		sum = sum.Add(os)
	}
	if !got.TotalStaked.Equal(decimal.NewFromInt(stakers*10)) || !got.TotalStaked.Equal(sum) {
		t.Errorf("totalStaked = %s, option sum = %s, want %d", got.TotalStaked, sum, stakers*10)
	}
}

// downRemote always fails, standing in for an unreachable remote ledger.
type downRemote struct{}

var errDown = errors.New("remote: timeout")

func (downRemote) AllocateID(context.Context) (string, error) { return "", errDown }
func (downRemote) GetPoll(context.Context, string) (*model.Poll, error) {
	return nil, errDown
}
func (downRemote) PutPoll(context.Context, *model.Poll) error { return errDown }
func (downRemote) ListPolls(context.Context) ([]*model.Poll, error) {
	return nil, errDown
}
func (downRemote) GetPositions(context.Context, string, string) ([]model.StakingPosition, error) {
	return nil, errDown
}
func (downRemote) PutPositions(context.Context, string, string, []model.StakingPosition) error {
	return errDown
}
func (downRemote) ListPositions(context.Context, string) ([]model.StakingPosition, error) {
	return nil, errDown
}

func TestStake_RemoteOutageCommitsLocally(t *testing.T) {
	local := store.NewLocalStore()
	resolver := newOutageResolver(local)
	balances := balance.NewMemoryLedger()
	eng := NewEngine(resolver, balances, bus.New(zerolog.Nop()), nil, zerolog.Nop())
	ctx := context.Background()

	p, err := eng.CreatePoll(ctx, model.CreatePollRequest{
		Creator:        "creator",
		Title:          "offline poll",
		Options:        []string{"A", "B"},
		Deadline:       time.Now().Add(time.Hour),
		StakingEnabled: true,
	})
	if err != nil {
		t.Fatalf("CreatePoll during outage: %v", err)
	}

	balances.Seed("alice", decimal.NewFromInt(10))
	if _, err := eng.Stake(ctx, p.ID, "alice", 0, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("Stake during outage: %v", err)
	}

	// The locally committed value is what subsequent reads observe.
	got, err := eng.getPoll(ctx, p.ID)
	if err != nil {
		t.Fatalf("getPoll: %v", err)
	}
	if !got.TotalStaked.Equal(decimal.NewFromInt(10)) {
		t.Errorf("totalStaked = %s, want 10", got.TotalStaked)
	}
	if got.Origin != model.OriginLocal {
		t.Errorf("origin = %s, want local", got.Origin)
	}
}
