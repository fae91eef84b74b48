package staking

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ric-network/catalogdao/internal/domain"
	"github.com/ric-network/catalogdao/internal/infra/catalog"
	"github.com/ric-network/catalogdao/internal/infra/reputation"
	"github.com/ric-network/catalogdao/internal/infra/token"
)

const (
	custody  domain.Account = "staking"
	governor domain.Account = "governance"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

type testEnv struct {
	ledger   *Ledger
	token    *token.Ledger
	listings *catalog.Index
	ranks    *reputation.Store
	sharing  *fakeSharing
	events   *recorder
	height   uint64
}

type recorder struct{ events []domain.Event }

func (r *recorder) Emit(ev domain.Event) { r.events = append(r.events, ev) }

func (r *recorder) last() domain.Event { return r.events[len(r.events)-1] }

type fakeSharing struct{ stopped []domain.Account }

func (f *fakeSharing) StoppedStaking(caller, account domain.Account) error {
	if caller != custody {
		return domain.ErrNotGovernor
	}
	f.stopped = append(f.stopped, account)
	return nil
}

func newTestEnv(t *testing.T, accounts ...domain.Account) *testEnv {
	t.Helper()
	env := &testEnv{
		token:    token.NewLedger(),
		listings: catalog.NewIndex(),
		sharing:  &fakeSharing{},
		events:   &recorder{},
		height:   1,
	}
	env.ranks = reputation.NewStore(func() uint64 { return env.height })

	l, err := NewLedger(DefaultConfig(), Deps{
		Custody:  custody,
		Governor: governor,
		Token:    env.token,
		Listings: env.listings,
		Ranks:    env.ranks,
		Sharing:  env.sharing,
		Events:   env.events,
		Height:   func() uint64 { return env.height },
	})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	env.ledger = l

	for _, a := range accounts {
		if err := env.token.Mint(a, 1000); err != nil {
			t.Fatalf("Mint: %v", err)
		}
		if err := env.token.Approve(a, custody, 1000); err != nil {
			t.Fatalf("Approve: %v", err)
		}
	}
	return env
}

func (env *testEnv) stake(t *testing.T, accounts ...domain.Account) {
	t.Helper()
	for _, a := range accounts {
		if err := env.ledger.Stake(a); err != nil {
			t.Fatalf("Stake(%s): %v", a, err)
		}
	}
}

func (env *testEnv) accept(creator domain.Account, frontend, fees, update bool) uint64 {
	return env.listings.Append(domain.AcceptedListing{
		Creator: creator, HasFrontend: frontend, HasFees: fees, IsUpdate: update,
	})
}

// ─── Stake / Unstake ────────────────────────────────────────────────────────

func TestStake_FiveStakers(t *testing.T) {
	accounts := []domain.Account{"owner", "p1", "p2", "p3", "p4"}
	env := newTestEnv(t, accounts...)
	env.stake(t, accounts...)

	for _, a := range accounts {
		if !env.ledger.IsStaking(a) {
			t.Errorf("%s should be staking", a)
		}
	}
	if got := env.ledger.TotalStaked(); got != 150 {
		t.Errorf("total staked = %d, want 150", got)
	}
	if got := env.ledger.AvailableReward(); got != 0 {
		t.Errorf("pool = %d, want 0", got)
	}
	if got := env.token.BalanceOf(custody); got != 150 {
		t.Errorf("custody balance = %d, want 150", got)
	}
}

func TestStake_AlreadyStaking(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.stake(t, "alice")
	if err := env.ledger.Stake("alice"); !errors.Is(err, domain.ErrAlreadyStaking) {
		t.Errorf("err = %v, want ErrAlreadyStaking", err)
	}
}

func TestStake_NoAllowance(t *testing.T) {
	env := newTestEnv(t)
	_ = env.token.Mint("bob", 100)

	err := env.ledger.Stake("bob")
	if !errors.Is(err, domain.ErrInsufficientAllowance) {
		t.Fatalf("err = %v, want ErrInsufficientAllowance", err)
	}
	if env.ledger.IsStaking("bob") {
		t.Error("failed stake must not activate the position")
	}
}

func TestUnstake_RoundTrip(t *testing.T) {
	env := newTestEnv(t, "p1")
	env.stake(t, "p1")

	if err := env.ledger.Unstake("p1"); !errors.Is(err, domain.ErrStakeLocked) {
		t.Fatalf("early unstake = %v, want ErrStakeLocked", err)
	}
	if domain.Code(domain.ErrStakeLocked) != 924 {
		t.Errorf("code = %d, want 924", domain.Code(domain.ErrStakeLocked))
	}

	env.height += 100
	if err := env.ledger.Unstake("p1"); err != nil {
		t.Fatalf("Unstake: %v", err)
	}
	if env.ledger.IsStaking("p1") {
		t.Error("p1 should not be staking")
	}
	if got := env.token.BalanceOf("p1"); got != 1000 {
		t.Errorf("balance = %d, want 1000", got)
	}
	if len(env.sharing.stopped) != 1 || env.sharing.stopped[0] != "p1" {
		t.Errorf("sharing stopped = %v", env.sharing.stopped)
	}

	err := env.ledger.Unstake("p1")
	if !errors.Is(err, domain.ErrNotStaking) || domain.Code(err) != 919 {
		t.Errorf("second unstake = %v, want ErrNotStaking (919)", err)
	}
}

func TestExtendStakeTime(t *testing.T) {
	env := newTestEnv(t, "p1")
	env.stake(t, "p1")

	if err := env.ledger.ExtendStakeTime("p1", "p1"); !errors.Is(err, domain.ErrNotGovernor) {
		t.Fatalf("err = %v, want ErrNotGovernor", err)
	}

	env.height = 90
	if err := env.ledger.ExtendStakeTime(governor, "p1"); err != nil {
		t.Fatalf("ExtendStakeTime: %v", err)
	}
	env.height = 150
	if err := env.ledger.Unstake("p1"); !errors.Is(err, domain.ErrStakeLocked) {
		t.Errorf("unstake after extension = %v, want ErrStakeLocked", err)
	}
	env.height = 190
	if err := env.ledger.Unstake("p1"); err != nil {
		t.Errorf("Unstake at unlock height: %v", err)
	}
}

func TestExtendStakeTime_InactiveIsNoop(t *testing.T) {
	env := newTestEnv(t)
	n := len(env.events.events)
	if err := env.ledger.ExtendStakeTime(governor, "ghost"); err != nil {
		t.Fatalf("err = %v", err)
	}
	if _, ok := env.ledger.Position("ghost"); ok {
		t.Error("extension must not create a position")
	}
	if len(env.events.events) != n {
		t.Error("no-op extension must not emit")
	}
}

// ─── Rewards ────────────────────────────────────────────────────────────────

func TestDepositRewards(t *testing.T) {
	env := newTestEnv(t, "owner")
	env.stake(t, "owner")

	if err := env.ledger.DepositRewards("owner", 100); err != nil {
		t.Fatalf("DepositRewards: %v", err)
	}
	if got := env.ledger.AvailableReward(); got != 100 {
		t.Errorf("pool = %d, want 100", got)
	}
	if got := env.token.BalanceOf("owner"); got != 870 {
		t.Errorf("owner balance = %d, want 870", got)
	}
	if got := env.token.BalanceOf(custody); got != 130 {
		t.Errorf("custody = %d, want 130", got)
	}
	if err := env.ledger.DepositRewards("owner", 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("zero deposit = %v, want ErrInvalidArgument", err)
	}
}

func TestActualReward(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		frontend, fees bool
		want           uint64
	}{
		{false, false, 10},
		{true, false, 15},
		{false, true, 15},
		{true, true, 20},
	}
	for _, tt := range tests {
		if got := env.ledger.ActualReward(tt.frontend, tt.fees); got != tt.want {
			t.Errorf("ActualReward(%v, %v) = %d, want %d", tt.frontend, tt.fees, got, tt.want)
		}
	}
}

func TestClaimReward(t *testing.T) {
	env := newTestEnv(t, "owner", "alice")
	env.stake(t, "owner", "alice")
	env.ranks.Grant("alice")
	_ = env.ledger.DepositRewards("owner", 100)
	id := env.accept("alice", true, true, false)

	reward, err := env.ledger.ClaimReward("alice", id)
	if err != nil {
		t.Fatalf("ClaimReward: %v", err)
	}
	if reward != 20 {
		t.Errorf("reward = %d, want 20", reward)
	}
	p, _ := env.ledger.Position("alice")
	if p.Amount != 50 {
		t.Errorf("stake = %d, want 50 (reward compounds)", p.Amount)
	}
	if got := env.ledger.AvailableReward(); got != 80 {
		t.Errorf("pool = %d, want 80", got)
	}
	if got := env.ledger.TotalStaked(); got != 80 {
		t.Errorf("total staked = %d, want 80", got)
	}
	if ev := env.events.last(); ev.Type != domain.EventRewardClaimed || ev.Uint("amount") != 20 {
		t.Errorf("last event = %+v", ev)
	}
}

func TestClaimReward_ExactlyOnce(t *testing.T) {
	env := newTestEnv(t, "owner", "alice")
	env.stake(t, "owner", "alice")
	env.ranks.Grant("alice")
	_ = env.ledger.DepositRewards("owner", 100)
	id := env.accept("alice", false, false, false)

	if _, err := env.ledger.ClaimReward("alice", id); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	for _, caller := range []domain.Account{"alice", "owner"} {
		if _, err := env.ledger.ClaimReward(caller, id); !errors.Is(err, domain.ErrStateConflict) {
			t.Errorf("second claim by %s = %v, want state conflict", caller, err)
		}
	}
}

func TestClaimReward_Refusals(t *testing.T) {
	env := newTestEnv(t, "owner", "alice", "bob")
	env.stake(t, "owner", "alice")
	env.ranks.Grant("alice")
	env.ranks.Grant("bob")
	_ = env.ledger.DepositRewards("owner", 15)

	original := env.accept("alice", false, false, false)
	update := env.accept("alice", false, false, true)
	rich := env.accept("alice", true, true, false)
	bobs := env.accept("bob", false, false, false)
	removed := env.accept("alice", false, false, false)
	_ = env.listings.MarkRemoved(removed)

	tests := []struct {
		name    string
		caller  domain.Account
		listing uint64
		want    error
	}{
		{"missing listing", "alice", 99, domain.ErrListingNotFound},
		{"not creator", "owner", original, domain.ErrNotCreator},
		{"not staking", "bob", bobs, domain.ErrNotStaking},
		{"update", "alice", update, domain.ErrUpdateNoReward},
		{"pool too small", "alice", rich, domain.ErrInsufficientRewardPool},
		{"removed", "alice", removed, domain.ErrListingRemoved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.ledger.ClaimReward(tt.caller, tt.listing); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if domain.Code(domain.ErrNotCreator) != 927 {
		t.Errorf("code = %d, want 927", domain.Code(domain.ErrNotCreator))
	}
	// Refusals leave the pool and flags untouched.
	if got := env.ledger.AvailableReward(); got != 15 {
		t.Errorf("pool = %d, want 15", got)
	}
	if l, _ := env.listings.Get(rich); l.RewardClaimed {
		t.Error("failed claim must not mark the listing")
	}
}

func TestClaimReward_Unranked(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.stake(t, "alice")
	id := env.accept("alice", false, false, false)
	if _, err := env.ledger.ClaimReward("alice", id); !errors.Is(err, domain.ErrNotRanked) {
		t.Errorf("err = %v, want ErrNotRanked", err)
	}
}

// ─── Penalties ──────────────────────────────────────────────────────────────

func TestPenalize(t *testing.T) {
	accounts := []domain.Account{"owner", "p1", "p2", "p3", "mallory"}
	env := newTestEnv(t, accounts...)
	env.stake(t, accounts...)

	if err := env.ledger.Penalize("owner", "mallory"); !errors.Is(err, domain.ErrNotGovernor) {
		t.Fatalf("err = %v, want ErrNotGovernor", err)
	}
	if err := env.ledger.Penalize(governor, "mallory"); err != nil {
		t.Fatalf("Penalize: %v", err)
	}
	if env.ledger.IsStaking("mallory") {
		t.Error("penalized account should not be staking")
	}
	if got := env.ledger.TotalStaked(); got != 120 {
		t.Errorf("total staked = %d, want 120", got)
	}
	if got := env.ledger.AvailableReward(); got != 30 {
		t.Errorf("pool = %d, want 30", got)
	}
	if got := env.token.BalanceOf(custody); got != 150 {
		t.Errorf("custody = %d, want 150 (no tokens leave custody)", got)
	}
	if len(env.sharing.stopped) != 1 || env.sharing.stopped[0] != "mallory" {
		t.Errorf("sharing stopped = %v, want [mallory]", env.sharing.stopped)
	}
}

func TestPenalize_UnknownAccount(t *testing.T) {
	env := newTestEnv(t)
	if err := env.ledger.Penalize(governor, "ghost"); err != nil {
		t.Fatalf("err = %v", err)
	}
	if got := env.ledger.AvailableReward(); got != 0 {
		t.Errorf("pool = %d, want 0", got)
	}
}

// ─── Properties ─────────────────────────────────────────────────────────────

// Custody always holds exactly the active stakes plus the pool.
func TestProperty_CustodyConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	accounts := []domain.Account{"a", "b", "c"}

	properties.Property("custody == staked + pool", prop.ForAll(
		func(ops []int) bool {
			env := newTestEnv(t, accounts...)
			for _, a := range accounts {
				env.ranks.Grant(a)
			}
			for i, op := range ops {
				acct := accounts[i%len(accounts)]
				switch op {
				case 0:
					_ = env.ledger.Stake(acct)
				case 1:
					_ = env.ledger.Unstake(acct)
				case 2:
					_ = env.ledger.DepositRewards(acct, 7)
				case 3:
					_ = env.ledger.Penalize(governor, acct)
				case 4:
					id := env.accept(acct, i%2 == 0, i%3 == 0, false)
					_, _ = env.ledger.ClaimReward(acct, id)
				case 5:
					env.height += 50
				}
				if env.token.BalanceOf(custody) != env.ledger.TotalStaked()+env.ledger.AvailableReward() {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 5)),
	))

	properties.TestingRun(t)
}
