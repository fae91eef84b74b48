package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ric-network/catalogdao/internal/domain"
	"github.com/ric-network/catalogdao/internal/infra/sqlite"
)

// memJournal is an in-memory domain.Journal.
type memJournal struct {
	mu  sync.Mutex
	ops []domain.Operation
}

func (j *memJournal) AppendOperation(op domain.Operation) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	op.Seq = int64(len(j.ops)) + 1
	j.ops = append(j.ops, op)
	return op.Seq, nil
}

func (j *memJournal) Operations() ([]domain.Operation, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.Operation(nil), j.ops...), nil
}

// failingJournal refuses every append.
type failingJournal struct{ memJournal }

func (j *failingJournal) AppendOperation(domain.Operation) (int64, error) {
	return 0, errors.New("disk full")
}

const (
	admin   domain.Account = "admin"
	alice   domain.Account = "alice"
	bob     domain.Account = "bob"
	carol   domain.Account = "carol"
	mallory domain.Account = "mallory"
	nine    domain.Account = "nine"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Governance.RankPollPeriod = 10
	cfg.Governance.ListingPollPeriod = 10
	cfg.Governance.RemovalPollPeriod = 10
	cfg.Staking.LockPeriod = 20
	return cfg
}

func testGenesis() Genesis {
	return Genesis{
		Ranks: map[domain.Account]uint64{nine: 9},
		Balances: map[domain.Account]uint64{
			admin: 1000, alice: 1000, bob: 1000, carol: 1000, mallory: 1000, nine: 1000,
		},
	}
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	svc     *Service
	journal domain.Journal
}

func newHarness(t *testing.T, journal domain.Journal) *harness {
	t.Helper()
	svc, err := New(testConfig(), testGenesis(), Options{Journal: journal})
	require.NoError(t, err)
	return &harness{t: t, ctx: context.Background(), svc: svc, journal: journal}
}

func (h *harness) ok(caller domain.Account, kind domain.OpKind, args any) Result {
	h.t.Helper()
	res, err := h.svc.Submit(h.ctx, caller, kind, args)
	require.NoError(h.t, err, "%s by %s", kind, caller)
	return res
}

func (h *harness) refuse(caller domain.Account, kind domain.OpKind, args any) error {
	h.t.Helper()
	_, err := h.svc.Submit(h.ctx, caller, kind, args)
	require.Error(h.t, err, "%s by %s should be refused", kind, caller)
	return err
}

func (h *harness) stake(accounts ...domain.Account) {
	h.t.Helper()
	amount := h.svc.Stakes().Config().StakeAmount
	for _, a := range accounts {
		h.ok(a, domain.OpTokenApprove, ApproveArgs{Spender: h.svc.Config().Accounts.Custody, Amount: amount})
		h.ok(a, domain.OpStake, nil)
	}
}

func (h *harness) mine(n uint64) { h.svc.Mine(n) }

// grant gets account rank 1 through a rank proposal carried by the admin.
func (h *harness) grant(account domain.Account) {
	h.t.Helper()
	id := h.ok(account, domain.OpProposeRank, ProposeRankArgs{Payload: "curator " + account.String()}).ID
	h.ok(admin, domain.OpVoteRank, VoteArgs{ID: id, InFavor: true})
	h.mine(10)
	res := h.ok(bob, domain.OpCloseRank, IDArgs{ID: id})
	require.True(h.t, *res.Passed)
}

// accept runs a listing proposal from creator to ACCEPTED and returns the
// proposal and accepted listing ids.
func (h *harness) accept(creator domain.Account, args ProposeListingArgs) (uint64, uint64) {
	h.t.Helper()
	id := h.ok(creator, domain.OpProposeListing, args).ID
	h.ok(admin, domain.OpVoteListing, VoteArgs{ID: id, InFavor: true})
	h.mine(10)
	res := h.ok(carol, domain.OpCloseListing, IDArgs{ID: id})
	require.Equal(h.t, domain.ListingAccepted, res.State)
	p, err := h.svc.Engine().ListingProposal(id)
	require.NoError(h.t, err)
	return id, p.ListingID
}

func (h *harness) deposit(amount uint64) {
	h.t.Helper()
	h.ok(admin, domain.OpTokenApprove, ApproveArgs{Spender: h.svc.Config().Accounts.Custody, Amount: amount})
	h.ok(admin, domain.OpDepositRewards, DepositArgs{Amount: amount})
}

// ─── Construction ───────────────────────────────────────────────────────────

func TestNew_Genesis(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, uint64(10), h.svc.Ranks().Rank(admin))
	assert.Equal(t, uint64(9), h.svc.Ranks().Rank(nine))
	assert.Equal(t, uint64(1000), h.svc.Token().BalanceOf(alice))
	assert.Equal(t, uint64(6000), h.svc.Token().TotalSupply())
}

func TestNew_RejectsBadAccounts(t *testing.T) {
	cfg := testConfig()
	cfg.Accounts.Engine = cfg.Accounts.Custody
	_, err := New(cfg, Genesis{}, Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	cfg = testConfig()
	cfg.Accounts.Admin = ""
	_, err = New(cfg, Genesis{}, Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

// ─── Apply ──────────────────────────────────────────────────────────────────

func TestApply_MissingCaller(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.Apply(h.ctx, domain.Operation{Kind: domain.OpStake})
	assert.ErrorIs(t, err, domain.ErrMissingCaller)
}

func TestApply_UnknownOperation(t *testing.T) {
	h := newHarness(t, nil)
	err := h.refuse(alice, "catalog.burn", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownOperation)
	assert.Equal(t, 942, domain.Code(err))
}

func TestApply_MalformedArgs(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.Apply(h.ctx, domain.Operation{
		Caller: alice,
		Kind:   domain.OpProposeRank,
		Args:   []byte(`{"payload": 7}`),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestApply_CancelledContext(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.svc.Submit(ctx, alice, domain.OpStake, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestApply_JournalsOnlySuccess(t *testing.T) {
	j := &memJournal{}
	h := newHarness(t, j)

	h.refuse(alice, domain.OpStake, nil) // no allowance
	h.mine(3)
	h.stake(alice)

	ops, _ := j.Operations()
	require.Len(t, ops, 2)
	assert.Equal(t, domain.OpTokenApprove, ops[0].Kind)
	assert.Equal(t, domain.OpStake, ops[1].Kind)
	assert.Equal(t, uint64(3), ops[1].Height)
	assert.Equal(t, uint64(2), h.svc.Status().Applied)
}

func TestApply_JournalFailureHalts(t *testing.T) {
	h := newHarness(t, &failingJournal{})

	_, err := h.svc.Submit(h.ctx, bob, domain.OpTokenTransfer, TransferArgs{To: carol, Amount: 7})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrJournalUnavailable)
	assert.ErrorIs(t, domain.KindOf(err), domain.ErrResource)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, h.svc.Status().Halted)

	// Nothing more is applied until a restart rebuilds state from the journal.
	err = h.refuse(alice, domain.OpTokenTransfer, TransferArgs{To: carol, Amount: 1})
	assert.ErrorIs(t, err, domain.ErrJournalUnavailable)
	assert.Equal(t, uint64(1000), h.svc.Token().BalanceOf(alice))
	h.refuse(admin, domain.OpSetPollPeriod, PollPeriodArgs{Family: domain.FamilyListing, Period: 5})
}

func TestApply_TracesEveryCall(t *testing.T) {
	h := newHarness(t, nil)
	h.refuse(bob, domain.OpProposeListing, ProposeListingArgs{ContentRef: "ipfs://x"})
	h.ok(bob, domain.OpProposeRank, ProposeRankArgs{Payload: "hello"})

	spans := h.svc.Tracer().Spans(0)
	require.Len(t, spans, 2)
	assert.Equal(t, string(domain.OpProposeListing), spans[0].Operation)
	assert.Equal(t, "authorization", spans[0].ErrorKind)
	assert.Equal(t, bob, spans[1].Caller)
}

func TestApply_EventsRecorded(t *testing.T) {
	h := newHarness(t, nil)
	h.stake(alice)
	got := h.svc.Recent().Recent(0, domain.EventStaked)
	require.Len(t, got, 1)
	assert.Equal(t, alice, got[0].Account)
	assert.Equal(t, "30", got[0].Attrs["amount"])
	assert.NotEmpty(t, got[0].ID)
}

// ─── Governance Flows ───────────────────────────────────────────────────────

func TestProposeListing_UnrankedRefused(t *testing.T) {
	h := newHarness(t, nil)
	h.stake(bob)

	err := h.refuse(bob, domain.OpProposeListing, ProposeListingArgs{ContentRef: "ipfs://app"})
	assert.ErrorIs(t, err, domain.ErrNotRanked)
	assert.ErrorIs(t, domain.KindOf(err), domain.ErrAuthorization)
	assert.Empty(t, h.svc.Engine().ListingProposals())
}

func TestCloseRank_ThresholdBoundary(t *testing.T) {
	h := newHarness(t, nil)
	h.stake(admin, nine)

	short := h.ok(bob, domain.OpProposeRank, ProposeRankArgs{Payload: "bob"}).ID
	exact := h.ok(carol, domain.OpProposeRank, ProposeRankArgs{Payload: "carol"}).ID
	h.ok(nine, domain.OpVoteRank, VoteArgs{ID: short, InFavor: true})
	h.ok(admin, domain.OpVoteRank, VoteArgs{ID: exact, InFavor: true})

	err := h.refuse(alice, domain.OpCloseRank, IDArgs{ID: exact})
	assert.ErrorIs(t, err, domain.ErrPollPeriodActive)

	h.mine(10)
	assert.False(t, *h.ok(alice, domain.OpCloseRank, IDArgs{ID: short}).Passed)
	assert.True(t, *h.ok(alice, domain.OpCloseRank, IDArgs{ID: exact}).Passed)

	assert.Equal(t, uint64(0), h.svc.Ranks().Rank(bob))
	assert.Equal(t, uint64(1), h.svc.Ranks().Rank(carol))
}

func TestAcceptedListings_RankUpEveryFifth(t *testing.T) {
	h := newHarness(t, nil)
	h.stake(admin, alice)
	h.grant(alice)

	for i := 0; i < 4; i++ {
		h.accept(alice, ProposeListingArgs{ContentRef: "ipfs://app"})
	}
	assert.Equal(t, uint64(1), h.svc.Ranks().Rank(alice), "rank after four acceptances")

	h.accept(alice, ProposeListingArgs{ContentRef: "ipfs://app"})
	assert.Equal(t, uint64(2), h.svc.Ranks().Rank(alice), "rank after five acceptances")
	assert.Len(t, h.svc.Listings().ByCreator(alice), 5)
}

func TestCloseRemoval_AcceptedPenalizesCreator(t *testing.T) {
	h := newHarness(t, nil)
	h.stake(admin, alice)
	h.grant(alice)
	_, listing := h.accept(alice, ProposeListingArgs{ContentRef: "ipfs://bad", HasFrontend: true})
	h.deposit(100)
	h.ok(alice, domain.OpSharingSet, SharingArgs{Address: "ar://alice"})

	id := h.ok(admin, domain.OpProposeRemoval, ProposeRemovalArgs{
		Discussion: "forum/42", TargetListing: listing, AllegesMalicious: true,
	}).ID
	err := h.refuse(alice, domain.OpVoteRemoval, VoteArgs{ID: id, InFavor: false})
	assert.ErrorIs(t, err, domain.ErrAccusedVoter)

	h.ok(admin, domain.OpVoteRemoval, VoteArgs{ID: id, InFavor: true})
	h.mine(10)
	assert.True(t, *h.ok(bob, domain.OpCloseRemoval, IDArgs{ID: id}).Passed)

	l, err := h.svc.Listings().Get(listing)
	require.NoError(t, err)
	assert.True(t, l.Removed)
	assert.Equal(t, uint64(0), h.svc.Ranks().Rank(alice))
	assert.False(t, h.svc.Stakes().IsStaking(alice))
	assert.Equal(t, uint64(130), h.svc.Stakes().AvailableReward(), "deposit plus slashed stake")
	assert.Equal(t, uint64(30), h.svc.Stakes().TotalStaked())
	_, sharing := h.svc.Sharing().Get(alice)
	assert.False(t, sharing, "penalty drops the sharing entry")

	err = h.refuse(alice, domain.OpClaimReward, ClaimArgs{ListingID: listing})
	assert.ErrorIs(t, err, domain.ErrListingRemoved)
}

func TestClaimReward_OncePerListing(t *testing.T) {
	h := newHarness(t, nil)
	h.stake(admin, alice, bob)
	h.grant(alice)
	_, listing := h.accept(alice, ProposeListingArgs{ContentRef: "ipfs://app", HasFrontend: true})
	h.deposit(100)

	res := h.ok(alice, domain.OpClaimReward, ClaimArgs{ListingID: listing})
	assert.Equal(t, uint64(15), res.Amount)
	pos, _ := h.svc.Stakes().Position(alice)
	assert.Equal(t, uint64(45), pos.Amount)
	assert.Equal(t, uint64(85), h.svc.Stakes().AvailableReward())

	for _, caller := range []domain.Account{alice, bob} {
		err := h.refuse(caller, domain.OpClaimReward, ClaimArgs{ListingID: listing})
		assert.ErrorIs(t, err, domain.ErrRewardClaimed)
		assert.ErrorIs(t, domain.KindOf(err), domain.ErrStateConflict)
	}
}

func TestCloseSuspicious_PenalizesCreator(t *testing.T) {
	h := newHarness(t, nil)
	h.stake(admin, alice)
	h.grant(alice)

	h.ok(alice, domain.OpSharingSet, SharingArgs{Address: "ar://alice"})
	id := h.ok(alice, domain.OpProposeListing, ProposeListingArgs{ContentRef: "ipfs://malware"}).ID
	h.ok(admin, domain.OpVoteListing, VoteArgs{ID: id, InFavor: false, Suspicious: true})
	h.mine(10)

	err := h.refuse(bob, domain.OpCloseListing, IDArgs{ID: id})
	assert.ErrorIs(t, err, domain.ErrListingSuspicious)

	res := h.ok(bob, domain.OpCloseSuspicious, IDArgs{ID: id})
	assert.Equal(t, domain.ListingPenalized, res.State)

	p, err := h.svc.Engine().ListingProposal(id)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingPenalized, p.State)
	assert.Zero(t, p.ListingID)
	assert.Equal(t, uint64(0), h.svc.Ranks().Rank(alice))
	assert.False(t, h.svc.Stakes().IsStaking(alice))
	_, sharing := h.svc.Sharing().Get(alice)
	assert.False(t, sharing, "penalty drops the sharing entry")

	err = h.refuse(bob, domain.OpCloseListing, IDArgs{ID: id})
	assert.ErrorIs(t, err, domain.ErrProposalClosed)
}

// ─── Staking Flow ───────────────────────────────────────────────────────────

func TestStakeUnstakeRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	h.stake(alice)
	h.ok(alice, domain.OpSharingSet, SharingArgs{Address: "ar://alice"})

	err := h.refuse(alice, domain.OpUnstake, nil)
	assert.ErrorIs(t, err, domain.ErrStakeLocked)

	h.mine(20)
	h.ok(alice, domain.OpUnstake, nil)
	assert.Equal(t, uint64(1000), h.svc.Token().BalanceOf(alice))
	_, sharing := h.svc.Sharing().Get(alice)
	assert.False(t, sharing, "unstaking stops sharing")
}

func TestSetPollPeriod_AdminOnly(t *testing.T) {
	h := newHarness(t, nil)
	err := h.refuse(alice, domain.OpSetPollPeriod, PollPeriodArgs{Family: domain.FamilyRank, Period: 1})
	assert.ErrorIs(t, err, domain.ErrNotAdmin)

	h.ok(admin, domain.OpSetPollPeriod, PollPeriodArgs{Family: domain.FamilyRank, Period: 1})
	assert.Equal(t, uint64(1), h.svc.Engine().PollPeriod(domain.FamilyRank))
}

func TestStatus(t *testing.T) {
	h := newHarness(t, nil)
	h.stake(admin, alice)
	h.grant(alice)
	h.accept(alice, ProposeListingArgs{ContentRef: "ipfs://app"})

	st := h.svc.Status()
	assert.Equal(t, uint64(20), st.Height)
	assert.Equal(t, 2, st.Stakers)
	assert.Equal(t, uint64(60), st.TotalStaked)
	assert.Equal(t, 1, st.Listings)
	assert.Equal(t, 1, st.Proposals[domain.FamilyRank])
	assert.Equal(t, 1, st.Proposals[domain.FamilyListing])
}

// ─── Replay ─────────────────────────────────────────────────────────────────

func TestReplay_RebuildsState(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	h := newHarness(t, db)
	h.stake(admin, alice, bob)
	h.grant(alice)
	_, listing := h.accept(alice, ProposeListingArgs{ContentRef: "ipfs://app", HasFees: true})
	h.deposit(50)
	h.ok(alice, domain.OpClaimReward, ClaimArgs{ListingID: listing})
	h.ok(bob, domain.OpExpressOpinion, OpinionArgs{ID: 1, Liked: true})
	want := h.svc.Status()

	fresh, err := New(testConfig(), testGenesis(), Options{Journal: db})
	require.NoError(t, err)
	n, err := fresh.Replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int(want.Applied), n)

	got := fresh.Status()
	assert.Equal(t, want.Height, got.Height)
	assert.Equal(t, want.TotalStaked, got.TotalStaked)
	assert.Equal(t, want.RewardPool, got.RewardPool)
	assert.Equal(t, want.Listings, got.Listings)
	assert.Equal(t, want.Proposals, got.Proposals)
	assert.Equal(t, h.svc.Ranks().Rank(alice), fresh.Ranks().Rank(alice))
	assert.Equal(t, h.svc.Token().BalanceOf(alice), fresh.Token().BalanceOf(alice))

	l, err := fresh.Listings().Get(listing)
	require.NoError(t, err)
	assert.True(t, l.RewardClaimed)
	assert.Zero(t, fresh.Events().Emitted(), "replay publishes nothing")

	_, err = fresh.Replay(context.Background())
	assert.True(t, errors.Is(err, domain.ErrStateConflict))
}

func TestReplay_NoJournal(t *testing.T) {
	h := newHarness(t, nil)
	n, err := h.svc.Replay(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
