// Package governance implements the proposal engine: rank requests, catalog
// listings and listing removals, each a time-boxed, rank-weighted vote.
//
// Lifecycle shared by all three families:
//
//	OPEN ──(poll period elapsed, any caller closes)──► terminal
//
// Rank proposals end GRANTED or not; listing proposals end ACCEPTED,
// REJECTED or PENALIZED; removal proposals end accepted or rejected.
// Every transition is single-fire: closing twice fails with
// ErrProposalClosed.
//
// Vote weight is the voter's rank when the vote is cast. Changing a rank
// mid-poll never re-weights votes already cast.
//
// The engine writes into the stake ledger (lock extensions, penalties) and
// the reputation store only through the narrow interfaces below, calling the
// ledger as its own governor account. Collaborator calls that can fail run
// before the engine mutates its own state, so a failed operation leaves
// every collection unchanged.
package governance

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ric-network/catalogdao/internal/domain"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config holds the voting parameters.
type Config struct {
	AcceptanceThreshold uint64 // weight needed to pass, and to be flagged suspicious
	RankUpInterval      uint64 // accepted listings per rank-up
	RankPollPeriod      uint64
	ListingPollPeriod   uint64
	RemovalPollPeriod   uint64
}

// DefaultConfig returns the deployment defaults.
func DefaultConfig() Config {
	return Config{
		AcceptanceThreshold: 10,
		RankUpInterval:      5,
		RankPollPeriod:      100,
		ListingPollPeriod:   100,
		RemovalPollPeriod:   100,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.AcceptanceThreshold == 0 {
		return fmt.Errorf("acceptance threshold must be positive: %w", domain.ErrInvalidArgument)
	}
	return nil
}

// ─── Collaborators ──────────────────────────────────────────────────────────

// StakeLedger is the capability the engine holds over the stake ledger.
type StakeLedger interface {
	IsStaking(account domain.Account) bool
	ExtendStakeTime(caller, account domain.Account) error
	Penalize(caller, account domain.Account) error
}

// ListingIndex is the accepted-listing index.
type ListingIndex interface {
	Append(l domain.AcceptedListing) uint64
	Get(id uint64) (domain.AcceptedListing, error)
	MarkRemoved(id uint64) error
	ByCreator(account domain.Account) []uint64
}

// RankStore is the reputation table.
type RankStore interface {
	Rank(account domain.Account) uint64
	Grant(account domain.Account) bool
	RecordAcceptance(account domain.Account, interval uint64) (uint64, bool)
	Reset(account domain.Account) uint64
}

// Deps wires the engine to its collaborators.
type Deps struct {
	Self     domain.Account // governor account used when calling the stake ledger
	Admin    domain.Account // may change poll periods
	Stakes   StakeLedger
	Listings ListingIndex
	Ranks    RankStore
	Events   domain.EventSink
	Height   func() uint64
	Logger   *zap.Logger
}

// ─── Engine ─────────────────────────────────────────────────────────────────

// Engine owns the three proposal collections.
// Thread-safe; lock order is engine → stake ledger → leaves.
type Engine struct {
	mu   sync.RWMutex
	cfg  Config
	deps Deps

	periods map[domain.ProposalFamily]uint64

	ranks    []*domain.RankProposal // id = index + 1
	listings []*domain.ListingProposal
	removals []*domain.RemovalProposal

	ballots map[domain.ProposalFamily]*ballotBox

	openRank       map[domain.Account]uint64 // creator → unresolved rank proposal
	pendingRemoval map[uint64]uint64         // accepted listing → open removal proposal
	opinions       map[uint64]map[domain.Account]bool
}

// NewEngine creates a proposal engine.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Self.IsZero() {
		return nil, fmt.Errorf("engine account is required: %w", domain.ErrInvalidArgument)
	}
	if deps.Stakes == nil || deps.Listings == nil || deps.Ranks == nil || deps.Height == nil {
		return nil, fmt.Errorf("stakes, listings, ranks and height are required: %w", domain.ErrInvalidArgument)
	}
	if deps.Events == nil {
		deps.Events = domain.DiscardEvents
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Engine{
		cfg:  cfg,
		deps: deps,
		periods: map[domain.ProposalFamily]uint64{
			domain.FamilyRank:    cfg.RankPollPeriod,
			domain.FamilyListing: cfg.ListingPollPeriod,
			domain.FamilyRemoval: cfg.RemovalPollPeriod,
		},
		ballots: map[domain.ProposalFamily]*ballotBox{
			domain.FamilyRank:    newBallotBox(),
			domain.FamilyListing: newBallotBox(),
			domain.FamilyRemoval: newBallotBox(),
		},
		openRank:       make(map[domain.Account]uint64),
		pendingRemoval: make(map[uint64]uint64),
		opinions:       make(map[uint64]map[domain.Account]bool),
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// ─── Shared Guards ──────────────────────────────────────────────────────────

func (e *Engine) emit(ev domain.Event) { e.deps.Events.Emit(ev) }

// requireVoter checks rank and staking status. Caller must hold mu.
func (e *Engine) requireVoter(caller domain.Account, minRank uint64) error {
	if e.deps.Ranks.Rank(caller) < minRank {
		return domain.ErrNotRanked
	}
	if !e.deps.Stakes.IsStaking(caller) {
		return domain.ErrNotStaking
	}
	return nil
}

// pollElapsed reports whether a proposal created at createdAt may close.
func (e *Engine) pollElapsed(family domain.ProposalFamily, createdAt uint64) error {
	if e.deps.Height() < createdAt+e.periods[family] {
		return domain.ErrPollPeriodActive
	}
	return nil
}

// extend rolls the caller's stake lock forward.
func (e *Engine) extend(caller domain.Account) error {
	if err := e.deps.Stakes.ExtendStakeTime(e.deps.Self, caller); err != nil {
		return fmt.Errorf("extend stake of %s: %w", caller, err)
	}
	return nil
}

// penalize slashes account's stake and clears its rank.
func (e *Engine) penalize(account domain.Account, h uint64, reason string) error {
	if err := e.deps.Stakes.Penalize(e.deps.Self, account); err != nil {
		return fmt.Errorf("penalize %s: %w", account, err)
	}
	prev := e.deps.Ranks.Reset(account)
	e.deps.Logger.Warn("account penalized",
		zap.String("account", account.String()), zap.String("reason", reason), zap.Uint64("previous_rank", prev))
	e.emit(domain.NewEvent(domain.EventRankChanged, h, account).
		WithUint("previous", prev).
		WithUint("rank", 0).
		With("reason", reason))
	return nil
}

// ─── Administration ─────────────────────────────────────────────────────────

// SetPollPeriod changes the waiting window of a proposal family. Admin only.
// Open proposals are measured against the new period.
func (e *Engine) SetPollPeriod(caller domain.Account, family domain.ProposalFamily, period uint64) error {
	if caller.IsZero() {
		return domain.ErrMissingCaller
	}
	if e.deps.Admin.IsZero() || caller != e.deps.Admin {
		return domain.ErrNotAdmin
	}
	if !family.Valid() {
		return fmt.Errorf("%w: unknown proposal family %q", domain.ErrInvalidArgument, family)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.periods[family] = period

	e.deps.Logger.Info("poll period changed", zap.String("family", string(family)), zap.Uint64("period", period))
	e.emit(domain.NewEvent(domain.EventPollPeriodSet, e.deps.Height(), caller).
		With("family", string(family)).
		WithUint("period", period))
	return nil
}

// PollPeriod returns the current waiting window of a family.
func (e *Engine) PollPeriod(family domain.ProposalFamily) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.periods[family]
}

// ─── Ballots ────────────────────────────────────────────────────────────────

// ballotBox records at most one vote per (proposal, voter).
type ballotBox struct {
	votes map[uint64][]domain.Vote
	cast  map[uint64]map[domain.Account]struct{}
}

func newBallotBox() *ballotBox {
	return &ballotBox{
		votes: make(map[uint64][]domain.Vote),
		cast:  make(map[uint64]map[domain.Account]struct{}),
	}
}

func (b *ballotBox) has(id uint64, voter domain.Account) bool {
	_, ok := b.cast[id][voter]
	return ok
}

func (b *ballotBox) add(id uint64, v domain.Vote) {
	m, ok := b.cast[id]
	if !ok {
		m = make(map[domain.Account]struct{})
		b.cast[id] = m
	}
	m[v.Voter] = struct{}{}
	b.votes[id] = append(b.votes[id], v)
}

func (b *ballotBox) list(id uint64) []domain.Vote {
	out := make([]domain.Vote, len(b.votes[id]))
	copy(out, b.votes[id])
	return out
}

// HasVoted reports whether voter has voted on a proposal.
func (e *Engine) HasVoted(family domain.ProposalFamily, id uint64, voter domain.Account) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.ballots[family]
	return ok && b.has(id, voter)
}

// Votes returns the votes cast on a proposal in cast order.
func (e *Engine) Votes(family domain.ProposalFamily, id uint64) ([]domain.Vote, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.ballots[family]
	if !ok {
		return nil, fmt.Errorf("%w: unknown proposal family %q", domain.ErrInvalidArgument, family)
	}
	if !e.exists(family, id) {
		return nil, domain.ErrProposalNotFound
	}
	return b.list(id), nil
}

func (e *Engine) exists(family domain.ProposalFamily, id uint64) bool {
	if id == 0 {
		return false
	}
	switch family {
	case domain.FamilyRank:
		return id <= uint64(len(e.ranks))
	case domain.FamilyListing:
		return id <= uint64(len(e.listings))
	case domain.FamilyRemoval:
		return id <= uint64(len(e.removals))
	}
	return false
}

// ─── Account Queries ────────────────────────────────────────────────────────

// MyProposals lists everything account has authored.
func (e *Engine) MyProposals(account domain.Account) domain.AccountProposals {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := domain.AccountProposals{
		Rank:     []uint64{},
		Listing:  []uint64{},
		Removal:  []uint64{},
		Accepted: e.deps.Listings.ByCreator(account),
	}
	for _, p := range e.ranks {
		if p.Creator == account {
			out.Rank = append(out.Rank, p.ID)
		}
	}
	for _, p := range e.listings {
		if p.Creator == account {
			out.Listing = append(out.Listing, p.ID)
		}
	}
	for _, p := range e.removals {
		if p.Creator == account {
			out.Removal = append(out.Removal, p.ID)
		}
	}
	return out
}

// Counts returns the number of proposals per family.
func (e *Engine) Counts() map[domain.ProposalFamily]int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return map[domain.ProposalFamily]int{
		domain.FamilyRank:    len(e.ranks),
		domain.FamilyListing: len(e.listings),
		domain.FamilyRemoval: len(e.removals),
	}
}

// PendingRemovals returns accepted listing ids with an open removal proposal.
func (e *Engine) PendingRemovals() []uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]uint64, 0, len(e.pendingRemoval))
	for id := range e.pendingRemoval {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
