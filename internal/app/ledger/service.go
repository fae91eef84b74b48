// Package ledger is the application layer of the catalog ledger.
//
// A Service wires the token, reputation store, accepted-listing index, stake
// ledger, sharing registry and proposal engine together and applies
// operations against them one at a time:
//  1. Pin the current block height for the whole operation
//  2. Decode the operation's arguments and dispatch to the owning component
//  3. Trace the call and update operation metrics
//  4. Append successful operations to the journal
//
// Because every mutation goes through Apply, replaying the journal on a fresh
// Service rebuilds the exact same state. If an append fails, the operation
// has already changed memory, so the Service halts and refuses every later
// operation; a restart rebuilds state from what the journal holds.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ric-network/catalogdao/internal/domain"
	"github.com/ric-network/catalogdao/internal/infra/catalog"
	"github.com/ric-network/catalogdao/internal/infra/chain"
	"github.com/ric-network/catalogdao/internal/infra/events"
	"github.com/ric-network/catalogdao/internal/infra/governance"
	"github.com/ric-network/catalogdao/internal/infra/observability"
	"github.com/ric-network/catalogdao/internal/infra/reputation"
	"github.com/ric-network/catalogdao/internal/infra/sharing"
	"github.com/ric-network/catalogdao/internal/infra/staking"
	"github.com/ric-network/catalogdao/internal/infra/token"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Accounts names the system accounts.
type Accounts struct {
	Admin   domain.Account // changes poll periods; starts with the genesis rank
	Engine  domain.Account // the proposal engine's identity towards the stake ledger
	Custody domain.Account // holds staked tokens and the reward pool
}

// Config controls the service.
type Config struct {
	Accounts     Accounts
	Governance   governance.Config
	Staking      staking.Config
	GenesisRank  uint64
	Tracer       observability.TracerConfig
	RecentEvents int // in-memory event history size
}

// DefaultConfig returns the deployment defaults.
func DefaultConfig() Config {
	return Config{
		Accounts: Accounts{
			Admin:   "admin",
			Engine:  "catalogdao.engine",
			Custody: "catalogdao.stakes",
		},
		Governance:   governance.DefaultConfig(),
		Staking:      staking.DefaultConfig(),
		GenesisRank:  10,
		Tracer:       observability.DefaultTracerConfig(),
		RecentEvents: 1024,
	}
}

// Genesis seeds ranks and token balances before the first operation.
type Genesis struct {
	Ranks    map[domain.Account]uint64
	Balances map[domain.Account]uint64
}

// Options carries optional collaborators.
type Options struct {
	Clock   *chain.Clock   // defaults to a clock at height 0
	Journal domain.Journal // nil disables journaling and replay
	Logger  *zap.Logger
}

// ─── Service ────────────────────────────────────────────────────────────────

// Service serialises every state-changing operation behind one mutex.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	logger  *zap.Logger
	clock   *chain.Clock
	journal domain.Journal

	// height pinned for the operation in progress
	height  atomic.Uint64
	applied atomic.Uint64
	halted  error // journal failure; set once, guarded by mu

	emitter  *events.Emitter
	recent   *events.Recorder
	tracer   *observability.Tracer
	token    *token.Ledger
	ranks    *reputation.Store
	listings *catalog.Index
	sharing  *sharing.Registry
	stakes   *staking.Ledger
	engine   *governance.Engine
}

// New wires a service and applies genesis.
func New(cfg Config, gen Genesis, opts Options) (*Service, error) {
	a := cfg.Accounts
	if a.Admin.IsZero() || a.Engine.IsZero() || a.Custody.IsZero() {
		return nil, fmt.Errorf("admin, engine and custody accounts are required: %w", domain.ErrInvalidArgument)
	}
	if a.Engine == a.Custody {
		return nil, fmt.Errorf("engine and custody accounts must differ: %w", domain.ErrInvalidArgument)
	}
	if opts.Clock == nil {
		opts.Clock = chain.NewClock(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Service{
		cfg:     cfg,
		logger:  opts.Logger,
		clock:   opts.Clock,
		journal: opts.Journal,
		emitter: events.NewEmitter(),
		recent:  events.NewRecorder(cfg.RecentEvents),
		tracer:  observability.NewTracer(cfg.Tracer),
	}
	s.height.Store(s.clock.Height())
	s.emitter.Add("recent", s.recent)
	s.emitter.Add("metrics", observability.MetricsSink{})

	height := s.height.Load
	s.token = token.NewLedger()
	s.ranks = reputation.NewStore(height)
	s.listings = catalog.NewIndex()
	s.sharing = sharing.NewRegistry(a.Custody, nil, height, s.emitter)

	var err error
	s.stakes, err = staking.NewLedger(cfg.Staking, staking.Deps{
		Custody:  a.Custody,
		Governor: a.Engine,
		Token:    s.token,
		Listings: s.listings,
		Ranks:    s.ranks,
		Sharing:  s.sharing,
		Events:   s.emitter,
		Height:   height,
		Logger:   s.logger.Named("staking"),
	})
	if err != nil {
		return nil, fmt.Errorf("stake ledger: %w", err)
	}
	s.sharing.SetStakeChecker(s.stakes)

	s.engine, err = governance.NewEngine(cfg.Governance, governance.Deps{
		Self:     a.Engine,
		Admin:    a.Admin,
		Stakes:   s.stakes,
		Listings: s.listings,
		Ranks:    s.ranks,
		Events:   s.emitter,
		Height:   height,
		Logger:   s.logger.Named("governance"),
	})
	if err != nil {
		return nil, fmt.Errorf("proposal engine: %w", err)
	}

	if err := s.applyGenesis(gen); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) applyGenesis(gen Genesis) error {
	if s.cfg.GenesisRank > 0 {
		if err := s.ranks.Seed(s.cfg.Accounts.Admin, s.cfg.GenesisRank); err != nil {
			return fmt.Errorf("seed admin rank: %w", err)
		}
	}
	for _, acct := range sortedKeys(gen.Ranks) {
		if err := s.ranks.Seed(acct, gen.Ranks[acct]); err != nil {
			return fmt.Errorf("seed rank of %s: %w", acct, err)
		}
	}
	for _, acct := range sortedKeys(gen.Balances) {
		if err := s.token.Mint(acct, gen.Balances[acct]); err != nil {
			return fmt.Errorf("mint to %s: %w", acct, err)
		}
	}
	s.logger.Info("genesis applied",
		zap.String("admin", s.cfg.Accounts.Admin.String()),
		zap.Int("ranks", len(gen.Ranks)),
		zap.Int("balances", len(gen.Balances)))
	return nil
}

func sortedKeys(m map[domain.Account]uint64) []domain.Account {
	keys := make([]domain.Account, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ─── Apply ──────────────────────────────────────────────────────────────────

// Apply executes op at the current height. Successful operations are
// journaled; refused ones leave no trace in state. A journal failure is
// returned with the operation applied in memory and halts the Service.
func (s *Service) Apply(ctx context.Context, op domain.Operation) (Result, error) {
	if op.Caller.IsZero() {
		return Result{Kind: op.Kind}, domain.ErrMissingCaller
	}
	if err := ctx.Err(); err != nil {
		return Result{Kind: op.Kind}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted != nil {
		return Result{Kind: op.Kind}, fmt.Errorf("%w: %v", domain.ErrJournalUnavailable, s.halted)
	}

	op.Height = s.clock.Height()
	s.height.Store(op.Height)

	span := s.tracer.StartSpan(ctx, string(op.Kind), op.Caller, op.Height)
	res, err := s.dispatch(op)
	s.tracer.EndSpan(span, err)
	if err != nil {
		s.logger.Debug("operation refused",
			zap.String("kind", string(op.Kind)),
			zap.String("account", op.Caller.String()),
			zap.Uint64("height", op.Height),
			zap.Error(err))
		return res, err
	}

	s.applied.Add(1)
	observability.LedgerHeight.Set(float64(op.Height))
	if s.journal != nil {
		seq, err := s.journal.AppendOperation(op)
		if err != nil {
			s.halted = err
			s.logger.Error("journal operation failed, halting",
				zap.String("kind", string(op.Kind)),
				zap.Uint64("height", op.Height),
				zap.Error(err))
			return res, fmt.Errorf("journal %s: %w: %w", op.Kind, domain.ErrJournalUnavailable, err)
		}
		res.Seq = seq
	}
	return res, nil
}

// Submit encodes args and applies the resulting operation.
func (s *Service) Submit(ctx context.Context, caller domain.Account, kind domain.OpKind, args any) (Result, error) {
	op, err := NewOperation(caller, kind, args)
	if err != nil {
		return Result{Kind: kind}, err
	}
	return s.Apply(ctx, op)
}

// Replay re-applies the journal with event delivery switched off. It must run
// before the first Apply. Returns the number of operations replayed.
func (s *Service) Replay(ctx context.Context) (int, error) {
	if s.journal == nil {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.applied.Load() > 0 {
		return 0, fmt.Errorf("replay after %d applied operations: %w", s.applied.Load(), domain.ErrStateConflict)
	}
	ops, err := s.journal.Operations()
	if err != nil {
		return 0, fmt.Errorf("read journal: %w", err)
	}

	s.emitter.SetEnabled(false)
	defer s.emitter.SetEnabled(true)

	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := s.clock.Set(op.Height); err != nil {
			return i, fmt.Errorf("replay op %d at height %d: %w", op.Seq, op.Height, err)
		}
		s.height.Store(op.Height)
		if _, err := s.dispatch(op); err != nil {
			return i, fmt.Errorf("replay op %d (%s): %w", op.Seq, op.Kind, err)
		}
	}
	// Replayed operations count as applied so a second Replay is refused.
	s.applied.Add(uint64(len(ops)))
	observability.LedgerHeight.Set(float64(s.clock.Height()))
	s.logger.Info("journal replayed",
		zap.Int("operations", len(ops)),
		zap.Uint64("height", s.clock.Height()))
	return len(ops), nil
}

func (s *Service) dispatch(op domain.Operation) (Result, error) {
	res := Result{Kind: op.Kind, Height: op.Height}
	caller := op.Caller
	var err error

	switch op.Kind {
	// Token
	case domain.OpTokenTransfer:
		var a TransferArgs
		if a, err = decode[TransferArgs](op); err == nil {
			err = s.token.Transfer(caller, a.To, a.Amount)
		}
	case domain.OpTokenApprove:
		var a ApproveArgs
		if a, err = decode[ApproveArgs](op); err == nil {
			err = s.token.Approve(caller, a.Spender, a.Amount)
		}

	// Sharing
	case domain.OpSharingSet:
		var a SharingArgs
		if a, err = decode[SharingArgs](op); err == nil {
			err = s.sharing.SetSharing(caller, a.Address)
		}
	case domain.OpSharingStop:
		err = s.sharing.StopSharing(caller)

	// Staking
	case domain.OpStake:
		err = s.stakes.Stake(caller)
	case domain.OpUnstake:
		err = s.stakes.Unstake(caller)
	case domain.OpDepositRewards:
		var a DepositArgs
		if a, err = decode[DepositArgs](op); err == nil {
			err = s.stakes.DepositRewards(caller, a.Amount)
		}
	case domain.OpClaimReward:
		var a ClaimArgs
		if a, err = decode[ClaimArgs](op); err == nil {
			res.Amount, err = s.stakes.ClaimReward(caller, a.ListingID)
		}

	// Rank proposals
	case domain.OpProposeRank:
		var a ProposeRankArgs
		if a, err = decode[ProposeRankArgs](op); err == nil {
			res.ID, err = s.engine.ProposeRank(caller, a.Payload)
		}
	case domain.OpVoteRank:
		var a VoteArgs
		if a, err = decode[VoteArgs](op); err == nil {
			err = s.engine.VoteOnRank(caller, a.ID, a.InFavor)
		}
	case domain.OpCloseRank:
		var a IDArgs
		if a, err = decode[IDArgs](op); err == nil {
			var granted bool
			if granted, err = s.engine.CloseRankProposal(caller, a.ID); err == nil {
				res.Passed = passed(granted)
			}
		}

	// Listing proposals
	case domain.OpProposeListing:
		var a ProposeListingArgs
		if a, err = decode[ProposeListingArgs](op); err == nil {
			res.ID, err = s.engine.ProposeListing(caller, a.request())
		}
	case domain.OpVoteListing:
		var a VoteArgs
		if a, err = decode[VoteArgs](op); err == nil {
			err = s.engine.VoteOnListing(caller, a.ID, a.InFavor, a.Suspicious)
		}
	case domain.OpCloseListing:
		var a IDArgs
		if a, err = decode[IDArgs](op); err == nil {
			res.State, err = s.engine.CloseListingProposal(caller, a.ID)
		}
	case domain.OpCloseSuspicious:
		var a IDArgs
		if a, err = decode[IDArgs](op); err == nil {
			if err = s.engine.CloseSuspiciousProposal(caller, a.ID); err == nil {
				res.State = domain.ListingPenalized
			}
		}
	case domain.OpExpressOpinion:
		var a OpinionArgs
		if a, err = decode[OpinionArgs](op); err == nil {
			err = s.engine.ExpressOpinion(caller, a.ID, a.Liked)
		}

	// Removal proposals
	case domain.OpProposeRemoval:
		var a ProposeRemovalArgs
		if a, err = decode[ProposeRemovalArgs](op); err == nil {
			res.ID, err = s.engine.ProposeRemoval(caller, a.Discussion, a.TargetListing, a.AllegesMalicious)
		}
	case domain.OpVoteRemoval:
		var a VoteArgs
		if a, err = decode[VoteArgs](op); err == nil {
			err = s.engine.VoteOnRemoval(caller, a.ID, a.InFavor)
		}
	case domain.OpCloseRemoval:
		var a IDArgs
		if a, err = decode[IDArgs](op); err == nil {
			var accepted bool
			if accepted, err = s.engine.CloseRemovalProposal(caller, a.ID); err == nil {
				res.Passed = passed(accepted)
			}
		}

	// Administration
	case domain.OpSetPollPeriod:
		var a PollPeriodArgs
		if a, err = decode[PollPeriodArgs](op); err == nil {
			err = s.engine.SetPollPeriod(caller, a.Family, a.Period)
		}

	default:
		err = fmt.Errorf("%q: %w", op.Kind, domain.ErrUnknownOperation)
	}
	return res, err
}

// ─── Chain ──────────────────────────────────────────────────────────────────

// Height returns the current block height.
func (s *Service) Height() uint64 { return s.clock.Height() }

// Mine advances the chain by n blocks and returns the new height.
// It waits for any operation in progress.
func (s *Service) Mine(n uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.clock.Advance(n)
	observability.LedgerHeight.Set(float64(h))
	return h
}

// ─── Accessors ──────────────────────────────────────────────────────────────
// Read-side access to components. Their query methods take their own locks.

func (s *Service) Config() Config { return s.cfg }
func (s *Service) Clock() *chain.Clock { return s.clock }
func (s *Service) Events() *events.Emitter { return s.emitter }
func (s *Service) Recent() *events.Recorder { return s.recent }
func (s *Service) Tracer() *observability.Tracer { return s.tracer }
func (s *Service) Token() *token.Ledger { return s.token }
func (s *Service) Ranks() *reputation.Store { return s.ranks }
func (s *Service) Listings() *catalog.Index { return s.listings }
func (s *Service) Sharing() *sharing.Registry { return s.sharing }
func (s *Service) Stakes() *staking.Ledger { return s.stakes }
func (s *Service) Engine() *governance.Engine { return s.engine }

// Status is a point-in-time summary of the ledger.
type Status struct {
	Height      uint64                        `json:"height"`
	Applied     uint64                        `json:"applied_operations"`
	Automine    bool                          `json:"automine"`
	TotalStaked uint64                        `json:"total_staked"`
	RewardPool  uint64                        `json:"reward_pool"`
	Stakers     int                           `json:"stakers"`
	Ranked      int                           `json:"ranked_accounts"`
	Listings    int                           `json:"accepted_listings"`
	Proposals   map[domain.ProposalFamily]int `json:"proposals"`
	Events      uint64                        `json:"events_emitted"`
	TotalSupply uint64                        `json:"token_supply"`
	Halted      bool                          `json:"halted"`
}

// Status returns the current summary.
func (s *Service) Status() Status {
	s.mu.Lock()
	halted := s.halted != nil
	s.mu.Unlock()

	stakers := 0
	for _, p := range s.stakes.Positions() {
		if p.Active {
			stakers++
		}
	}
	return Status{
		Height:      s.clock.Height(),
		Applied:     s.applied.Load(),
		Automine:    s.clock.Running(),
		TotalStaked: s.stakes.TotalStaked(),
		RewardPool:  s.stakes.AvailableReward(),
		Stakers:     stakers,
		Ranked:      s.ranks.Count(),
		Listings:    s.listings.Len(),
		Proposals:   s.engine.Counts(),
		Events:      s.emitter.Emitted(),
		TotalSupply: s.token.TotalSupply(),
		Halted:      halted,
	}
}
