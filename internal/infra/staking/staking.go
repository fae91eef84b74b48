// Package staking implements the stake ledger: custody of staked tokens, the
// shared reward pool, reward claims for accepted listings and penalties.
//
// Tokens enter custody through the token ledger's delegated TransferFrom, so
// an account must approve the custody account before staking or depositing.
// Staked tokens and the reward pool are both held by the custody account;
// claims and penalties only move value between positions and the pool.
//
// Cross-account writes (ExtendStakeTime, Penalize) are accepted only from the
// governor account, which is the proposal engine.
package staking

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ric-network/catalogdao/internal/domain"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Rewards configures the payout for an accepted original listing.
// The bonuses stack independently.
type Rewards struct {
	Base          uint64 `toml:"base" yaml:"base"`
	FrontendBonus uint64 `toml:"frontend_bonus" yaml:"frontend_bonus"`
	FeesBonus     uint64 `toml:"fees_bonus" yaml:"fees_bonus"`
}

// Config holds deployment-time stake parameters.
type Config struct {
	StakeAmount uint64
	LockPeriod  uint64 // heights between the last extension and unlock
	Rewards     Rewards
}

// DefaultConfig returns the deployment defaults.
func DefaultConfig() Config {
	return Config{
		StakeAmount: 30,
		LockPeriod:  100,
		Rewards:     Rewards{Base: 10, FrontendBonus: 5, FeesBonus: 5},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.StakeAmount == 0 {
		return fmt.Errorf("stake amount must be positive: %w", domain.ErrInvalidArgument)
	}
	return nil
}

// ─── Collaborators ──────────────────────────────────────────────────────────

// Token is the fungible token held in custody.
type Token interface {
	Transfer(caller, to domain.Account, amount uint64) error
	TransferFrom(spender, from, to domain.Account, amount uint64) error
}

// Listings is the accepted-listing index as seen by reward claims.
type Listings interface {
	Get(id uint64) (domain.AcceptedListing, error)
	MarkRewardClaimed(id uint64) error
}

// SharingHook is told when an account's stake leaves custody.
type SharingHook interface {
	StoppedStaking(caller, account domain.Account) error
}

// Deps wires the ledger to its collaborators.
type Deps struct {
	Custody  domain.Account // account that holds staked tokens and the pool
	Governor domain.Account // proposal engine account
	Token    Token
	Listings Listings
	Ranks    domain.RankReader
	Sharing  SharingHook // optional
	Events   domain.EventSink
	Height   func() uint64
	Logger   *zap.Logger
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

// Ledger is the stake ledger. All methods are safe for concurrent use; the
// reward pool is guarded by the same mutex as the positions.
type Ledger struct {
	mu        sync.RWMutex
	cfg       Config
	deps      Deps
	positions map[domain.Account]*domain.StakePosition
	pool      uint64
	staked    uint64 // sum of active position amounts
}

// NewLedger creates a stake ledger.
func NewLedger(cfg Config, deps Deps) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Custody.IsZero() || deps.Governor.IsZero() {
		return nil, fmt.Errorf("custody and governor accounts are required: %w", domain.ErrInvalidArgument)
	}
	if deps.Token == nil || deps.Listings == nil || deps.Ranks == nil || deps.Height == nil {
		return nil, fmt.Errorf("token, listings, ranks and height are required: %w", domain.ErrInvalidArgument)
	}
	if deps.Events == nil {
		deps.Events = domain.DiscardEvents
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Ledger{
		cfg:       cfg,
		deps:      deps,
		positions: make(map[domain.Account]*domain.StakePosition),
	}, nil
}

// Config returns the ledger configuration.
func (l *Ledger) Config() Config { return l.cfg }

// Custody returns the custody account.
func (l *Ledger) Custody() domain.Account { return l.deps.Custody }

func (l *Ledger) emit(ev domain.Event) { l.deps.Events.Emit(ev) }

// ─── Stake / Unstake ────────────────────────────────────────────────────────

// Stake moves StakeAmount from caller into custody and activates the position.
func (l *Ledger) Stake(caller domain.Account) error {
	if caller.IsZero() {
		return domain.ErrMissingCaller
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.positions[caller]; ok && p.Active {
		return domain.ErrAlreadyStaking
	}
	amount := l.cfg.StakeAmount
	if err := l.deps.Token.TransferFrom(l.deps.Custody, caller, l.deps.Custody, amount); err != nil {
		return fmt.Errorf("stake: %w", err)
	}

	h := l.deps.Height()
	l.positions[caller] = &domain.StakePosition{Account: caller, Amount: amount, StakedAt: h, Active: true}
	l.staked += amount

	l.deps.Logger.Info("staked", zap.String("account", caller.String()), zap.Uint64("amount", amount), zap.Uint64("height", h))
	l.emit(domain.NewEvent(domain.EventStaked, h, caller).
		WithUint("amount", amount).
		WithUint("balance", amount))
	return nil
}

// Unstake returns the full position to caller once the lock has elapsed.
func (l *Ledger) Unstake(caller domain.Account) error {
	if caller.IsZero() {
		return domain.ErrMissingCaller
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[caller]
	if !ok || !p.Active {
		return domain.ErrNotStaking
	}
	h := l.deps.Height()
	if h < p.UnlocksAt(l.cfg.LockPeriod) {
		return domain.ErrStakeLocked
	}
	amount := p.Amount
	if err := l.deps.Token.Transfer(l.deps.Custody, caller, amount); err != nil {
		return fmt.Errorf("unstake: %w", err)
	}

	p.Amount = 0
	p.Active = false
	l.staked -= amount

	if l.deps.Sharing != nil {
		if err := l.deps.Sharing.StoppedStaking(l.deps.Custody, caller); err != nil {
			l.deps.Logger.Warn("stop sharing after unstake failed",
				zap.String("account", caller.String()), zap.Error(err))
		}
	}

	l.deps.Logger.Info("unstaked", zap.String("account", caller.String()), zap.Uint64("amount", amount), zap.Uint64("height", h))
	l.emit(domain.NewEvent(domain.EventUnstaked, h, caller).WithUint("amount", amount))
	return nil
}

// ExtendStakeTime resets account's lock to the current height.
// Governor only; inactive positions are left untouched.
func (l *Ledger) ExtendStakeTime(caller, account domain.Account) error {
	if caller != l.deps.Governor {
		return domain.ErrNotGovernor
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[account]
	if !ok || !p.Active {
		return nil
	}
	h := l.deps.Height()
	p.StakedAt = h
	l.emit(domain.NewEvent(domain.EventStakeExtended, h, account).
		WithUint("unlocks_at", p.UnlocksAt(l.cfg.LockPeriod)))
	return nil
}

// ─── Rewards ────────────────────────────────────────────────────────────────

// DepositRewards moves amount from caller into the shared reward pool.
func (l *Ledger) DepositRewards(caller domain.Account, amount uint64) error {
	if caller.IsZero() {
		return domain.ErrMissingCaller
	}
	if amount == 0 {
		return fmt.Errorf("deposit amount must be positive: %w", domain.ErrInvalidArgument)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.deps.Token.TransferFrom(l.deps.Custody, caller, l.deps.Custody, amount); err != nil {
		return fmt.Errorf("deposit rewards: %w", err)
	}
	l.pool += amount

	h := l.deps.Height()
	l.emit(domain.NewEvent(domain.EventRewardDeposited, h, caller).
		WithUint("amount", amount).
		WithUint("pool", l.pool))
	return nil
}

// ActualReward computes the payout for a listing with the given features.
func (l *Ledger) ActualReward(hasFrontend, hasFees bool) uint64 {
	r := l.cfg.Rewards.Base
	if hasFrontend {
		r += l.cfg.Rewards.FrontendBonus
	}
	if hasFees {
		r += l.cfg.Rewards.FeesBonus
	}
	return r
}

// ClaimReward pays the reward for an accepted listing into caller's stake.
// Every check precedes every mutation.
func (l *Ledger) ClaimReward(caller domain.Account, listingID uint64) (uint64, error) {
	if caller.IsZero() {
		return 0, domain.ErrMissingCaller
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	listing, err := l.deps.Listings.Get(listingID)
	if err != nil {
		return 0, err
	}
	switch {
	case listing.RewardClaimed:
		return 0, domain.ErrRewardClaimed
	case listing.Removed:
		return 0, domain.ErrListingRemoved
	case listing.Creator != caller:
		return 0, domain.ErrNotCreator
	}
	p, ok := l.positions[caller]
	if !ok || !p.Active {
		return 0, domain.ErrNotStaking
	}
	if l.deps.Ranks.Rank(caller) < domain.RankVoter {
		return 0, domain.ErrNotRanked
	}
	if listing.IsUpdate {
		return 0, domain.ErrUpdateNoReward
	}
	reward := l.ActualReward(listing.HasFrontend, listing.HasFees)
	if l.pool < reward {
		return 0, domain.ErrInsufficientRewardPool
	}
	if err := l.deps.Listings.MarkRewardClaimed(listingID); err != nil {
		return 0, err
	}

	l.pool -= reward
	p.Amount += reward
	l.staked += reward

	h := l.deps.Height()
	l.deps.Logger.Info("reward claimed",
		zap.String("account", caller.String()), zap.Uint64("listing", listingID), zap.Uint64("reward", reward))
	l.emit(domain.NewEvent(domain.EventRewardClaimed, h, caller).
		WithUint("listing", listingID).
		WithUint("amount", reward).
		WithUint("balance", p.Amount).
		WithUint("pool", l.pool))
	return reward, nil
}

// ─── Penalties ──────────────────────────────────────────────────────────────

// Penalize moves account's entire stake into the reward pool, deactivates
// the position and drops its sharing entry. Governor only. The caller is
// responsible for clearing rank.
func (l *Ledger) Penalize(caller, account domain.Account) error {
	if caller != l.deps.Governor {
		return domain.ErrNotGovernor
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var amount uint64
	if p, ok := l.positions[account]; ok {
		amount = p.Amount
		if p.Active {
			l.staked -= amount
		}
		p.Amount = 0
		p.Active = false
	}
	l.pool += amount

	if l.deps.Sharing != nil {
		if err := l.deps.Sharing.StoppedStaking(l.deps.Custody, account); err != nil {
			l.deps.Logger.Warn("stop sharing after penalty failed",
				zap.String("account", account.String()), zap.Error(err))
		}
	}

	h := l.deps.Height()
	l.deps.Logger.Warn("stake penalized",
		zap.String("account", account.String()), zap.Uint64("amount", amount), zap.Uint64("height", h))
	l.emit(domain.NewEvent(domain.EventPenalized, h, account).
		WithUint("amount", amount).
		WithUint("pool", l.pool))
	return nil
}

// ─── Queries ────────────────────────────────────────────────────────────────

// IsStaking reports whether account holds an active position.
func (l *Ledger) IsStaking(account domain.Account) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[account]
	return ok && p.Active
}

// Position returns a copy of account's position.
func (l *Ledger) Position(account domain.Account) (domain.StakePosition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[account]
	if !ok {
		return domain.StakePosition{Account: account}, false
	}
	return *p, true
}

// Positions returns every active position ordered by account.
func (l *Ledger) Positions() []domain.StakePosition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.StakePosition, 0, len(l.positions))
	for _, p := range l.positions {
		if p.Active {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}

// TotalStaked returns the sum of all active positions.
func (l *Ledger) TotalStaked() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.staked
}

// AvailableReward returns the reward pool balance.
func (l *Ledger) AvailableReward() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pool
}
