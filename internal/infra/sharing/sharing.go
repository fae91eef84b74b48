// Package sharing tracks which staking accounts are sharing content and where.
//
// An account registers a sharing address while it is staking. The entry is
// dropped when the account stops sharing itself or when its stake leaves
// custody; only the stake ledger may report the latter.
package sharing

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ric-network/catalogdao/internal/domain"
)

// StakeChecker reports whether an account currently holds an active stake.
type StakeChecker interface {
	IsStaking(account domain.Account) bool
}

// Entry is one registered sharing address.
type Entry struct {
	Account domain.Account `json:"account"`
	Address string         `json:"address"`
	Since   uint64         `json:"since"`
}

// Registry holds sharing addresses keyed by account.
// Thread-safe via RWMutex.
type Registry struct {
	mu      sync.RWMutex
	ledger  domain.Account // the only caller allowed to use StoppedStaking
	entries map[domain.Account]Entry

	stakes StakeChecker
	height func() uint64
	events domain.EventSink
}

// NewRegistry creates a registry. ledger is the stake ledger's custody account.
func NewRegistry(ledger domain.Account, stakes StakeChecker, height func() uint64, events domain.EventSink) *Registry {
	if events == nil {
		events = domain.DiscardEvents
	}
	return &Registry{
		ledger:  ledger,
		entries: make(map[domain.Account]Entry),
		stakes:  stakes,
		height:  height,
		events:  events,
	}
}

// SetStakeChecker wires the stake ledger after construction.
func (r *Registry) SetStakeChecker(s StakeChecker) {
	r.mu.Lock()
	r.stakes = s
	r.mu.Unlock()
}

// SetSharing registers or replaces caller's sharing address.
func (r *Registry) SetSharing(caller domain.Account, address string) error {
	if caller.IsZero() {
		return domain.ErrMissingCaller
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("sharing address is empty: %w", domain.ErrInvalidArgument)
	}

	// Checked before taking mu: the stake ledger calls back into the
	// registry while holding its own lock.
	r.mu.RLock()
	stakes := r.stakes
	r.mu.RUnlock()
	if stakes == nil || !stakes.IsStaking(caller) {
		return domain.ErrNotStaking
	}

	h := r.height()
	r.mu.Lock()
	r.entries[caller] = Entry{Account: caller, Address: address, Since: h}
	r.mu.Unlock()

	r.events.Emit(domain.NewEvent(domain.EventSharingSet, h, caller).With("address", address))
	return nil
}

// StopSharing removes caller's own entry. Stopping when not sharing is a no-op.
func (r *Registry) StopSharing(caller domain.Account) error {
	if caller.IsZero() {
		return domain.ErrMissingCaller
	}
	r.remove(caller, "self")
	return nil
}

// StoppedStaking removes account's entry after its stake was withdrawn or
// penalized.
// Only the stake ledger may call it.
func (r *Registry) StoppedStaking(caller, account domain.Account) error {
	if caller != r.ledger {
		return domain.ErrNotGovernor
	}
	r.remove(account, "stake_ended")
	return nil
}

func (r *Registry) remove(account domain.Account, reason string) {
	r.mu.Lock()
	_, ok := r.entries[account]
	delete(r.entries, account)
	r.mu.Unlock()
	if ok {
		r.events.Emit(domain.NewEvent(domain.EventSharingStopped, r.height(), account).With("reason", reason))
	}
}

// Get returns account's entry.
func (r *Registry) Get(account domain.Account) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[account]
	return e, ok
}

// Entries returns all sharing entries ordered by account.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}
