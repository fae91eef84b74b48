// Package reputation keeps the integer rank of every participant.
//
// Rank is the voting weight of an account and the gate for governance
// actions:
//   - 0: unranked, may only request a rank and express opinions
//   - 1: may vote, propose listings and claim rewards
//   - 2+: may additionally propose listing removals
//
// Rank is earned by having listings accepted: every RankUpInterval accepted
// listings adds one. The cumulative accepted count is never decremented, even
// when a listing is later removed. A successful removal or a suspicious close
// resets rank to zero.
//
// The store is mutated only by the proposal engine and by genesis seeding.
package reputation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ric-network/catalogdao/internal/domain"
)

// ─── Types ──────────────────────────────────────────────────────────────────

// Standing is an account's complete reputation state.
type Standing struct {
	Account   domain.Account `json:"account"`
	Rank      uint64         `json:"rank"`
	Accepted  uint64         `json:"accepted"` // cumulative accepted listings
	Resets    uint64         `json:"resets"`   // times rank was cleared
	UpdatedAt uint64         `json:"updated_at"`
}

// Tier returns a human label for the rank.
func (s Standing) Tier() string {
	switch {
	case s.Rank >= domain.RankRemover:
		return "REMOVER"
	case s.Rank == domain.RankVoter:
		return "VOTER"
	default:
		return "UNRANKED"
	}
}

// ─── Store ──────────────────────────────────────────────────────────────────

// Store manages ranks for all accounts.
// Thread-safe via RWMutex.
type Store struct {
	mu       sync.RWMutex
	accounts map[domain.Account]*Standing

	// Injectable height source for testing.
	height func() uint64
}

// NewStore creates an empty store. height may be nil.
func NewStore(height func() uint64) *Store {
	if height == nil {
		height = func() uint64 { return 0 }
	}
	return &Store{
		accounts: make(map[domain.Account]*Standing),
		height:   height,
	}
}

// getOrCreate returns the standing for account. Caller must hold mu.
func (s *Store) getOrCreate(account domain.Account) *Standing {
	st, ok := s.accounts[account]
	if !ok {
		st = &Standing{Account: account}
		s.accounts[account] = st
	}
	return st
}

// Seed sets an initial rank. Used for genesis only.
func (s *Store) Seed(account domain.Account, rank uint64) error {
	if account.IsZero() {
		return fmt.Errorf("seed rank: %w", domain.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getOrCreate(account)
	st.Rank = rank
	st.UpdatedAt = s.height()
	return nil
}

// Rank returns the account's rank; unknown accounts have rank 0.
func (s *Store) Rank(account domain.Account) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.accounts[account]; ok {
		return st.Rank
	}
	return 0
}

// Get returns a copy of the account's standing.
func (s *Store) Get(account domain.Account) Standing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.accounts[account]; ok {
		return *st
	}
	return Standing{Account: account}
}

// Require fails with ErrNotRanked when account's rank is below min.
func (s *Store) Require(account domain.Account, min uint64) error {
	if s.Rank(account) < min {
		return domain.ErrNotRanked
	}
	return nil
}

// ─── Mutations ──────────────────────────────────────────────────────────────

// Grant raises an unranked account to the first tier.
// A higher existing rank is never lowered. Returns whether the rank changed.
func (s *Store) Grant(account domain.Account) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getOrCreate(account)
	if st.Rank >= domain.RankVoter {
		return false
	}
	st.Rank = domain.RankVoter
	st.UpdatedAt = s.height()
	return true
}

// RecordAcceptance increments the cumulative accepted count and adds one rank
// whenever the count reaches a multiple of interval. interval 0 disables
// rank-ups.
func (s *Store) RecordAcceptance(account domain.Account, interval uint64) (rank uint64, rankedUp bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getOrCreate(account)
	st.Accepted++
	if interval > 0 && st.Accepted%interval == 0 {
		st.Rank++
		st.UpdatedAt = s.height()
		rankedUp = true
	}
	return st.Rank, rankedUp
}

// Reset clears account's rank and returns the previous value.
func (s *Store) Reset(account domain.Account) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getOrCreate(account)
	prev := st.Rank
	st.Rank = 0
	st.Resets++
	st.UpdatedAt = s.height()
	return prev
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Top returns up to limit ranked accounts, highest rank first.
// Ties are broken by account for deterministic output.
func (s *Store) Top(limit int) []Standing {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Standing, 0, len(s.accounts))
	for _, st := range s.accounts {
		if st.Rank > 0 {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].Account < out[j].Account
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Count returns the number of accounts with a non-zero rank.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, st := range s.accounts {
		if st.Rank > 0 {
			n++
		}
	}
	return n
}
