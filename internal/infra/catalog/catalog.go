// Package catalog is the durable index of accepted listings.
//
// Rows are appended by the proposal engine when a listing proposal passes and
// are never deleted: removal only flips the Removed flag. The index is read by
// reward claims and removal proposals and serves paginated listing queries.
package catalog

import (
	"sync"

	"github.com/google/btree"

	"github.com/ric-network/catalogdao/internal/domain"
)

const defaultTreeDegree = 16

func lessByID(a, b *domain.AcceptedListing) bool { return a.ID < b.ID }

// Index stores accepted listings ordered by id. IDs start at 1.
// Thread-safe via RWMutex; returned listings are copies.
type Index struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[*domain.AcceptedListing]
	next uint64
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		tree: btree.NewG(defaultTreeDegree, lessByID),
		next: 1,
	}
}

// Append stores l under the next id and returns it. Caller-supplied ID,
// Removed and RewardClaimed are ignored.
func (x *Index) Append(l domain.AcceptedListing) uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	l.ID = x.next
	l.Removed = false
	l.RewardClaimed = false
	x.next++
	x.tree.ReplaceOrInsert(&l)
	return l.ID
}

func (x *Index) lookup(id uint64) (*domain.AcceptedListing, bool) {
	return x.tree.Get(&domain.AcceptedListing{ID: id})
}

// Get returns the listing with the given id.
func (x *Index) Get(id uint64) (domain.AcceptedListing, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	l, ok := x.lookup(id)
	if !ok {
		return domain.AcceptedListing{}, domain.ErrListingNotFound
	}
	return *l, nil
}

// MarkRemoved flags a listing as removed. Removing twice is an error.
func (x *Index) MarkRemoved(id uint64) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	l, ok := x.lookup(id)
	if !ok {
		return domain.ErrListingNotFound
	}
	if l.Removed {
		return domain.ErrListingRemoved
	}
	l.Removed = true
	return nil
}

// MarkRewardClaimed flips RewardClaimed exactly once.
func (x *Index) MarkRewardClaimed(id uint64) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	l, ok := x.lookup(id)
	if !ok {
		return domain.ErrListingNotFound
	}
	if l.RewardClaimed {
		return domain.ErrRewardClaimed
	}
	l.RewardClaimed = true
	return nil
}

// Len returns the number of accepted listings, removed ones included.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.tree.Len()
}

// ─── Queries ────────────────────────────────────────────────────────────────

func (x *Index) collect(pivot uint64, limit int, keep func(*domain.AcceptedListing) bool) []domain.AcceptedListing {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []domain.AcceptedListing
	x.tree.AscendGreaterOrEqual(&domain.AcceptedListing{ID: pivot}, func(l *domain.AcceptedListing) bool {
		if keep == nil || keep(l) {
			out = append(out, *l)
		}
		return limit <= 0 || len(out) < limit
	})
	return out
}

// All returns every accepted listing in id order.
func (x *Index) All() []domain.AcceptedListing {
	return x.collect(0, 0, nil)
}

// Removed returns every removed listing in id order.
func (x *Index) Removed() []domain.AcceptedListing {
	return x.collect(0, 0, func(l *domain.AcceptedListing) bool { return l.Removed })
}

// Page returns up to limit listings with id greater than after.
func (x *Index) Page(after uint64, limit int) []domain.AcceptedListing {
	return x.collect(after+1, limit, nil)
}

// ByCreator returns the ids of listings created by account.
func (x *Index) ByCreator(account domain.Account) []uint64 {
	rows := x.collect(0, 0, func(l *domain.AcceptedListing) bool { return l.Creator == account })
	ids := make([]uint64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids
}
