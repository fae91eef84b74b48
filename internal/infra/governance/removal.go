package governance

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ric-network/catalogdao/internal/domain"
)

// ProposeRemoval opens a proposal to remove an accepted listing.
// Requires rank 2. Only one removal may be pending per listing.
func (e *Engine) ProposeRemoval(caller domain.Account, discussion string, target uint64, allegesMalicious bool) (uint64, error) {
	if caller.IsZero() {
		return 0, domain.ErrMissingCaller
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireVoter(caller, domain.RankRemover); err != nil {
		return 0, err
	}
	listing, err := e.deps.Listings.Get(target)
	if err != nil {
		return 0, fmt.Errorf("removal target %d: %w", target, err)
	}
	if listing.Removed {
		return 0, domain.ErrListingRemoved
	}
	if _, pending := e.pendingRemoval[target]; pending {
		return 0, domain.ErrRemovalPending
	}
	if err := e.extend(caller); err != nil {
		return 0, err
	}

	h := e.deps.Height()
	p := &domain.RemovalProposal{
		ID:               uint64(len(e.removals)) + 1,
		Creator:          caller,
		Discussion:       discussion,
		TargetListing:    target,
		AllegesMalicious: allegesMalicious,
		CreatedAt:        h,
	}
	e.removals = append(e.removals, p)
	e.pendingRemoval[target] = p.ID

	e.deps.Logger.Info("removal proposed",
		zap.String("account", caller.String()), zap.Uint64("id", p.ID), zap.Uint64("listing", target))
	e.emit(domain.NewEvent(domain.EventRemovalProposed, h, caller).
		WithUint("id", p.ID).
		WithUint("listing", target).
		With("accused", listing.Creator.String()).
		WithBool("alleges_malicious", allegesMalicious))
	return p.ID, nil
}

// VoteOnRemoval casts a weighted vote. The accused listing creator may not
// vote on their own removal.
func (e *Engine) VoteOnRemoval(caller domain.Account, id uint64, approve bool) error {
	if caller.IsZero() {
		return domain.ErrMissingCaller
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.removalProposal(id)
	if err != nil {
		return err
	}
	if err := e.requireVoter(caller, domain.RankVoter); err != nil {
		return err
	}
	if p.Closed {
		return domain.ErrProposalClosed
	}
	listing, err := e.deps.Listings.Get(p.TargetListing)
	if err != nil {
		return err
	}
	if listing.Creator == caller {
		return domain.ErrAccusedVoter
	}
	box := e.ballots[domain.FamilyRemoval]
	if box.has(id, caller) {
		return domain.ErrAlreadyVoted
	}
	if err := e.extend(caller); err != nil {
		return err
	}

	h := e.deps.Height()
	weight := e.deps.Ranks.Rank(caller)
	box.add(id, domain.Vote{Voter: caller, Weight: weight, InFavor: approve, Height: h})
	if approve {
		p.Approvals += weight
	} else {
		p.Rejections += weight
	}

	e.emit(domain.NewEvent(domain.EventRemovalVoted, h, caller).
		WithUint("id", id).
		WithUint("weight", weight).
		WithBool("approve", approve))
	return nil
}

// CloseRemovalProposal resolves a removal proposal. On acceptance the listing
// is marked removed and its creator is penalized and loses all rank. Either
// way the pending-removal mark on the listing is released.
func (e *Engine) CloseRemovalProposal(caller domain.Account, id uint64) (bool, error) {
	if caller.IsZero() {
		return false, domain.ErrMissingCaller
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.removalProposal(id)
	if err != nil {
		return false, err
	}
	if p.Closed {
		return false, domain.ErrProposalClosed
	}
	if err := e.pollElapsed(domain.FamilyRemoval, p.CreatedAt); err != nil {
		return false, err
	}

	h := e.deps.Height()
	accept := p.Approvals >= e.cfg.AcceptanceThreshold
	if accept {
		listing, err := e.deps.Listings.Get(p.TargetListing)
		if err != nil {
			return false, err
		}
		if listing.Removed {
			return false, domain.ErrListingRemoved
		}
		if err := e.penalize(listing.Creator, h, "listing removed"); err != nil {
			return false, err
		}
		if err := e.deps.Listings.MarkRemoved(listing.ID); err != nil {
			return false, err
		}
	}
	p.Closed = true
	p.Accepted = accept
	delete(e.pendingRemoval, p.TargetListing)

	e.deps.Logger.Info("removal proposal closed",
		zap.Uint64("id", id), zap.Uint64("listing", p.TargetListing), zap.Bool("accepted", accept))
	e.emit(domain.NewEvent(domain.EventRemovalClosed, h, caller).
		WithUint("id", id).
		WithUint("listing", p.TargetListing).
		WithUint("approvals", p.Approvals).
		WithUint("rejections", p.Rejections).
		WithBool("accepted", accept))
	return accept, nil
}

// RemovalProposal returns a copy of a removal proposal.
func (e *Engine) RemovalProposal(id uint64) (domain.RemovalProposal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, err := e.removalProposal(id)
	if err != nil {
		return domain.RemovalProposal{}, err
	}
	return *p, nil
}

// RemovalProposals returns copies of all removal proposals in id order.
func (e *Engine) RemovalProposals() []domain.RemovalProposal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.RemovalProposal, 0, len(e.removals))
	for _, p := range e.removals {
		out = append(out, *p)
	}
	return out
}

func (e *Engine) removalProposal(id uint64) (*domain.RemovalProposal, error) {
	if id == 0 || id > uint64(len(e.removals)) {
		return nil, domain.ErrProposalNotFound
	}
	return e.removals[id-1], nil
}
