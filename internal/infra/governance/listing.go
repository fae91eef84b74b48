package governance

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ric-network/catalogdao/internal/domain"
)

// ListingRequest describes a proposed catalog entry.
type ListingRequest struct {
	ContentRef  string
	HasFrontend bool
	HasFees     bool
	IsUpdate    bool
	UpdateOf    uint64 // accepted listing id, only when IsUpdate
}

// ProposeListing opens a listing proposal. The creator's own approval is not
// cast automatically.
func (e *Engine) ProposeListing(caller domain.Account, req ListingRequest) (uint64, error) {
	if caller.IsZero() {
		return 0, domain.ErrMissingCaller
	}
	ref := strings.TrimSpace(req.ContentRef)
	if ref == "" {
		return 0, fmt.Errorf("content reference is empty: %w", domain.ErrInvalidArgument)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireVoter(caller, domain.RankVoter); err != nil {
		return 0, err
	}
	var updateOf uint64
	if req.IsUpdate {
		target, err := e.deps.Listings.Get(req.UpdateOf)
		if err != nil {
			return 0, fmt.Errorf("update target %d: %w", req.UpdateOf, err)
		}
		if target.Removed {
			return 0, fmt.Errorf("update target %d: %w", req.UpdateOf, domain.ErrListingRemoved)
		}
		updateOf = target.ID
	}
	if err := e.extend(caller); err != nil {
		return 0, err
	}

	h := e.deps.Height()
	p := &domain.ListingProposal{
		ID:          uint64(len(e.listings)) + 1,
		Creator:     caller,
		ContentRef:  ref,
		HasFrontend: req.HasFrontend,
		HasFees:     req.HasFees,
		IsUpdate:    req.IsUpdate,
		UpdateOf:    updateOf,
		CreatedAt:   h,
		State:       domain.ListingOpen,
	}
	e.listings = append(e.listings, p)

	e.deps.Logger.Info("listing proposed",
		zap.String("account", caller.String()), zap.Uint64("id", p.ID), zap.Bool("update", p.IsUpdate))
	e.emit(domain.NewEvent(domain.EventListingProposed, h, caller).
		WithUint("id", p.ID).
		With("content_ref", ref).
		WithBool("has_frontend", p.HasFrontend).
		WithBool("has_fees", p.HasFees).
		WithBool("is_update", p.IsUpdate).
		WithUint("update_of", updateOf))
	return p.ID, nil
}

// VoteOnListing casts a weighted vote. A suspicious vote adds the same weight
// to the suspicious tally on top of the approval or rejection.
func (e *Engine) VoteOnListing(caller domain.Account, id uint64, approve, suspicious bool) error {
	if caller.IsZero() {
		return domain.ErrMissingCaller
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.listingProposal(id)
	if err != nil {
		return err
	}
	if err := e.requireVoter(caller, domain.RankVoter); err != nil {
		return err
	}
	if p.State.Terminal() {
		return domain.ErrProposalClosed
	}
	box := e.ballots[domain.FamilyListing]
	if box.has(id, caller) {
		return domain.ErrAlreadyVoted
	}
	if err := e.extend(caller); err != nil {
		return err
	}

	h := e.deps.Height()
	weight := e.deps.Ranks.Rank(caller)
	box.add(id, domain.Vote{Voter: caller, Weight: weight, InFavor: approve, Suspicious: suspicious, Height: h})
	if approve {
		p.Approvals += weight
	} else {
		p.Rejections += weight
	}
	if suspicious {
		p.Suspicious += weight
	}

	e.emit(domain.NewEvent(domain.EventListingVoted, h, caller).
		WithUint("id", id).
		WithUint("weight", weight).
		WithBool("approve", approve).
		WithBool("suspicious", suspicious))
	return nil
}

// CloseListingProposal resolves a listing proposal to ACCEPTED or REJECTED.
//
// It refuses proposals whose suspicious weight reached the threshold (those
// close through CloseSuspiciousProposal) and updates of a listing with a
// pending removal. A proposal whose creator has lost rank since proposing is
// rejected regardless of approvals.
func (e *Engine) CloseListingProposal(caller domain.Account, id uint64) (domain.ListingState, error) {
	if caller.IsZero() {
		return "", domain.ErrMissingCaller
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.listingProposal(id)
	if err != nil {
		return "", err
	}
	if p.State.Terminal() {
		return p.State, domain.ErrProposalClosed
	}
	if err := e.pollElapsed(domain.FamilyListing, p.CreatedAt); err != nil {
		return p.State, err
	}
	if p.Suspicious >= e.cfg.AcceptanceThreshold {
		return p.State, domain.ErrListingSuspicious
	}
	if p.IsUpdate {
		if _, pending := e.pendingRemoval[p.UpdateOf]; pending {
			return p.State, domain.ErrRemovalPending
		}
	}

	h := e.deps.Height()
	reason := ""
	accept := p.Approvals >= e.cfg.AcceptanceThreshold
	if accept && e.deps.Ranks.Rank(p.Creator) < domain.RankVoter {
		accept, reason = false, "creator unranked"
	}
	if accept && p.IsUpdate {
		if target, err := e.deps.Listings.Get(p.UpdateOf); err != nil || target.Removed {
			accept, reason = false, "update target removed"
		}
	}

	if !accept {
		p.State = domain.ListingRejected
		e.deps.Logger.Info("listing rejected", zap.Uint64("id", id), zap.String("reason", reason))
		e.emit(domain.NewEvent(domain.EventListingClosed, h, caller).
			WithUint("id", id).
			With("creator", p.Creator.String()).
			With("state", string(p.State)).
			With("reason", reason))
		return p.State, nil
	}

	p.State = domain.ListingAccepted
	p.ListingID = e.deps.Listings.Append(domain.AcceptedListing{
		ProposalID:  p.ID,
		Creator:     p.Creator,
		ContentRef:  p.ContentRef,
		HasFrontend: p.HasFrontend,
		HasFees:     p.HasFees,
		IsUpdate:    p.IsUpdate,
		UpdateOf:    p.UpdateOf,
		AcceptedAt:  h,
	})
	prev := e.deps.Ranks.Rank(p.Creator)
	rank, rankedUp := e.deps.Ranks.RecordAcceptance(p.Creator, e.cfg.RankUpInterval)

	e.deps.Logger.Info("listing accepted",
		zap.Uint64("id", id), zap.Uint64("listing", p.ListingID), zap.String("account", p.Creator.String()))
	e.emit(domain.NewEvent(domain.EventListingClosed, h, caller).
		WithUint("id", id).
		With("creator", p.Creator.String()).
		With("state", string(p.State)).
		WithUint("listing", p.ListingID))
	if rankedUp {
		e.emit(domain.NewEvent(domain.EventRankChanged, h, p.Creator).
			WithUint("previous", prev).
			WithUint("rank", rank).
			With("reason", "accepted listings"))
	}
	return p.State, nil
}

// CloseSuspiciousProposal resolves a listing whose suspicious weight reached
// the threshold to PENALIZED, slashing the creator's stake and rank.
func (e *Engine) CloseSuspiciousProposal(caller domain.Account, id uint64) error {
	if caller.IsZero() {
		return domain.ErrMissingCaller
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.listingProposal(id)
	if err != nil {
		return err
	}
	if p.State.Terminal() {
		return domain.ErrProposalClosed
	}
	if err := e.pollElapsed(domain.FamilyListing, p.CreatedAt); err != nil {
		return err
	}
	if p.Suspicious < e.cfg.AcceptanceThreshold {
		return domain.ErrNotSuspicious
	}

	h := e.deps.Height()
	if err := e.penalize(p.Creator, h, "suspicious listing"); err != nil {
		return err
	}
	p.State = domain.ListingPenalized

	e.emit(domain.NewEvent(domain.EventListingPenalized, h, caller).
		WithUint("id", id).
		With("creator", p.Creator.String()).
		WithUint("suspicious", p.Suspicious))
	return nil
}

// ExpressOpinion records a like or dislike on an accepted listing proposal.
// Any account may do so once; opinions carry no economic effect.
func (e *Engine) ExpressOpinion(caller domain.Account, id uint64, liked bool) error {
	if caller.IsZero() {
		return domain.ErrMissingCaller
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.listingProposal(id)
	if err != nil {
		return err
	}
	if p.State != domain.ListingAccepted {
		return domain.ErrListingNotAccepted
	}
	seen, ok := e.opinions[id]
	if !ok {
		seen = make(map[domain.Account]bool)
		e.opinions[id] = seen
	}
	if _, done := seen[caller]; done {
		return domain.ErrOpinionExpressed
	}
	seen[caller] = liked
	if liked {
		p.Likes++
	} else {
		p.Dislikes++
	}

	e.emit(domain.NewEvent(domain.EventOpinion, e.deps.Height(), caller).
		WithUint("id", id).
		WithBool("liked", liked))
	return nil
}

// Opinion returns caller's recorded opinion on a listing proposal.
func (e *Engine) Opinion(id uint64, account domain.Account) (liked, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	liked, ok = e.opinions[id][account]
	return liked, ok
}

// ListingProposal returns a copy of a listing proposal.
func (e *Engine) ListingProposal(id uint64) (domain.ListingProposal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, err := e.listingProposal(id)
	if err != nil {
		return domain.ListingProposal{}, err
	}
	return *p, nil
}

// ListingProposals returns copies of all listing proposals in id order.
func (e *Engine) ListingProposals() []domain.ListingProposal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.ListingProposal, 0, len(e.listings))
	for _, p := range e.listings {
		out = append(out, *p)
	}
	return out
}

func (e *Engine) listingProposal(id uint64) (*domain.ListingProposal, error) {
	if id == 0 || id > uint64(len(e.listings)) {
		return nil, domain.ErrProposalNotFound
	}
	return e.listings[id-1], nil
}
