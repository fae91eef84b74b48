package governance

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ric-network/catalogdao/internal/domain"
)

// ProposeRank opens a request by caller to be granted the first rank tier.
// A creator may have only one unresolved rank proposal.
func (e *Engine) ProposeRank(caller domain.Account, payload string) (uint64, error) {
	if caller.IsZero() {
		return 0, domain.ErrMissingCaller
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return 0, fmt.Errorf("rank payload is empty: %w", domain.ErrInvalidArgument)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.openRank[caller]; ok {
		return 0, domain.ErrDuplicateProposal
	}
	if err := e.extend(caller); err != nil {
		return 0, err
	}

	h := e.deps.Height()
	p := &domain.RankProposal{
		ID:        uint64(len(e.ranks)) + 1,
		Creator:   caller,
		Payload:   payload,
		CreatedAt: h,
	}
	e.ranks = append(e.ranks, p)
	e.openRank[caller] = p.ID

	e.deps.Logger.Info("rank proposed", zap.String("account", caller.String()), zap.Uint64("id", p.ID))
	e.emit(domain.NewEvent(domain.EventRankProposed, h, caller).
		WithUint("id", p.ID).
		With("payload", payload))
	return p.ID, nil
}

// VoteOnRank casts a vote on a rank proposal. Only approvals carry weight.
func (e *Engine) VoteOnRank(caller domain.Account, id uint64, inFavor bool) error {
	if caller.IsZero() {
		return domain.ErrMissingCaller
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.rankProposal(id)
	if err != nil {
		return err
	}
	if err := e.requireVoter(caller, domain.RankVoter); err != nil {
		return err
	}
	if p.Closed {
		return domain.ErrProposalClosed
	}
	box := e.ballots[domain.FamilyRank]
	if box.has(id, caller) {
		return domain.ErrAlreadyVoted
	}
	if err := e.extend(caller); err != nil {
		return err
	}

	h := e.deps.Height()
	weight := e.deps.Ranks.Rank(caller)
	box.add(id, domain.Vote{Voter: caller, Weight: weight, InFavor: inFavor, Height: h})
	if inFavor {
		p.Approvals += weight
	}

	e.emit(domain.NewEvent(domain.EventRankVoted, h, caller).
		WithUint("id", id).
		WithUint("weight", weight).
		WithBool("in_favor", inFavor).
		WithUint("approvals", p.Approvals))
	return nil
}

// CloseRankProposal resolves a rank proposal once its poll period elapsed.
// Any caller may close. Reaching the threshold grants rank 1; an existing
// higher rank is left alone.
func (e *Engine) CloseRankProposal(caller domain.Account, id uint64) (bool, error) {
	if caller.IsZero() {
		return false, domain.ErrMissingCaller
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.rankProposal(id)
	if err != nil {
		return false, err
	}
	if p.Closed {
		return false, domain.ErrProposalClosed
	}
	if err := e.pollElapsed(domain.FamilyRank, p.CreatedAt); err != nil {
		return false, err
	}

	h := e.deps.Height()
	p.Closed = true
	p.Granted = p.Approvals >= e.cfg.AcceptanceThreshold
	delete(e.openRank, p.Creator)

	e.deps.Logger.Info("rank proposal closed",
		zap.Uint64("id", id), zap.String("account", p.Creator.String()), zap.Bool("granted", p.Granted))
	e.emit(domain.NewEvent(domain.EventRankClosed, h, caller).
		WithUint("id", id).
		With("creator", p.Creator.String()).
		WithUint("approvals", p.Approvals).
		WithBool("granted", p.Granted))

	if p.Granted && e.deps.Ranks.Grant(p.Creator) {
		e.emit(domain.NewEvent(domain.EventRankChanged, h, p.Creator).
			WithUint("previous", 0).
			WithUint("rank", domain.RankVoter).
			With("reason", "granted"))
	}
	return p.Granted, nil
}

// RankProposal returns a copy of a rank proposal.
func (e *Engine) RankProposal(id uint64) (domain.RankProposal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, err := e.rankProposal(id)
	if err != nil {
		return domain.RankProposal{}, err
	}
	return *p, nil
}

// RankProposals returns copies of all rank proposals in id order.
func (e *Engine) RankProposals() []domain.RankProposal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.RankProposal, 0, len(e.ranks))
	for _, p := range e.ranks {
		out = append(out, *p)
	}
	return out
}

func (e *Engine) rankProposal(id uint64) (*domain.RankProposal, error) {
	if id == 0 || id > uint64(len(e.ranks)) {
		return nil, domain.ErrProposalNotFound
	}
	return e.ranks[id-1], nil
}
