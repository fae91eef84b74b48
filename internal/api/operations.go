package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ric-network/catalogdao/internal/app/ledger"
	"github.com/ric-network/catalogdao/internal/domain"
	"github.com/ric-network/catalogdao/internal/infra/observability"
)

// ─── Operations ─────────────────────────────────────────────────────────────
// POST /api/v1/token/transfer                move tokens
// POST /api/v1/token/approve                 set an allowance
// POST /api/v1/staking/stake                 stake the fixed amount
// POST /api/v1/staking/unstake               withdraw an unlocked stake
// POST /api/v1/staking/rewards               fund the reward pool
// POST /api/v1/staking/claims                claim a listing reward
// POST /api/v1/sharing                       register a sharing address
// DELETE /api/v1/sharing                     stop sharing
// POST /api/v1/proposals/{family}            open a proposal
// POST /api/v1/proposals/{family}/{id}/votes  vote
// POST /api/v1/proposals/{family}/{id}/close  close after the poll period
// POST /api/v1/proposals/listing/{id}/close-suspicious
// POST /api/v1/proposals/listing/{id}/opinions
// PUT  /api/v1/admin/poll-periods/{family}

// argsDecoder reads operation arguments from a request.
type argsDecoder func(r *http.Request) (any, error)

func noArgs(*http.Request) (any, error) { return nil, nil }

func decodeAs[T any](r *http.Request) (any, error) {
	var v T
	if err := decodeBody(r, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// submit returns a handler applying one operation kind.
func (s *Server) submit(kind domain.OpKind, decode argsDecoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		args, err := decode(r)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		s.apply(w, r, kind, args, http.StatusOK)
	}
}

// apply submits an operation on behalf of the request's caller.
func (s *Server) apply(w http.ResponseWriter, r *http.Request, kind domain.OpKind, args any, okStatus int) {
	ctx := r.Context()
	if id := middleware.GetReqID(ctx); id != "" {
		ctx = observability.WithTraceID(ctx, id)
	}
	res, err := s.svc.Submit(ctx, caller(r), kind, args)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, okStatus, res)
}

// family parses the {family} path parameter.
func family(r *http.Request) (domain.ProposalFamily, error) {
	return domain.ParseFamily(chi.URLParam(r, "family"))
}

var (
	proposeKinds = map[domain.ProposalFamily]domain.OpKind{
		domain.FamilyRank:    domain.OpProposeRank,
		domain.FamilyListing: domain.OpProposeListing,
		domain.FamilyRemoval: domain.OpProposeRemoval,
	}
	voteKinds = map[domain.ProposalFamily]domain.OpKind{
		domain.FamilyRank:    domain.OpVoteRank,
		domain.FamilyListing: domain.OpVoteListing,
		domain.FamilyRemoval: domain.OpVoteRemoval,
	}
	closeKinds = map[domain.ProposalFamily]domain.OpKind{
		domain.FamilyRank:    domain.OpCloseRank,
		domain.FamilyListing: domain.OpCloseListing,
		domain.FamilyRemoval: domain.OpCloseRemoval,
	}
)

// handlePropose opens a proposal. The body shape depends on the family.
func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	f, err := family(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var args any
	switch f {
	case domain.FamilyRank:
		args, err = decodeAs[ledger.ProposeRankArgs](r)
	case domain.FamilyListing:
		args, err = decodeAs[ledger.ProposeListingArgs](r)
	case domain.FamilyRemoval:
		args, err = decodeAs[ledger.ProposeRemovalArgs](r)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.apply(w, r, proposeKinds[f], args, http.StatusCreated)
}

// handleVote casts a vote; the proposal id comes from the path.
func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	f, err := family(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var args ledger.VoteArgs
	if err := decodeBody(r, &args); err != nil {
		writeDomainError(w, err)
		return
	}
	args.ID = id
	s.apply(w, r, voteKinds[f], args, http.StatusOK)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	f, err := family(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.apply(w, r, closeKinds[f], ledger.IDArgs{ID: id}, http.StatusOK)
}

// listingOnly rejects listing-only routes mounted under another family.
func listingOnly(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	f, err := family(r)
	if err == nil && f != domain.FamilyListing {
		err = domain.ErrUnknownOperation
	}
	if err != nil {
		writeDomainError(w, err)
		return 0, false
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return 0, false
	}
	return id, true
}

func (s *Server) handleCloseSuspicious(w http.ResponseWriter, r *http.Request) {
	id, ok := listingOnly(w, r)
	if !ok {
		return
	}
	s.apply(w, r, domain.OpCloseSuspicious, ledger.IDArgs{ID: id}, http.StatusOK)
}

func (s *Server) handleOpinion(w http.ResponseWriter, r *http.Request) {
	id, ok := listingOnly(w, r)
	if !ok {
		return
	}
	var args ledger.OpinionArgs
	if err := decodeBody(r, &args); err != nil {
		writeDomainError(w, err)
		return
	}
	args.ID = id
	s.apply(w, r, domain.OpExpressOpinion, args, http.StatusOK)
}

func (s *Server) handleSetPollPeriod(w http.ResponseWriter, r *http.Request) {
	f, err := family(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var args ledger.PollPeriodArgs
	if err := decodeBody(r, &args); err != nil {
		writeDomainError(w, err)
		return
	}
	args.Family = f
	s.apply(w, r, domain.OpSetPollPeriod, args, http.StatusOK)
}

// handleMine advances the chain. Admin only.
// POST /api/v1/chain/mine {"blocks": n}
func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	if caller(r) != s.svc.Config().Accounts.Admin {
		writeDomainError(w, domain.ErrNotAdmin)
		return
	}
	var body struct {
		Blocks uint64 `json:"blocks"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}
	if body.Blocks == 0 {
		body.Blocks = 1
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"height": s.svc.Mine(body.Blocks)})
}
