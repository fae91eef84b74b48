package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ric-network/catalogdao/internal/domain"
	"github.com/ric-network/catalogdao/internal/infra/sharing"
	"github.com/ric-network/catalogdao/internal/infra/sqlite"
)

// ─── Chain & Status ─────────────────────────────────────────────────────────

// handleStatus returns the ledger summary.
// GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status())
}

// GET /api/v1/chain
func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"height":   s.svc.Height(),
		"automine": s.svc.Clock().Running(),
	})
}

// ─── Token ──────────────────────────────────────────────────────────────────

// GET /api/v1/token
func (s *Server) handleTokenSupply(w http.ResponseWriter, r *http.Request) {
	tok := s.svc.Token()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_supply": tok.TotalSupply(),
		"holders":      tok.Holders(),
	})
}

// GET /api/v1/token/{account}
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	acct := domain.Account(chi.URLParam(r, "account"))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": acct,
		"balance": s.svc.Token().BalanceOf(acct),
	})
}

// GET /api/v1/token/{owner}/allowances/{spender}
func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	owner := domain.Account(chi.URLParam(r, "owner"))
	spender := domain.Account(chi.URLParam(r, "spender"))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"owner":     owner,
		"spender":   spender,
		"allowance": s.svc.Token().Allowance(owner, spender),
	})
}

// ─── Staking & Sharing ──────────────────────────────────────────────────────

// GET /api/v1/staking
func (s *Server) handleStakingSummary(w http.ResponseWriter, r *http.Request) {
	st := s.svc.Stakes()
	cfg := st.Config()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"custody":          st.Custody(),
		"stake_amount":     cfg.StakeAmount,
		"lock_period":      cfg.LockPeriod,
		"rewards":          cfg.Rewards,
		"total_staked":     st.TotalStaked(),
		"available_reward": st.AvailableReward(),
	})
}

// GET /api/v1/staking/positions
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Stakes().Positions())
}

// GET /api/v1/staking/positions/{account}
func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	st := s.svc.Stakes()
	p, ok := st.Position(domain.Account(chi.URLParam(r, "account")))
	if !ok {
		writeDomainError(w, domain.ErrNotStaking)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"position":   p,
		"unlocks_at": p.UnlocksAt(st.Config().LockPeriod),
	})
}

// GET /api/v1/sharing
func (s *Server) handleSharing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Sharing().Entries())
}

// ─── Proposals ──────────────────────────────────────────────────────────────

// GET /api/v1/proposals/{family}
func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	f, err := family(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	eng := s.svc.Engine()
	switch f {
	case domain.FamilyRank:
		writeJSON(w, http.StatusOK, eng.RankProposals())
	case domain.FamilyListing:
		writeJSON(w, http.StatusOK, eng.ListingProposals())
	case domain.FamilyRemoval:
		writeJSON(w, http.StatusOK, eng.RemovalProposals())
	}
}

// GET /api/v1/proposals/{family}/{id}
func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
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
	eng := s.svc.Engine()
	var p any
	switch f {
	case domain.FamilyRank:
		p, err = eng.RankProposal(id)
	case domain.FamilyListing:
		p, err = eng.ListingProposal(id)
	case domain.FamilyRemoval:
		p, err = eng.RemovalProposal(id)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GET /api/v1/proposals/{family}/{id}/votes[?voter=]
func (s *Server) handleListVotes(w http.ResponseWriter, r *http.Request) {
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
	eng := s.svc.Engine()
	if voter := r.URL.Query().Get("voter"); voter != "" {
		if _, err := eng.Votes(f, id); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"voter":     voter,
			"has_voted": eng.HasVoted(f, id, domain.Account(voter)),
		})
		return
	}
	votes, err := eng.Votes(f, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, votes)
}

// GET /api/v1/admin/poll-periods
func (s *Server) handlePollPeriods(w http.ResponseWriter, r *http.Request) {
	eng := s.svc.Engine()
	out := make(map[domain.ProposalFamily]uint64, 3)
	for _, f := range []domain.ProposalFamily{domain.FamilyRank, domain.FamilyListing, domain.FamilyRemoval} {
		out[f] = eng.PollPeriod(f)
	}
	writeJSON(w, http.StatusOK, out)
}

// ─── Listings ───────────────────────────────────────────────────────────────

// GET /api/v1/listings?after=&limit=
func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	after, err := queryInt(r, "after", 0)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Listings().Page(uint64(after), limit))
}

// GET /api/v1/listings/removed
func (s *Server) handleRemovedListings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Listings().Removed())
}

// GET /api/v1/listings/{id}
func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	l, err := s.svc.Listings().Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"listing": l,
		"reward":  s.svc.Stakes().ActualReward(l.HasFrontend, l.HasFees),
	})
}

// ─── Accounts ───────────────────────────────────────────────────────────────

// GET /api/v1/ranks?limit=
func (s *Server) handleRanks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Ranks().Top(limit))
}

type accountView struct {
	Account  domain.Account        `json:"account"`
	Rank     uint64                `json:"rank"`
	Tier     string                `json:"tier"`
	Accepted uint64                `json:"accepted_listings"`
	Balance  uint64                `json:"balance"`
	Position *domain.StakePosition `json:"position,omitempty"`
	Sharing  *sharing.Entry        `json:"sharing,omitempty"`
}

// GET /api/v1/accounts/{account}
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	acct := domain.Account(chi.URLParam(r, "account"))
	st := s.svc.Ranks().Get(acct)
	view := accountView{
		Account:  acct,
		Rank:     st.Rank,
		Tier:     st.Tier(),
		Accepted: st.Accepted,
		Balance:  s.svc.Token().BalanceOf(acct),
	}
	if p, ok := s.svc.Stakes().Position(acct); ok {
		view.Position = &p
	}
	if e, ok := s.svc.Sharing().Get(acct); ok {
		view.Sharing = &e
	}
	writeJSON(w, http.StatusOK, view)
}

// GET /api/v1/accounts/{account}/proposals
func (s *Server) handleAccountProposals(w http.ResponseWriter, r *http.Request) {
	acct := domain.Account(chi.URLParam(r, "account"))
	writeJSON(w, http.StatusOK, s.svc.Engine().MyProposals(acct))
}

// ─── History ────────────────────────────────────────────────────────────────

// handleEvents serves persisted events when a store is configured and the
// in-memory history otherwise.
// GET /api/v1/events?limit=&type=&account=
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	q := r.URL.Query()
	var types []domain.EventType
	for _, t := range q["type"] {
		types = append(types, domain.EventType(t))
	}
	account := domain.Account(q.Get("account"))

	if s.store != nil {
		evs, err := s.store.ListEvents(sqlite.EventFilter{Types: types, Account: account, Limit: limit})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, evs)
		return
	}

	evs := s.svc.Recent().Recent(0, types...)
	out := make([]domain.Event, 0, len(evs))
	for _, ev := range evs {
		if account != "" && ev.Account != account {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/v1/ledger-entries?account=
func (s *Server) handleLedgerEntries(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}
	entries, err := s.store.LedgerEntries(domain.Account(r.URL.Query().Get("account")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GET /api/v1/traces?limit=
func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Tracer().Spans(limit))
}
