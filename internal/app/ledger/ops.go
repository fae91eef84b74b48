package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/ric-network/catalogdao/internal/domain"
	"github.com/ric-network/catalogdao/internal/infra/governance"
)

// ─── Operation Arguments ────────────────────────────────────────────────────
// Each OpKind decodes its JSON args into one of these structs. Operations
// without arguments (stake, unstake, stop sharing) take none.

// TransferArgs moves tokens from the caller.
type TransferArgs struct {
	To     domain.Account `json:"to"`
	Amount uint64         `json:"amount"`
}

// ApproveArgs sets the caller's allowance for spender.
type ApproveArgs struct {
	Spender domain.Account `json:"spender"`
	Amount  uint64         `json:"amount"`
}

// SharingArgs registers a sharing address.
type SharingArgs struct {
	Address string `json:"address"`
}

// DepositArgs funds the reward pool.
type DepositArgs struct {
	Amount uint64 `json:"amount"`
}

// ClaimArgs claims the reward for an accepted listing.
type ClaimArgs struct {
	ListingID uint64 `json:"listing_id"`
}

// ProposeRankArgs requests the first rank tier.
type ProposeRankArgs struct {
	Payload string `json:"payload"`
}

// ProposeListingArgs proposes a catalog entry.
type ProposeListingArgs struct {
	ContentRef  string `json:"content_ref"`
	HasFrontend bool   `json:"has_frontend"`
	HasFees     bool   `json:"has_fees"`
	IsUpdate    bool   `json:"is_update"`
	UpdateOf    uint64 `json:"update_of,omitempty"`
}

func (a ProposeListingArgs) request() governance.ListingRequest {
	return governance.ListingRequest{
		ContentRef:  a.ContentRef,
		HasFrontend: a.HasFrontend,
		HasFees:     a.HasFees,
		IsUpdate:    a.IsUpdate,
		UpdateOf:    a.UpdateOf,
	}
}

// ProposeRemovalArgs asks for an accepted listing to be removed.
type ProposeRemovalArgs struct {
	Discussion       string `json:"discussion"`
	TargetListing    uint64 `json:"target_listing"`
	AllegesMalicious bool   `json:"alleges_malicious"`
}

// VoteArgs casts a vote. Suspicious is only meaningful for listings.
type VoteArgs struct {
	ID         uint64 `json:"id"`
	InFavor    bool   `json:"in_favor"`
	Suspicious bool   `json:"suspicious,omitempty"`
}

// IDArgs addresses a proposal.
type IDArgs struct {
	ID uint64 `json:"id"`
}

// OpinionArgs likes or dislikes an accepted listing proposal.
type OpinionArgs struct {
	ID    uint64 `json:"id"`
	Liked bool   `json:"liked"`
}

// PollPeriodArgs changes a family's poll period.
type PollPeriodArgs struct {
	Family domain.ProposalFamily `json:"family"`
	Period uint64                `json:"period"`
}

// NewOperation builds an operation with JSON-encoded args. args may be nil.
func NewOperation(caller domain.Account, kind domain.OpKind, args any) (domain.Operation, error) {
	op := domain.Operation{Caller: caller, Kind: kind}
	if args == nil {
		return op, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return op, fmt.Errorf("encode %s args: %w", kind, err)
	}
	op.Args = raw
	return op, nil
}

func decode[T any](op domain.Operation) (T, error) {
	var v T
	if len(op.Args) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(op.Args, &v); err != nil {
		return v, fmt.Errorf("decode %s args: %v: %w", op.Kind, err, domain.ErrInvalidArgument)
	}
	return v, nil
}

// ─── Result ─────────────────────────────────────────────────────────────────

// Result describes the outcome of an applied operation. ID is the created
// proposal, Passed reports a granted rank or an accepted removal, State is
// the listing close outcome and Amount the reward paid.
type Result struct {
	Seq    int64               `json:"seq,omitempty"`
	Kind   domain.OpKind       `json:"kind"`
	Height uint64              `json:"height"`
	ID     uint64              `json:"id,omitempty"`
	Passed *bool               `json:"passed,omitempty"`
	State  domain.ListingState `json:"state,omitempty"`
	Amount uint64              `json:"amount,omitempty"`
}

func passed(v bool) *bool { return &v }
