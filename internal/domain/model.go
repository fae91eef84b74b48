// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring and depends on nothing but the standard library.
package domain

import (
	"encoding/json"
	"fmt"
)

// ─── Accounts ───────────────────────────────────────────────────────────────

// Account is an opaque participant identifier.
type Account string

func (a Account) String() string { return string(a) }

// IsZero reports whether the account is unset.
func (a Account) IsZero() bool { return a == "" }

// Rank tiers that gate governance actions.
const (
	RankUnranked uint64 = 0
	RankVoter    uint64 = 1 // vote, propose listings, claim rewards
	RankRemover  uint64 = 2 // propose removals
)

// ─── Staking ────────────────────────────────────────────────────────────────

// StakePosition is an account's custody record in the stake ledger.
type StakePosition struct {
	Account  Account `json:"account"`
	Amount   uint64  `json:"amount"`
	StakedAt uint64  `json:"staked_at"` // height of the most recent stake or lock extension
	Active   bool    `json:"active"`
}

// UnlocksAt returns the first height at which the position may be withdrawn.
func (p StakePosition) UnlocksAt(lockPeriod uint64) uint64 {
	return p.StakedAt + lockPeriod
}

// ─── Proposals ──────────────────────────────────────────────────────────────

// ProposalFamily names one of the three proposal collections.
type ProposalFamily string

const (
	FamilyRank    ProposalFamily = "rank"
	FamilyListing ProposalFamily = "listing"
	FamilyRemoval ProposalFamily = "removal"
)

// Valid reports whether f is a known family.
func (f ProposalFamily) Valid() bool {
	switch f {
	case FamilyRank, FamilyListing, FamilyRemoval:
		return true
	}
	return false
}

// ParseFamily converts a string to a ProposalFamily.
func ParseFamily(s string) (ProposalFamily, error) {
	f := ProposalFamily(s)
	if !f.Valid() {
		return "", fmt.Errorf("%w: unknown proposal family %q", ErrInvalidArgument, s)
	}
	return f, nil
}

// Vote is a single ballot. Weight is the voter's rank when the vote was cast.
type Vote struct {
	Voter      Account `json:"voter"`
	Weight     uint64  `json:"weight"`
	InFavor    bool    `json:"in_favor"`
	Suspicious bool    `json:"suspicious,omitempty"`
	Height     uint64  `json:"height"`
}

// RankProposal is a request by an account to be granted the first rank tier.
type RankProposal struct {
	ID        uint64  `json:"id"`
	Creator   Account `json:"creator"`
	Payload   string  `json:"payload"`
	CreatedAt uint64  `json:"created_at"`
	Approvals uint64  `json:"approvals"`
	Closed    bool    `json:"closed"`
	Granted   bool    `json:"granted"`
}

// ListingState is the lifecycle state of a listing proposal.
type ListingState string

const (
	ListingOpen      ListingState = "OPEN"
	ListingAccepted  ListingState = "ACCEPTED"
	ListingRejected  ListingState = "REJECTED"
	ListingPenalized ListingState = "PENALIZED"
)

// Terminal reports whether the state is final.
func (s ListingState) Terminal() bool { return s != ListingOpen }

// ListingProposal proposes a new catalog entry or an update of an accepted one.
type ListingProposal struct {
	ID          uint64       `json:"id"`
	Creator     Account      `json:"creator"`
	ContentRef  string       `json:"content_ref"`
	HasFrontend bool         `json:"has_frontend"`
	HasFees     bool         `json:"has_fees"`
	IsUpdate    bool         `json:"is_update"`
	UpdateOf    uint64       `json:"update_of,omitempty"` // accepted listing id, only when IsUpdate
	CreatedAt   uint64       `json:"created_at"`
	Approvals   uint64       `json:"approvals"`
	Rejections  uint64       `json:"rejections"`
	Suspicious  uint64       `json:"suspicious"`
	State       ListingState `json:"state"`
	ListingID   uint64       `json:"listing_id,omitempty"` // set once accepted
	Likes       uint64       `json:"likes"`
	Dislikes    uint64       `json:"dislikes"`
}

// RemovalProposal asks for an accepted listing to be removed.
type RemovalProposal struct {
	ID               uint64  `json:"id"`
	Creator          Account `json:"creator"`
	Discussion       string  `json:"discussion"`
	TargetListing    uint64  `json:"target_listing"`
	AllegesMalicious bool    `json:"alleges_malicious"`
	Approvals        uint64  `json:"approvals"`
	Rejections       uint64  `json:"rejections"`
	CreatedAt        uint64  `json:"created_at"`
	Closed           bool    `json:"closed"`
	Accepted         bool    `json:"accepted"`
}

// AcceptedListing is the durable index row written when a listing proposal passes.
type AcceptedListing struct {
	ID            uint64  `json:"id"`
	ProposalID    uint64  `json:"proposal_id"`
	Creator       Account `json:"creator"`
	ContentRef    string  `json:"content_ref"`
	HasFrontend   bool    `json:"has_frontend"`
	HasFees       bool    `json:"has_fees"`
	IsUpdate      bool    `json:"is_update"`
	UpdateOf      uint64  `json:"update_of,omitempty"`
	AcceptedAt    uint64  `json:"accepted_at"`
	Removed       bool    `json:"removed"`
	RewardClaimed bool    `json:"reward_claimed"`
}

// AccountProposals lists the proposals an account authored.
type AccountProposals struct {
	Rank     []uint64 `json:"rank"`
	Listing  []uint64 `json:"listing"`
	Removal  []uint64 `json:"removal"`
	Accepted []uint64 `json:"accepted"` // accepted listing ids
}

// ─── Operations ─────────────────────────────────────────────────────────────

// OpKind names a state-changing operation submitted to the ledger.
type OpKind string

const (
	OpTokenTransfer   OpKind = "token.transfer"
	OpTokenApprove    OpKind = "token.approve"
	OpSharingSet      OpKind = "sharing.set"
	OpSharingStop     OpKind = "sharing.stop"
	OpStake           OpKind = "staking.stake"
	OpUnstake         OpKind = "staking.unstake"
	OpDepositRewards  OpKind = "staking.deposit"
	OpClaimReward     OpKind = "staking.claim"
	OpProposeRank     OpKind = "rank.propose"
	OpVoteRank        OpKind = "rank.vote"
	OpCloseRank       OpKind = "rank.close"
	OpProposeListing  OpKind = "listing.propose"
	OpVoteListing     OpKind = "listing.vote"
	OpCloseListing    OpKind = "listing.close"
	OpCloseSuspicious OpKind = "listing.close_suspicious"
	OpExpressOpinion  OpKind = "listing.opinion"
	OpProposeRemoval  OpKind = "removal.propose"
	OpVoteRemoval     OpKind = "removal.vote"
	OpCloseRemoval    OpKind = "removal.close"
	OpSetPollPeriod   OpKind = "admin.poll_period"
)

// Operation is one journaled, replayable state change.
type Operation struct {
	Seq    int64           `json:"seq"`
	Height uint64          `json:"height"`
	Caller Account         `json:"caller"`
	Kind   OpKind          `json:"kind"`
	Args   json.RawMessage `json:"args,omitempty"`
}
