package domain

import "errors"

// ─── Error Kinds ────────────────────────────────────────────────────────────
// Every sentinel below belongs to exactly one kind. errors.Is matches both the
// sentinel itself and its kind, so callers can branch at either granularity.

var (
	ErrAuthorization = errors.New("authorization")
	ErrStateConflict = errors.New("state conflict")
	ErrTiming        = errors.New("timing")
	ErrResource      = errors.New("resource")
	ErrReferential   = errors.New("referential")
	ErrValidation    = errors.New("validation")
)

// Error is a classified domain failure with a stable numeric code.
type Error struct {
	Kind error
	Code int
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Is reports whether target is the error's kind. Identity with the sentinel
// itself is handled by errors.Is before Is is consulted.
func (e *Error) Is(target error) bool { return target == e.Kind }

func newErr(kind error, code int, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// ─── Sentinel Errors ────────────────────────────────────────────────────────

var (
	// Authorization
	ErrNotRanked     = newErr(ErrAuthorization, 911, "caller rank is below the required tier")
	ErrAccusedVoter  = newErr(ErrAuthorization, 916, "listing creator cannot vote on its own removal")
	ErrNotStaking    = newErr(ErrAuthorization, 919, "account is not staking")
	ErrNotGovernor   = newErr(ErrAuthorization, 920, "caller is not the governance engine")
	ErrNotCreator    = newErr(ErrAuthorization, 927, "caller is not the listing creator")
	ErrNotAdmin      = newErr(ErrAuthorization, 933, "caller is not the administrator")
	ErrMissingCaller = newErr(ErrAuthorization, 940, "caller account is required")

	// State conflict
	ErrAlreadyVoted       = newErr(ErrStateConflict, 912, "caller already voted on this proposal")
	ErrProposalClosed     = newErr(ErrStateConflict, 917, "proposal is already closed")
	ErrDuplicateProposal  = newErr(ErrStateConflict, 918, "caller already has a pending rank proposal")
	ErrAlreadyStaking     = newErr(ErrStateConflict, 921, "account is already staking")
	ErrListingRemoved     = newErr(ErrStateConflict, 922, "listing has been removed")
	ErrRemovalPending     = newErr(ErrStateConflict, 923, "a removal proposal against the listing is pending")
	ErrNotSuspicious      = newErr(ErrStateConflict, 925, "suspicious weight is below the acceptance threshold")
	ErrListingSuspicious  = newErr(ErrStateConflict, 926, "listing was flagged suspicious and must be closed as such")
	ErrRewardClaimed      = newErr(ErrStateConflict, 928, "reward for this listing was already claimed")
	ErrUpdateNoReward     = newErr(ErrStateConflict, 929, "listing updates do not pay rewards")
	ErrListingNotAccepted = newErr(ErrStateConflict, 934, "listing proposal is not accepted")
	ErrOpinionExpressed   = newErr(ErrStateConflict, 938, "caller already expressed an opinion on this listing")

	// Timing
	ErrPollPeriodActive = newErr(ErrTiming, 915, "poll period has not elapsed")
	ErrStakeLocked      = newErr(ErrTiming, 924, "stake is still locked")
	ErrHeightRegression = newErr(ErrTiming, 941, "ledger height cannot move backwards")

	// Resource
	ErrInsufficientRewardPool = newErr(ErrResource, 930, "reward pool balance is insufficient")
	ErrInsufficientBalance    = newErr(ErrResource, 931, "token balance is insufficient")
	ErrInsufficientAllowance  = newErr(ErrResource, 932, "token allowance is insufficient")
	ErrJournalUnavailable     = newErr(ErrResource, 943, "operation journal failed; restart required")

	// Referential
	ErrProposalNotFound = newErr(ErrReferential, 913, "proposal does not exist")
	ErrListingNotFound  = newErr(ErrReferential, 914, "accepted listing does not exist")
	ErrUnknownOperation = newErr(ErrReferential, 942, "unknown operation")

	// Validation
	ErrInvalidArgument = newErr(ErrValidation, 939, "invalid argument")
)

var kinds = []error{ErrAuthorization, ErrStateConflict, ErrTiming, ErrResource, ErrReferential, ErrValidation}

// KindOf returns the kind of a domain error, or nil if err is not classified.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Code returns the numeric code of a domain error, or 0.
func Code(err error) int {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return 0
}
