package domain

import (
	"strconv"
	"time"
)

// ─── Ledger Entry Types ─────────────────────────────────────────────────────
// Custody movements are journaled double-entry style: every value transfer
// between a stake position and the shared reward pool produces a DEBIT on one
// side and a CREDIT on the other.

// RewardPoolAccount is the pseudo-account used for reward pool ledger rows.
const RewardPoolAccount Account = "reward-pool"

// EntryType represents the accounting side of a ledger entry.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// TransactionType represents the business reason for a custody movement.
type TransactionType string

const (
	TxStake   TransactionType = "STAKE"
	TxUnstake TransactionType = "UNSTAKE"
	TxDeposit TransactionType = "DEPOSIT"
	TxReward  TransactionType = "REWARD"
	TxPenalty TransactionType = "PENALTY"
)

// LedgerEntry is a single row in the custody ledger.
type LedgerEntry struct {
	ID        int64           `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Height    uint64          `json:"height"`
	Type      TransactionType `json:"type"`
	EntryType EntryType       `json:"entry_type"`
	Account   Account         `json:"account"`
	Amount    uint64          `json:"amount"`
	Ref       string          `json:"ref,omitempty"` // event id that produced the row
	Balance   uint64          `json:"balance"`       // balance of Account after the movement
}

// LedgerEntriesFor derives the custody rows implied by a staking event.
// Events that move no value return nil.
func LedgerEntriesFor(ev Event) []LedgerEntry {
	amount := ev.Uint("amount")
	if amount == 0 {
		return nil
	}
	row := func(tx TransactionType, side EntryType, acct Account, balance uint64) LedgerEntry {
		return LedgerEntry{
			Timestamp: ev.Time,
			Height:    ev.Height,
			Type:      tx,
			EntryType: side,
			Account:   acct,
			Amount:    amount,
			Ref:       ev.ID,
			Balance:   balance,
		}
	}

	switch ev.Type {
	case EventStaked:
		return []LedgerEntry{row(TxStake, EntryCredit, ev.Account, ev.Uint("balance"))}
	case EventUnstaked:
		return []LedgerEntry{row(TxUnstake, EntryDebit, ev.Account, 0)}
	case EventRewardDeposited:
		return []LedgerEntry{row(TxDeposit, EntryCredit, RewardPoolAccount, ev.Uint("pool"))}
	case EventRewardClaimed:
		return []LedgerEntry{
			row(TxReward, EntryDebit, RewardPoolAccount, ev.Uint("pool")),
			row(TxReward, EntryCredit, ev.Account, ev.Uint("balance")),
		}
	case EventPenalized:
		return []LedgerEntry{
			row(TxPenalty, EntryDebit, ev.Account, 0),
			row(TxPenalty, EntryCredit, RewardPoolAccount, ev.Uint("pool")),
		}
	}
	return nil
}

// Uint reads a numeric attribute, returning 0 when absent or malformed.
func (e Event) Uint(key string) uint64 {
	v, err := strconv.ParseUint(e.Attrs[key], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
