package domain

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the application layer depends on them.

// RankReader exposes read-only access to the reputation table.
type RankReader interface {
	Rank(account Account) uint64
}

// Journal persists applied operations so state can be rebuilt by replay.
type Journal interface {
	AppendOperation(op Operation) (int64, error)
	Operations() ([]Operation, error)
}
