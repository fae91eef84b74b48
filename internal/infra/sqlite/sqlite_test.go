package sqlite

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ric-network/catalogdao/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// ─── Open ───────────────────────────────────────────────────────────────────

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	_, err = db.AppendOperation(domain.Operation{Height: 1, Caller: "a", Kind: domain.OpStake})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(dir)
	require.NoError(t, err)
	defer db.Close()
	n, err := db.OperationCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "journal survives reopen")
}

func TestOpen_InMemory(t *testing.T) {
	db, err := Open("")
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, ":memory:", db.Path())
	require.NoError(t, db.Ping())
	require.NoError(t, db.SaveTip(3))
}

// ─── Journal ────────────────────────────────────────────────────────────────

func TestJournal_AppendAndReadInOrder(t *testing.T) {
	db := newTestDB(t)
	var _ domain.Journal = db

	args, _ := json.Marshal(map[string]uint64{"id": 4})
	ops := []domain.Operation{
		{Height: 1, Caller: "alice", Kind: domain.OpStake},
		{Height: 2, Caller: "bob", Kind: domain.OpVoteListing, Args: args},
		{Height: 2, Caller: "carol", Kind: domain.OpCloseListing, Args: args},
	}
	for i, op := range ops {
		seq, err := db.AppendOperation(op)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), seq)
	}

	got, err := db.Operations()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, domain.Account("bob"), got[1].Caller)
	assert.Equal(t, domain.OpVoteListing, got[1].Kind)
	assert.JSONEq(t, `{"id":4}`, string(got[1].Args))
	assert.JSONEq(t, `{}`, string(got[0].Args), "missing args stored as empty object")

	tail, err := db.OperationsSince(2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, domain.OpCloseListing, tail[0].Kind)
}

func TestChainTip(t *testing.T) {
	db := newTestDB(t)
	_, ok, err := db.LoadTip()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.SaveTip(10))
	require.NoError(t, db.SaveTip(42))
	h, ok, err := db.LoadTip()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), h)
}

// ─── Events ─────────────────────────────────────────────────────────────────

func stamped(ev domain.Event, id string) domain.Event {
	ev.ID = id
	ev.Time = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return ev
}

func TestInsertEvent_WritesLedgerRows(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.InsertEvent(stamped(
		domain.NewEvent(domain.EventStaked, 1, "alice").WithUint("amount", 30).WithUint("balance", 30), "e1")))
	require.NoError(t, db.InsertEvent(stamped(
		domain.NewEvent(domain.EventRewardDeposited, 2, "admin").WithUint("amount", 100).WithUint("pool", 100), "e2")))
	require.NoError(t, db.InsertEvent(stamped(
		domain.NewEvent(domain.EventRewardClaimed, 3, "alice").
			WithUint("amount", 20).WithUint("balance", 50).WithUint("pool", 80), "e3")))

	alice, err := db.LedgerEntries("alice")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, domain.TxStake, alice[0].Type)
	assert.Equal(t, domain.EntryCredit, alice[1].EntryType)
	assert.Equal(t, uint64(50), alice[1].Balance)
	assert.Equal(t, "e3", alice[1].Ref)

	net, err := db.NetCustody("alice")
	require.NoError(t, err)
	assert.Equal(t, int64(50), net)

	pool, err := db.NetCustody(domain.RewardPoolAccount)
	require.NoError(t, err)
	assert.Equal(t, int64(80), pool)

	all, err := db.LedgerEntries("")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestInsertEvent_DuplicateIDIgnored(t *testing.T) {
	db := newTestDB(t)
	ev := stamped(domain.NewEvent(domain.EventPenalized, 5, "mallory").
		WithUint("amount", 30).WithUint("pool", 30), "dup")

	require.NoError(t, db.InsertEvent(ev))
	require.NoError(t, db.InsertEvent(ev))

	rows, err := db.LedgerEntries("")
	require.NoError(t, err)
	assert.Len(t, rows, 2, "penalty writes one debit and one credit, once")
}

func TestListEvents_Filters(t *testing.T) {
	db := newTestDB(t)
	sink := db.Sink(nil)
	sink.Emit(stamped(domain.NewEvent(domain.EventRankProposed, 1, "a").With("payload", "hi"), "1"))
	sink.Emit(stamped(domain.NewEvent(domain.EventRankVoted, 2, "b"), "2"))
	sink.Emit(stamped(domain.NewEvent(domain.EventRankVoted, 3, "a"), "3"))

	all, err := db.ListEvents(EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "3", all[0].ID, "newest first")
	assert.Equal(t, "hi", all[2].Attrs["payload"])

	votes, err := db.ListEvents(EventFilter{Types: []domain.EventType{domain.EventRankVoted}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, uint64(3), votes[0].Height)

	byA, err := db.ListEvents(EventFilter{Account: "a"})
	require.NoError(t, err)
	assert.Len(t, byA, 2)
	assert.True(t, byA[1].Time.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)))
}
