package sqlite

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ric-network/catalogdao/internal/domain"
)

// ─── Events ─────────────────────────────────────────────────────────────────

// InsertEvent stores ev together with the custody rows it implies.
// Re-inserting an event id is a no-op.
func (db *DB) InsertEvent(ev domain.Event) error {
	attrs, err := json.Marshal(ev.Attrs)
	if err != nil {
		return fmt.Errorf("marshal attrs: %w", err)
	}

	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT OR IGNORE INTO events (id, type, height, account, attrs, time)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), int64(ev.Height), string(ev.Account), string(attrs),
		ev.Time.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.Type, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	for _, e := range domain.LedgerEntriesFor(ev) {
		if _, err := tx.Exec(`
			INSERT INTO ledger_entries (timestamp, height, type, entry_type, account, amount, ref, balance)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Timestamp.UTC().Format(time.RFC3339Nano), int64(e.Height), string(e.Type),
			string(e.EntryType), string(e.Account), int64(e.Amount), e.Ref, int64(e.Balance)); err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
	}
	return tx.Commit()
}

// EventFilter narrows ListEvents. Zero values match everything.
type EventFilter struct {
	Types   []domain.EventType
	Account domain.Account
	Limit   int
}

// ListEvents returns stored events, newest first.
func (db *DB) ListEvents(f EventFilter) ([]domain.Event, error) {
	q := `SELECT id, type, height, account, attrs, time FROM events WHERE 1=1`
	var args []any
	if len(f.Types) > 0 {
		q += ` AND type IN (?` + strings.Repeat(`, ?`, len(f.Types)-1) + `)`
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	if f.Account != "" {
		q += ` AND account = ?`
		args = append(args, string(f.Account))
	}
	q += ` ORDER BY height DESC, rowid DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			ev                   domain.Event
			typ, acct, attrs, ts string
			height               int64
		)
		if err := rows.Scan(&ev.ID, &typ, &height, &acct, &attrs, &ts); err != nil {
			return nil, err
		}
		ev.Type = domain.EventType(typ)
		ev.Height = uint64(height)
		ev.Account = domain.Account(acct)
		if err := json.Unmarshal([]byte(attrs), &ev.Attrs); err != nil {
			return nil, fmt.Errorf("decode attrs of %s: %w", ev.ID, err)
		}
		ev.Time, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ─── Ledger Entries ─────────────────────────────────────────────────────────

// LedgerEntries returns custody rows for account in insertion order.
// An empty account returns every row.
func (db *DB) LedgerEntries(account domain.Account) ([]domain.LedgerEntry, error) {
	q := `SELECT id, timestamp, height, type, entry_type, account, amount, ref, balance FROM ledger_entries`
	var args []any
	if account != "" {
		q += ` WHERE account = ?`
		args = append(args, string(account))
	}
	q += ` ORDER BY id`

	rows, err := db.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var (
			e                       domain.LedgerEntry
			ts, typ, side, acct     string
			height, amount, balance int64
		)
		if err := rows.Scan(&e.ID, &ts, &height, &typ, &side, &acct, &amount, &e.Ref, &balance); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		e.Height = uint64(height)
		e.Type = domain.TransactionType(typ)
		e.EntryType = domain.EntryType(side)
		e.Account = domain.Account(acct)
		e.Amount = uint64(amount)
		e.Balance = uint64(balance)
		out = append(out, e)
	}
	return out, rows.Err()
}

// NetCustody sums CREDIT minus DEBIT rows for account.
func (db *DB) NetCustody(account domain.Account) (int64, error) {
	var n int64
	err := db.db.QueryRow(`
		SELECT COALESCE(SUM(CASE entry_type WHEN 'CREDIT' THEN amount ELSE -amount END), 0)
		FROM ledger_entries WHERE account = ?`, string(account)).Scan(&n)
	return n, err
}

// ─── Event Sink ─────────────────────────────────────────────────────────────

// EventSink persists every emitted event. Write failures are logged; the
// ledger never blocks on or fails because of its audit trail.
type EventSink struct {
	db     *DB
	logger *zap.Logger
}

// Sink returns an EventSink writing to db.
func (db *DB) Sink(logger *zap.Logger) *EventSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventSink{db: db, logger: logger}
}

// Emit implements domain.EventSink.
func (s *EventSink) Emit(ev domain.Event) {
	if err := s.db.InsertEvent(ev); err != nil {
		s.logger.Error("persist event",
			zap.String("type", string(ev.Type)),
			zap.Uint64("height", ev.Height),
			zap.Error(err))
	}
}
