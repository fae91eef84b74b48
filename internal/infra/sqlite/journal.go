package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ric-network/catalogdao/internal/domain"
)

// ─── Operation Journal ──────────────────────────────────────────────────────

// AppendOperation records an applied operation and returns its sequence number.
func (db *DB) AppendOperation(op domain.Operation) (int64, error) {
	args := string(op.Args)
	if args == "" {
		args = "{}"
	}
	res, err := db.db.Exec(`
		INSERT INTO operations (height, caller, kind, args) VALUES (?, ?, ?, ?)`,
		int64(op.Height), string(op.Caller), string(op.Kind), args)
	if err != nil {
		return 0, fmt.Errorf("append operation %s: %w", op.Kind, err)
	}
	return res.LastInsertId()
}

// Operations returns the whole journal in application order.
func (db *DB) Operations() ([]domain.Operation, error) {
	return db.OperationsSince(0)
}

// OperationsSince returns journaled operations with seq greater than after.
func (db *DB) OperationsSince(after int64) ([]domain.Operation, error) {
	rows, err := db.db.Query(`
		SELECT seq, height, caller, kind, args FROM operations
		WHERE seq > ? ORDER BY seq`, after)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	var ops []domain.Operation
	for rows.Next() {
		var (
			op     domain.Operation
			height int64
			caller string
			kind   string
			args   string
		)
		if err := rows.Scan(&op.Seq, &height, &caller, &kind, &args); err != nil {
			return nil, err
		}
		op.Height = uint64(height)
		op.Caller = domain.Account(caller)
		op.Kind = domain.OpKind(kind)
		op.Args = json.RawMessage(args)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// OperationCount returns the number of journaled operations.
func (db *DB) OperationCount() (int64, error) {
	var n int64
	err := db.db.QueryRow(`SELECT COUNT(*) FROM operations`).Scan(&n)
	return n, err
}

// ─── Chain Tip ──────────────────────────────────────────────────────────────

// SaveTip stores the current block height.
func (db *DB) SaveTip(height uint64) error {
	_, err := db.db.Exec(`
		INSERT INTO chain_tip (id, height) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET height = excluded.height, updated_at = datetime('now')`,
		int64(height))
	return err
}

// LoadTip returns the stored block height. ok is false when none was saved.
func (db *DB) LoadTip() (height uint64, ok bool, err error) {
	var h int64
	err = db.db.QueryRow(`SELECT height FROM chain_tip WHERE id = 1`).Scan(&h)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint64(h), true, nil
}
