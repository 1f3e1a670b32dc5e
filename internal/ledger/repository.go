// Package ledger provides access to the transactions and point_balances
// tables, the durable record behind every detection.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/revend-core/internal/detection"
)

// Transaction represents one recorded detection in the ledger.
type Transaction struct {
	Ref        string             `json:"ref"`
	UserID     string             `json:"user_id"`
	MachineID  string             `json:"machine_id,omitempty"`
	Material   detection.Material `json:"material"`
	Confidence float64            `json:"confidence"`
	Points     int                `json:"points"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Repository defines the interface for ledger operations.
type Repository interface {
	RecordDetection(ctx context.Context, userID, machineID, ref string, res detection.Result, at time.Time) error
	Balance(ctx context.Context, userID string) (int, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Transaction, error)
}

// SQLiteRepository stores transactions in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new ledger repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordDetection inserts the transaction and updates the user's point
// balance atomically. Either both survive or neither does: a balance
// must never drift from the transactions that justify it.
func (r *SQLiteRepository) RecordDetection(ctx context.Context, userID, machineID, ref string, res detection.Result, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	createdAt := at.UTC().Format(time.RFC3339)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (ref, user_id, machine_id, material, confidence, points, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ref, userID, machineID, res.Material.String(), res.Confidence, res.Points, createdAt,
	)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO point_balances (user_id, points, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET points = points + excluded.points, updated_at = excluded.updated_at`,
		userID, res.Points, createdAt,
	)
	if err != nil {
		return fmt.Errorf("updating point balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Balance returns the user's accumulated points. Users with no recorded
// detections have a balance of zero.
func (r *SQLiteRepository) Balance(ctx context.Context, userID string) (int, error) {
	var points int
	err := r.db.QueryRowContext(ctx,
		"SELECT points FROM point_balances WHERE user_id = ?", userID,
	).Scan(&points)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying point balance: %w", err)
	}
	return points, nil
}

// ListByUser returns the user's transactions, most recent first.
func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 { //nolint:mnd // max page size for ledger queries
		limit = 200
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT ref, user_id, machine_id, material, confidence, points, created_at
		 FROM transactions WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		var txn Transaction
		var material, createdAt string

		if err := rows.Scan(&txn.Ref, &txn.UserID, &txn.MachineID,
			&material, &txn.Confidence, &txn.Points, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		txn.Material = detection.ParseMaterial(material)

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing transaction timestamp %q: %w", createdAt, err)
		}
		txn.CreatedAt = t

		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}

	if txns == nil {
		txns = []Transaction{}
	}

	return txns, nil
}
