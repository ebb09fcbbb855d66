package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrInsufficientFunds means the debit would push the active subscription
// below zero remaining generations.
var ErrInsufficientFunds = errors.New("insufficient generations balance")

const generationTypeMiniApp = "miniapp_template"

// SubscriptionRepository is the ledger over the bot-owned subscriptions
// table: it reads the remaining balance and performs the atomic debit.
type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Balance returns the remaining generations of the user's active
// subscription with the latest end date, or 0 when none exists.
func (r *SubscriptionRepository) Balance(ctx context.Context, userID string) (int, error) {
	const query = `
SELECT GREATEST(generations_limit - generations_used, 0)
FROM subscriptions
WHERE user_id = ? AND is_active = 1
ORDER BY end_date DESC
LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, userID)
	var balance int
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan balance: %w", err)
	}
	return balance, nil
}

// Debit spends cost generations against the same active subscription row the
// balance is read from, and appends one generations audit record. The update
// is a single conditional statement scoped by row id, so two concurrent
// debits cannot both succeed past a stale balance read.
func (r *SubscriptionRepository) Debit(ctx context.Context, userID string, cost int, label string) error {
	if cost <= 0 {
		return fmt.Errorf("debit cost must be positive, got %d", cost)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin debit tx: %w", err)
	}
	defer tx.Rollback()

	const debitQuery = `
UPDATE subscriptions s
JOIN (
    SELECT id FROM subscriptions
    WHERE user_id = ? AND is_active = 1
    ORDER BY end_date DESC
    LIMIT 1
) pick ON pick.id = s.id
SET s.generations_used = s.generations_used + ?
WHERE s.generations_limit - s.generations_used >= ?`
	res, err := tx.ExecContext(ctx, debitQuery, userID, cost, cost)
	if err != nil {
		return fmt.Errorf("debit subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit rows affected: %w", err)
	}
	if affected == 0 {
		return ErrInsufficientFunds
	}

	if label == "" {
		label = "miniapp"
	}
	const recordQuery = `
INSERT INTO generations (user_id, prompt, generation_type)
VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, recordQuery, userID, label, generationTypeMiniApp); err != nil {
		return fmt.Errorf("insert generation record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit debit tx: %w", err)
	}
	return nil
}
