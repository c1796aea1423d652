package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DefaultDailyLimit is the number of image analyses allowed per UTC day.
const DefaultDailyLimit = 3

// QuotaInfo is the quota state reported to clients.
type QuotaInfo struct {
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetTime  time.Time `json:"reset_time"`
	IsExceeded bool      `json:"is_exceeded"`
}

// Quota tracks daily image analyses per user. Counters are keyed by UTC
// date, so they reset at UTC midnight.
type Quota struct {
	db    *sql.DB
	limit int
	now   func() time.Time
}

// NewQuota creates a quota allowing limit analyses per day. A limit below 1
// uses DefaultDailyLimit.
func NewQuota(db *sql.DB, limit int) *Quota {
	if limit < 1 {
		limit = DefaultDailyLimit
	}
	return &Quota{db: db, limit: limit, now: func() time.Time { return time.Now().UTC() }}
}

// Limit returns the daily limit.
func (q *Quota) Limit() int { return q.limit }

func (q *Quota) day() string {
	return q.now().Format(time.DateOnly)
}

func (q *Quota) used(ctx context.Context, userID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT analyses FROM usage_daily WHERE user_id = ? AND day = ?`, userID, q.day(),
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading usage: %w", err)
	}
	return n, nil
}

// Remaining returns how many analyses userID has left today.
func (q *Quota) Remaining(ctx context.Context, userID string) (int, error) {
	n, err := q.used(ctx, userID)
	if err != nil {
		return 0, err
	}
	return max(0, q.limit-n), nil
}

// Reserve consumes one unit for userID in a single statement, so concurrent
// callers cannot overdraw the day's allowance. allowed is false, and nothing
// is consumed, when the allowance is already used up. remaining is the count
// left after this reservation.
func (q *Quota) Reserve(ctx context.Context, userID string) (allowed bool, remaining int, err error) {
	var n int
	err = q.db.QueryRowContext(ctx, `
		INSERT INTO usage_daily (user_id, day, analyses) VALUES (?, ?, 1)
		ON CONFLICT(user_id, day) DO UPDATE SET analyses = analyses + 1
		WHERE analyses < ?
		RETURNING analyses
	`, userID, q.day(), q.limit).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("reserving usage: %w", err)
	}
	return true, max(0, q.limit-n), nil
}

// Release returns a unit taken by Reserve for a request that failed. It
// applies to the current UTC day.
func (q *Quota) Release(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE usage_daily SET analyses = analyses - 1
		WHERE user_id = ? AND day = ? AND analyses > 0
	`, userID, q.day())
	if err != nil {
		return fmt.Errorf("releasing usage: %w", err)
	}
	return nil
}

// Info returns the full quota state for userID.
func (q *Quota) Info(ctx context.Context, userID string) (QuotaInfo, error) {
	rem, err := q.Remaining(ctx, userID)
	if err != nil {
		return QuotaInfo{}, err
	}
	now := q.now()
	return QuotaInfo{
		Limit:      q.limit,
		Remaining:  rem,
		ResetTime:  time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC),
		IsExceeded: rem == 0,
	}, nil
}

// Prune deletes usage rows older than keep days and returns how many.
func (q *Quota) Prune(ctx context.Context, keep int) (int64, error) {
	cutoff := q.now().AddDate(0, 0, -keep).Format(time.DateOnly)
	res, err := q.db.ExecContext(ctx, `DELETE FROM usage_daily WHERE day < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning usage: %w", err)
	}
	return res.RowsAffected()
}
