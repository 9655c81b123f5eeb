package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/claimforge/claimforge/claimforge/database/models"
	"github.com/uptrace/bun"
)

var ErrInvalidAttempt = errors.New("invalid claim attempt")

// maintenanceWindow bounds how far back the superseded-row cleanup looks.
// Older rows were either already cleaned or predate the retry behavior.
const maintenanceWindow = 7 * 24 * time.Hour

type ClaimAttemptRepository interface {
	RecordAttempt(ctx context.Context, attempt *models.ClaimAttempt) error
	GetByAccount(ctx context.Context, accountID string, limit, offset int) ([]*models.ClaimAttempt, error)
	CountableForAccount(ctx context.Context, accountID string, since time.Time) ([]*models.ClaimAttempt, error)
	DeleteSupersededFailed(ctx context.Context) (int64, error)
	TopClaimers(ctx context.Context, since time.Time, limit int) ([]ClaimerCount, error)
	StartMaintenanceRoutine(ctx context.Context, interval time.Duration)
}

type ClaimerCount struct {
	AccountID string `bun:"account_id"`
	Successes int    `bun:"successes"`
}

type claimAttemptRepository struct {
	db  *bun.DB
	loc *time.Location
}

// NewClaimAttemptRepository builds the ledger repository. loc defines which
// calendar the same-day dedup uses; nil means UTC.
func NewClaimAttemptRepository(db *bun.DB, loc *time.Location) ClaimAttemptRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &claimAttemptRepository{db: db, loc: loc}
}

// RecordAttempt appends one ledger row. Rows are immutable once written;
// there is deliberately no uniqueness constraint on account+day because
// legitimate scheduled runs happen several times per day.
func (r *claimAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.ClaimAttempt) error {
	if attempt.AccountID == "" {
		return fmt.Errorf("%w: missing account id", ErrInvalidAttempt)
	}
	switch attempt.Status {
	case models.ClaimAttemptStatusSuccess:
		if attempt.ErrorDetail != "" {
			return fmt.Errorf("%w: success with error detail", ErrInvalidAttempt)
		}
	case models.ClaimAttemptStatusFailed:
		if len(attempt.ClaimedItems) > 0 {
			return fmt.Errorf("%w: failed attempt with claimed items", ErrInvalidAttempt)
		}
		if attempt.ErrorDetail == "" {
			return fmt.Errorf("%w: failed attempt without error detail", ErrInvalidAttempt)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidAttempt, attempt.Status)
	}

	if attempt.ClaimedAt.IsZero() {
		attempt.ClaimedAt = time.Now()
	}

	if _, err := r.db.NewInsert().Model(attempt).Exec(ctx); err != nil {
		return fmt.Errorf("failed to record claim attempt: %w", err)
	}
	return nil
}

func (r *claimAttemptRepository) GetByAccount(ctx context.Context, accountID string, limit, offset int) ([]*models.ClaimAttempt, error) {
	var attempts []*models.ClaimAttempt
	q := r.db.NewSelect().
		Model(&attempts).
		Where("account_id = ?", accountID).
		Order("claimed_at DESC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load claim attempts: %w", err)
	}
	return attempts, nil
}

// CountableForAccount returns the account's attempts since the given time
// with aggregation-time dedup applied: failed rows that share a calendar day
// with a success are retry artifacts and are filtered out.
func (r *claimAttemptRepository) CountableForAccount(ctx context.Context, accountID string, since time.Time) ([]*models.ClaimAttempt, error) {
	var attempts []*models.ClaimAttempt
	err := r.db.NewSelect().
		Model(&attempts).
		Where("account_id = ?", accountID).
		Where("claimed_at >= ?", since).
		Order("claimed_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load claim attempts: %w", err)
	}
	return models.CountableAttempts(attempts, r.loc), nil
}

// DeleteSupersededFailed permanently removes failed rows that were followed
// by a same-day success for the same account. Idempotent: a second run finds
// nothing left to delete.
func (r *claimAttemptRepository) DeleteSupersededFailed(ctx context.Context) (int64, error) {
	since := time.Now().Add(-maintenanceWindow)

	var attempts []*models.ClaimAttempt
	err := r.db.NewSelect().
		Model(&attempts).
		Where("claimed_at >= ?", since).
		Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load attempts for maintenance: %w", err)
	}

	ids := models.SupersededFailedIDs(attempts, r.loc)
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.db.NewDelete().
		Model((*models.ClaimAttempt)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Where("status = ?", models.ClaimAttemptStatusFailed).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete superseded attempts: %w", err)
	}
	return result.RowsAffected()
}

// TopClaimers counts successful attempts per account since the given time.
// Failures never count, so the superseded-row filter does not apply here.
func (r *claimAttemptRepository) TopClaimers(ctx context.Context, since time.Time, limit int) ([]ClaimerCount, error) {
	var counts []ClaimerCount
	err := r.db.NewSelect().
		Model((*models.ClaimAttempt)(nil)).
		ColumnExpr("account_id").
		ColumnExpr("COUNT(*) AS successes").
		Where("status = ?", models.ClaimAttemptStatusSuccess).
		Where("claimed_at >= ?", since).
		GroupExpr("account_id").
		OrderExpr("successes DESC").
		Limit(limit).
		Scan(ctx, &counts)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate claimers: %w", err)
	}
	return counts, nil
}

func (r *claimAttemptRepository) StartMaintenanceRoutine(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := r.DeleteSupersededFailed(ctx)
				if err != nil {
					slog.Error("Ledger maintenance failed",
						slog.String("type", "db"),
						slog.Any("error", err))
					continue
				}
				if deleted > 0 {
					slog.Info("Removed superseded failed attempts",
						slog.String("type", "db"),
						slog.Int64("deleted", deleted))
				}
			}
		}
	}()
}
