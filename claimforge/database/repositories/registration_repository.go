package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/claimforge/claimforge/claimforge/database/models"
	lru "github.com/hashicorp/golang-lru"
	"github.com/uptrace/bun"
)

var (
	ErrRegistrationExists   = errors.New("registration already exists")
	ErrRegistrationNotFound = errors.New("registration not found")
)

const registrationCacheSize = 512

type RegistrationRepository interface {
	Create(ctx context.Context, reg *models.Registration) error
	GetByAccountID(ctx context.Context, accountID string) (*models.Registration, error)
	ListActive(ctx context.Context) ([]*models.Registration, error)
	ListAll(ctx context.Context) ([]*models.Registration, error)
	UpdateStatus(ctx context.Context, accountID string, status models.RegistrationStatus) error
	Deregister(ctx context.Context, accountID string) error
	MarkInvalid(ctx context.Context, accountID string) error
	CountActive(ctx context.Context) (int, error)
}

type registrationRepository struct {
	db    *bun.DB
	cache *lru.Cache
}

func NewRegistrationRepository(db *bun.DB) RegistrationRepository {
	cache, _ := lru.New(registrationCacheSize)
	return &registrationRepository{
		db:    db,
		cache: cache,
	}
}

func (r *registrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	if reg.Status == "" {
		reg.Status = models.RegistrationStatusActive
	}
	reg.CreatedAt = time.Now()
	reg.UpdatedAt = reg.CreatedAt

	existing, err := r.GetByAccountID(ctx, reg.AccountID)
	if err != nil && !errors.Is(err, ErrRegistrationNotFound) {
		return err
	}
	if existing != nil {
		// Re-registering a previously removed account revives the row, so
		// its claim history stays attached to one registration.
		if existing.Status == models.RegistrationStatusDeregistered || existing.Status == models.RegistrationStatusInactive {
			return r.UpdateStatus(ctx, reg.AccountID, models.RegistrationStatusActive)
		}
		return ErrRegistrationExists
	}

	if _, err := r.db.NewInsert().Model(reg).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create registration: %w", err)
	}
	r.cache.Add(reg.AccountID, reg)
	return nil
}

func (r *registrationRepository) GetByAccountID(ctx context.Context, accountID string) (*models.Registration, error) {
	if cached, ok := r.cache.Get(accountID); ok {
		return cached.(*models.Registration), nil
	}

	reg := new(models.Registration)
	err := r.db.NewSelect().
		Model(reg).
		Where("account_id = ?", accountID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}

	r.cache.Add(accountID, reg)
	return reg, nil
}

func (r *registrationRepository) ListActive(ctx context.Context) ([]*models.Registration, error) {
	var regs []*models.Registration
	err := r.db.NewSelect().
		Model(&regs).
		Where("status = ?", models.RegistrationStatusActive).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active registrations: %w", err)
	}
	return regs, nil
}

func (r *registrationRepository) ListAll(ctx context.Context) ([]*models.Registration, error) {
	var regs []*models.Registration
	err := r.db.NewSelect().
		Model(&regs).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	return regs, nil
}

func (r *registrationRepository) UpdateStatus(ctx context.Context, accountID string, status models.RegistrationStatus) error {
	result, err := r.db.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("account_id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update registration status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRegistrationNotFound
	}

	r.cache.Remove(accountID)
	return nil
}

// Deregister soft-removes the account. The row stays because claim history
// references it.
func (r *registrationRepository) Deregister(ctx context.Context, accountID string) error {
	return r.UpdateStatus(ctx, accountID, models.RegistrationStatusDeregistered)
}

func (r *registrationRepository) MarkInvalid(ctx context.Context, accountID string) error {
	return r.UpdateStatus(ctx, accountID, models.RegistrationStatusInvalid)
}

func (r *registrationRepository) CountActive(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.Registration)(nil)).
		Where("status = ?", models.RegistrationStatusActive).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count active registrations: %w", err)
	}
	return count, nil
}
