package models

import (
	"time"

	"github.com/uptrace/bun"
)

type RegistrationStatus string

const (
	RegistrationStatusActive       RegistrationStatus = "active"
	RegistrationStatusInactive     RegistrationStatus = "inactive"
	RegistrationStatusInvalid      RegistrationStatus = "invalid"
	RegistrationStatusDeregistered RegistrationStatus = "deregistered"
)

// Registration is one external account under management. Rows are never
// physically deleted while claim history references them; removal flows
// only flip the status.
type Registration struct {
	bun.BaseModel `bun:"table:registrations,alias:reg"`

	ID          int64              `bun:"id,pk,autoincrement"`
	AccountID   string             `bun:"account_id,notnull,unique"`
	DisplayName string             `bun:"display_name,notnull"`
	Status      RegistrationStatus `bun:"status,notnull,default:'active'"`
	AddedBy     string             `bun:"added_by,nullzero"`
	CreatedAt   time.Time          `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time          `bun:"updated_at,notnull,default:current_timestamp"`
}

func (r *Registration) IsActive() bool {
	return r.Status == RegistrationStatusActive
}
