package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ClaimAttemptStatus string

const (
	ClaimAttemptStatusSuccess ClaimAttemptStatus = "success"
	ClaimAttemptStatusFailed  ClaimAttemptStatus = "failed"
)

// ClaimAttempt is the ledger entry written once per account per automation
// session. Rows are append-only: they are never updated in place, and only
// the maintenance cleanup may delete them.
type ClaimAttempt struct {
	bun.BaseModel `bun:"table:claim_attempts,alias:ca"`

	ID           int64              `bun:"id,pk,autoincrement"`
	AccountID    string             `bun:"account_id,notnull"`
	AccountLabel string             `bun:"account_label,nullzero"`
	Status       ClaimAttemptStatus `bun:"status,notnull"`
	ClaimedItems []string           `bun:"claimed_items,array"`
	ErrorDetail  string             `bun:"error_detail,nullzero"`
	ClaimedAt    time.Time          `bun:"claimed_at,notnull"`
	RunID        string             `bun:"run_id,nullzero"`
	Metadata     map[string]any     `bun:"metadata,type:jsonb,nullzero"`
}

func (a *ClaimAttempt) Succeeded() bool {
	return a.Status == ClaimAttemptStatusSuccess
}

// localDay collapses a timestamp to its calendar day in the given location.
func localDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

type accountDay struct {
	account string
	day     string
}

// SupersededFailedIDs returns the ids of failed attempts that share an
// account and calendar day with a success for the same account. Such rows
// are retry artifacts, not independent outcomes, and are the only rows the
// maintenance cleanup is allowed to delete.
func SupersededFailedIDs(attempts []*ClaimAttempt, loc *time.Location) []int64 {
	if loc == nil {
		loc = time.UTC
	}

	succeeded := make(map[accountDay]bool)
	for _, a := range attempts {
		if a.Succeeded() {
			succeeded[accountDay{a.AccountID, localDay(a.ClaimedAt, loc)}] = true
		}
	}

	var ids []int64
	for _, a := range attempts {
		if a.Succeeded() {
			continue
		}
		if succeeded[accountDay{a.AccountID, localDay(a.ClaimedAt, loc)}] {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// CountableAttempts filters a slice of attempts down to the ones that
// aggregation read paths may count: everything except failed rows superseded
// by a same-day success for the same account.
func CountableAttempts(attempts []*ClaimAttempt, loc *time.Location) []*ClaimAttempt {
	superseded := make(map[int64]bool)
	for _, id := range SupersededFailedIDs(attempts, loc) {
		superseded[id] = true
	}

	countable := make([]*ClaimAttempt, 0, len(attempts))
	for _, a := range attempts {
		if !superseded[a.ID] {
			countable = append(countable, a)
		}
	}
	return countable
}
