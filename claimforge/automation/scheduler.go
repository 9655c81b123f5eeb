package automation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claimforge/claimforge/claimforge/database/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RosterProvider hands the scheduler the accounts under management.
type RosterProvider interface {
	ListActive(ctx context.Context) ([]*models.Registration, error)
	GetByAccountID(ctx context.Context, accountID string) (*models.Registration, error)
	MarkInvalid(ctx context.Context, accountID string) error
}

// SessionInvoker is what the scheduler runs per account. *SessionRunner is
// the production implementation.
type SessionInvoker interface {
	Run(ctx context.Context, reg *models.Registration, runID string) (*models.ClaimAttempt, error)
}

// Notifier receives the advisory run summary. Delivery is best effort.
type Notifier interface {
	NotifySummary(ctx context.Context, summary *RunSummary) error
}

// AccountResult is one roster entry's outcome inside a run.
type AccountResult struct {
	AccountID    string
	DisplayName  string
	Status       models.ClaimAttemptStatus
	ClaimedItems []string
	Error        string
}

// RunSummary aggregates one full cycle. It is handed to the notifier and
// never persisted.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Attempted  int
	Succeeded  int
	Failed     int
	Results    []AccountResult
}

type SchedulerConfig struct {
	// Serial processes the roster one account at a time with
	// InterAccountDelay between sessions, for hosts that cannot afford
	// concurrent browsers. The limiter still applies in both modes.
	Serial            bool
	InterAccountDelay time.Duration
}

// Scheduler iterates the active roster and runs one claim session per
// account. One account's failure never stops the iteration.
type Scheduler struct {
	roster   RosterProvider
	invoker  SessionInvoker
	notifier Notifier
	cfg      SchedulerConfig
	logger   *slog.Logger
}

func NewScheduler(roster RosterProvider, invoker SessionInvoker, notifier Notifier, cfg SchedulerConfig) *Scheduler {
	if cfg.InterAccountDelay <= 0 {
		cfg.InterAccountDelay = 10 * time.Second
	}
	return &Scheduler{
		roster:   roster,
		invoker:  invoker,
		notifier: notifier,
		cfg:      cfg,
		logger:   slog.With(slog.String("service", "run_scheduler")),
	}
}

// RunCycle runs a claim session for every active registration and returns
// the aggregated summary. It always returns a summary, even when every
// account failed; the error is non-nil only when the roster itself could not
// be listed.
func (s *Scheduler) RunCycle(ctx context.Context) (*RunSummary, error) {
	runID := uuid.NewString()
	summary := &RunSummary{
		RunID:     runID,
		StartedAt: time.Now(),
	}

	roster, err := s.roster.ListActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list active registrations: %w", err)
	}

	s.logger.Info("Claim cycle starting",
		slog.String("run_id", runID),
		slog.Int("accounts", len(roster)),
		slog.Bool("serial", s.cfg.Serial))

	if s.cfg.Serial {
		s.runSerial(ctx, roster, runID, summary)
	} else {
		s.runConcurrent(ctx, roster, runID, summary)
	}

	summary.FinishedAt = time.Now()
	for _, res := range summary.Results {
		summary.Attempted++
		if res.Status == models.ClaimAttemptStatusSuccess {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	s.logger.Info("Claim cycle finished",
		slog.String("run_id", runID),
		slog.Int("attempted", summary.Attempted),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Duration("took", summary.FinishedAt.Sub(summary.StartedAt)))

	if s.notifier != nil {
		if err := s.notifier.NotifySummary(ctx, summary); err != nil {
			s.logger.Error("Failed to deliver run summary", slog.Any("error", err))
		}
	}

	return summary, nil
}

func (s *Scheduler) runConcurrent(ctx context.Context, roster []*models.Registration, runID string, summary *RunSummary) {
	var mu sync.Mutex
	g := new(errgroup.Group)

	// Sessions may finish in any order; results are collected as they land
	// and the slice order carries no meaning.
	for _, reg := range roster {
		reg := reg
		g.Go(func() error {
			result := s.runOne(ctx, reg, runID)
			mu.Lock()
			summary.Results = append(summary.Results, result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) runSerial(ctx context.Context, roster []*models.Registration, runID string, summary *RunSummary) {
	for i, reg := range roster {
		summary.Results = append(summary.Results, s.runOne(ctx, reg, runID))
		if i < len(roster)-1 {
			select {
			case <-time.After(s.cfg.InterAccountDelay):
			case <-ctx.Done():
			}
		}
	}
}

// runOne isolates a single account's session: panics and errors become a
// failed result, never an aborted cycle.
func (s *Scheduler) runOne(ctx context.Context, reg *models.Registration, runID string) (result AccountResult) {
	result = AccountResult{
		AccountID:   reg.AccountID,
		DisplayName: reg.DisplayName,
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Claim session panicked",
				slog.String("account_id", reg.AccountID),
				slog.Any("panic", r))
			result.Status = models.ClaimAttemptStatusFailed
			result.Error = fmt.Sprintf("session panic: %v", r)
		}
	}()

	attempt, err := s.invoker.Run(ctx, reg, runID)
	if err != nil {
		result.Status = models.ClaimAttemptStatusFailed
		result.Error = err.Error()
		return result
	}

	result.Status = attempt.Status
	result.ClaimedItems = attempt.ClaimedItems
	result.Error = attempt.ErrorDetail

	if attempt.Metadata != nil {
		if unknown, ok := attempt.Metadata["account_unknown"].(bool); ok && unknown {
			if err := s.roster.MarkInvalid(ctx, reg.AccountID); err != nil {
				s.logger.Error("Failed to mark registration invalid",
					slog.String("account_id", reg.AccountID),
					slog.Any("error", err))
			}
		}
	}
	return result
}

// ClaimAccount is the manual single-account entry point. The returned
// attempt carries a manual run identifier.
func (s *Scheduler) ClaimAccount(ctx context.Context, accountID string) (*models.ClaimAttempt, error) {
	reg, err := s.roster.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	runID := "manual-" + uuid.NewString()
	attempt, err := s.invoker.Run(ctx, reg, runID)
	if err != nil {
		return nil, err
	}

	if attempt.Metadata != nil {
		if unknown, ok := attempt.Metadata["account_unknown"].(bool); ok && unknown {
			if err := s.roster.MarkInvalid(ctx, accountID); err != nil {
				s.logger.Error("Failed to mark registration invalid",
					slog.String("account_id", accountID),
					slog.Any("error", err))
			}
		}
	}
	return attempt, nil
}
