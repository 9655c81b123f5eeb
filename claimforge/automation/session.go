package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/claimforge/claimforge/claimforge/database/models"
)

// ErrAccountUnknown marks a login rejection that indicates the account no
// longer exists on the rewards site. The scheduler reacts by flipping the
// registration to invalid.
var ErrAccountUnknown = errors.New("account unknown on rewards site")

type sessionState string

const (
	stateInit       sessionState = "init"
	stateNavigating sessionState = "navigating"
	stateLoggingIn  sessionState = "logging_in"
	stateClaiming   sessionState = "claiming"
	stateFinalizing sessionState = "finalizing"
	stateSucceeded  sessionState = "succeeded"
	stateFailed     sessionState = "failed"
)

// SectionConfig describes one reward section of the site.
type SectionConfig struct {
	Name           string `toml:"name"`
	URL            string `toml:"url"`
	ButtonSelector string `toml:"button_selector"`
}

// SessionConfig carries selectors and timings for one claim session. The
// selectors track the live site; they are configuration, not contract.
type SessionConfig struct {
	Sections            []SectionConfig
	LoginSelector       string
	LoginInputSelector  string
	LoginSubmitSelector string
	LoginErrorSelector  string
	NavigationTimeout   time.Duration
	SettleDelay         time.Duration
	SnapshotDir         string
}

// Ledger is the append-only persistence boundary the session writes to.
type Ledger interface {
	RecordAttempt(ctx context.Context, attempt *models.ClaimAttempt) error
}

// SnapshotSink receives checkpoint screenshots after the session has written
// them locally. Upload failures never affect the session outcome.
type SnapshotSink interface {
	Upload(ctx context.Context, path string) error
}

// SessionRunner drives one account through the claim state machine:
//
//	Init → Navigating(A) → LoggingIn → Claiming(A) → Navigating(B) →
//	Claiming(B) → Finalizing → Succeeded | Failed
//
// Exactly one ClaimAttempt is recorded per Run call, on both paths.
type SessionRunner struct {
	browser   Browser
	limiter   *Limiter
	ledger    Ledger
	snapshots SnapshotSink
	cfg       SessionConfig
	logger    *slog.Logger
}

func NewSessionRunner(browser Browser, limiter *Limiter, ledger Ledger, snapshots SnapshotSink, cfg SessionConfig) *SessionRunner {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 2 * time.Second
	}
	return &SessionRunner{
		browser:   browser,
		limiter:   limiter,
		ledger:    ledger,
		snapshots: snapshots,
		cfg:       cfg,
		logger:    slog.With(slog.String("service", "claim_session")),
	}
}

// Run executes the full state machine for one registration and returns the
// recorded attempt. It never returns an error for outcomes the ledger can
// express; only a refused limiter slot (context cancellation) surfaces as err.
func (r *SessionRunner) Run(ctx context.Context, reg *models.Registration, runID string) (*models.ClaimAttempt, error) {
	logger := r.logger.With(
		slog.String("account_id", reg.AccountID),
		slog.String("run_id", runID),
	)
	logger.Info("Claim session starting", slog.String("state", string(stateInit)))

	if err := r.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("failed to acquire session slot: %w", err)
	}
	defer r.limiter.Release()

	start := time.Now()
	items, sessionErr := r.drive(ctx, reg, runID, logger)

	attempt := r.buildAttempt(reg, runID, items, sessionErr, start)

	// Finalizing writes exactly one row regardless of what happened above.
	// A ledger write failure is logged, not escalated: the outcome already
	// happened on the website and must still be reported upstream.
	if err := r.ledger.RecordAttempt(ctx, attempt); err != nil {
		logger.Error("Failed to record claim attempt",
			slog.String("type", "db"),
			slog.Any("error", err))
	}

	state := stateSucceeded
	if attempt.Status == models.ClaimAttemptStatusFailed {
		state = stateFailed
	}
	logger.Info("Claim session finished",
		slog.String("state", string(state)),
		slog.Int("claimed_items", len(attempt.ClaimedItems)),
		slog.Duration("took", time.Since(start)))

	return attempt, nil
}

// drive walks the browser through every state and returns the accumulated
// count-eligible items, or the session-fatal error that ended the walk.
func (r *SessionRunner) drive(ctx context.Context, reg *models.Registration, runID string, logger *slog.Logger) ([]string, error) {
	page, err := r.browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("browser launch failed: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Warn("Failed to close browser page", slog.Any("error", err))
		}
	}()

	var items []string
	loggedIn := false

	for i, section := range r.cfg.Sections {
		logger.Info("Navigating to reward section",
			slog.String("state", string(stateNavigating)),
			slog.String("section", section.Name))

		if err := page.Navigate(ctx, section.URL, r.cfg.NavigationTimeout); err != nil {
			return items, fmt.Errorf("navigation timeout: %w", err)
		}
		r.checkpoint(ctx, page, reg.AccountID, fmt.Sprintf("nav_%s", section.Name), logger)

		if !loggedIn {
			if err := r.logIn(ctx, page, reg, logger); err != nil {
				return items, err
			}
			loggedIn = true
		}

		claimed := r.claimSection(ctx, page, section, logger)
		items = append(items, claimed...)

		if i == len(r.cfg.Sections)-1 {
			r.checkpoint(ctx, page, reg.AccountID, "final", logger)
		}
	}

	return items, nil
}

// logIn enters the account identifier if the page shows a login-entry
// control. An absent control means the context is already authenticated.
func (r *SessionRunner) logIn(ctx context.Context, page Page, reg *models.Registration, logger *slog.Logger) error {
	entries, err := page.QueryAll(ctx, r.cfg.LoginSelector)
	if err != nil {
		return fmt.Errorf("login control lookup failed: %w", err)
	}
	if len(entries) == 0 {
		logger.Debug("No login control found, assuming authenticated")
		return nil
	}

	logger.Info("Logging in", slog.String("state", string(stateLoggingIn)))

	if err := page.Click(ctx, entries[0]); err != nil {
		return fmt.Errorf("failed to open login control: %w", err)
	}

	inputs, err := page.QueryAll(ctx, r.cfg.LoginInputSelector)
	if err != nil || len(inputs) == 0 {
		return fmt.Errorf("login input not found: %w", err)
	}
	if err := page.Fill(ctx, inputs[0], reg.AccountID); err != nil {
		return fmt.Errorf("failed to enter account identifier: %w", err)
	}

	submits, err := page.QueryAll(ctx, r.cfg.LoginSubmitSelector)
	if err != nil || len(submits) == 0 {
		return fmt.Errorf("login submit not found: %w", err)
	}
	if err := page.Click(ctx, submits[0]); err != nil {
		return fmt.Errorf("failed to submit login: %w", err)
	}

	time.Sleep(r.cfg.SettleDelay)
	r.checkpoint(ctx, page, reg.AccountID, "login", logger)

	if r.cfg.LoginErrorSelector != "" {
		if markers, err := page.QueryAll(ctx, r.cfg.LoginErrorSelector); err == nil && len(markers) > 0 {
			return ErrAccountUnknown
		}
	}
	return nil
}

// claimSection enumerates the section's reward buttons in DOM order and
// processes each one. A single button's failure never aborts the section.
func (r *SessionRunner) claimSection(ctx context.Context, page Page, section SectionConfig, logger *slog.Logger) []string {
	logger = logger.With(slog.String("section", section.Name))
	logger.Info("Claiming section", slog.String("state", string(stateClaiming)))

	buttons, err := page.QueryAll(ctx, section.ButtonSelector)
	if err != nil {
		logger.Warn("Failed to enumerate reward buttons", slog.Any("error", err))
		return nil
	}

	var claimed []string
	for i, button := range buttons {
		label, ok := r.processButton(ctx, page, button, logger.With(slog.Int("button", i)))
		if ok {
			claimed = append(claimed, label)
		}
	}

	logger.Info("Section done",
		slog.Int("buttons", len(buttons)),
		slog.Int("counted", len(claimed)))
	return claimed
}

// processButton applies the three classifier predicates around one click.
// Clicking and counting are decoupled on purpose: the click is permissive,
// the count is conservative, and counting requires the pre-click AND the
// post-click check to pass.
func (r *SessionRunner) processButton(ctx context.Context, page Page, button Element, logger *slog.Logger) (string, bool) {
	if err := page.ScrollIntoView(ctx, button); err != nil {
		logger.Warn("Failed to scroll button into view, skipping", slog.Any("error", err))
		return "", false
	}

	text, err := page.ReadText(ctx, button)
	if err != nil {
		logger.Warn("Failed to read button text, skipping", slog.Any("error", err))
		return "", false
	}
	enabled, err := page.IsEnabled(ctx, button)
	if err != nil {
		logger.Warn("Failed to read button state, skipping", slog.Any("error", err))
		return "", false
	}

	countPre := ShouldCountPreClick(text)

	if ShouldClick(text, enabled) {
		if err := page.Click(ctx, button); err != nil {
			logger.Warn("Click failed, continuing with next button", slog.Any("error", err))
			return "", false
		}
		time.Sleep(r.cfg.SettleDelay)
	}

	// Post-click validation. Any DOM failure here is treated as not
	// countable; the session moves on.
	stillPresent := true
	textAfter, err := page.ReadText(ctx, button)
	if err != nil {
		stillPresent = false
	}
	enabledAfter := false
	if stillPresent {
		enabledAfter, err = page.IsEnabled(ctx, button)
		if err != nil {
			stillPresent = false
		}
	}

	if !countPre || !ShouldCountPostClick(stillPresent, enabledAfter, textAfter) {
		return "", false
	}

	logger.Debug("Counted claimed item", slog.String("label", text))
	return text, true
}

// checkpoint captures a screenshot and ships it to the snapshot sink.
// Checkpoints are diagnostics; their failures are logged and swallowed.
func (r *SessionRunner) checkpoint(ctx context.Context, page Page, accountID, name string, logger *slog.Logger) {
	path := filepath.Join(r.cfg.SnapshotDir, fmt.Sprintf("%s_%s_%d.png", accountID, name, time.Now().UnixMilli()))
	if err := page.Screenshot(ctx, path); err != nil {
		logger.Warn("Checkpoint screenshot failed",
			slog.String("checkpoint", name),
			slog.Any("error", err))
		return
	}
	if r.snapshots != nil {
		if err := r.snapshots.Upload(ctx, path); err != nil {
			logger.Warn("Checkpoint upload failed",
				slog.String("checkpoint", name),
				slog.Any("error", err))
		}
	}
}

func (r *SessionRunner) buildAttempt(reg *models.Registration, runID string, items []string, sessionErr error, start time.Time) *models.ClaimAttempt {
	attempt := &models.ClaimAttempt{
		AccountID:    reg.AccountID,
		AccountLabel: reg.DisplayName,
		ClaimedAt:    time.Now(),
		RunID:        runID,
		Metadata: map[string]any{
			"duration_ms": time.Since(start).Milliseconds(),
			"sections":    len(r.cfg.Sections),
		},
	}

	if sessionErr != nil {
		attempt.Status = models.ClaimAttemptStatusFailed
		attempt.ErrorDetail = sessionErr.Error()
		// A failed attempt carries no countable items; anything gathered
		// before the fatal error is kept for auditing only.
		if len(items) > 0 {
			attempt.Metadata["partial_items"] = items
		}
		if errors.Is(sessionErr, ErrAccountUnknown) {
			attempt.Metadata["account_unknown"] = true
		}
		return attempt
	}

	attempt.Status = models.ClaimAttemptStatusSuccess
	if items == nil {
		items = []string{}
	}
	attempt.ClaimedItems = items
	return attempt
}
