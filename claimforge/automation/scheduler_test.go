package automation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/claimforge/claimforge/claimforge/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoster struct {
	mu       sync.Mutex
	regs     []*models.Registration
	listErr  error
	invalids []string
}

func (r *fakeRoster) ListActive(_ context.Context) ([]*models.Registration, error) {
	return r.regs, r.listErr
}

func (r *fakeRoster) GetByAccountID(_ context.Context, accountID string) (*models.Registration, error) {
	for _, reg := range r.regs {
		if reg.AccountID == accountID {
			return reg, nil
		}
	}
	return nil, errors.New("registration not found")
}

func (r *fakeRoster) MarkInvalid(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalids = append(r.invalids, accountID)
	return nil
}

// fakeInvoker resolves each account to a canned outcome: an attempt, an
// error, or a panic.
type fakeInvoker struct {
	mu       sync.Mutex
	attempts map[string]*models.ClaimAttempt
	errs     map[string]error
	panics   map[string]bool
	order    []string
	runIDs   []string
}

func (f *fakeInvoker) Run(_ context.Context, reg *models.Registration, runID string) (*models.ClaimAttempt, error) {
	f.mu.Lock()
	f.order = append(f.order, reg.AccountID)
	f.runIDs = append(f.runIDs, runID)
	f.mu.Unlock()

	if f.panics[reg.AccountID] {
		panic("browser exploded")
	}
	if err, ok := f.errs[reg.AccountID]; ok {
		return nil, err
	}
	if attempt, ok := f.attempts[reg.AccountID]; ok {
		return attempt, nil
	}
	return &models.ClaimAttempt{
		AccountID:    reg.AccountID,
		Status:       models.ClaimAttemptStatusSuccess,
		ClaimedItems: []string{"Daily Reward"},
		ClaimedAt:    time.Now(),
		RunID:        runID,
	}, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	summaries []*RunSummary
	err       error
}

func (n *fakeNotifier) NotifySummary(_ context.Context, summary *RunSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summary)
	return n.err
}

func rosterOf(ids ...string) *fakeRoster {
	regs := make([]*models.Registration, 0, len(ids))
	for _, id := range ids {
		regs = append(regs, &models.Registration{
			AccountID:   id,
			DisplayName: "Account " + id,
			Status:      models.RegistrationStatusActive,
		})
	}
	return &fakeRoster{regs: regs}
}

func TestRunCycleIsolatesAccountFailures(t *testing.T) {
	roster := rosterOf("a1", "a2", "a3", "a4", "a5")
	invoker := &fakeInvoker{
		errs: map[string]error{"a3": errors.New("navigation timeout")},
	}
	notifier := &fakeNotifier{}
	s := NewScheduler(roster, invoker, notifier, SchedulerConfig{})

	summary, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Attempted)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Results, 5)

	byAccount := map[string]AccountResult{}
	for _, res := range summary.Results {
		byAccount[res.AccountID] = res
	}
	assert.Equal(t, models.ClaimAttemptStatusFailed, byAccount["a3"].Status)
	assert.Contains(t, byAccount["a3"].Error, "navigation timeout")
	assert.Equal(t, models.ClaimAttemptStatusSuccess, byAccount["a1"].Status)
}

func TestRunCycleIsolatesPanics(t *testing.T) {
	roster := rosterOf("a1", "a2", "a3")
	invoker := &fakeInvoker{panics: map[string]bool{"a2": true}}
	s := NewScheduler(roster, invoker, &fakeNotifier{}, SchedulerConfig{})

	summary, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 1, summary.Failed)

	for _, res := range summary.Results {
		if res.AccountID == "a2" {
			assert.Equal(t, models.ClaimAttemptStatusFailed, res.Status)
			assert.Contains(t, res.Error, "session panic")
		}
	}
}

func TestRunCycleSerialPreservesRosterOrder(t *testing.T) {
	roster := rosterOf("a1", "a2", "a3")
	invoker := &fakeInvoker{}
	s := NewScheduler(roster, invoker, &fakeNotifier{}, SchedulerConfig{
		Serial:            true,
		InterAccountDelay: time.Millisecond,
	})

	summary, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a1", "a2", "a3"}, invoker.order)
	assert.Equal(t, "a1", summary.Results[0].AccountID)
	assert.Equal(t, "a3", summary.Results[2].AccountID)
}

func TestRunCycleSharesOneRunID(t *testing.T) {
	roster := rosterOf("a1", "a2", "a3")
	invoker := &fakeInvoker{}
	s := NewScheduler(roster, invoker, &fakeNotifier{}, SchedulerConfig{})

	summary, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, summary.RunID)

	for _, runID := range invoker.runIDs {
		assert.Equal(t, summary.RunID, runID)
	}
}

func TestRunCycleDeliversSummaryToNotifier(t *testing.T) {
	roster := rosterOf("a1")
	notifier := &fakeNotifier{}
	s := NewScheduler(roster, &fakeInvoker{}, notifier, SchedulerConfig{})

	summary, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, notifier.summaries, 1)
	assert.Same(t, summary, notifier.summaries[0])
}

func TestRunCycleNotifierFailureDoesNotFailCycle(t *testing.T) {
	roster := rosterOf("a1")
	notifier := &fakeNotifier{err: errors.New("channel gone")}
	s := NewScheduler(roster, &fakeInvoker{}, notifier, SchedulerConfig{})

	_, err := s.RunCycle(context.Background())
	assert.NoError(t, err)
}

func TestRunCycleRosterListFailure(t *testing.T) {
	roster := &fakeRoster{listErr: errors.New("db down")}
	s := NewScheduler(roster, &fakeInvoker{}, &fakeNotifier{}, SchedulerConfig{})

	summary, err := s.RunCycle(context.Background())
	require.Error(t, err)
	assert.NotNil(t, summary)
	assert.Zero(t, summary.Attempted)
}

func TestRunCycleMarksUnknownAccountsInvalid(t *testing.T) {
	roster := rosterOf("a1", "a2")
	invoker := &fakeInvoker{
		attempts: map[string]*models.ClaimAttempt{
			"a2": {
				AccountID:   "a2",
				Status:      models.ClaimAttemptStatusFailed,
				ErrorDetail: "account unknown on rewards site",
				Metadata:    map[string]any{"account_unknown": true},
			},
		},
	}
	s := NewScheduler(roster, invoker, &fakeNotifier{}, SchedulerConfig{})

	_, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, roster.invalids)
}

func TestClaimAccountUsesManualRunID(t *testing.T) {
	roster := rosterOf("a1")
	invoker := &fakeInvoker{}
	s := NewScheduler(roster, invoker, &fakeNotifier{}, SchedulerConfig{})

	attempt, err := s.ClaimAccount(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, models.ClaimAttemptStatusSuccess, attempt.Status)
	require.Len(t, invoker.runIDs, 1)
	assert.True(t, strings.HasPrefix(invoker.runIDs[0], "manual-"))
}

func TestClaimAccountUnknownRegistration(t *testing.T) {
	s := NewScheduler(rosterOf(), &fakeInvoker{}, &fakeNotifier{}, SchedulerConfig{})

	_, err := s.ClaimAccount(context.Background(), "missing")
	assert.Error(t, err)
}
