package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/claimforge/claimforge/claimforge/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeButton struct {
	text         string
	enabled      bool
	textAfter    string
	enabledAfter bool
	clickErr     error
	vanishes     bool

	clicked bool
}

type fakePage struct {
	mu          sync.Mutex
	buttons     map[string][]*fakeButton
	loginNodes  map[string]int
	navErr      error
	closed      bool
	screenshots int
	filled      []string
}

func newFakePage() *fakePage {
	return &fakePage{
		buttons:    map[string][]*fakeButton{},
		loginNodes: map[string]int{},
	}
}

func (p *fakePage) Navigate(_ context.Context, _ string, _ time.Duration) error {
	return p.navErr
}

func (p *fakePage) QueryAll(_ context.Context, selector string) ([]Element, error) {
	if n, ok := p.loginNodes[selector]; ok {
		els := make([]Element, n)
		for i := range els {
			els[i] = selector
		}
		return els, nil
	}
	els := make([]Element, 0, len(p.buttons[selector]))
	for _, b := range p.buttons[selector] {
		els = append(els, b)
	}
	return els, nil
}

func (p *fakePage) ReadText(_ context.Context, el Element) (string, error) {
	b, ok := el.(*fakeButton)
	if !ok {
		return "", nil
	}
	if b.clicked {
		if b.vanishes {
			return "", errors.New("node detached")
		}
		return b.textAfter, nil
	}
	return b.text, nil
}

func (p *fakePage) IsEnabled(_ context.Context, el Element) (bool, error) {
	b, ok := el.(*fakeButton)
	if !ok {
		return true, nil
	}
	if b.clicked {
		return b.enabledAfter, nil
	}
	return b.enabled, nil
}

func (p *fakePage) ScrollIntoView(_ context.Context, _ Element) error { return nil }

func (p *fakePage) Click(_ context.Context, el Element) error {
	b, ok := el.(*fakeButton)
	if !ok {
		return nil
	}
	if b.clickErr != nil {
		return b.clickErr
	}
	b.clicked = true
	return nil
}

func (p *fakePage) Fill(_ context.Context, _ Element, text string) error {
	p.filled = append(p.filled, text)
	return nil
}

func (p *fakePage) Screenshot(_ context.Context, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screenshots++
	return nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeBrowser struct {
	page   *fakePage
	newErr error
}

func (b *fakeBrowser) NewPage(_ context.Context) (Page, error) {
	if b.newErr != nil {
		return nil, b.newErr
	}
	return b.page, nil
}

func (b *fakeBrowser) Close() error { return nil }

type recordingLedger struct {
	mu       sync.Mutex
	attempts []*models.ClaimAttempt
	writeErr error
}

func (l *recordingLedger) RecordAttempt(_ context.Context, attempt *models.ClaimAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, attempt)
	return l.writeErr
}

func testSessionConfig() SessionConfig {
	return SessionConfig{
		Sections: []SectionConfig{
			{Name: "daily", URL: "https://rewards.example/daily", ButtonSelector: "#daily"},
			{Name: "weekly", URL: "https://rewards.example/weekly", ButtonSelector: "#weekly"},
		},
		LoginSelector:       "#login",
		LoginInputSelector:  "#login-input",
		LoginSubmitSelector: "#login-submit",
		LoginErrorSelector:  "#login-error",
		NavigationTimeout:   time.Second,
		SettleDelay:         time.Millisecond,
		SnapshotDir:         "snapshots",
	}
}

func testRegistration() *models.Registration {
	return &models.Registration{
		AccountID:   "acct-42",
		DisplayName: "Test Account",
		Status:      models.RegistrationStatusActive,
	}
}

func TestSessionRunSucceedsAndRecordsOneAttempt(t *testing.T) {
	page := newFakePage()
	page.buttons["#daily"] = []*fakeButton{
		{text: "Claim Day 1", enabled: true, textAfter: "Claim Day 1", enabledAfter: true},
		{text: "Claimed", enabled: true},
	}
	page.buttons["#weekly"] = []*fakeButton{
		{text: "Weekly Chest", enabled: true, textAfter: "Weekly Chest", enabledAfter: true},
	}

	ledger := &recordingLedger{}
	runner := NewSessionRunner(&fakeBrowser{page: page}, NewLimiter(1), ledger, nil, testSessionConfig())

	attempt, err := runner.Run(context.Background(), testRegistration(), "run-1")
	require.NoError(t, err)

	require.Len(t, ledger.attempts, 1)
	assert.Same(t, ledger.attempts[0], attempt)
	assert.Equal(t, models.ClaimAttemptStatusSuccess, attempt.Status)
	assert.Equal(t, []string{"Claim Day 1", "Weekly Chest"}, attempt.ClaimedItems)
	assert.Equal(t, "acct-42", attempt.AccountID)
	assert.Equal(t, "run-1", attempt.RunID)
	assert.Empty(t, attempt.ErrorDetail)
	assert.True(t, page.closed)
}

func TestSessionRunWithNothingToClaimIsStillSuccess(t *testing.T) {
	page := newFakePage()
	page.buttons["#daily"] = []*fakeButton{
		{text: "Claimed", enabled: true},
		{text: "Already collected", enabled: false},
	}

	ledger := &recordingLedger{}
	cfg := testSessionConfig()
	cfg.Sections = cfg.Sections[:1]
	runner := NewSessionRunner(&fakeBrowser{page: page}, NewLimiter(1), ledger, nil, cfg)

	attempt, err := runner.Run(context.Background(), testRegistration(), "run-2")
	require.NoError(t, err)

	require.Len(t, ledger.attempts, 1)
	assert.Equal(t, models.ClaimAttemptStatusSuccess, attempt.Status)
	assert.NotNil(t, attempt.ClaimedItems)
	assert.Empty(t, attempt.ClaimedItems)
}

func TestSessionRunNavigationFailureRecordsFailedAttempt(t *testing.T) {
	page := newFakePage()
	page.navErr = errors.New("net::ERR_CONNECTION_TIMED_OUT")

	ledger := &recordingLedger{}
	runner := NewSessionRunner(&fakeBrowser{page: page}, NewLimiter(1), ledger, nil, testSessionConfig())

	attempt, err := runner.Run(context.Background(), testRegistration(), "run-3")
	require.NoError(t, err)

	require.Len(t, ledger.attempts, 1)
	assert.Equal(t, models.ClaimAttemptStatusFailed, attempt.Status)
	assert.Contains(t, attempt.ErrorDetail, "navigation timeout")
	assert.Empty(t, attempt.ClaimedItems)
}

func TestSessionRunBrowserLaunchFailureRecordsFailedAttempt(t *testing.T) {
	ledger := &recordingLedger{}
	runner := NewSessionRunner(&fakeBrowser{newErr: errors.New("chrome not found")}, NewLimiter(1), ledger, nil, testSessionConfig())

	attempt, err := runner.Run(context.Background(), testRegistration(), "run-4")
	require.NoError(t, err)

	require.Len(t, ledger.attempts, 1)
	assert.Equal(t, models.ClaimAttemptStatusFailed, attempt.Status)
	assert.Contains(t, attempt.ErrorDetail, "browser launch failed")
}

func TestSessionRunButtonFailureDoesNotAbortSection(t *testing.T) {
	page := newFakePage()
	page.buttons["#daily"] = []*fakeButton{
		{text: "Claim Day 1", enabled: true, clickErr: errors.New("element not interactable")},
		{text: "Claim Day 2", enabled: true, textAfter: "Claim Day 2", enabledAfter: true},
	}

	ledger := &recordingLedger{}
	cfg := testSessionConfig()
	cfg.Sections = cfg.Sections[:1]
	runner := NewSessionRunner(&fakeBrowser{page: page}, NewLimiter(1), ledger, nil, cfg)

	attempt, err := runner.Run(context.Background(), testRegistration(), "run-5")
	require.NoError(t, err)

	assert.Equal(t, models.ClaimAttemptStatusSuccess, attempt.Status)
	assert.Equal(t, []string{"Claim Day 2"}, attempt.ClaimedItems)
}

func TestSessionRunVanishedButtonIsNotCounted(t *testing.T) {
	page := newFakePage()
	page.buttons["#daily"] = []*fakeButton{
		{text: "Claim Day 1", enabled: true, vanishes: true},
	}

	ledger := &recordingLedger{}
	cfg := testSessionConfig()
	cfg.Sections = cfg.Sections[:1]
	runner := NewSessionRunner(&fakeBrowser{page: page}, NewLimiter(1), ledger, nil, cfg)

	attempt, err := runner.Run(context.Background(), testRegistration(), "run-6")
	require.NoError(t, err)

	assert.Equal(t, models.ClaimAttemptStatusSuccess, attempt.Status)
	assert.Empty(t, attempt.ClaimedItems)
}

func TestSessionRunLogsInWhenControlPresent(t *testing.T) {
	page := newFakePage()
	page.loginNodes["#login"] = 1
	page.loginNodes["#login-input"] = 1
	page.loginNodes["#login-submit"] = 1

	ledger := &recordingLedger{}
	cfg := testSessionConfig()
	cfg.Sections = cfg.Sections[:1]
	runner := NewSessionRunner(&fakeBrowser{page: page}, NewLimiter(1), ledger, nil, cfg)

	attempt, err := runner.Run(context.Background(), testRegistration(), "run-7")
	require.NoError(t, err)

	assert.Equal(t, models.ClaimAttemptStatusSuccess, attempt.Status)
	assert.Equal(t, []string{"acct-42"}, page.filled)
}

func TestSessionRunUnknownAccountMarksAttempt(t *testing.T) {
	page := newFakePage()
	page.loginNodes["#login"] = 1
	page.loginNodes["#login-input"] = 1
	page.loginNodes["#login-submit"] = 1
	page.loginNodes["#login-error"] = 1

	ledger := &recordingLedger{}
	runner := NewSessionRunner(&fakeBrowser{page: page}, NewLimiter(1), ledger, nil, testSessionConfig())

	attempt, err := runner.Run(context.Background(), testRegistration(), "run-8")
	require.NoError(t, err)

	require.Len(t, ledger.attempts, 1)
	assert.Equal(t, models.ClaimAttemptStatusFailed, attempt.Status)
	assert.Equal(t, true, attempt.Metadata["account_unknown"])
}

func TestSessionRunFailedAttemptKeepsPartialItemsInMetadataOnly(t *testing.T) {
	page := newFakePage()
	page.buttons["#daily"] = []*fakeButton{
		{text: "Claim Day 1", enabled: true, textAfter: "Claim Day 1", enabledAfter: true},
	}

	// The second section's navigation fails after the first section already
	// claimed something.
	navCount := 0
	failing := &navFailAfter{fakePage: page, failFrom: 2, count: &navCount}

	ledger := &recordingLedger{}
	runner := NewSessionRunner(staticBrowser{failing}, NewLimiter(1), ledger, nil, testSessionConfig())

	attempt, err := runner.Run(context.Background(), testRegistration(), "run-9")
	require.NoError(t, err)

	assert.Equal(t, models.ClaimAttemptStatusFailed, attempt.Status)
	assert.Contains(t, attempt.ErrorDetail, "navigation timeout")
	assert.Empty(t, attempt.ClaimedItems)
	assert.Equal(t, []string{"Claim Day 1"}, attempt.Metadata["partial_items"])
}

type navFailAfter struct {
	*fakePage
	failFrom int
	count    *int
}

func (p *navFailAfter) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	*p.count++
	if *p.count >= p.failFrom {
		return errors.New("net::ERR_TIMED_OUT")
	}
	return p.fakePage.Navigate(ctx, url, timeout)
}

type staticBrowser []Page

func (b staticBrowser) NewPage(_ context.Context) (Page, error) { return b[0], nil }
func (b staticBrowser) Close() error                            { return nil }

func TestSessionRunRecordsAttemptEvenWhenLedgerWriteFails(t *testing.T) {
	page := newFakePage()
	ledger := &recordingLedger{writeErr: errors.New("connection refused")}
	cfg := testSessionConfig()
	cfg.Sections = cfg.Sections[:1]
	runner := NewSessionRunner(&fakeBrowser{page: page}, NewLimiter(1), ledger, nil, cfg)

	attempt, err := runner.Run(context.Background(), testRegistration(), "run-10")
	require.NoError(t, err)
	assert.Equal(t, models.ClaimAttemptStatusSuccess, attempt.Status)
}
