package review

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/codecheck/internal/retry"
	"github.com/codecheck/pkg/models"
)

type fakeProvider struct {
	blocks []models.DiffBlock
	err    error
	calls  int
}

func (p *fakeProvider) DiffBlocks(ctx context.Context, submission models.Submission) ([]models.DiffBlock, error) {
	p.calls++
	return p.blocks, p.err
}

func (p *fakeProvider) Submission(ctx context.Context, projectID int64, commitID string, mrIID int64) (models.Submission, error) {
	return models.Submission{ProjectID: projectID, CommitID: commitID}, nil
}

func (p *fakeProvider) Name() string { return "fake" }

// fakeModel answers by the file path found in the prompt
type fakeModel struct {
	mu      sync.Mutex
	answers map[string]string
	errs    map[string][]error
	systems []string
}

func (m *fakeModel) Review(ctx context.Context, system, prompt string, options ...llms.CallOption) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systems = append(m.systems, system)
	for path, answer := range m.answers {
		if !strings.Contains(prompt, "File path: "+path+"\n") {
			continue
		}
		if queued := m.errs[path]; len(queued) > 0 {
			m.errs[path] = queued[1:]
			return "", queued[0]
		}
		return answer, nil
	}
	return "", errors.New("unexpected prompt")
}

type recordingNotifier struct {
	reports []string
	err     error
}

func (n *recordingNotifier) Notify(ctx context.Context, report string) error {
	n.reports = append(n.reports, report)
	return n.err
}

func diffFor(lines ...string) string {
	return "@@ -1,0 +1," + string(rune('0'+len(lines))) + " @@\n+" + strings.Join(lines, "\n+") + "\n"
}

func testConfig() Config {
	cfg := DefaultReviewConfig()
	cfg.Workers = 3
	cfg.ModelRetry = retry.Config{MaxRetries: 0}
	return cfg
}

var pushSubmission = models.Submission{
	ProjectID:   7,
	ProjectName: "shop",
	CommitID:    "abc123",
	Author:      "dev",
	Message:     "add pricing",
	Type:        models.SubmissionPush,
}

func TestAnalyze_ResultsInDiffOrder(t *testing.T) {
	provider := &fakeProvider{blocks: []models.DiffBlock{
		{FilePath: "b/price.go", DiffText: diffFor("x := 1")},
		{FilePath: "a/cart.go", DiffText: diffFor("y := 2")},
		{FilePath: "README.md", DiffText: diffFor("docs")},
		{FilePath: "b/price.go", DiffText: "@@ -10,0 +10,1 @@\n+z := 3\n"},
	}}
	model := &fakeModel{answers: map[string]string{
		"b/price.go": "```json\n{\"hasIssues\": true, \"fileEvaluation\": \"risky\", \"issues\": [{\"description\": \"magic number\", \"codeLine\": 10, \"issueType\": \"warning\", \"severity\": \"low\"}]}\n```",
		"a/cart.go":  `{"hasIssues": false, "fileEvaluation": "fine"}`,
	}}

	results, err := NewService(provider, model, testConfig()).Analyze(context.Background(), pushSubmission)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b/price.go", results[0].FilePath)
	assert.True(t, results[0].HasIssues)
	require.Len(t, results[0].Issues, 1)
	assert.Equal(t, 10, results[0].Issues[0].LineNumber)
	assert.Equal(t, models.SeverityLow, results[0].Issues[0].Severity)
	assert.Equal(t, "a/cart.go", results[1].FilePath)
	assert.False(t, results[1].HasIssues)
	assert.Empty(t, results[1].Issues)
	for _, system := range model.systems {
		assert.NotEmpty(t, system)
	}
}

func TestAnalyze_ModelFailureBecomesSystemError(t *testing.T) {
	provider := &fakeProvider{blocks: []models.DiffBlock{
		{FilePath: "ok.go", DiffText: diffFor("a")},
		{FilePath: "broken.go", DiffText: diffFor("b")},
	}}
	model := &fakeModel{
		answers: map[string]string{"ok.go": `{"hasIssues": false}`, "broken.go": `{}`},
		errs:    map[string][]error{"broken.go": {errors.New("invalid api key")}},
	}

	results, err := NewService(provider, model, testConfig()).Analyze(context.Background(), pushSubmission)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].HasIssues)
	require.Len(t, results[1].Issues, 1)
	issue := results[1].Issues[0]
	assert.Equal(t, models.IssueTypeSystemError, issue.IssueType)
	assert.Equal(t, models.SeverityHigh, issue.Severity)
	assert.Contains(t, issue.Description, "invalid api key")
}

func TestAnalyze_RetriesTransientModelErrors(t *testing.T) {
	provider := &fakeProvider{blocks: []models.DiffBlock{{FilePath: "main.go", DiffText: diffFor("a")}}}
	model := &fakeModel{
		answers: map[string]string{"main.go": `{"hasIssues": false, "fileEvaluation": "fine"}`},
		errs:    map[string][]error{"main.go": {errors.New("503 service unavailable")}},
	}
	cfg := testConfig()
	cfg.ModelRetry = retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	results, err := NewService(provider, model, cfg).Analyze(context.Background(), pushSubmission)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fine", results[0].FileEvaluation)
	assert.Len(t, model.systems, 2)
}

func TestAnalyze_ProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("gitlab unreachable")}

	results, err := NewService(provider, &fakeModel{}, testConfig()).Analyze(context.Background(), pushSubmission)

	assert.Error(t, err)
	assert.Nil(t, results)
}

func TestAnalyze_SkipsMalformedAndDeleted(t *testing.T) {
	provider := &fakeProvider{blocks: []models.DiffBlock{
		{FilePath: "bad.go", DiffText: "@@ -x +y @@\n+a\n"},
		{FilePath: "gone.go", IsDeleted: true, DiffText: "@@ -1,1 +0,0 @@\n-a\n"},
	}}

	results, err := NewService(provider, &fakeModel{}, testConfig()).Analyze(context.Background(), pushSubmission)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHandler_NotifiesReport(t *testing.T) {
	provider := &fakeProvider{blocks: []models.DiffBlock{{FilePath: "main.go", DiffText: diffFor("a")}}}
	model := &fakeModel{answers: map[string]string{"main.go": `{"hasIssues": false, "fileEvaluation": "fine"}`}}
	notifier := &recordingNotifier{}
	at := time.Date(2025, 8, 19, 16, 46, 0, 0, time.UTC)

	h := NewHandler(NewService(provider, model, testConfig()), notifier, HandlerOptions{Now: func() time.Time { return at }})
	require.NoError(t, h.Handle(context.Background(), pushSubmission))

	require.Len(t, notifier.reports, 1)
	assert.Contains(t, notifier.reports[0], "2025-08-19 16:46:00")
	assert.Contains(t, notifier.reports[0], "#### File 1: main.go")
	assert.Equal(t, "review", h.Name())
}

func TestHandler_Skips(t *testing.T) {
	mergeCommit := pushSubmission
	mergeCommit.Message = "Merge branch 'feature' into 'main'"
	mr := pushSubmission
	mr.Type = models.SubmissionMergeRequest
	mr.MergeRequestIID = 3
	tag := pushSubmission
	tag.Type = models.SubmissionTag

	for name, submission := range map[string]models.Submission{"merge commit": mergeCommit, "mr disabled": mr, "tag": tag} {
		t.Run(name, func(t *testing.T) {
			provider := &fakeProvider{}
			notifier := &recordingNotifier{}
			h := NewHandler(NewService(provider, &fakeModel{}, testConfig()), notifier, HandlerOptions{})

			require.NoError(t, h.Handle(context.Background(), submission))
			assert.Zero(t, provider.calls)
			assert.Empty(t, notifier.reports)
		})
	}
}

func TestHandler_MergeRequestEnabled(t *testing.T) {
	mr := pushSubmission
	mr.Type = models.SubmissionMergeRequest
	mr.MergeRequestIID = 3
	mr.Title = "Pricing"
	provider := &fakeProvider{blocks: []models.DiffBlock{{FilePath: "main.go", DiffText: diffFor("a")}}}
	model := &fakeModel{answers: map[string]string{"main.go": `{"hasIssues": false}`}}
	notifier := &recordingNotifier{}

	h := NewHandler(NewService(provider, model, testConfig()), notifier, HandlerOptions{ReviewMergeRequests: true})
	require.NoError(t, h.Handle(context.Background(), mr))

	require.Len(t, notifier.reports, 1)
	assert.Contains(t, notifier.reports[0], "!3 Pricing")
}

func TestHandler_OnlyIssuesAndFailures(t *testing.T) {
	provider := &fakeProvider{blocks: []models.DiffBlock{{FilePath: "main.go", DiffText: diffFor("a")}}}
	model := &fakeModel{answers: map[string]string{"main.go": `{"hasIssues": false}`}}
	notifier := &recordingNotifier{}

	h := NewHandler(NewService(provider, model, testConfig()), notifier, HandlerOptions{OnlyIssues: true})
	require.NoError(t, h.Handle(context.Background(), pushSubmission))
	assert.Empty(t, notifier.reports)

	failing := &fakeProvider{err: errors.New("connection refused")}
	h = NewHandler(NewService(failing, model, testConfig()), notifier, HandlerOptions{})
	require.NoError(t, h.Handle(context.Background(), pushSubmission))
	assert.Empty(t, notifier.reports)
}

func TestHandler_NotifierError(t *testing.T) {
	provider := &fakeProvider{blocks: []models.DiffBlock{{FilePath: "main.go", DiffText: diffFor("a")}}}
	model := &fakeModel{answers: map[string]string{"main.go": `{"hasIssues": false}`}}
	notifier := &recordingNotifier{err: errors.New("group bot rejected message (errcode 93000)")}

	h := NewHandler(NewService(provider, model, testConfig()), notifier, HandlerOptions{})
	assert.Error(t, h.Handle(context.Background(), pushSubmission))
}

func TestAuditHandler(t *testing.T) {
	var h AuditHandler
	assert.Equal(t, "audit", h.Name())
	assert.NoError(t, h.Handle(context.Background(), pushSubmission))
}
