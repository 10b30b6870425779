package review

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codecheck/internal/notify"
	"github.com/codecheck/internal/report"
	"github.com/codecheck/pkg/models"
)

// mergeCommitPrefix marks the commits GitLab creates when a branch is merged.
// Their changes were reviewed when the branch was pushed.
const mergeCommitPrefix = "Merge branch"

// HandlerOptions controls which submissions the review handler acts on
type HandlerOptions struct {
	ReviewMergeRequests bool
	// OnlyIssues suppresses the notification when no file has issues
	OnlyIssues bool
	Now        func() time.Time
}

// Handler runs a review for each published submission and sends the report
type Handler struct {
	service  *Service
	notifier notify.Notifier
	options  HandlerOptions
}

// NewHandler creates the review handler
func NewHandler(service *Service, notifier notify.Notifier, options HandlerOptions) *Handler {
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Handler{service: service, notifier: notifier, options: options}
}

func (h *Handler) Name() string { return "review" }

// Handle reviews a submission. Fetch failures are logged and swallowed so
// one unreachable project cannot fail the other handlers.
func (h *Handler) Handle(ctx context.Context, submission models.Submission) error {
	if skip, reason := h.skip(submission); skip {
		log.Info().
			Int64("project_id", submission.ProjectID).
			Str("commit", submission.CommitID).
			Str("reason", reason).
			Msg("Submission not reviewed")
		return nil
	}

	results, err := h.service.Analyze(ctx, submission)
	if err != nil || len(results) == 0 {
		return nil
	}
	if h.options.OnlyIssues && countIssues(results) == 0 {
		log.Info().Str("commit", submission.CommitID).Msg("No issues found, notification suppressed")
		return nil
	}

	return h.notifier.Notify(ctx, report.Render(submission, results, h.options.Now()))
}

func (h *Handler) skip(submission models.Submission) (bool, string) {
	switch submission.Type {
	case models.SubmissionPush:
		if strings.HasPrefix(submission.Message, mergeCommitPrefix) {
			return true, "merge commit"
		}
	case models.SubmissionMergeRequest:
		if !h.options.ReviewMergeRequests {
			return true, "merge request review disabled"
		}
	default:
		return true, "unsupported submission type " + string(submission.Type)
	}
	return false, ""
}

// AuditHandler logs every submission it receives
type AuditHandler struct{}

func (AuditHandler) Name() string { return "audit" }

func (AuditHandler) Handle(ctx context.Context, submission models.Submission) error {
	log.Info().
		Str("type", string(submission.Type)).
		Int64("project_id", submission.ProjectID).
		Str("project", submission.ProjectName).
		Str("commit", submission.CommitID).
		Int64("mr_iid", submission.MergeRequestIID).
		Str("author", submission.Author).
		Msg("Submission received")
	return nil
}
