package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/codecheck/pkg/models"
)

// GitLab webhook event kinds, as sent in the X-Gitlab-Event header
const (
	EventPush         = "Push Hook"
	EventMergeRequest = "Merge Request Hook"
	EventTagPush      = "Tag Push Hook"
)

// GitLabUser represents a GitLab user in webhook payloads
type GitLabUser struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// GitLabProject represents a GitLab project in webhook payloads
type GitLabProject struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	WebURL            string `json:"web_url"`
}

// GitLabRepository is the repository block of push payloads
type GitLabRepository struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Homepage string `json:"homepage"`
}

// GitLabCommitAuthor represents the author of a pushed commit
type GitLabCommitAuthor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// GitLabCommit represents one commit of a push or the last commit of an MR
type GitLabCommit struct {
	ID      string             `json:"id"`
	Message string             `json:"message"`
	Title   string             `json:"title"`
	Author  GitLabCommitAuthor `json:"author"`
}

// GitLabPushPayload is the body of push and tag push events
type GitLabPushPayload struct {
	ObjectKind  string           `json:"object_kind"`
	Ref         string           `json:"ref"`
	CheckoutSHA string           `json:"checkout_sha"`
	UserName    string           `json:"user_name"`
	ProjectID   int64            `json:"project_id"`
	Project     GitLabProject    `json:"project"`
	Repository  GitLabRepository `json:"repository"`
	Commits     []GitLabCommit   `json:"commits"`
}

// GitLabMergeRequestAttributes is the object_attributes block of MR events
type GitLabMergeRequestAttributes struct {
	ID           int64        `json:"id"`
	IID          int64        `json:"iid"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	State        string       `json:"state"`
	Action       string       `json:"action"`
	SourceBranch string       `json:"source_branch"`
	TargetBranch string       `json:"target_branch"`
	LastCommit   GitLabCommit `json:"last_commit"`
}

// GitLabMergeRequestPayload is the body of merge request events
type GitLabMergeRequestPayload struct {
	ObjectKind       string                       `json:"object_kind"`
	User             GitLabUser                   `json:"user"`
	Project          GitLabProject                `json:"project"`
	Repository       GitLabRepository             `json:"repository"`
	ObjectAttributes GitLabMergeRequestAttributes `json:"object_attributes"`
}

// reviewableMRActions are the merge request actions that change code
var reviewableMRActions = map[string]bool{
	"":       true,
	"open":   true,
	"reopen": true,
	"update": true,
}

// GitLabWebhookHandler handles incoming GitLab webhook events
func (s *Server) GitLabWebhookHandler(c echo.Context) error {
	if s.options.Secret != "" {
		token := c.Request().Header.Get("X-Gitlab-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.options.Secret)) != 1 {
			log.Warn().Str("remote", c.RealIP()).Msg("Rejected GitLab webhook with invalid token")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid webhook token",
			})
		}
	}

	eventKind := c.Request().Header.Get("X-Gitlab-Event")

	var submissions []models.Submission
	switch eventKind {
	case EventPush, EventTagPush:
		var payload GitLabPushPayload
		if err := c.Bind(&payload); err != nil {
			log.Error().Err(err).Str("event", eventKind).Msg("Failed to parse GitLab webhook payload")
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "Invalid webhook payload",
			})
		}
		if eventKind == EventTagPush {
			submissions = tagSubmissions(payload)
		} else {
			submissions = pushSubmissions(payload)
		}

	case EventMergeRequest:
		var payload GitLabMergeRequestPayload
		if err := c.Bind(&payload); err != nil {
			log.Error().Err(err).Str("event", eventKind).Msg("Failed to parse GitLab webhook payload")
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "Invalid webhook payload",
			})
		}
		submissions = mergeRequestSubmissions(payload)

	default:
		log.Info().Str("event", eventKind).Msg("Unhandled GitLab event type")
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ignored",
		})
	}

	log.Info().
		Str("event", eventKind).
		Int("submissions", len(submissions)).
		Msg("Received GitLab webhook")

	if len(submissions) > 0 {
		s.dispatch(submissions)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "received",
		"submissions": len(submissions),
	})
}

func projectID(payload GitLabPushPayload) int64 {
	if payload.ProjectID != 0 {
		return payload.ProjectID
	}
	return payload.Project.ID
}

func repositoryURL(repo GitLabRepository, project GitLabProject) string {
	switch {
	case repo.URL != "":
		return repo.URL
	case repo.Homepage != "":
		return repo.Homepage
	}
	return project.WebURL
}

// pushSubmissions creates one submission per pushed commit, oldest first
func pushSubmissions(payload GitLabPushPayload) []models.Submission {
	submissions := make([]models.Submission, 0, len(payload.Commits))
	for _, commit := range payload.Commits {
		author := commit.Author.Name
		if author == "" {
			author = payload.UserName
		}
		submissions = append(submissions, models.Submission{
			ProjectID:     projectID(payload),
			ProjectName:   payload.Project.Name,
			RepositoryURL: repositoryURL(payload.Repository, payload.Project),
			CommitID:      commit.ID,
			Author:        author,
			Message:       commit.Message,
			Type:          models.SubmissionPush,
		})
	}
	return submissions
}

// tagSubmissions creates a single submission for the tagged commit
func tagSubmissions(payload GitLabPushPayload) []models.Submission {
	if payload.CheckoutSHA == "" {
		// tag deletion
		return nil
	}
	return []models.Submission{{
		ProjectID:     projectID(payload),
		ProjectName:   payload.Project.Name,
		RepositoryURL: repositoryURL(payload.Repository, payload.Project),
		CommitID:      payload.CheckoutSHA,
		Author:        payload.UserName,
		Message:       strings.TrimPrefix(payload.Ref, "refs/tags/"),
		Type:          models.SubmissionTag,
	}}
}

func mergeRequestSubmissions(payload GitLabMergeRequestPayload) []models.Submission {
	attrs := payload.ObjectAttributes
	if !reviewableMRActions[attrs.Action] {
		log.Debug().Str("action", attrs.Action).Int64("mr_iid", attrs.IID).Msg("Merge request action does not change code")
		return nil
	}

	message := attrs.LastCommit.Message
	if message == "" {
		message = attrs.Description
	}
	return []models.Submission{{
		ProjectID:       payload.Project.ID,
		ProjectName:     payload.Project.Name,
		RepositoryURL:   repositoryURL(payload.Repository, payload.Project),
		CommitID:        attrs.LastCommit.ID,
		MergeRequestIID: attrs.IID,
		Title:           attrs.Title,
		Author:          payload.User.Name,
		Message:         message,
		Type:            models.SubmissionMergeRequest,
	}}
}
