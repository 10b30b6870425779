package gitlab

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/codecheck/pkg/models"
)

const perPage = 100

// GitLabProvider reads commit and merge request diffs from the GitLab API
type GitLabProvider struct {
	client *gitlab.Client
	config GitLabConfig
}

// GitLabConfig contains configuration for the GitLab provider
type GitLabConfig struct {
	URL   string `koanf:"url"`
	Token string `koanf:"token"`
}

// New creates a new GitLabProvider
func New(config GitLabConfig) (*GitLabProvider, error) {
	if config.URL == "" {
		return nil, errors.New("gitlab url is required")
	}
	baseURL := strings.TrimSuffix(config.URL, "/") + "/api/v4"
	client, err := gitlab.NewClient(config.Token, gitlab.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}

	log.Debug().Str("base_url", baseURL).Msg("Initialized GitLab client")

	return &GitLabProvider{client: client, config: config}, nil
}

func (p *GitLabProvider) Name() string {
	return "gitlab"
}

// DiffBlocks returns the diff of a pushed commit, or of every commit of a
// merge request in the order GitLab lists them.
func (p *GitLabProvider) DiffBlocks(ctx context.Context, submission models.Submission) ([]models.DiffBlock, error) {
	switch submission.Type {
	case models.SubmissionPush:
		return p.CommitDiff(ctx, submission.ProjectID, submission.CommitID)
	case models.SubmissionMergeRequest:
		return p.MergeRequestDiff(ctx, submission.ProjectID, submission.MergeRequestIID)
	}
	return nil, fmt.Errorf("no diff for %s submissions", submission.Type)
}

// CommitDiff returns one block per file touched by the commit
func (p *GitLabProvider) CommitDiff(ctx context.Context, projectID int64, sha string) ([]models.DiffBlock, error) {
	opts := &gitlab.GetCommitDiffOptions{}
	opts.Page = 1
	opts.PerPage = perPage

	var blocks []models.DiffBlock
	for {
		diffs, resp, err := p.client.Commits.GetCommitDiff(projectID, sha, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("get diff of commit %s in project %d: %w", sha, projectID, err)
		}
		for _, d := range diffs {
			blocks = append(blocks, toBlock(d))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	log.Debug().
		Int64("project_id", projectID).
		Str("commit", sha).
		Int("files", len(blocks)).
		Msg("Fetched commit diff")
	return blocks, nil
}

// MergeRequestDiff concatenates the diffs of all commits of a merge request
func (p *GitLabProvider) MergeRequestDiff(ctx context.Context, projectID, iid int64) ([]models.DiffBlock, error) {
	commits, err := p.mergeRequestCommits(ctx, projectID, iid)
	if err != nil {
		return nil, err
	}

	// GitLab lists the newest commit first
	var blocks []models.DiffBlock
	for i := len(commits) - 1; i >= 0; i-- {
		commitBlocks, err := p.CommitDiff(ctx, projectID, commits[i].ID)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, commitBlocks...)
	}
	return blocks, nil
}

func (p *GitLabProvider) mergeRequestCommits(ctx context.Context, projectID, iid int64) ([]*gitlab.Commit, error) {
	opts := &gitlab.GetMergeRequestCommitsOptions{}
	opts.Page = 1
	opts.PerPage = perPage

	var commits []*gitlab.Commit
	for {
		page, resp, err := p.client.MergeRequests.GetMergeRequestCommits(projectID, iid, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list commits of merge request !%d in project %d: %w", iid, projectID, err)
		}
		commits = append(commits, page...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return commits, nil
}

// Submission loads a commit or, when mergeRequestIID is set, a merge request.
func (p *GitLabProvider) Submission(ctx context.Context, projectID int64, commitID string, mergeRequestIID int64) (models.Submission, error) {
	project, _, err := p.client.Projects.GetProject(projectID, &gitlab.GetProjectOptions{}, gitlab.WithContext(ctx))
	if err != nil {
		return models.Submission{}, fmt.Errorf("get project %d: %w", projectID, err)
	}

	submission := models.Submission{
		ProjectID:     projectID,
		ProjectName:   project.Name,
		RepositoryURL: project.WebURL,
	}

	if mergeRequestIID > 0 {
		mr, _, err := p.client.MergeRequests.GetMergeRequest(projectID, mergeRequestIID, &gitlab.GetMergeRequestsOptions{}, gitlab.WithContext(ctx))
		if err != nil {
			return models.Submission{}, fmt.Errorf("get merge request !%d: %w", mergeRequestIID, err)
		}
		submission.Type = models.SubmissionMergeRequest
		submission.MergeRequestIID = mergeRequestIID
		submission.Title = mr.Title
		submission.Message = mr.Description
		submission.CommitID = mr.SHA
		if mr.Author != nil {
			submission.Author = mr.Author.Name
		}
		return submission, nil
	}

	commit, _, err := p.client.Commits.GetCommit(projectID, commitID, &gitlab.GetCommitOptions{}, gitlab.WithContext(ctx))
	if err != nil {
		return models.Submission{}, fmt.Errorf("get commit %s: %w", commitID, err)
	}
	submission.Type = models.SubmissionPush
	submission.CommitID = commit.ID
	submission.Title = commit.Title
	submission.Message = commit.Message
	submission.Author = commit.AuthorName
	return submission, nil
}

func toBlock(d *gitlab.Diff) models.DiffBlock {
	return models.DiffBlock{
		FilePath:  d.NewPath,
		OldPath:   renamedFrom(d),
		IsNewFile: d.NewFile,
		IsDeleted: d.DeletedFile,
		DiffText:  d.Diff,
	}
}

func renamedFrom(d *gitlab.Diff) string {
	if d.RenamedFile || (d.OldPath != "" && d.OldPath != d.NewPath) {
		return d.OldPath
	}
	return ""
}
