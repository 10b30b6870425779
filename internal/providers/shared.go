package providers

import (
	"context"

	"github.com/codecheck/pkg/models"
)

// Provider fetches the changes of a submission from a code hosting provider
type Provider interface {
	// DiffBlocks returns one block per file per commit, in commit order
	DiffBlocks(ctx context.Context, submission models.Submission) ([]models.DiffBlock, error)
	// Submission loads the metadata of a commit or merge request so that a
	// review can be started without a webhook
	Submission(ctx context.Context, projectID int64, commitID string, mergeRequestIID int64) (models.Submission, error)
	Name() string
}
