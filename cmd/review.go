package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/codecheck/internal/review"
)

// ReviewCommand returns the review command
func ReviewCommand() *cli.Command {
	return &cli.Command{
		Name:  "review",
		Usage: "Review one commit or merge request and send the report",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "project",
				Aliases:  []string{"p"},
				Usage:    "GitLab project ID",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "commit",
				Usage: "Commit SHA to review",
			},
			&cli.Int64Flag{
				Name:  "mr",
				Usage: "Merge request IID to review",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Print the report chunks instead of sending them",
			},
			&cli.BoolFlag{
				Name:  "check-model",
				Usage: "Verify the model is reachable before reviewing",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Overall time limit",
			},
		},
		Action: runReview,
	}
}

func runReview(c *cli.Context) error {
	commitID, mrIID := c.String("commit"), c.Int64("mr")
	if (commitID == "") == (mrIID == 0) {
		return errors.New("exactly one of --commit or --mr is required")
	}

	cfg, closeLog, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := c.Context
	if timeout := c.Duration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	if c.Bool("check-model") {
		if err := p.connector.Check(ctx); err != nil {
			return err
		}
	}

	notifier, err := newNotifier(cfg, c.Bool("dry-run"), c.App.Writer)
	if err != nil {
		return err
	}

	submission, err := p.provider.Submission(ctx, c.Int64("project"), commitID, mrIID)
	if err != nil {
		return fmt.Errorf("failed to load submission: %w", err)
	}

	handler := review.NewHandler(p.service, notifier, review.HandlerOptions{
		ReviewMergeRequests: true,
		OnlyIssues:          cfg.Notify.OnlyIssues,
	})
	return handler.Handle(ctx, submission)
}
