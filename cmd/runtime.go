package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/codecheck/internal/aiconnectors"
	"github.com/codecheck/internal/config"
	"github.com/codecheck/internal/logging"
	"github.com/codecheck/internal/notify"
	"github.com/codecheck/internal/prompts"
	"github.com/codecheck/internal/providers/gitlab"
	"github.com/codecheck/internal/retry"
	"github.com/codecheck/internal/review"
	"github.com/codecheck/internal/segment"
)

// loadConfig loads and validates the configuration and sets up logging.
// The returned function must be called on exit.
func loadConfig(c *cli.Context) (*config.Config, func() error, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.Bool("verbose") {
		cfg.Log.Level = "debug"
	}
	closeLog, err := logging.Setup(logging.Options{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		Dir:    cfg.Log.Dir,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := config.Validate(cfg); err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, closeLog, nil
}

// pipeline holds the components shared by the serve and review commands
type pipeline struct {
	provider  *gitlab.GitLabProvider
	connector *aiconnectors.Connector
	service   *review.Service
}

func newPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	provider, err := gitlab.New(cfg.GitLab)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitlab provider: %w", err)
	}

	connector, err := aiconnectors.NewConnector(ctx, cfg.AI)
	if err != nil {
		return nil, err
	}

	variant, err := prompts.ParseVariant(cfg.Inspect.PromptVariant)
	if err != nil {
		return nil, err
	}

	modelRetry := retry.ModelConfig()
	modelRetry.MaxRetries = cfg.Inspect.ModelRetries

	service := review.NewService(provider, connector, review.Config{
		ModelTimeout:      cfg.Inspect.ModelTimeout,
		MaxAddedLines:     cfg.Inspect.MaxAddedLines,
		IgnoredExtensions: cfg.Inspect.IgnoredExtensions,
		PromptVariant:     variant,
		Guidelines:        cfg.Inspect.Guidelines,
		Workers:           cfg.Inspect.Workers,
		ModelRetry:        modelRetry,
	})

	log.Debug().
		Str("gitlab", cfg.GitLab.URL).
		Str("ai_provider", string(connector.GetProvider())).
		Str("model", connector.GetModel()).
		Msg("Pipeline ready")

	return &pipeline{provider: provider, connector: connector, service: service}, nil
}

// newNotifier returns the group bot notifier, or a Writer printing the
// chunks to out on a dry run.
func newNotifier(cfg *config.Config, dryRun bool, out io.Writer) (notify.Notifier, error) {
	messageType, err := notify.ParseMessageType(cfg.Notify.MessageType)
	if err != nil {
		return nil, err
	}

	if dryRun {
		splitter := segment.ForMarkdown()
		if messageType == notify.MessageText {
			splitter = segment.ForText()
		}
		return &notify.Writer{Out: out, Splitter: splitter}, nil
	}

	if err := cfg.RequireNotifier(); err != nil {
		return nil, err
	}
	return notify.NewWeCom(notify.WeComOptions{
		WebhookURL:  cfg.Notify.WebhookURL,
		MessageType: messageType,
		Interval:    cfg.Notify.Interval,
		Timeout:     cfg.Notify.Timeout,
		Retry:       retry.DefaultConfig(),
	}), nil
}
