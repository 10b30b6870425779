package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/codecheck/internal/api"
	"github.com/codecheck/internal/events"
	"github.com/codecheck/internal/review"
)

// ServeCommand returns the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Receive GitLab webhooks and review every push",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Override server.port",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, closeLog, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer closeLog()

	if port := c.Int("port"); port > 0 {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	notifier, err := newNotifier(cfg, false, nil)
	if err != nil {
		return err
	}

	registry := events.NewRegistry()
	registry.Add(review.AuditHandler{})
	registry.Add(review.NewHandler(p.service, notifier, review.HandlerOptions{
		ReviewMergeRequests: cfg.Inspect.ReviewMergeRequests,
		OnlyIssues:          cfg.Notify.OnlyIssues,
	}))

	server := api.NewServer(registry, api.ServerOptions{
		Port:           cfg.Server.Port,
		WebhookPath:    cfg.Server.WebhookPath,
		Secret:         cfg.Server.Secret,
		HandlerTimeout: cfg.Server.HandlerTimeout,
	})
	defer server.Close()

	return server.Start(ctx)
}

