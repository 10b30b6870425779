package cmd

import "github.com/urfave/cli/v2"

// NewApp builds the command line application
func NewApp(version string) *cli.App {
	return &cli.App{
		Name:    "codecheck",
		Usage:   "AI code review notifications for GitLab pushes and merge requests",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (default: ./codecheck.toml or ~/.codecheck.toml)",
				EnvVars: []string{"CODECHECK_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			ServeCommand(),
			ReviewCommand(),
			SplitCommand(),
			ConfigCommand(),
		},
	}
}
