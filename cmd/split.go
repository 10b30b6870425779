package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/codecheck/internal/notify"
	"github.com/codecheck/internal/segment"
)

// SplitCommand returns the split command
func SplitCommand() *cli.Command {
	return &cli.Command{
		Name:      "split",
		Usage:     "Split a report into chat-sized chunks and print them",
		ArgsUsage: "FILE (- for stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "type",
				Usage: "Message type, markdown or text",
				Value: string(notify.MessageMarkdown),
			},
			&cli.IntFlag{
				Name:  "budget",
				Usage: "Byte budget per message (0 uses the message type default)",
			},
			&cli.IntFlag{
				Name:  "margin",
				Usage: "Safety margin kept free in every message",
				Value: segment.DefaultSafetyMargin,
			},
		},
		Action: runSplit,
	}
}

func runSplit(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: FILE")
	}

	messageType, err := notify.ParseMessageType(c.String("type"))
	if err != nil {
		return err
	}

	content, err := readInput(c.Args().Get(0), c.App.Reader)
	if err != nil {
		return err
	}

	splitter := segment.ForMarkdown()
	if messageType == notify.MessageText {
		splitter = segment.ForText()
	}
	if budget := c.Int("budget"); budget > 0 {
		splitter.Budget = budget
	}
	splitter.SafetyMargin = c.Int("margin")

	w := &notify.Writer{Out: c.App.Writer, Splitter: splitter}
	return w.Notify(c.Context, string(content))
}

func readInput(name string, stdin io.Reader) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	content, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return content, nil
}
