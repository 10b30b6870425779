package notify

import (
	"context"
	"fmt"
	"io"

	"github.com/codecheck/internal/segment"
)

// Writer prints report chunks instead of sending them
type Writer struct {
	Out      io.Writer
	Splitter *segment.Splitter
}

func (w *Writer) Notify(ctx context.Context, report string) error {
	chunks := w.Splitter.Split(report)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w.Out, "----- chunk %d/%d (%d bytes) -----\n%s\n", i+1, len(chunks), len(chunk), chunk); err != nil {
			return err
		}
	}
	return nil
}
