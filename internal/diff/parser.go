package diff

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/codecheck/pkg/models"
)

// ErrMalformedHunkHeader is returned when a line looks like a hunk header
// but its ranges cannot be read.
var ErrMalformedHunkHeader = errors.New("malformed hunk header")

var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// ParsedDiff holds the added and removed lines of one diff block, in file
// order, plus whatever paths the file headers revealed.
type ParsedDiff struct {
	AddedLines   []models.CodeLine
	RemovedLines []models.CodeLine
	NewPath      string // from "+++ b/<path>"
	OldPath      string // from "--- a/<path>"
}

// HunkHeader is the parsed form of "@@ -old[,count] +new[,count] @@"
type HunkHeader struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
}

// Parse walks the unified diff of a single file and numbers every added
// line with its position in the new file and every removed line with its
// position in the old file.
func Parse(diffText string) (*ParsedDiff, error) {
	result := &ParsedDiff{}
	if strings.TrimSpace(diffText) == "" {
		return result, nil
	}

	var (
		inHunk        bool
		oldLineNumber int
		newLineNumber int
	)

	for i, line := range strings.Split(diffText, "\n") {
		line = strings.TrimSuffix(line, "\r")

		// File headers never move the counters.
		if p, ok := headerPath(line, "+++ "); ok {
			result.NewPath = p
			inHunk = false
			continue
		}
		if p, ok := headerPath(line, "--- "); ok && !inHunk {
			result.OldPath = p
			continue
		}

		if strings.HasPrefix(line, "@@") {
			header, err := ParseHunkHeader(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
			oldLineNumber = header.OldStart
			newLineNumber = header.NewStart
			inHunk = true
			continue
		}

		if !inHunk {
			continue
		}

		switch {
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "++"):
			result.AddedLines = append(result.AddedLines, models.CodeLine{LineNumber: newLineNumber, Text: line[1:]})
			newLineNumber++
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "--"):
			result.RemovedLines = append(result.RemovedLines, models.CodeLine{LineNumber: oldLineNumber, Text: line[1:]})
			oldLineNumber++
		case strings.HasPrefix(line, " "):
			oldLineNumber++
			newLineNumber++
		case strings.HasPrefix(line, `\`):
			// "\ No newline at end of file"
		default:
			// trailing metadata ends the hunk
			inHunk = false
		}
	}

	return result, nil
}

// ParseHunkHeader reads the line ranges of a hunk header. A missing count
// defaults to 1.
func ParseHunkHeader(line string) (HunkHeader, error) {
	matches := hunkHeaderRegex.FindStringSubmatch(line)
	if matches == nil {
		return HunkHeader{}, fmt.Errorf("%w: %q", ErrMalformedHunkHeader, line)
	}

	nums := make([]int, 4)
	for i, raw := range matches[1:] {
		if raw == "" {
			nums[i] = 1
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return HunkHeader{}, fmt.Errorf("%w: %q: %v", ErrMalformedHunkHeader, line, err)
		}
		nums[i] = n
	}

	return HunkHeader{
		OldStart: nums[0],
		OldCount: nums[1],
		NewStart: nums[2],
		NewCount: nums[3],
	}, nil
}

// headerPath extracts the path from "+++ b/<path>" or "--- a/<path>".
// /dev/null yields ok with an empty path.
func headerPath(line, prefix string) (string, bool) {
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	p := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	if p == "/dev/null" {
		return "", true
	}
	switch {
	case strings.HasPrefix(p, "a/"), strings.HasPrefix(p, "b/"):
		return p[2:], true
	}
	return "", false
}
