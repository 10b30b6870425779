package diff

import (
	"strings"

	"github.com/codecheck/pkg/models"
)

// TruncationMarker is the text of the synthetic line appended when a file's
// added lines exceed the configured cap.
const TruncationMarker = "[code too long, remaining content truncated]"

// Aggregator groups the diff blocks of one submission by file path.
type Aggregator struct {
	// IgnoredExtensions are path suffixes (case-sensitive) whose files are
	// never reviewed, e.g. ".md" or ".lock".
	IgnoredExtensions []string
	// MaxAddedLines caps the added lines kept per file. Zero or less
	// disables the cap.
	MaxAddedLines int
}

// BlockWarning describes a diff block that was skipped.
type BlockWarning struct {
	Index    int
	FilePath string
	Err      error
}

// ChangeSet is an ordered mapping from file path to FileChange. Iteration
// order is the order in which each path was first seen.
type ChangeSet struct {
	Files    []*models.FileChange
	Warnings []BlockWarning

	index map[string]int
}

func newChangeSet() *ChangeSet {
	return &ChangeSet{index: make(map[string]int)}
}

// Len returns the number of files in the set
func (s *ChangeSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Files)
}

// Get returns the change for a path, if present
func (s *ChangeSet) Get(filePath string) (*models.FileChange, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.index[filePath]
	if !ok {
		return nil, false
	}
	return s.Files[i], true
}

// Paths returns the file paths in insertion order.
func (s *ChangeSet) Paths() []string {
	if s == nil {
		return nil
	}
	paths := make([]string, len(s.Files))
	for i, f := range s.Files {
		paths[i] = f.FilePath
	}
	return paths
}

// Aggregate merges the blocks belonging to the same final path in block
// order. Deleted files and ignored extensions are dropped; a block whose
// diff cannot be parsed is skipped and reported in Warnings.
func (a *Aggregator) Aggregate(blocks []models.DiffBlock) *ChangeSet {
	set := newChangeSet()
	pending := make(map[string]*models.FileChange)
	var order []string

	for i, block := range blocks {
		parsed, err := Parse(block.DiffText)
		filePath := finalPath(block, parsed)

		if err != nil {
			set.Warnings = append(set.Warnings, BlockWarning{Index: i, FilePath: filePath, Err: err})
			continue
		}
		if a.isIgnored(filePath) {
			continue
		}

		c, ok := pending[filePath]
		if !ok {
			c = &models.FileChange{
				FilePath: filePath,
				FileName: models.FileName(filePath),
			}
			pending[filePath] = c
			order = append(order, filePath)
		}

		c.IsNewFile = c.IsNewFile || block.IsNewFile
		c.IsDeleted = c.IsDeleted || block.IsDeleted
		if c.OldPath == "" {
			switch {
			case block.OldPath != "":
				c.OldPath = block.OldPath
			case parsed.OldPath != "":
				c.OldPath = parsed.OldPath
			}
		}

		c.AddedLines = append(c.AddedLines, parsed.AddedLines...)
		c.RemovedLines = append(c.RemovedLines, parsed.RemovedLines...)
	}

	for _, filePath := range order {
		c := pending[filePath]
		if c.IsDeleted {
			continue
		}
		c.AddedLines = capLines(c.AddedLines, a.MaxAddedLines)
		set.index[filePath] = len(set.Files)
		set.Files = append(set.Files, c)
	}

	return set
}

func (a *Aggregator) isIgnored(filePath string) bool {
	for _, ext := range a.IgnoredExtensions {
		if ext != "" && strings.HasSuffix(filePath, ext) {
			return true
		}
	}
	return false
}

// capLines truncates to max entries and appends exactly one marker line.
func capLines(lines []models.CodeLine, max int) []models.CodeLine {
	if max <= 0 || len(lines) <= max {
		return lines
	}
	capped := make([]models.CodeLine, max, max+1)
	copy(capped, lines[:max])
	return append(capped, models.CodeLine{LineNumber: models.TruncatedLineNumber, Text: TruncationMarker})
}

// finalPath prefers the provider's new path, then its old path, then the
// paths announced by the diff's own file headers.
func finalPath(block models.DiffBlock, parsed *ParsedDiff) string {
	switch {
	case block.FilePath != "":
		return block.FilePath
	case block.OldPath != "":
		return block.OldPath
	case parsed != nil && parsed.NewPath != "":
		return parsed.NewPath
	case parsed != nil && parsed.OldPath != "":
		return parsed.OldPath
	}
	return "unknown-file"
}
