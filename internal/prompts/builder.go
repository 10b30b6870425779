package prompts

import (
	"fmt"
	"strings"

	"github.com/codecheck/pkg/models"
)

// Variant selects the verbosity of the review prompt
type Variant string

const (
	VariantVerbose Variant = "verbose"
	VariantCompact Variant = "compact"
)

// ParseVariant maps a configuration value to a Variant. An empty value
// selects the verbose prompt.
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case "", VariantVerbose:
		return VariantVerbose, nil
	case VariantCompact:
		return VariantCompact, nil
	}
	return "", fmt.Errorf("unknown prompt variant %q", s)
}

// PromptBuilder renders review prompts for single file changes
type PromptBuilder struct {
	Variant    Variant
	Guidelines string
}

// NewPromptBuilder creates a new prompt builder instance
func NewPromptBuilder(variant Variant, guidelines string) *PromptBuilder {
	return &PromptBuilder{Variant: variant, Guidelines: guidelines}
}

// Build renders the prompt for one file with the builder's settings
func (pb *PromptBuilder) Build(change *models.FileChange, commitMessage string) string {
	return Build(pb.Variant, change, commitMessage, pb.Guidelines)
}

// Build renders the review prompt for one file change. Both variants carry
// the same information and ask for the same JSON shape.
func Build(variant Variant, change *models.FileChange, commitMessage, guidelines string) string {
	if strings.TrimSpace(guidelines) == "" {
		guidelines = DefaultGuidelines
	}
	if variant == VariantCompact {
		return buildCompact(change, commitMessage, guidelines)
	}
	return buildVerbose(change, commitMessage, guidelines)
}

func buildVerbose(change *models.FileChange, commitMessage, guidelines string) string {
	var b strings.Builder
	b.WriteString(VerboseInstructions + "\n")
	b.WriteString(guidelines + "\n\n")
	b.WriteString(FilePathLabel + change.FilePath + "\n")
	b.WriteString(CommitMessageLabel + commitMessage + "\n")
	if change.IsNewFile {
		b.WriteString(NewFileNote + "\n")
	}

	if len(change.AddedLines) > 0 {
		b.WriteString("\n" + AddedHeader + "\n")
		for _, line := range change.AddedLines {
			fmt.Fprintf(&b, "+ line %d: %s\n", line.LineNumber, line.Text)
		}
	}
	if showRemoved(change) {
		b.WriteString("\n" + RemovedHeader + "\n")
		for _, line := range change.RemovedLines {
			fmt.Fprintf(&b, "- line %d: %s\n", line.LineNumber, line.Text)
		}
	}

	b.WriteString("\n" + VerboseJSONStructure + "\n")
	return b.String()
}

func buildCompact(change *models.FileChange, commitMessage, guidelines string) string {
	var b strings.Builder
	b.WriteString(CompactInstructions + "\n")
	b.WriteString(guidelines + "\n\n")
	b.WriteString(CompactFileLabel + change.FilePath + "\n")
	b.WriteString(CompactCommitLabel + commitMessage + "\n")
	if change.IsNewFile {
		b.WriteString(CompactNewFileNote + "\n")
	}

	if len(change.AddedLines) > 0 {
		b.WriteString("\n" + CompactAddedHeader + "\n")
		for _, line := range change.AddedLines {
			fmt.Fprintf(&b, "+L%d: %s\n", line.LineNumber, line.Text)
		}
	}
	if showRemoved(change) {
		b.WriteString("\n" + CompactRemoveHeader + "\n")
		for _, line := range change.RemovedLines {
			fmt.Fprintf(&b, "-L%d: %s\n", line.LineNumber, line.Text)
		}
	}

	b.WriteString("\n" + CompactJSONStructure)
	return b.String()
}

func showRemoved(change *models.FileChange) bool {
	return len(change.RemovedLines) > 0 && len(change.RemovedLines) <= MaxRemovedLinesShown
}
