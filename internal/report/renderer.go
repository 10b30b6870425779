package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/codecheck/pkg/models"
)

// TimeLayout formats the timestamp in the report title
const TimeLayout = "2006-01-02 15:04:05"

// Separator is written between two file sections
const Separator = "\n---\n\n"

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`_`, `\_`,
	`~`, `\~`,
	"`", "\\`",
	`#`, `\#`,
	`[`, `\[`,
	`]`, `\]`,
	`(`, `\(`,
	`)`, `\)`,
)

// EscapeMarkdown escapes the characters the chat markdown dialect reserves
func EscapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

// Render formats the inspection results of one submission as a markdown
// report with one "#### File N: <path>" section per result, in the given
// order.
func Render(submission models.Submission, results []*models.FileInspectionResult, at time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "### ⚠️ [Code check] AI review results - %s\n\n", at.Format(TimeLayout))

	b.WriteString("**Project:** " + EscapeMarkdown(submission.ProjectName) + "\n")
	b.WriteString("**Author:** " + EscapeMarkdown(submission.Author) + "\n")
	if submission.Type == models.SubmissionMergeRequest && submission.Title != "" {
		fmt.Fprintf(&b, "**Merge request:** !%d %s\n", submission.MergeRequestIID, EscapeMarkdown(submission.Title))
	}
	b.WriteString("**Message:** " + EscapeMarkdown(submission.Message) + "\n")
	fmt.Fprintf(&b, "**Files checked:** %d\n\n", len(results))

	for i, result := range results {
		writeFile(&b, i+1, result)
		if i < len(results)-1 {
			b.WriteString(Separator)
		}
	}

	return b.String()
}

func writeFile(b *strings.Builder, index int, result *models.FileInspectionResult) {
	fmt.Fprintf(b, "#### File %d: %s\n", index, EscapeMarkdown(result.FilePath))
	b.WriteString("**Evaluation:** " + EscapeMarkdown(result.FileEvaluation) + "\n")
	fmt.Fprintf(b, "**Issues:** %d\n", len(result.Issues))

	if len(result.Issues) == 0 {
		b.WriteString("✅ **No issues that need changes**\n")
		return
	}

	b.WriteString("**Details:**\n")
	for i, issue := range result.Issues {
		fmt.Fprintf(b, "%d. **Severity:** %s\n", i+1, EscapeMarkdown(string(issue.Severity)))
		b.WriteString("   **Line:** " + lineLabel(issue.LineNumber) + "\n")
		b.WriteString("   **Description:** " + EscapeMarkdown(issue.Description) + "\n")

		if code := strings.TrimSpace(issue.FixedCodeExample); code != "" {
			b.WriteString("   **Suggested code:**\n```\n" + code + "\n```\n")
		}
		if fix := strings.TrimSpace(issue.SuggestedFix); fix != "" {
			b.WriteString("   **Suggestion:**\n> " + EscapeMarkdown(fix) + "\n")
		}
	}
}

func lineLabel(line int) string {
	if line > 0 {
		return fmt.Sprint(line)
	}
	return "unknown"
}
