package models

import (
	"path"
	"strings"
)

// TruncatedLineNumber marks a synthetic line that is not part of the file.
const TruncatedLineNumber = -1

// UnknownLineNumber is used when an issue cannot be tied to a line.
const UnknownLineNumber = -1

// CodeLine is one added or removed line together with its line number in
// the respective file version.
type CodeLine struct {
	LineNumber int    `json:"lineNumber"`
	Text       string `json:"text"`
}

// DiffBlock is the diff of one file in one commit, as handed over by the
// source-control provider.
type DiffBlock struct {
	FilePath  string `json:"filePath"`
	OldPath   string `json:"oldPath,omitempty"`
	IsNewFile bool   `json:"isNewFile"`
	IsDeleted bool   `json:"isDeleted"`
	DiffText  string `json:"diffText"`
}

// FileChange aggregates all diff activity for one file path within one
// submission.
type FileChange struct {
	FilePath     string     `json:"filePath"`
	FileName     string     `json:"fileName"`
	OldPath      string     `json:"oldPath,omitempty"`
	IsNewFile    bool       `json:"isNewFile"`
	IsDeleted    bool       `json:"isDeleted"`
	AddedLines   []CodeLine `json:"addedLines"`
	RemovedLines []CodeLine `json:"removedLines"`
}

// IsEmpty reports whether the change carries no lines at all.
func (c *FileChange) IsEmpty() bool {
	return len(c.AddedLines) == 0 && len(c.RemovedLines) == 0
}

// IssueType classifies a reviewer finding.
type IssueType string

const (
	IssueTypeError        IssueType = "error"
	IssueTypeWarning      IssueType = "warning"
	IssueTypeSuggestion   IssueType = "suggestion"
	IssueTypeUnclassified IssueType = "unclassified"
	IssueTypeSystemError  IssueType = "system error"
)

// Severity represents how urgent a finding is
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Issue is one finding reported by the reviewer model
type Issue struct {
	FileName         string    `json:"fileName"`
	FilePath         string    `json:"filePath"`
	Description      string    `json:"description"`
	LineNumber       int       `json:"lineNumber"`
	IssueType        IssueType `json:"issueType"`
	Severity         Severity  `json:"severity"`
	SuggestedFix     string    `json:"suggestedFix,omitempty"`
	FixedCodeExample string    `json:"fixedCodeExample,omitempty"`
	Reason           string    `json:"reason,omitempty"`
}

// FileInspectionResult is the structured outcome of reviewing one file.
type FileInspectionResult struct {
	FilePath         string   `json:"filePath"`
	HasIssues        bool     `json:"hasIssues"`
	Issues           []*Issue `json:"issues"`
	ProcessingTimeMs int64    `json:"processingTimeMs"`
	FileEvaluation   string   `json:"fileEvaluation"`
}

// SubmissionType identifies what triggered a review
type SubmissionType string

const (
	SubmissionPush         SubmissionType = "push"
	SubmissionMergeRequest SubmissionType = "merge_request"
	SubmissionTag          SubmissionType = "tag"
)

// Submission identifies the event a review is run for. It is created at
// webhook ingress and read-only afterwards.
type Submission struct {
	ProjectID       int64          `json:"projectId"`
	ProjectName     string         `json:"projectName"`
	RepositoryURL   string         `json:"repositoryUrl,omitempty"`
	CommitID        string         `json:"commitId,omitempty"`
	MergeRequestIID int64          `json:"mergeRequestIid,omitempty"`
	Title           string         `json:"title,omitempty"`
	Author          string         `json:"author"`
	Message         string         `json:"message"`
	Type            SubmissionType `json:"type"`
}

// FileName returns the last path element of a slash or backslash separated
// path.
func FileName(filePath string) string {
	if filePath == "" {
		return "unknown-file"
	}
	filePath = strings.ReplaceAll(filePath, "\\", "/")
	return path.Base(filePath)
}
