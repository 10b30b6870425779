package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codecheck/pkg/models"
)

var errNotObject = errors.New("analysis result is not a JSON object")

// Mapper turns recovered model output into inspection results. The zero
// value uses time.Now.
type Mapper struct {
	Now func() time.Time
}

// NewMapper returns a Mapper on the wall clock
func NewMapper() *Mapper {
	return &Mapper{Now: time.Now}
}

// Inspect runs ExtractJSON on a raw model response and maps the result.
func (m *Mapper) Inspect(raw, filePath string, start time.Time) *models.FileInspectionResult {
	return m.Map(ExtractJSON(raw), filePath, start)
}

// Map converts recovered JSON into a FileInspectionResult. It never fails:
// anything that cannot be read becomes a single "system error" issue so the
// file still shows up in the report.
func (m *Mapper) Map(recovered, filePath string, start time.Time) (result *models.FileInspectionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = m.Failed(filePath, start, fmt.Errorf("failed to parse analysis result: %v", r))
		}
	}()

	p, err := decodePayload(recovered)
	if err != nil {
		log.Debug().
			Err(err).
			Str("file", filePath).
			Int("bytes", len(recovered)).
			Msg("Model response could not be decoded")
		return m.Failed(filePath, start, fmt.Errorf("failed to parse analysis result: %w", err))
	}

	result = &models.FileInspectionResult{
		FilePath:       filePath,
		FileEvaluation: p.evaluation,
		Issues:         []*models.Issue{},
	}

	if p.hasIssues != nil && !*p.hasIssues {
		result.ProcessingTimeMs = m.elapsed(start)
		return result
	}

	for _, issue := range p.issues {
		issue.FilePath = filePath
		issue.FileName = models.FileName(filePath)
		result.Issues = append(result.Issues, issue)
	}
	if p.hasIssues != nil {
		result.HasIssues = *p.hasIssues
	} else {
		result.HasIssues = len(result.Issues) > 0
	}
	result.ProcessingTimeMs = m.elapsed(start)
	return result
}

// Failed builds the result reported for a file whose analysis could not be
// completed. The cause ends up in the issue description.
func (m *Mapper) Failed(filePath string, start time.Time, cause error) *models.FileInspectionResult {
	description := "analysis failed"
	if cause != nil {
		description = cause.Error()
	}
	return &models.FileInspectionResult{
		FilePath:  filePath,
		HasIssues: true,
		Issues: []*models.Issue{{
			FileName:     models.FileName(filePath),
			FilePath:     filePath,
			Description:  description,
			LineNumber:   models.UnknownLineNumber,
			IssueType:    models.IssueTypeSystemError,
			Severity:     models.SeverityHigh,
			SuggestedFix: "check that the model response follows the required format",
		}},
		ProcessingTimeMs: m.elapsed(start),
		FileEvaluation:   "analysis result unavailable",
	}
}

func (m *Mapper) elapsed(start time.Time) int64 {
	now := time.Now
	if m != nil && m.Now != nil {
		now = m.Now
	}
	ms := now().Sub(start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

// payload is the decoded result before it is stamped with file metadata.
type payload struct {
	hasIssues  *bool
	evaluation string
	issues     []*models.Issue
}

// decodePayload tries a strict decode, then a lenient one, then both again
// on repaired text.
func decodePayload(text string) (*payload, error) {
	p, err := decodeTyped(text)
	if err == nil {
		return p, nil
	}
	if p, genericErr := decodeGeneric(text); genericErr == nil {
		return p, nil
	}

	repaired, stats, repairErr := RepairJSON(text)
	if repairErr != nil || !stats.WasRepaired {
		return nil, err
	}
	log.Debug().
		Strs("strategies", stats.RepairStrategies).
		Int("original_bytes", stats.OriginalBytes).
		Int("repaired_bytes", stats.RepairedBytes).
		Msg("Repaired model JSON")

	if p, typedErr := decodeTyped(repaired); typedErr == nil {
		return p, nil
	}
	if p, genericErr := decodeGeneric(repaired); genericErr == nil {
		return p, nil
	}
	return nil, err
}

type wirePayload struct {
	HasIssues      *bool        `json:"hasIssues"`
	FileEvaluation string       `json:"fileEvaluation"`
	Issues         []*wireIssue `json:"issues"`
}

type wireIssue struct {
	Description      string `json:"description"`
	CodeLine         *int   `json:"codeLine"`
	IssueType        string `json:"issueType"`
	Severity         string `json:"severity"`
	SuggestedFix     string `json:"suggestedFix"`
	FixedCodeExample string `json:"fixedCodeExample"`
	Reason           string `json:"reason"`
}

func decodeTyped(text string) (*payload, error) {
	if err := requireObject(text); err != nil {
		return nil, err
	}
	var w wirePayload
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		return nil, err
	}

	p := &payload{hasIssues: w.HasIssues, evaluation: w.FileEvaluation}
	for _, wi := range w.Issues {
		if wi == nil {
			continue
		}
		line := models.UnknownLineNumber
		if wi.CodeLine != nil {
			line = *wi.CodeLine
		}
		p.issues = append(p.issues, &models.Issue{
			Description:      wi.Description,
			LineNumber:       line,
			IssueType:        models.IssueType(orDefault(wi.IssueType, string(models.IssueTypeUnclassified))),
			Severity:         models.Severity(orDefault(wi.Severity, string(models.SeverityMedium))),
			SuggestedFix:     wi.SuggestedFix,
			FixedCodeExample: wi.FixedCodeExample,
			Reason:           wi.Reason,
		})
	}
	return p, nil
}

func decodeGeneric(text string) (*payload, error) {
	if err := requireObject(text); err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var tree map[string]any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, errNotObject
	}

	p := &payload{evaluation: stringField(tree, "fileEvaluation", "")}
	if v, ok := boolField(tree, "hasIssues"); ok {
		p.hasIssues = &v
	}
	if p.hasIssues != nil && !*p.hasIssues {
		return p, nil
	}

	items, _ := tree["issues"].([]any)
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		p.issues = append(p.issues, &models.Issue{
			Description:      stringField(obj, "description", ""),
			LineNumber:       intField(obj, "codeLine", models.UnknownLineNumber),
			IssueType:        models.IssueType(stringField(obj, "issueType", string(models.IssueTypeUnclassified))),
			Severity:         models.Severity(stringField(obj, "severity", string(models.SeverityMedium))),
			SuggestedFix:     stringField(obj, "suggestedFix", ""),
			FixedCodeExample: stringField(obj, "fixedCodeExample", ""),
			Reason:           stringField(obj, "reason", ""),
		})
	}
	return p, nil
}

func requireObject(text string) error {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errNotObject
	}
	return nil
}

func stringField(obj map[string]any, key, def string) string {
	switch v := obj[key].(type) {
	case string:
		return orDefault(v, def)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return def
}

func intField(obj map[string]any, key string, def int) int {
	switch v := obj[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil && n >= math.MinInt32 && n <= math.MaxInt32 {
			return int(n)
		}
		if f, err := v.Float64(); err == nil && f >= math.MinInt32 && f <= math.MaxInt32 {
			return int(f)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func boolField(obj map[string]any, key string) (bool, bool) {
	switch v := obj[key].(type) {
	case bool:
		return v, true
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b, true
		}
	}
	return false, false
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
