package review

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/codecheck/internal/batch"
	"github.com/codecheck/internal/diff"
	"github.com/codecheck/internal/llm"
	"github.com/codecheck/internal/prompts"
	"github.com/codecheck/internal/providers"
	"github.com/codecheck/internal/retry"
	"github.com/codecheck/pkg/models"
)

// Model is the language model used as reviewer
type Model interface {
	Review(ctx context.Context, system, prompt string, options ...llms.CallOption) (string, error)
}

// Config holds the review service configuration
type Config struct {
	// ModelTimeout bounds a single model call, not the whole submission
	ModelTimeout      time.Duration
	MaxAddedLines     int
	IgnoredExtensions []string
	PromptVariant     prompts.Variant
	Guidelines        string
	Workers           int
	ModelRetry        retry.Config
}

// DefaultReviewConfig returns a sensible default configuration for reviews
func DefaultReviewConfig() Config {
	return Config{
		ModelTimeout:      2 * time.Minute,
		MaxAddedLines:     500,
		IgnoredExtensions: []string{".md", ".lock", ".sum", ".svg", ".png"},
		PromptVariant:     prompts.VariantVerbose,
		Workers:           batch.DefaultConfig().MaxWorkers,
		ModelRetry:        retry.ModelConfig(),
	}
}

// Service represents the review orchestration service
type Service struct {
	provider   providers.Provider
	model      Model
	config     Config
	aggregator *diff.Aggregator
	prompts    *prompts.PromptBuilder
	mapper     *llm.Mapper
}

// NewService creates a new review service
func NewService(provider providers.Provider, model Model, config Config) *Service {
	if config.PromptVariant == "" {
		config.PromptVariant = prompts.VariantVerbose
	}
	return &Service{
		provider: provider,
		model:    model,
		config:   config,
		aggregator: &diff.Aggregator{
			IgnoredExtensions: config.IgnoredExtensions,
			MaxAddedLines:     config.MaxAddedLines,
		},
		prompts: prompts.NewPromptBuilder(config.PromptVariant, config.Guidelines),
		mapper:  llm.NewMapper(),
	}
}

// Analyze reviews every changed file of a submission and returns one result
// per reviewed file, in the order the files first appeared in the diff.
// Only a failure to fetch the diff is returned as an error; a failing file
// is reported as a result carrying a system error issue.
func (s *Service) Analyze(ctx context.Context, submission models.Submission) ([]*models.FileInspectionResult, error) {
	logger := log.With().
		Str("run_id", uuid.NewString()).
		Int64("project_id", submission.ProjectID).
		Str("commit", submission.CommitID).
		Int64("mr_iid", submission.MergeRequestIID).
		Logger()

	start := time.Now()
	logger.Info().Str("type", string(submission.Type)).Msg("Starting review")

	blocks, err := s.provider.DiffBlocks(ctx, submission)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch diff")
		return nil, fmt.Errorf("failed to fetch diff: %w", err)
	}

	set := s.aggregator.Aggregate(blocks)
	for _, w := range set.Warnings {
		logger.Warn().
			Int("block", w.Index).
			Str("file", w.FilePath).
			Err(w.Err).
			Msg("Skipping malformed diff block")
	}

	if set.Len() == 0 {
		logger.Info().Int("blocks", len(blocks)).Msg("No code changes to inspect")
		return nil, nil
	}

	var mu sync.Mutex
	results := make(map[string]*models.FileInspectionResult, set.Len())

	queue := batch.NewTaskQueue(s.config.Workers)
	for _, change := range set.Files {
		if change.IsEmpty() {
			continue
		}
		change := change
		queue.AddTask(batch.TaskFunc{TaskID: change.FilePath, Fn: func(ctx context.Context) (interface{}, error) {
			result := s.inspectFile(ctx, change, submission.Message, logger)
			mu.Lock()
			results[change.FilePath] = result
			mu.Unlock()
			return result, nil
		}})
	}
	outcomes := queue.ProcessAll(ctx)

	ordered := make([]*models.FileInspectionResult, 0, len(outcomes))
	for _, filePath := range set.Paths() {
		outcome, queued := outcomes[filePath]
		if !queued {
			continue
		}
		result, ok := results[filePath]
		if !ok {
			result = s.mapper.Failed(filePath, start, outcome.Error)
		}
		ordered = append(ordered, result)
	}

	logger.Info().
		Int("files", len(ordered)).
		Int("issues", countIssues(ordered)).
		Dur("duration", time.Since(start)).
		Msg("Review finished")

	return ordered, nil
}

func (s *Service) inspectFile(ctx context.Context, change *models.FileChange, commitMessage string, logger zerolog.Logger) *models.FileInspectionResult {
	start := time.Now()
	fileLogger := logger.With().Str("file", change.FilePath).Logger()

	prompt := s.prompts.Build(change, commitMessage)
	fileLogger.Debug().Int("prompt_bytes", len(prompt)).Msg("Prompt generated")

	var answer string
	res := retry.Do(ctx, s.config.ModelRetry, func(ctx context.Context) error {
		callCtx := ctx
		if s.config.ModelTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.config.ModelTimeout)
			defer cancel()
		}
		out, err := s.model.Review(callCtx, prompts.CodeReviewerRole, prompt)
		if err != nil {
			return err
		}
		answer = out
		return nil
	}, fileLogger)

	if !res.Success {
		fileLogger.Error().Err(res.LastError).Int("attempts", res.Attempts).Msg("Model call failed")
		return s.mapper.Failed(change.FilePath, start, fmt.Errorf("model call failed: %w", res.LastError))
	}

	result := s.mapper.Inspect(answer, change.FilePath, start)
	fileLogger.Debug().
		Bool("has_issues", result.HasIssues).
		Int("issues", len(result.Issues)).
		Int64("ms", result.ProcessingTimeMs).
		Msg("File inspected")
	return result
}

func countIssues(results []*models.FileInspectionResult) int {
	n := 0
	for _, r := range results {
		n += len(r.Issues)
	}
	return n
}
