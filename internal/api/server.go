package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/codecheck/pkg/models"
)

// DefaultWebhookPath is where GitLab posts its events unless configured otherwise
const DefaultWebhookPath = "/webhook/gitlab"

// Publisher receives the submissions extracted from webhook events
type Publisher interface {
	Publish(ctx context.Context, submission models.Submission) error
}

// ServerOptions configures the webhook server
type ServerOptions struct {
	Port        int
	WebhookPath string
	// Secret, when set, must match the X-Gitlab-Token header
	Secret string
	// HandlerTimeout bounds the processing of one submission
	HandlerTimeout time.Duration
}

// Server represents the API server
type Server struct {
	echo      *echo.Echo
	options   ServerOptions
	publisher Publisher

	baseCtx  context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// NewServer creates a new API server
func NewServer(publisher Publisher, options ServerOptions) *Server {
	if options.WebhookPath == "" {
		options.WebhookPath = DefaultWebhookPath
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("10M"))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogMethod:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("Request handled")
			return nil
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	server := &Server{
		echo:      e,
		options:   options,
		publisher: publisher,
		baseCtx:   ctx,
		cancel:    cancel,
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	s.echo.POST(s.options.WebhookPath, s.GitLabWebhookHandler)
}

// ServeHTTP lets the server be mounted or tested without a listener
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start serves until ctx is done, then shuts down gracefully and waits for
// the submissions still being processed.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.options.Port).Str("webhook", s.options.WebhookPath).Msg("Webhook server listening")
		if err := s.echo.Start(fmt.Sprintf(":%d", s.options.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("webhook server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.echo.Shutdown(shutdownCtx)
	s.Wait()
	return err
}

// Wait blocks until every dispatched submission has been handled
func (s *Server) Wait() {
	s.inflight.Wait()
}

// Close cancels the submissions still being processed
func (s *Server) Close() {
	s.cancel()
}

// dispatch publishes submissions in the background, one after the other,
// so the webhook can be acknowledged immediately.
func (s *Server) dispatch(submissions []models.Submission) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		for _, submission := range submissions {
			s.publish(submission)
		}
	}()
}

func (s *Server) publish(submission models.Submission) {
	ctx := s.baseCtx
	if s.options.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.options.HandlerTimeout)
		defer cancel()
	}
	if err := s.publisher.Publish(ctx, submission); err != nil {
		log.Error().
			Err(err).
			Int64("project_id", submission.ProjectID).
			Str("commit", submission.CommitID).
			Msg("Submission handling failed")
	}
}
