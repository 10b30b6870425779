package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/codecheck/pkg/models"
)

// Handler reacts to a submission event
type Handler interface {
	Name() string
	Handle(ctx context.Context, submission models.Submission) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, submission models.Submission) error
}

func (f HandlerFunc) Name() string { return f.HandlerName }

func (f HandlerFunc) Handle(ctx context.Context, submission models.Submission) error {
	return f.Fn(ctx, submission)
}

// HandlerID identifies a registration so it can be removed again
type HandlerID uint64

type registration struct {
	id      HandlerID
	handler Handler
}

// Registry holds the handlers notified for every submission. It is built at
// startup and owned by the server; handlers never hold a reference back.
type Registry struct {
	mu       sync.RWMutex
	handlers []registration
	nextID   HandlerID
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a handler after all existing ones
func (r *Registry) Add(h Handler) HandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.handlers = append(r.handlers, registration{id: r.nextID, handler: h})
	log.Debug().Str("handler", h.Name()).Uint64("id", uint64(r.nextID)).Msg("Registered submission handler")
	return r.nextID
}

// Remove unregisters a handler. It reports whether the id was known.
func (r *Registry) Remove(id HandlerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, reg := range r.handlers {
		if reg.id == id {
			r.handlers = append(r.handlers[:i:i], r.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered handlers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Publish calls every handler synchronously in registration order. A
// failing or panicking handler does not stop the others; all failures are
// returned joined.
func (r *Registry) Publish(ctx context.Context, submission models.Submission) error {
	r.mu.RLock()
	snapshot := make([]registration, len(r.handlers))
	copy(snapshot, r.handlers)
	r.mu.RUnlock()

	var errs []error
	for _, reg := range snapshot {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := invoke(ctx, reg.handler, submission); err != nil {
			log.Error().
				Err(err).
				Str("handler", reg.handler.Name()).
				Str("project", submission.ProjectName).
				Str("type", string(submission.Type)).
				Msg("Submission handler failed")
			errs = append(errs, fmt.Errorf("%s: %w", reg.handler.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func invoke(ctx context.Context, h Handler, submission models.Submission) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, submission)
}
