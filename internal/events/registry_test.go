package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecheck/pkg/models"
)

func recorder(name string, calls *[]string, err error) Handler {
	return HandlerFunc{HandlerName: name, Fn: func(ctx context.Context, s models.Submission) error {
		*calls = append(*calls, name+":"+s.CommitID)
		return err
	}}
}

func TestRegistry_PublishInOrder(t *testing.T) {
	var calls []string
	r := NewRegistry()
	r.Add(recorder("review", &calls, nil))
	r.Add(recorder("audit", &calls, nil))

	err := r.Publish(context.Background(), models.Submission{CommitID: "abc"})

	require.NoError(t, err)
	assert.Equal(t, []string{"review:abc", "audit:abc"}, calls)
}

func TestRegistry_Remove(t *testing.T) {
	var calls []string
	r := NewRegistry()
	first := r.Add(recorder("first", &calls, nil))
	r.Add(recorder("second", &calls, nil))

	assert.True(t, r.Remove(first))
	assert.False(t, r.Remove(first))
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Publish(context.Background(), models.Submission{CommitID: "x"}))
	assert.Equal(t, []string{"second:x"}, calls)
}

func TestRegistry_FailuresDoNotStopOthers(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	r := NewRegistry()
	r.Add(recorder("failing", &calls, boom))
	r.Add(HandlerFunc{HandlerName: "panicking", Fn: func(ctx context.Context, s models.Submission) error {
		panic("bad handler")
	}})
	r.Add(recorder("last", &calls, nil))

	err := r.Publish(context.Background(), models.Submission{CommitID: "c1"})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "panicking: handler panicked: bad handler")
	assert.Equal(t, []string{"failing:c1", "last:c1"}, calls)
}

func TestRegistry_CancelledContext(t *testing.T) {
	var calls []string
	r := NewRegistry()
	r.Add(recorder("never", &calls, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Publish(ctx, models.Submission{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, calls)
}
