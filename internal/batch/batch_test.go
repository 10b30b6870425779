package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessAll_CollectsResultsByID(t *testing.T) {
	q := NewTaskQueue(3)
	for i := 0; i < 10; i++ {
		i := i
		q.AddTask(TaskFunc{TaskID: fmt.Sprintf("file-%d.go", i), Fn: func(ctx context.Context) (interface{}, error) {
			if i == 4 {
				return nil, errors.New("model unavailable")
			}
			return i * i, nil
		}})
	}

	results := q.ProcessAll(context.Background())

	require.Len(t, results, 10)
	assert.Equal(t, 9, results["file-3.go"].Result)
	assert.EqualError(t, results["file-4.go"].Error, "model unavailable")
	assert.Equal(t, results, q.GetResults())
}

func TestProcessAll_BoundsConcurrency(t *testing.T) {
	var running, peak int32
	q := NewTaskQueue(2)
	for i := 0; i < 8; i++ {
		q.AddTask(TaskFunc{TaskID: fmt.Sprint(i), Fn: func(ctx context.Context) (interface{}, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil, nil
		}})
	}

	q.ProcessAll(context.Background())

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestProcessAll_RecoversPanic(t *testing.T) {
	q := NewTaskQueue(1)
	q.AddTask(TaskFunc{TaskID: "boom", Fn: func(ctx context.Context) (interface{}, error) {
		panic("nil map")
	}})

	results := q.ProcessAll(context.Background())

	require.Error(t, results["boom"].Error)
	assert.Contains(t, results["boom"].Error.Error(), "nil map")
}

func TestProcessAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := NewTaskQueue(2)
	q.AddTask(TaskFunc{TaskID: "a", Fn: func(ctx context.Context) (interface{}, error) { return "ran", nil }})

	results := q.ProcessAll(ctx)

	assert.ErrorIs(t, results["a"].Error, context.Canceled)
}

func TestProcessAll_Empty(t *testing.T) {
	assert.Empty(t, NewTaskQueue(4).ProcessAll(context.Background()))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.GreaterOrEqual(t, cfg.MaxWorkers, 1)
	assert.LessOrEqual(t, cfg.MaxWorkers, 4)
	assert.Equal(t, 0, NewTaskQueue(0).Len())
}
