package batch

import (
	"context"
	"fmt"
	"sync"
)

// Task represents a unit of work to be processed
type Task interface {
	Execute(ctx context.Context) (interface{}, error)
	ID() string
}

// TaskFunc adapts a function to the Task interface
type TaskFunc struct {
	TaskID string
	Fn     func(ctx context.Context) (interface{}, error)
}

// ID returns the task ID
func (t TaskFunc) ID() string { return t.TaskID }

// Execute runs the wrapped function
func (t TaskFunc) Execute(ctx context.Context) (interface{}, error) { return t.Fn(ctx) }

// TaskResult represents the result of a task execution
type TaskResult struct {
	TaskID string
	Result interface{}
	Error  error
}

// TaskQueue runs tasks on a bounded pool of workers. Tasks that have not
// started when the context is cancelled report the context error.
type TaskQueue struct {
	tasks      []Task
	results    map[string]*TaskResult
	maxWorkers int
	mu         sync.Mutex
}

// NewTaskQueue creates a new task queue
func NewTaskQueue(maxWorkers int) *TaskQueue {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &TaskQueue{
		tasks:      make([]Task, 0),
		results:    make(map[string]*TaskResult),
		maxWorkers: maxWorkers,
	}
}

// AddTask adds a task to the queue
func (q *TaskQueue) AddTask(task Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
}

// Len returns the number of queued tasks
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// ProcessAll processes all tasks in the queue and returns the results keyed
// by task ID. A panicking task is reported as an error result.
func (q *TaskQueue) ProcessAll(ctx context.Context) map[string]*TaskResult {
	q.mu.Lock()
	tasksCopy := make([]Task, len(q.tasks))
	copy(tasksCopy, q.tasks)
	q.mu.Unlock()

	taskCh := make(chan Task, len(tasksCopy))
	resultCh := make(chan *TaskResult, len(tasksCopy))

	var wg sync.WaitGroup
	workerCount := q.maxWorkers
	if workerCount > len(tasksCopy) {
		workerCount = len(tasksCopy)
	}

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				if err := ctx.Err(); err != nil {
					resultCh <- &TaskResult{TaskID: task.ID(), Error: fmt.Errorf("task cancelled: %w", err)}
					continue
				}
				resultCh <- run(ctx, task)
			}
		}()
	}

	for _, task := range tasksCopy {
		taskCh <- task
	}
	close(taskCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make(map[string]*TaskResult, len(tasksCopy))
	for result := range resultCh {
		results[result.TaskID] = result
	}

	q.mu.Lock()
	q.results = results
	q.mu.Unlock()

	return results
}

func run(ctx context.Context, task Task) (result *TaskResult) {
	result = &TaskResult{TaskID: task.ID()}
	defer func() {
		if r := recover(); r != nil {
			result.Result = nil
			result.Error = fmt.Errorf("task %s panicked: %v", task.ID(), r)
		}
	}()
	result.Result, result.Error = task.Execute(ctx)
	return result
}

// GetResults returns the current results
func (q *TaskQueue) GetResults() map[string]*TaskResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	resultsCopy := make(map[string]*TaskResult, len(q.results))
	for k, v := range q.results {
		resultsCopy[k] = v
	}
	return resultsCopy
}
