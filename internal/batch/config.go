package batch

import "runtime"

// Config holds configuration for per-file processing
type Config struct {
	MaxWorkers int `koanf:"max_workers"` // Maximum number of concurrent workers
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	workers := runtime.NumCPU()
	if workers > 4 {
		// model endpoints throttle long before the CPU does
		workers = 4
	}
	return Config{MaxWorkers: workers}
}

// ConfigureTaskQueue configures a TaskQueue based on Config
func ConfigureTaskQueue(config Config) *TaskQueue {
	return NewTaskQueue(config.MaxWorkers)
}
