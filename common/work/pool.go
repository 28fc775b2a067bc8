// Package work runs asynchronous message handlers on a bounded set of
// goroutines. Each task reports its outcome to its own completion callback
// and, when the pool keeps one, on the shared results channel.
package work

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	ErrInvalidChannelSize = errors.New("invalid channel size")
	ErrPoolStopped        = errors.New("worker pool has been stopped")
	ErrPoolNotStarted     = errors.New("worker pool has not been started")
	ErrTaskTimeout        = errors.New("task execution timeout")
	ErrTaskPanicked       = errors.New("task panicked")
)

// TaskResult represents the result of a task execution
type TaskResult[T any] struct {
	TaskID    string
	Result    T
	Error     error
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// IsSuccess returns true if the task completed successfully
func (tr *TaskResult[T]) IsSuccess() bool {
	return tr.Error == nil
}

// Executor is a unit of work accepted by the pool.
type Executor[T any] interface {
	ExecutorID() string
	Execute(ctx context.Context) (T, error)
	OnError(error)
	OnComplete(TaskResult[T])
	Timeout() time.Duration // 0 means use pool default
}

// PoolConfig holds configuration for the worker pool
type PoolConfig struct {
	NumWorkers      int
	TaskChannelSize int
	// ResultChanSize of 0 disables the shared results channel.
	ResultChanSize  int
	TaskTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultPoolConfig sizes the pool for handler dispatch: results are
// delivered through completion callbacks only.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		NumWorkers:      4,
		TaskChannelSize: 64,
		ResultChanSize:  0,
		TaskTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

type Pool[T any] struct {
	config   PoolConfig
	tasks    chan Executor[T]
	results  chan TaskResult[T]
	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	activeWorkers  int64
	tasksQueued    int64
	tasksCompleted int64
	tasksFailed    int64

	started bool
	stopped bool
	mu      sync.RWMutex
}

// NewPool validates config and builds an unstarted pool.
func NewPool[T any](config PoolConfig) (*Pool[T], error) {
	if config.NumWorkers <= 0 {
		return nil, ErrInvalidWorkerCount
	}
	if config.TaskChannelSize < 0 || config.ResultChanSize < 0 {
		return nil, ErrInvalidChannelSize
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = 60 * time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	p := &Pool[T]{
		config: config,
		tasks:  make(chan Executor[T], config.TaskChannelSize),
		quit:   make(chan struct{}),
	}
	if config.ResultChanSize > 0 {
		p.results = make(chan TaskResult[T], config.ResultChanSize)
	}
	return p, nil
}

// Start launches the workers. Calling it twice, or after Stop, is a no-op.
func (p *Pool[T]) Start(ctx context.Context, poolID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	if p.stopped {
		log.Error().Str("workerPoolID", poolID).Msg("Cannot start a stopped pool")
		return
	}

	p.started = true
	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, poolID, i)
	}
	log.Info().
		Str("workerPoolID", poolID).
		Int("numWorkers", p.config.NumWorkers).
		Msg("Worker pool started")
}

// Stop stops accepting tasks, lets queued ones drain, and waits up to the
// shutdown timeout for running ones.
func (p *Pool[T]) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.stopOnce.Do(func() {
		close(p.tasks)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		close(p.quit)
		select {
		case <-done:
			log.Info().Msg("All workers stopped gracefully")
			// Late workers may still publish, so results is only closed
			// once every worker has returned.
			if p.results != nil {
				close(p.results)
			}
		case <-time.After(p.config.ShutdownTimeout):
			log.Warn().Dur("timeout", p.config.ShutdownTimeout).Msg("Shutdown timeout exceeded")
		}
	})
}

// Submit queues task, blocking while the queue is full.
func (p *Pool[T]) Submit(ctx context.Context, task Executor[T]) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}
	if !p.started {
		return ErrPoolNotStarted
	}

	select {
	case p.tasks <- task:
		atomic.AddInt64(&p.tasksQueued, 1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results returns the shared results channel, or nil when disabled.
func (p *Pool[T]) Results() <-chan TaskResult[T] {
	return p.results
}

// Stats returns pool statistics
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		ActiveWorkers:  atomic.LoadInt64(&p.activeWorkers),
		TasksQueued:    atomic.LoadInt64(&p.tasksQueued),
		TasksCompleted: atomic.LoadInt64(&p.tasksCompleted),
		TasksFailed:    atomic.LoadInt64(&p.tasksFailed),
		TasksInQueue:   int64(len(p.tasks)),
	}
}

// PoolStats holds statistics about the pool
type PoolStats struct {
	ActiveWorkers  int64
	TasksQueued    int64
	TasksCompleted int64
	TasksFailed    int64
	TasksInQueue   int64
}

func (p *Pool[T]) worker(ctx context.Context, poolID string, workerID int) {
	defer p.wg.Done()
	atomic.AddInt64(&p.activeWorkers, 1)
	defer atomic.AddInt64(&p.activeWorkers, -1)

	for {
		select {
		case <-ctx.Done():
			log.Debug().
				Str("workerPoolID", poolID).
				Int("workerID", workerID).
				Msg("Worker stopped due to context cancellation")
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.executeTask(ctx, task, workerID, poolID)
		}
	}
}

// run executes the task and converts a panic into ErrTaskPanicked.
func run[T any](ctx context.Context, task Executor[T]) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return task.Execute(ctx)
}

func (p *Pool[T]) executeTask(ctx context.Context, task Executor[T], workerID int, poolID string) {
	taskID := task.ExecutorID()
	startTime := time.Now()

	timeout := p.config.TaskTimeout
	if t := task.Timeout(); t > 0 {
		timeout = t
	}

	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Debug().
		Str("workerPoolID", poolID).
		Int("workerID", workerID).
		Str("taskID", taskID).
		Dur("timeout", timeout).
		Msg("Executing task")

	result, err := run(taskCtx, task)
	endTime := time.Now()

	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(taskCtx.Err(), context.DeadlineExceeded)) {
		err = ErrTaskTimeout
	}

	taskResult := TaskResult[T]{
		TaskID:    taskID,
		Result:    result,
		Error:     err,
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  endTime.Sub(startTime),
	}

	if err != nil {
		atomic.AddInt64(&p.tasksFailed, 1)
		task.OnError(err)
	}
	task.OnComplete(taskResult)
	atomic.AddInt64(&p.tasksCompleted, 1)

	if p.results != nil {
		select {
		case p.results <- taskResult:
		case <-time.After(time.Second):
			log.Warn().Str("taskID", taskID).Msg("Result channel full after timeout, dropping result")
		case <-p.quit:
		}
	}

	log.Debug().
		Str("workerPoolID", poolID).
		Int("workerID", workerID).
		Str("taskID", taskID).
		Dur("duration", taskResult.Duration).
		Bool("success", err == nil).
		Msg("Task completed")
}
