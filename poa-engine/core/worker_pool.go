package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Worker pool errors.
var (
	ErrPoolClosed = errors.New("worker pool is shut down")
	ErrQueueFull  = errors.New("task queue is full")
)

// TaskFunc is the unit of work run by the pool.
type TaskFunc func(ctx context.Context) (interface{}, error)

// Task represents a processing task for the worker pool.
type Task struct {
	ID        string
	Fn        TaskFunc
	Ctx       context.Context
	CreatedAt time.Time

	done chan *TaskResult
}

// NewTask creates a new task bound to ctx.
func NewTask(ctx context.Context, id string, fn TaskFunc) *Task {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Task{
		ID:        id,
		Fn:        fn,
		Ctx:       ctx,
		CreatedAt: time.Now(),
		done:      make(chan *TaskResult, 1),
	}
}

// Done delivers exactly one result once the task has finished.
func (t *Task) Done() <-chan *TaskResult {
	return t.done
}

// TaskResult represents the result of task processing.
type TaskResult struct {
	TaskID   string
	Success  bool
	Data     interface{}
	Error    error
	Duration time.Duration
	WorkerID int
}

// PoolStats contains worker pool statistics.
type PoolStats struct {
	Name        string  `json:"name"`
	Workers     int     `json:"workers"`
	Active      int64   `json:"active"`
	Completed   int64   `json:"completed"`
	Failed      int64   `json:"failed"`
	Pending     int     `json:"pending"`
	SuccessRate float64 `json:"success_rate"`
}

// WorkerPool manages a pool of goroutine workers for parallel processing.
type WorkerPool struct {
	name     string
	workers  int
	taskChan chan *Task
	wg       sync.WaitGroup

	active    int64
	completed int64
	failed    int64

	// ctx is cancelled when a timed shutdown gives up; queued tasks then fail fast.
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mu      sync.RWMutex
}

// NewWorkerPool creates a pool with the given number of workers and a queue of
// queueSize tasks. Non-positive values fall back to one worker and 100 tasks per worker.
func NewWorkerPool(name string, workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &WorkerPool{
		name:     name,
		workers:  workers,
		taskChan: make(chan *Task, queueSize),
		ctx:      ctx,
		cancel:   cancel,
		running:  true,
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	return pool
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for task := range p.taskChan {
		if p.ctx.Err() != nil {
			p.finish(task, &TaskResult{TaskID: task.ID, WorkerID: id, Error: ErrPoolClosed})
			continue
		}
		p.processTask(id, task)
	}
}

func (p *WorkerPool) processTask(workerID int, task *Task) {
	atomic.AddInt64(&p.active, 1)
	defer atomic.AddInt64(&p.active, -1)

	start := time.Now()
	result := &TaskResult{
		TaskID:   task.ID,
		WorkerID: workerID,
	}

	// One task must not take down the pool.
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Errorf("panic in task processing: %s", panicToString(r))
			result.Duration = time.Since(start)
			p.finish(task, result)
		}
	}()

	if err := task.Ctx.Err(); err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		p.finish(task, result)
		return
	}

	if task.Fn != nil {
		data, err := task.Fn(task.Ctx)
		result.Data = data
		result.Error = err
		result.Success = err == nil
	} else {
		result.Error = errors.New("no process function defined")
	}

	result.Duration = time.Since(start)
	p.finish(task, result)
}

// finish records the outcome and delivers it. done has room for exactly one result.
func (p *WorkerPool) finish(task *Task, result *TaskResult) {
	if result.Success {
		atomic.AddInt64(&p.completed, 1)
	} else {
		atomic.AddInt64(&p.failed, 1)
	}
	task.done <- result
}

func panicToString(r interface{}) string {
	switch v := r.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Submit queues a task without blocking.
func (p *WorkerPool) Submit(task *Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return ErrPoolClosed
	}

	select {
	case p.taskChan <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitContext queues a task, waiting for queue space until ctx is done.
func (p *WorkerPool) SubmitContext(ctx context.Context, task *Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return ErrPoolClosed
	}

	select {
	case p.taskChan <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitAndWait submits a task and waits for its result.
func (p *WorkerPool) SubmitAndWait(ctx context.Context, task *Task) (*TaskResult, error) {
	if err := p.SubmitContext(ctx, task); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-task.Done():
		return result, nil
	}
}

// GetStats returns current worker pool statistics.
func (p *WorkerPool) GetStats() PoolStats {
	completed := atomic.LoadInt64(&p.completed)
	failed := atomic.LoadInt64(&p.failed)
	total := completed + failed

	var successRate float64
	if total > 0 {
		successRate = float64(completed) / float64(total) * 100
	}

	return PoolStats{
		Name:        p.name,
		Workers:     p.workers,
		Active:      atomic.LoadInt64(&p.active),
		Completed:   completed,
		Failed:      failed,
		Pending:     len(p.taskChan),
		SuccessRate: successRate,
	}
}

// stop marks the pool closed and closes the queue. It reports false if the
// pool was already shut down.
func (p *WorkerPool) stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return false
	}
	p.running = false
	close(p.taskChan)
	return true
}

// Shutdown stops accepting tasks and waits for queued tasks to finish.
func (p *WorkerPool) Shutdown() {
	if !p.stop() {
		return
	}
	p.wg.Wait()
	p.cancel()
}

// ShutdownWithTimeout is Shutdown bounded by timeout. On timeout, tasks still
// queued fail with ErrPoolClosed; tasks already running are left to complete.
func (p *WorkerPool) ShutdownWithTimeout(timeout time.Duration) error {
	if !p.stop() {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		return errors.New("shutdown timeout")
	}
}

// IsRunning returns true if the pool is still accepting tasks.
func (p *WorkerPool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}
