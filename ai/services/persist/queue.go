// Package persist runs conversation writes in the background after the
// response has been sent. Delivery is best-effort and at most once: a full
// queue drops the task and a failed task is not retried.
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/fitcoach/ai/cache"
	"github.com/hrygo/fitcoach/ai/metrics"
)

const (
	DefaultQueueSize   = 256
	DefaultWorkers     = 2
	DefaultTaskTimeout = 60 * time.Second

	duplicateWindow = 5 * time.Second // window for duplicate keys
	maxTrackedKeys  = 4096
)

// Task is one background write. Tasks with a Key are deduplicated within a
// short window.
type Task struct {
	ID             string
	Kind           string // e.g. "subject", "messages"
	Key            string
	ConversationID string
	Run            func(ctx context.Context) error
}

type Config struct {
	Size        int
	Workers     int
	TaskTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.PrometheusExporter
}

// Queue is a bounded task queue served by a fixed number of workers.
type Queue struct {
	tasks   chan *Task
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.PrometheusExporter

	wg       sync.WaitGroup
	stopCh   chan struct{}
	once     sync.Once
	closed   atomic.Bool
	seenKeys *cache.LRUCache[string, struct{}]
}

// NewQueue starts the workers.
func NewQueue(cfg Config) *Queue {
	if cfg.Size <= 0 {
		cfg.Size = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		tasks:   make(chan *Task, cfg.Size),
		timeout: cfg.TaskTimeout,
		logger:  logger,
		metrics: cfg.Metrics,
		stopCh:  make(chan struct{}),

		seenKeys: cache.NewLRUCache[string, struct{}](maxTrackedKeys, duplicateWindow),
	}
	q.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go q.worker()
	}
	return q
}

// Enqueue queues a task and returns its id. It returns false when the queue is
// full or closed, or the key was seen within the duplicate window.
func (q *Queue) Enqueue(task *Task) (string, bool) {
	if q.closed.Load() {
		q.logger.Warn("persist: queue closed, dropping task", "kind", task.Kind, "conversation_id", task.ConversationID)
		q.metrics.RecordPersist(task.Kind, "dropped")
		return "", false
	}
	if task.Key != "" && !q.seenKeys.Add(task.Key, struct{}{}) {
		q.logger.Debug("persist: ignoring duplicate task", "key", task.Key)
		return "", false
	}
	if task.ID == "" {
		task.ID = shortuuid.New()
	}

	select {
	case q.tasks <- task:
		q.metrics.SetQueueDepth(len(q.tasks))
		q.logger.Debug("persist: task enqueued",
			"task_id", task.ID,
			"kind", task.Kind,
			"conversation_id", task.ConversationID,
			"queue_size", len(q.tasks))
		return task.ID, true
	default:
		q.metrics.RecordPersist(task.Kind, "dropped")
		q.logger.Warn("persist: queue full, dropping task",
			"task_id", task.ID,
			"kind", task.Kind,
			"conversation_id", task.ConversationID,
			"queue_size", len(q.tasks))
		return "", false
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case task := <-q.tasks:
			q.execute(task)
		case <-q.stopCh:
			q.drain()
			return
		}
	}
}

// drain runs the tasks still queued at shutdown.
func (q *Queue) drain() {
	for {
		select {
		case task := <-q.tasks:
			q.execute(task)
		default:
			return
		}
	}
}

func (q *Queue) execute(task *Task) {
	q.metrics.SetQueueDepth(len(q.tasks))
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	err := runTask(ctx, task)
	cancel()

	if err != nil {
		q.metrics.RecordPersist(task.Kind, "failed")
		q.logger.Error("persist: task failed",
			"task_id", task.ID,
			"kind", task.Kind,
			"conversation_id", task.ConversationID,
			"error", err)
		return
	}
	q.metrics.RecordPersist(task.Kind, "done")
	q.logger.Debug("persist: task done",
		"task_id", task.ID,
		"kind", task.Kind,
		"duration_ms", time.Since(start).Milliseconds())
}

func runTask(ctx context.Context, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task.Run(ctx)
}

// Close stops accepting tasks, waits for the queued ones to finish and shuts
// the workers down. It returns context.DeadlineExceeded on timeout.
func (q *Queue) Close(timeout time.Duration) error {
	q.once.Do(func() {
		q.closed.Store(true)
		close(q.stopCh)
	})

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("persist: shutdown complete")
		return nil
	case <-time.After(timeout):
		q.logger.Warn("persist: shutdown timeout", "remaining", len(q.tasks))
		return context.DeadlineExceeded
	}
}

// QueueSize returns the number of tasks waiting.
func (q *Queue) QueueSize() int {
	return len(q.tasks)
}
