package notifications

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// QueueConfig contains queue configuration.
type QueueConfig struct {
	MaxConcurrency    int
	MaxRetries        int
	RetryDelay        time.Duration
	ProcessingTimeout time.Duration
	PollInterval      time.Duration
}

// DefaultQueueConfig returns default queue configuration.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxConcurrency:    5,
		MaxRetries:        3,
		RetryDelay:        5 * time.Second,
		ProcessingTimeout: 30 * time.Second,
		PollInterval:      1 * time.Second,
	}
}

func (c QueueConfig) withDefaults() QueueConfig {
	def := DefaultQueueConfig()
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = def.MaxConcurrency
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.ProcessingTimeout <= 0 {
		c.ProcessingTimeout = def.ProcessingTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	return c
}

// Processor performs the work for one job. A nil error means the job completed.
type Processor interface {
	Process(ctx context.Context, job Job) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, job Job) error

// Process calls f(ctx, job).
func (f ProcessorFunc) Process(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// QueueEventType is a job lifecycle transition.
type QueueEventType string

// Queue lifecycle events.
const (
	QueueEventProcessing QueueEventType = "processing"
	QueueEventCompleted  QueueEventType = "completed"
	QueueEventRetrying   QueueEventType = "retrying"
	QueueEventFailed     QueueEventType = "failed"
)

// QueueEvent reports a job transition. Err is set for retrying and failed.
type QueueEvent struct {
	Type QueueEventType
	Job  Job
	Err  error
	At   time.Time
}

// Queue runs jobs by priority on a bounded worker pool and retries failures
// after a fixed delay.
type Queue struct {
	config    QueueConfig
	processor Processor

	mu        sync.Mutex
	ready     readyHeap
	delayed   delayedHeap
	seq       uint64
	active    int
	completed []Job
	failed    []Job
	stopped   bool
	baseCtx   context.Context

	wakeCh   chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	started  bool
	loopWG   sync.WaitGroup
	jobsWG   sync.WaitGroup

	events    chan QueueEvent
	evMu      sync.Mutex
	evBuf     []QueueEvent
	evClosing bool
	evSignal  chan struct{}
}

// NewQueue creates a queue that hands jobs to processor.
func NewQueue(config QueueConfig, processor Processor) *Queue {
	q := &Queue{
		config:    config.withDefaults(),
		processor: processor,
		baseCtx:   context.Background(),
		wakeCh:    make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		events:    make(chan QueueEvent),
		evSignal:  make(chan struct{}, 1),
	}
	go q.pumpEvents()
	return q
}

// Config returns the effective configuration.
func (q *Queue) Config() QueueConfig {
	return q.config
}

// Events returns the lifecycle event stream. It is closed after Stop once all
// in-flight jobs have reported. The queue never blocks on a slow reader.
func (q *Queue) Events() <-chan QueueEvent {
	return q.events
}

// Start launches the scheduling loop. Jobs enqueued before Start are held
// until then. Cancelling ctx stops scheduling but in-flight jobs run to completion.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.baseCtx = context.WithoutCancel(ctx)
	q.mu.Unlock()

	slog.Info("starting notification queue",
		"max_concurrency", q.config.MaxConcurrency,
		"max_retries", q.config.MaxRetries,
		"retry_delay", q.config.RetryDelay,
		"processing_timeout", q.config.ProcessingTimeout,
	)

	q.loopWG.Add(1)
	go q.run(ctx)
}

// Stop halts scheduling and waits for in-flight jobs. It is idempotent.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()

		close(q.stopCh)
		q.loopWG.Wait()
		q.jobsWG.Wait()

		q.evMu.Lock()
		q.evClosing = true
		q.evMu.Unlock()
		q.signalEvents()

		slog.Info("notification queue stopped")
	})
}

// Enqueue adds a job to the pending set. It never waits for processing.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrQueueStopped
	}

	q.seq++
	item := &queueItem{job: job, seq: q.seq}
	if job.ScheduledAt != nil && job.ScheduledAt.After(time.Now()) {
		item.readyAt = *job.ScheduledAt
		heap.Push(&q.delayed, item)
	} else {
		heap.Push(&q.ready, item)
	}
	q.recordStatsLocked()
	q.mu.Unlock()

	q.wake()
	return nil
}

// Stats returns job counts by bucket.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statsLocked()
}

// FailedJobs returns jobs that exhausted their retries, oldest first.
func (q *Queue) FailedJobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]Job, len(q.failed))
	copy(result, q.failed)
	return result
}

// Cleanup discards completed and failed job history.
func (q *Queue) Cleanup() {
	q.mu.Lock()
	defer q.mu.Unlock()

	slog.Debug("cleaning up queue history",
		"completed", len(q.completed),
		"failed", len(q.failed),
	)
	q.completed = nil
	q.failed = nil
	q.recordStatsLocked()
}

func (q *Queue) statsLocked() QueueStats {
	return QueueStats{
		Pending:    q.ready.Len() + q.delayed.Len(),
		Processing: q.active,
		Completed:  len(q.completed),
		Failed:     len(q.failed),
	}
}

func (q *Queue) recordStatsLocked() {
	RecordQueueStats(q.statsLocked())
}

func (q *Queue) wake() {
	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
}

func (q *Queue) run(ctx context.Context) {
	defer q.loopWG.Done()

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	timer := time.NewTimer(q.config.PollInterval)
	defer timer.Stop()

	for {
		next := q.dispatchReady()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if next > 0 {
			timer.Reset(next)
		}

		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-q.wakeCh:
		case <-ticker.C:
		case <-timer.C:
		}
	}
}

// dispatchReady starts as many eligible jobs as there are free workers and
// returns the wait until the earliest held job becomes eligible (0 if none).
func (q *Queue) dispatchReady() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return 0
	}

	now := time.Now()
	for q.delayed.Len() > 0 && !q.delayed[0].readyAt.After(now) {
		item := heap.Pop(&q.delayed).(*queueItem)
		heap.Push(&q.ready, item)
	}

	for q.active < q.config.MaxConcurrency && q.ready.Len() > 0 {
		item := heap.Pop(&q.ready).(*queueItem)
		q.active++
		q.emitLocked(QueueEventProcessing, item.job, nil)
		recordJobDispatched()

		q.jobsWG.Add(1)
		go q.runJob(item)
	}
	q.recordStatsLocked()

	if q.delayed.Len() > 0 {
		return time.Until(q.delayed[0].readyAt)
	}
	return 0
}

func (q *Queue) runJob(item *queueItem) {
	defer q.jobsWG.Done()

	start := time.Now()
	err := q.process(item.job)
	q.finish(item, err, time.Since(start))
}

// process runs the processor under the processing timeout. Timeouts and
// panics are reported as errors. After a timeout the attempt is given one more
// ProcessingTimeout to observe cancellation and return, so a retry never runs
// alongside the attempt it replaces. An attempt that outlives that grace
// period is abandoned.
func (q *Queue) process(job Job) error {
	q.mu.Lock()
	base := q.baseCtx
	q.mu.Unlock()

	ctx, cancel := context.WithTimeout(base, q.config.ProcessingTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("processor panic: %v", r)
			}
		}()
		done <- q.processor.Process(ctx, job)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		timeoutErr := fmt.Errorf("processing timeout after %s: %w", q.config.ProcessingTimeout, ctx.Err())

		grace := time.NewTimer(q.config.ProcessingTimeout)
		defer grace.Stop()

		select {
		case <-done:
		case <-grace.C:
			slog.Error("notification processor ignored cancellation, abandoning attempt",
				"message_id", job.MessageID,
				"channel", job.Channel,
				"grace", q.config.ProcessingTimeout,
			)
		}
		return timeoutErr
	}
}

func (q *Queue) finish(item *queueItem, err error, duration time.Duration) {
	q.mu.Lock()
	q.active--

	job := item.job
	channel := string(job.Channel)

	switch {
	case err == nil:
		q.completed = append(q.completed, job)
		q.emitLocked(QueueEventCompleted, job, nil)
		recordJobOutcome(channel, "completed")
		recordJobDuration(channel, duration)

		slog.Debug("notification job completed",
			"message_id", job.MessageID,
			"channel", job.Channel,
			"duration", duration,
		)

	case isRetryable(err) && job.RetryCount < q.config.MaxRetries:
		job.RetryCount++
		q.seq++
		retry := &queueItem{job: job, seq: q.seq, readyAt: time.Now().Add(q.config.RetryDelay)}
		heap.Push(&q.delayed, retry)
		q.emitLocked(QueueEventRetrying, job, err)
		recordJobOutcome(channel, "retry")

		slog.Warn("notification job failed, retrying",
			"message_id", job.MessageID,
			"channel", job.Channel,
			"attempt", job.RetryCount,
			"max_retries", q.config.MaxRetries,
			"retry_delay", q.config.RetryDelay,
			"error", err,
		)

	default:
		q.failed = append(q.failed, job)
		q.emitLocked(QueueEventFailed, job, err)
		recordJobOutcome(channel, "failed")

		slog.Error("notification job failed",
			"message_id", job.MessageID,
			"channel", job.Channel,
			"retries", job.RetryCount,
			"error", err,
		)
	}

	q.recordStatsLocked()
	q.mu.Unlock()

	q.wake()
}

// emitLocked must be called with q.mu held so events follow state order.
func (q *Queue) emitLocked(t QueueEventType, job Job, err error) {
	q.evMu.Lock()
	q.evBuf = append(q.evBuf, QueueEvent{Type: t, Job: job, Err: err, At: time.Now()})
	q.evMu.Unlock()
	q.signalEvents()
}

func (q *Queue) signalEvents() {
	select {
	case q.evSignal <- struct{}{}:
	default:
	}
}

// pumpEvents forwards buffered events to the unbuffered events channel.
func (q *Queue) pumpEvents() {
	for {
		q.evMu.Lock()
		batch := q.evBuf
		q.evBuf = nil
		closing := q.evClosing
		q.evMu.Unlock()

		for _, ev := range batch {
			q.events <- ev
		}

		if len(batch) == 0 {
			if closing {
				close(q.events)
				return
			}
			<-q.evSignal
		}
	}
}

type queueItem struct {
	job     Job
	seq     uint64
	readyAt time.Time
}

// readyHeap orders eligible jobs by priority, then by insertion sequence.
type readyHeap []*queueItem

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}

func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *readyHeap) Push(x any) { *h = append(*h, x.(*queueItem)) }

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// delayedHeap orders held jobs by the time they become eligible.
type delayedHeap []*queueItem

func (h delayedHeap) Len() int { return len(h) }

func (h delayedHeap) Less(i, j int) bool {
	if h[i].readyAt.Equal(h[j].readyAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].readyAt.Before(h[j].readyAt)
}

func (h delayedHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *delayedHeap) Push(x any) { *h = append(*h, x.(*queueItem)) }

func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
