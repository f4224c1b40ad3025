package laneq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shreyanshjain05/sparkthon/internal/observability"
)

// Task represents an asynchronous operation to be executed
type Task func(ctx context.Context) (interface{}, error)

// taskRecord tracks a task's execution state
type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
	result     chan taskResult
}

type taskResult struct {
	value interface{}
	err   error
}

// laneState manages execution state for a single lane
type laneState struct {
	concurrency int
	queue       []*taskRecord
	running     int
	mu          sync.Mutex
}

// Queue serializes tasks per lane. Each conversation gets its own lane with
// concurrency 1, so turns for one conversation run strictly in order while
// different conversations proceed in parallel.
type Queue struct {
	lanes     map[string]*laneState
	taskIDSeq int
	mu        sync.RWMutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a new lane queue.
func New() *Queue {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		lanes:  make(map[string]*laneState),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enqueue adds a task to the lane and blocks until it completes.
func (q *Queue) Enqueue(ctx context.Context, lane string, task Task) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	q.ensureLane(lane)

	q.mu.Lock()
	q.taskIDSeq++
	taskID := fmt.Sprintf("%s-%d", lane, q.taskIDSeq)
	q.mu.Unlock()

	record := &taskRecord{
		id:         taskID,
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		result:     make(chan taskResult, 1),
	}

	ls := q.lane(lane)
	ls.mu.Lock()
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	log.Debug().Str("lane", lane).Str("taskId", taskID).Int("queueSize", queueSize).Msg("Task enqueued")
	observability.SetQueueSize(lane, queueSize)

	go q.processLane(lane)

	result := <-record.result
	return result.value, result.err
}

func (q *Queue) ensureLane(lane string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.lanes[lane]; !exists {
		q.lanes[lane] = &laneState{
			concurrency: 1,
			queue:       make([]*taskRecord, 0),
		}
		log.Debug().Str("lane", lane).Msg("Lane initialized")
	}
}

func (q *Queue) lane(lane string) *laneState {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.lanes[lane]
}

// processLane starts queued tasks while the lane has capacity.
func (q *Queue) processLane(lane string) {
	ls := q.lane(lane)
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for ls.running < ls.concurrency && len(ls.queue) > 0 {
		record := ls.queue[0]
		ls.queue = ls.queue[1:]
		ls.running++

		q.wg.Add(1)
		go q.executeTask(lane, record)
	}
}

func (q *Queue) executeTask(lane string, record *taskRecord) {
	defer q.wg.Done()

	runCtx, cancel := context.WithCancel(record.ctx)
	stopCancel := context.AfterFunc(q.ctx, cancel)
	defer func() {
		stopCancel()
		cancel()
	}()

	startTime := time.Now()
	value, err := record.task(runCtx)
	duration := time.Since(startTime)

	ls := q.lane(lane)
	ls.mu.Lock()
	ls.running--
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	record.result <- taskResult{value: value, err: err}
	close(record.result)

	if err != nil {
		log.Debug().Str("lane", lane).Str("taskId", record.id).Dur("duration", duration).Err(err).Msg("Task failed")
	} else {
		log.Debug().Str("lane", lane).Str("taskId", record.id).Dur("duration", duration).Msg("Task completed")
	}

	observability.SetQueueSize(lane, queueSize)
	observability.RecordQueueCompletion(lane, err == nil)

	go q.processLane(lane)
}

// QueueSize returns the number of queued tasks for a lane.
func (q *Queue) QueueSize(lane string) int {
	q.mu.RLock()
	ls, exists := q.lanes[lane]
	q.mu.RUnlock()
	if !exists {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.queue)
}

// RunningCount returns the number of currently executing tasks for a lane.
func (q *Queue) RunningCount(lane string) int {
	q.mu.RLock()
	ls, exists := q.lanes[lane]
	q.mu.RUnlock()
	if !exists {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.running
}

// WaitForActive waits for all running tasks to finish, up to the timeout.
// Used during graceful shutdown to drain in-flight turns.
func (q *Queue) WaitForActive(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		allDrained := true

		q.mu.RLock()
		for _, ls := range q.lanes {
			ls.mu.Lock()
			if ls.running > 0 || len(ls.queue) > 0 {
				allDrained = false
			}
			ls.mu.Unlock()
		}
		q.mu.RUnlock()

		if allDrained {
			return true
		}
		if time.Now().After(deadline) {
			log.Warn().Dur("timeout", timeout).Msg("Timeout waiting for active tasks")
			return false
		}

		<-ticker.C
	}
}

// Close cancels outstanding task contexts and waits for running tasks.
func (q *Queue) Close() error {
	q.cancel()
	q.wg.Wait()
	return nil
}
