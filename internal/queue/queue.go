package queue

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Queue is a bounded-concurrency task scheduler. At most maxRunning tasks
// run at any instant; an optional rate limiter additionally caps task starts
// per second. The zero value is not usable, construct with [New].
type Queue struct {
	sem     chan struct{}
	limiter *rate.Limiter

	wg sync.WaitGroup

	mu       sync.Mutex
	firstErr error
}

// New creates a Queue running at most maxRunning tasks concurrently. When
// perSecond is greater than zero, task starts are additionally paced at that
// rate with a burst of one.
func New(maxRunning int, perSecond float64) *Queue {
	if maxRunning <= 0 {
		maxRunning = 1
	}
	q := &Queue{sem: make(chan struct{}, maxRunning)}
	if perSecond > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return q
}

func (q *Queue) acquire(ctx context.Context) error {
	select {
	case q.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			<-q.sem
			return err
		}
	}
	return nil
}

func (q *Queue) release() { <-q.sem }

func (q *Queue) record(err error) {
	if err == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.firstErr == nil {
		q.firstErr = err
	}
}

// Add enqueues a task and returns immediately. The task runs as soon as a
// slot is free; its error, if any, is surfaced by [Queue.WaitUntilFinished].
func (q *Queue) Add(ctx context.Context, task func() error) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := q.acquire(ctx); err != nil {
			q.record(err)
			return
		}
		defer q.release()
		q.record(task())
	}()
}

// AddAndWait enqueues a task and blocks until it completes, returning its
// error. The task's slot is held for at least minDuration of wall-clock
// time, so a queue of N slots with a padding of D approximates N/D requests
// per second.
func (q *Queue) AddAndWait(ctx context.Context, minDuration time.Duration, task func() error) error {
	q.wg.Add(1)
	defer q.wg.Done()

	if err := q.acquire(ctx); err != nil {
		return err
	}
	defer q.release()

	started := time.Now()
	err := task()
	if pad := minDuration - time.Since(started); pad > 0 {
		select {
		case <-time.After(pad):
		case <-ctx.Done():
		}
	}
	return err
}

// WaitUntilFinished blocks until every task added so far has completed and
// returns the first task error observed. A failing task never cancels its
// in-flight peers.
func (q *Queue) WaitUntilFinished() error {
	q.wg.Wait()
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.firstErr
}
