// Package scheduler provides the deferred job queue used by the reactive
// runtime for pre- and post-flush work.
//
// Reactive triggers run synchronous effects inline, but watches configured
// for pre or post flush hand a Job to a queue instead. The host drives the
// queue by calling Flush at the point in its loop where deferred work should
// happen (after an event handler, at the end of a tick, between render
// phases). Jobs are deduplicated by ID within a flush cycle, so a watch that
// is triggered many times between flushes still runs once.
//
// FlushQueue is the standard implementation. Hosts with their own scheduling
// needs can satisfy the Queue interface instead and hand it to the runtime.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
)

// ErrFlushDepthExceeded is reported when a flush cannot settle: either one
// job keeps re-enqueueing itself past the cycle limit, or whole pre/post
// cycles keep producing new jobs. Both almost always mean watches are
// re-triggering each other. The runaway job (or, for cycle overflow, every
// remaining job) is dropped to break the livelock; the error goes to the
// queue's error handler.
var ErrFlushDepthExceeded = errors.New("scheduler: flush depth exceeded, likely an update loop")

// Job is a unit of deferred work produced by the reactive runtime.
//
// JobID must be stable for the job's lifetime; the queue uses it both for
// deduplication and to order a cycle's jobs (lower IDs run first, which
// makes parent-before-child ordering fall out of creation order).
type Job interface {
	// JobID returns the stable identity used for dedup and ordering.
	JobID() uint64

	// AllowRecurse reports whether the job may re-enqueue itself while it
	// is the job currently being flushed.
	AllowRecurse() bool

	// Invoke runs the job.
	Invoke()
}

// Queue accepts deferred jobs. Implementations must deduplicate by JobID
// within a flush cycle and run pre jobs before post jobs.
type Queue interface {
	// QueuePre enqueues a job for the pre stage of the next flush.
	QueuePre(Job)

	// QueuePost enqueues a job for the post stage of the next flush.
	QueuePost(Job)

	// Flush drains both stages until no jobs remain.
	Flush()
}

// Option configures a FlushQueue.
type Option func(*FlushQueue)

// WithMaxCycles overrides the flush depth limit (default 100). It bounds
// both the number of pre/post cycles in one flush and the number of times
// any single job may run within it.
func WithMaxCycles(n int) Option {
	return func(q *FlushQueue) {
		if n > 0 {
			q.maxCycles = n
		}
	}
}

// WithErrorHandler sets the function that receives job panics (recovered
// and converted to errors) and ErrFlushDepthExceeded. The default handler
// discards them; the reactive runtime installs its own.
func WithErrorHandler(h func(error)) Option {
	return func(q *FlushQueue) {
		if h != nil {
			q.onError = h
		}
	}
}

// FlushQueue is the standard Queue: two staged job lists drained in ID
// order, with per-cycle deduplication and panic isolation per job.
//
// A FlushQueue is not safe for concurrent use; it belongs to the same
// goroutine as the runtime that feeds it.
type FlushQueue struct {
	pre  []Job
	post []Job

	// indices of the jobs currently being invoked, used for the
	// AllowRecurse dedup window while flushing.
	preIndex  int
	postIndex int

	flushing  bool
	stage     flushStage
	maxCycles int
	onError   func(error)

	// counts tracks per-job invocations within one flush; a job exceeding
	// maxCycles invocations is dropped instead of run.
	counts map[uint64]int
}

type flushStage uint8

const (
	stageIdle flushStage = iota
	stagePre
	stagePost
)

// New creates a FlushQueue.
func New(opts ...Option) *FlushQueue {
	q := &FlushQueue{
		maxCycles: 100,
		onError:   func(error) {},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// QueuePre enqueues a job for the pre stage. If the same JobID is already
// waiting it is skipped, except that the job currently being invoked may
// re-enqueue itself when it allows recursion.
func (q *FlushQueue) QueuePre(j Job) {
	if j == nil {
		return
	}
	start := 0
	if q.flushing && q.stage == stagePre {
		start = q.preIndex
		if j.AllowRecurse() {
			start = q.preIndex + 1
		}
	}
	if containsJob(q.pre[minInt(start, len(q.pre)):], j.JobID()) {
		return
	}
	q.pre = append(q.pre, j)
}

// QueuePost enqueues a job for the post stage with the same dedup rules
// as QueuePre.
func (q *FlushQueue) QueuePost(j Job) {
	if j == nil {
		return
	}
	start := 0
	if q.flushing && q.stage == stagePost {
		start = q.postIndex
		if j.AllowRecurse() {
			start = q.postIndex + 1
		}
	}
	if containsJob(q.post[minInt(start, len(q.post)):], j.JobID()) {
		return
	}
	q.post = append(q.post, j)
}

// HasPending reports whether any job is waiting in either stage.
func (q *FlushQueue) HasPending() bool {
	return len(q.pre) > 0 || len(q.post) > 0
}

// PendingPre returns the number of jobs waiting in the pre stage.
func (q *FlushQueue) PendingPre() int { return len(q.pre) }

// PendingPost returns the number of jobs waiting in the post stage.
func (q *FlushQueue) PendingPost() int { return len(q.post) }

// Flush drains the queue: pre jobs, then post jobs, repeating while jobs
// keep arriving, up to the cycle limit. Nested Flush calls are no-ops so
// a job may safely call Flush on its own queue.
func (q *FlushQueue) Flush() {
	if q.flushing {
		return
	}
	q.flushing = true
	defer func() {
		q.flushing = false
		q.stage = stageIdle
		q.counts = nil
	}()

	cycles := 0
	for len(q.pre) > 0 || len(q.post) > 0 {
		cycles++
		if cycles > q.maxCycles {
			q.pre = q.pre[:0]
			q.post = q.post[:0]
			q.onError(ErrFlushDepthExceeded)
			return
		}
		q.drainPre()
		q.drainPost()
	}
}

func (q *FlushQueue) drainPre() {
	sortJobs(q.pre)
	q.stage = stagePre
	for q.preIndex = 0; q.preIndex < len(q.pre); q.preIndex++ {
		if j := q.pre[q.preIndex]; q.admit(j) {
			q.runJob(j)
		}
	}
	q.pre = q.pre[:0]
	q.preIndex = 0
	q.stage = stageIdle
}

func (q *FlushQueue) drainPost() {
	sortJobs(q.post)
	q.stage = stagePost
	for q.postIndex = 0; q.postIndex < len(q.post); q.postIndex++ {
		if j := q.post[q.postIndex]; q.admit(j) {
			q.runJob(j)
		}
	}
	q.post = q.post[:0]
	q.postIndex = 0
	q.stage = stageIdle
}

// admit counts the job against the per-flush depth limit. A runaway job
// that keeps re-enqueueing itself is reported and dropped; everything
// else in the flush still runs.
func (q *FlushQueue) admit(j Job) bool {
	if q.counts == nil {
		q.counts = make(map[uint64]int)
	}
	id := j.JobID()
	q.counts[id]++
	if q.counts[id] > q.maxCycles {
		q.onError(ErrFlushDepthExceeded)
		return false
	}
	return true
}

// runJob invokes one job, converting a panic into an error for the
// handler so one failing watcher cannot take down the flush.
func (q *FlushQueue) runJob(j Job) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				q.onError(err)
				return
			}
			q.onError(fmt.Errorf("scheduler: job panic: %v", r))
		}
	}()
	j.Invoke()
}

func sortJobs(jobs []Job) {
	sort.SliceStable(jobs, func(i, k int) bool {
		return jobs[i].JobID() < jobs[k].JobID()
	})
}

func containsJob(jobs []Job, id uint64) bool {
	for _, j := range jobs {
		if j.JobID() == id {
			return true
		}
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
