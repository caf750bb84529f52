package scheduler

import (
	"errors"
	"testing"
)

// testJob is a minimal Job for exercising the queue.
type testJob struct {
	id      uint64
	recurse bool
	fn      func()
}

func (j *testJob) JobID() uint64      { return j.id }
func (j *testJob) AllowRecurse() bool { return j.recurse }
func (j *testJob) Invoke()            { j.fn() }

func TestFlushRunsPreThenPost(t *testing.T) {
	q := New()
	var order []string

	q.QueuePost(&testJob{id: 1, fn: func() { order = append(order, "post") }})
	q.QueuePre(&testJob{id: 2, fn: func() { order = append(order, "pre") }})

	q.Flush()

	if len(order) != 2 || order[0] != "pre" || order[1] != "post" {
		t.Fatalf("expected [pre post], got %v", order)
	}
}

func TestFlushDedupesByID(t *testing.T) {
	q := New()
	runs := 0
	job := &testJob{id: 7, fn: func() { runs++ }}

	q.QueuePre(job)
	q.QueuePre(job)
	q.QueuePre(job)
	q.Flush()

	if runs != 1 {
		t.Errorf("expected 1 run after dedup, got %d", runs)
	}
}

func TestFlushOrdersByJobID(t *testing.T) {
	q := New()
	var order []uint64
	record := func(id uint64) *testJob {
		return &testJob{id: id, fn: func() { order = append(order, id) }}
	}

	q.QueuePre(record(30))
	q.QueuePre(record(10))
	q.QueuePre(record(20))
	q.Flush()

	if len(order) != 3 || order[0] != 10 || order[1] != 20 || order[2] != 30 {
		t.Fatalf("expected ascending IDs, got %v", order)
	}
}

func TestJobEnqueuedDuringFlushRunsInSameFlush(t *testing.T) {
	q := New()
	var order []string

	second := &testJob{id: 2, fn: func() { order = append(order, "second") }}
	first := &testJob{id: 1, fn: func() {
		order = append(order, "first")
		q.QueuePre(second)
	}}

	q.QueuePre(first)
	q.Flush()

	if len(order) != 2 || order[1] != "second" {
		t.Fatalf("expected second job in same flush, got %v", order)
	}
	if q.HasPending() {
		t.Error("queue should be empty after flush")
	}
}

func TestRunningJobCannotReenqueueItselfWithoutRecurse(t *testing.T) {
	q := New()
	runs := 0
	var job *testJob
	job = &testJob{id: 5, fn: func() {
		runs++
		q.QueuePre(job)
	}}

	q.QueuePre(job)
	q.Flush()

	if runs != 1 {
		t.Errorf("non-recursive job should run once, ran %d times", runs)
	}
}

func TestRecursiveJobReenqueuesUntilQuiet(t *testing.T) {
	q := New()
	runs := 0
	var job *testJob
	job = &testJob{id: 5, recurse: true, fn: func() {
		runs++
		if runs < 3 {
			q.QueuePre(job)
		}
	}}

	q.QueuePre(job)
	q.Flush()

	if runs != 3 {
		t.Errorf("recursive job should run 3 times, ran %d", runs)
	}
}

func TestPreJobQueuedFromPostRunsNextCycle(t *testing.T) {
	q := New()
	var order []string

	pre := &testJob{id: 10, fn: func() { order = append(order, "pre") }}
	post := &testJob{id: 1, fn: func() {
		order = append(order, "post")
		q.QueuePre(pre)
	}}

	q.QueuePost(post)
	q.Flush()

	if len(order) != 2 || order[0] != "post" || order[1] != "pre" {
		t.Fatalf("expected [post pre], got %v", order)
	}
}

func TestFlushDepthLimit(t *testing.T) {
	var got error
	q := New(WithMaxCycles(5), WithErrorHandler(func(err error) { got = err }))

	runs := 0
	var job *testJob
	job = &testJob{id: 1, recurse: true, fn: func() {
		runs++
		q.QueuePre(job)
	}}

	q.QueuePre(job)
	q.Flush()

	if !errors.Is(got, ErrFlushDepthExceeded) {
		t.Fatalf("expected ErrFlushDepthExceeded, got %v", got)
	}
	if q.HasPending() {
		t.Error("queue should drop jobs after depth overflow")
	}
}

func TestJobPanicIsIsolated(t *testing.T) {
	var got error
	q := New(WithErrorHandler(func(err error) { got = err }))

	ran := false
	q.QueuePre(&testJob{id: 1, fn: func() { panic("boom") }})
	q.QueuePre(&testJob{id: 2, fn: func() { ran = true }})
	q.Flush()

	if got == nil {
		t.Fatal("expected panic to reach error handler")
	}
	if !ran {
		t.Error("job after panicking job should still run")
	}
}

func TestNestedFlushIsNoop(t *testing.T) {
	q := New()
	runs := 0
	q.QueuePre(&testJob{id: 1, fn: func() {
		runs++
		q.Flush() // must not recurse
	}})
	q.Flush()

	if runs != 1 {
		t.Errorf("expected 1 run, got %d", runs)
	}
}
