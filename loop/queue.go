package loop

// Queue is a manually driven macrotask queue. Nothing runs until the owner calls
// RunOne or Flush, which makes it the deterministic scheduler for tests and for
// hosts that already own an event loop.
//
// A Queue is not safe for concurrent use.
type Queue struct {
	tasks []*task
}

type task struct {
	fn        func()
	cancelled bool
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Defer appends fn to the queue and returns a function that removes it again.
// Cancelling a task that already ran is a no-op.
func (q *Queue) Defer(fn func()) (cancel func()) {
	t := &task{fn: fn}
	q.tasks = append(q.tasks, t)
	return func() {
		t.cancelled = true
	}
}

// Len reports the number of tasks still waiting, cancelled ones excluded.
func (q *Queue) Len() int {
	n := 0
	for _, t := range q.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// RunOne runs the oldest pending task. It reports false when nothing was left.
func (q *Queue) RunOne() bool {
	for len(q.tasks) > 0 {
		t := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		if t.cancelled {
			continue
		}
		t.cancelled = true
		t.fn()
		return true
	}
	return false
}

// Flush runs tasks until the queue is empty, including tasks deferred while
// flushing, and returns how many ran.
func (q *Queue) Flush() int {
	ran := 0
	for q.RunOne() {
		ran++
	}
	return ran
}
