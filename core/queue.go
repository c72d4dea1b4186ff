package core

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// taskQueue is a FIFO of tasks. It is not synchronized; the owning
// Scheduler guards it with its own mutex.
type taskQueue struct {
	tasks []*Task
}

func newTaskQueue() taskQueue {
	return taskQueue{tasks: make([]*Task, 0, defaultQueueCap)}
}

func (q *taskQueue) push(t *Task) {
	q.tasks = append(q.tasks, t)
}

func (q *taskQueue) pop() (*Task, bool) {
	if len(q.tasks) == 0 {
		return nil, false
	}

	t := q.tasks[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	q.maybeCompact()

	return t, true
}

func (q *taskQueue) len() int {
	return len(q.tasks)
}

// clear drops every queued task and returns how many were dropped.
func (q *taskQueue) clear() int {
	n := len(q.tasks)
	q.tasks = make([]*Task, 0, defaultQueueCap)
	return n
}

func (q *taskQueue) maybeCompact() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]*Task, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]*Task, n, newCap)
	copy(newSlice, q.tasks)
	q.tasks = newSlice
}
