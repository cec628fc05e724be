package coordinator

import "github.com/oora/tellerloop/core/model"

// taskQueue is a two-tier FIFO. High priority tasks always drain before
// normal ones; within a tier order is strict arrival order. Not safe for
// concurrent use, the coordinator serializes access under its own mutex.
type taskQueue struct {
	high   []*model.DispatchTask
	normal []*model.DispatchTask
}

func newTaskQueue() *taskQueue { return &taskQueue{} }

func (q *taskQueue) push(t *model.DispatchTask) {
	if t.Priority == model.PriorityHigh {
		q.high = append(q.high, t)
		return
	}
	q.normal = append(q.normal, t)
}

// pop removes and returns the next task, high tier first.
func (q *taskQueue) pop() (*model.DispatchTask, bool) {
	if len(q.high) > 0 {
		t := q.high[0]
		q.high = q.high[1:]
		return t, true
	}
	if len(q.normal) > 0 {
		t := q.normal[0]
		q.normal = q.normal[1:]
		return t, true
	}
	return nil, false
}

func (q *taskQueue) len() int { return len(q.high) + len(q.normal) }

// snapshot returns the queued tasks in admission order.
func (q *taskQueue) snapshot() []model.DispatchTask {
	res := make([]model.DispatchTask, 0, q.len())
	for _, t := range q.high {
		res = append(res, *t)
	}
	for _, t := range q.normal {
		res = append(res, *t)
	}
	return res
}
