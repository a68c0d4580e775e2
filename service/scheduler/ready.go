package scheduler

import (
	"github.com/gammazero/deque"
	"github.com/viant/kcore/runtime/process"
)

// readyQueue keeps READY processes in priority-descending order, FIFO among
// equal priorities.
type readyQueue struct {
	items deque.Deque[*process.Process]
}

// push places p after every queued process whose priority is >= its own.
func (q *readyQueue) push(p *process.Process) {
	idx := q.items.RIndex(func(c *process.Process) bool { return c.Priority >= p.Priority })
	switch {
	case idx == q.items.Len()-1:
		q.items.PushBack(p)
	case idx < 0:
		q.items.PushFront(p)
	default:
		q.items.Insert(idx+1, p)
	}
}

func (q *readyQueue) pop() *process.Process {
	if q.items.Len() == 0 {
		return nil
	}
	return q.items.PopFront()
}

func (q *readyQueue) peek() *process.Process {
	if q.items.Len() == 0 {
		return nil
	}
	return q.items.Front()
}

func (q *readyQueue) remove(p *process.Process) bool {
	idx := q.items.Index(func(c *process.Process) bool { return c == p })
	if idx < 0 {
		return false
	}
	q.items.Remove(idx)
	return true
}

func (q *readyQueue) len() int {
	return q.items.Len()
}

func (q *readyQueue) pids() []process.PID {
	ret := make([]process.PID, 0, q.items.Len())
	for i := 0; i < q.items.Len(); i++ {
		ret = append(ret, q.items.At(i).PID)
	}
	return ret
}
