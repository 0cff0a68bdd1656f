package engine

import "github.com/roach88/upbb/internal/ir"

// reorderQueue restores plan order for records produced out of order by
// concurrent workers.
//
// Push accepts records in any order and releases the longest contiguous
// run starting at the next expected index. Records released by Push are
// always in strictly ascending index order with no gaps.
//
// Not safe for concurrent use: only the collector goroutine touches it.
type reorderQueue struct {
	next    int64
	pending map[int64]ir.EvaluationRecord
}

// newReorderQueue creates a queue expecting index 0 first.
func newReorderQueue() *reorderQueue {
	return &reorderQueue{
		pending: make(map[int64]ir.EvaluationRecord),
	}
}

// Push buffers rec and returns every record that is now ready, in order.
// A record whose index was already released is dropped.
func (q *reorderQueue) Push(rec ir.EvaluationRecord) []ir.EvaluationRecord {
	if rec.Index < q.next {
		return nil
	}
	q.pending[rec.Index] = rec

	var ready []ir.EvaluationRecord
	for {
		r, ok := q.pending[q.next]
		if !ok {
			break
		}
		delete(q.pending, q.next)
		ready = append(ready, r)
		q.next++
	}
	return ready
}

// Next returns the index the queue is waiting for.
func (q *reorderQueue) Next() int64 {
	return q.next
}

// Len returns the number of buffered records not yet released.
func (q *reorderQueue) Len() int {
	return len(q.pending)
}
