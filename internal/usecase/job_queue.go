package usecase

import (
	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/pkg/metrics"
)

// JobQueue is the FIFO backlog of one run. All jobs are enqueued at
// construction; stopSlots extra slots are reserved so Stop never blocks.
type JobQueue struct {
	items chan entity.WorkItem
	total int
}

func NewJobQueue(jobs []entity.Job, stopSlots int) *JobQueue {
	if stopSlots < 0 {
		stopSlots = 0
	}
	q := &JobQueue{
		items: make(chan entity.WorkItem, len(jobs)+stopSlots),
		total: len(jobs),
	}
	for _, j := range jobs {
		q.items <- entity.JobItem(j)
	}
	metrics.JobsInQueue.Set(float64(len(jobs)))
	return q
}

// Total is the number of jobs seeded, fixed for the life of the queue.
func (q *JobQueue) Total() int {
	return q.total
}

// Dequeue blocks until a job or a stop marker is available.
func (q *JobQueue) Dequeue() entity.WorkItem {
	item := <-q.items
	if _, ok := item.Job(); ok {
		metrics.JobsInQueue.Dec()
	}
	return item
}

// Stop enqueues n stop markers, one per worker. Calling it with more
// markers than stopSlots blocks until workers consume items.
func (q *JobQueue) Stop(n int) {
	for i := 0; i < n; i++ {
		q.items <- entity.StopItem()
	}
}

// Len reports queued items, stop markers included.
func (q *JobQueue) Len() int {
	return len(q.items)
}
