package entity

// Job is one unit of work: the target key and the URL to fetch for it.
// Jobs are immutable once enqueued.
type Job struct {
	Key string
	URL string
}

// WorkItem is what a worker dequeues. It is either a Job or a stop marker;
// use Job() to tell them apart.
type WorkItem struct {
	job  Job
	stop bool
}

// JobItem wraps a job for the queue.
func JobItem(j Job) WorkItem {
	return WorkItem{job: j}
}

// StopItem returns the marker that tells exactly one worker to exit.
func StopItem() WorkItem {
	return WorkItem{stop: true}
}

// Job returns the wrapped job, or false when the item is a stop marker.
func (w WorkItem) Job() (Job, bool) {
	if w.stop {
		return Job{}, false
	}
	return w.job, true
}
