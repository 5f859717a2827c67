package response

import "time"

type HealthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

// ProgressResponse mirrors entity.Progress for the live run.
type ProgressResponse struct {
	RunID   string    `json:"run_id,omitempty"`
	BatchID string    `json:"batch_id,omitempty"`
	State   string    `json:"state"`
	Done    int       `json:"done"`
	Total   int       `json:"total"`
	OK      int       `json:"ok"`
	NG      int       `json:"ng"`
	Percent float64   `json:"percent"`
	At      time.Time `json:"at"`
}

type RecordResponse struct {
	BatchID   string            `json:"batch_id"`
	Key       string            `json:"key"`
	Kind      string            `json:"kind"`
	Version   int               `json:"version"`
	Fields    map[string]string `json:"fields"`
	FetchedAt time.Time         `json:"fetched_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
