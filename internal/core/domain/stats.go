package domain

// QueueStats is a snapshot of queue accounting. Completed, Failed and
// DeadLetter are terminal except for dead-letter revival; the five counters
// together account for every job ever enqueued.
type QueueStats struct {
	Pending    int   `json:"pending"`
	Processing int   `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	DeadLetter int   `json:"dead_letter"`
}
