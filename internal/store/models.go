package store

import "time"

// RunRecord is the outcome of one finished run. Plans are not persisted,
// only what the requester asked and what they got back.
type RunRecord struct {
	ID         string
	Identity   string
	Request    string
	Status     string // succeeded, failed
	Report     string
	Error      string
	Steps      int
	StartedAt  time.Time
	FinishedAt time.Time
}
