package models

import "time"

type BatchStatus string

const (
	BatchRunning  BatchStatus = "running"
	BatchComplete BatchStatus = "complete"
	BatchFailed   BatchStatus = "failed"
)

// Batch is the history record of one dispatch call.
type Batch struct {
	ID          int64
	CreatedAt   time.Time
	CompletedAt *time.Time
	Command     string
	PathCount   int
	Workers     int
	Shell       bool
	Capture     bool
	Timeout     time.Duration
	Status      BatchStatus
	FailedCount int
}

// BatchTask is one stored task result within a batch, in dispatch order.
type BatchTask struct {
	ID          int64
	BatchID     int64
	SequenceNum int
	WorkDir     string
	PID         int
	PPID        int
	ExitCode    int
	Status      TaskStatus
	Message     string
	Output      string
}
