package models

import "time"

// TaskState is the lifecycle state of a generation task. Transitions are
// monotonic: waiting may move to success or fail, terminal states never change.
type TaskState string

const (
	TaskStateWaiting TaskState = "waiting"
	TaskStateSuccess TaskState = "success"
	TaskStateFail    TaskState = "fail"
)

// Terminal reports whether no further transitions are allowed from s.
func (s TaskState) Terminal() bool {
	return s == TaskStateSuccess || s == TaskStateFail
}

// Task is one mini-app generation request, keyed by the provider-issued
// task id and tracked from submission through its terminal outcome.
type Task struct {
	ID           int64
	TaskID       string
	UserID       string
	TemplateName string
	Prompt       string
	ImageSize    string
	State        TaskState
	ResultURL    string
	Cost         int
	CreatedAt    time.Time
}

// Subscription mirrors the bot-owned subscriptions row. The mini-app only
// reads the remaining balance and increments generations_used.
type Subscription struct {
	ID               int64
	UserID           string
	GenerationsLimit int
	GenerationsUsed  int
	IsActive         bool
	EndDate          time.Time
}

// GenerationRecord is the append-only audit entry written once per billed
// generation.
type GenerationRecord struct {
	ID             int64
	UserID         string
	Prompt         string
	GenerationType string
	CreatedAt      time.Time
}
