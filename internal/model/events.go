package model

import "time"

type EventType string

const (
	EventDiagnosticsCompleted EventType = "diagnostics.completed"
)

// GenerationClaim is the value stored under the per-student generation flag
type GenerationClaim struct {
	State     string    `json:"state"`
	RunID     string    `json:"runId"`
	ClaimedAt time.Time `json:"claimedAt"`
}

const GenerationStateGenerating = "generating"

// DiagnosticsCompletedEvent signals downstream report and study-plan generation
type DiagnosticsCompletedEvent struct {
	EventType   EventType `json:"eventType"`
	StudentID   string    `json:"studentId"`
	RunID       string    `json:"runId"`
	SessionIDs  []string  `json:"sessionIds"`
	CompletedAt time.Time `json:"completedAt"`
}
