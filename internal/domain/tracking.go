package domain

import "time"

// TrackingEvent is an immutable location/timestamp record tied to an
// assignment. Events are append-only and never mutated after creation.
type TrackingEvent struct {
	ID           string
	AssignmentID string
	Position     Coordinates
	RecordedAt   time.Time
	CreatedAt    time.Time
}

type ExceptionType string

const (
	ExceptionStalled       ExceptionType = "stalled"
	ExceptionOffRoute      ExceptionType = "off_route"
	ExceptionMissedWindow  ExceptionType = "missed_window"
	ExceptionFailedHandoff ExceptionType = "failed_handoff"
	ExceptionDelay         ExceptionType = "delay"
	ExceptionOther         ExceptionType = "other"
)

func (t ExceptionType) IsValid() bool {
	switch t {
	case ExceptionStalled, ExceptionOffRoute, ExceptionMissedWindow,
		ExceptionFailedHandoff, ExceptionDelay, ExceptionOther:
		return true
	default:
		return false
	}
}

// DeliveryException flags an assignment for operator attention. It never
// blocks or alters the assignment's state machine.
type DeliveryException struct {
	ID           string        `json:"id"`
	AssignmentID string        `json:"assignment_id"`
	Type         ExceptionType `json:"type"`
	Details      string        `json:"details"`
	DetectedAt   time.Time     `json:"detected_at"`
}
