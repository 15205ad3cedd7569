package dto

import "time"

type LocationRequest struct {
	Lat       float64    `json:"lat"`
	Lon       float64    `json:"lon"`
	Timestamp *time.Time `json:"timestamp"`
}

type ProgressResponse struct {
	Lat             float64   `json:"lat"`
	Lon             float64   `json:"lon"`
	PercentComplete float64   `json:"percent_complete"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ExceptionRequest struct {
	Type    string `json:"type"`
	Details string `json:"details"`
}

type ETAResponse struct {
	Available bool       `json:"available"`
	Minutes   float64    `json:"minutes,omitempty"`
	ArrivalAt *time.Time `json:"arrival_at,omitempty"`
}

type BatchRequest struct {
	OrderIDs []string `json:"order_ids"`
}

type BatchResponse struct {
	Outcome     string                `json:"outcome"`
	BatchID     string                `json:"batch_id,omitempty"`
	DriverID    string                `json:"driver_id,omitempty"`
	Assignments []*AssignmentResponse `json:"assignments,omitempty"`
}
