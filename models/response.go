package models

import "time"

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"` // "healthy" or "degraded"
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// RunStats summarises the scheduled visit cycles so far.
type RunStats struct {
	Started     int       `json:"started"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Interrupted int       `json:"interrupted"` // cut short by shutdown
	Skipped     int       `json:"skipped"`
	LastRunID   string    `json:"last_run_id,omitempty"`
	LastStart   time.Time `json:"last_start,omitzero"`
	LastEnd     time.Time `json:"last_end,omitzero"`

	// LastError is populated only when the most recent cycle failed.
	LastError *ErrorDetail `json:"last_error,omitempty"`
}

// StatusResponse is the response for GET /api/v1/status.
type StatusResponse struct {
	Ready   bool     `json:"ready"`
	Running bool     `json:"running"`
	Targets []string `json:"targets"`
	Stats   RunStats `json:"stats"`

	// Error is populated only when the request itself failed.
	Error *ErrorDetail `json:"error,omitempty"`
}

// CycleResult is the webhook payload for one finished visit cycle.
type CycleResult struct {
	Targets    []string     `json:"targets"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Elapsed    string       `json:"elapsed"`
	Error      *ErrorDetail `json:"error,omitempty"`
}

// ErrorResponse is the body of a rejected API request.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}
