package models

import "time"

// Report is a piece of user feedback about a prediction. Rows are append-only.
type Report struct {
	ID         int64     `json:"id" db:"id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	Text       string    `json:"text" db:"text"`
	ReportType string    `json:"report_type" db:"report_type"` // free-form, e.g. "flag", "not_hate"
}

// ReportRequest is the /report body
type ReportRequest struct {
	Text       *string `json:"text"`
	ReportType *string `json:"report_type"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse acknowledges a write
type StatusResponse struct {
	Status string `json:"status"`
}
