package models

import "time"

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusPartial means the CRM writeback job terminated Failed or
	// Aborted but some rows went through; the failed-results payload is kept
	// for remediation.
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// MigrationRun is one end-to-end CRM-to-EHR migration.
type MigrationRun struct {
	ID                string     `json:"id" db:"id"`
	Status            RunStatus  `json:"status" db:"status"`
	AccountsFetched   *int64     `json:"accounts_fetched" db:"accounts_fetched"`
	ContactsFetched   *int64     `json:"contacts_fetched" db:"contacts_fetched"`
	PatientsMatched   *int64     `json:"patients_matched" db:"patients_matched"`
	PatientsSubmitted *int64     `json:"patients_submitted" db:"patients_submitted"`
	ErrorMessage      *string    `json:"error_message" db:"error_message"`
	FailedRecords     *string    `json:"-" db:"failed_records"` // raw failed-results CSV
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
	RunStartedAt      *time.Time `json:"run_started_at" db:"run_started_at"`
	RunCompletedAt    *time.Time `json:"run_completed_at" db:"run_completed_at"`
}
