package models

// MergedPatient is one reconciled patient: contact details from the account
// record, demographics from the matched contact record. Produced only by the
// pairing engine and consumed by the EHR submitter.
type MergedPatient struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	DOB       string `json:"dob"` // YYYY-MM-DD
	Gender    string `json:"gender"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`

	// AccountID links back to the CRM account the patient came from, so the
	// writeback upsert can carry the remote id forward.
	AccountID string `json:"account_id"`
}
