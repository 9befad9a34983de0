package salesforce

// JobState is the remote-side lifecycle state of a bulk job.
type JobState string

const (
	JobStateOpen           JobState = "Open"
	JobStateUploadComplete JobState = "UploadComplete"
	JobStateInProgress     JobState = "InProgress"
	JobStateComplete       JobState = "JobComplete"
	JobStateFailed         JobState = "Failed"
	JobStateAborted        JobState = "Aborted"
)

// Terminal reports whether the job has resolved and polling should stop.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateComplete, JobStateFailed, JobStateAborted:
		return true
	}
	return false
}

// Operation is the kind of work a bulk job performs.
type Operation string

const (
	OpQuery  Operation = "query"
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpUpsert Operation = "upsert"
	OpDelete Operation = "delete"
)

type createIngestJobRequest struct {
	Object              string `json:"object"`
	ContentType         string `json:"contentType"`
	Operation           string `json:"operation"`
	LineEnding          string `json:"lineEnding"`
	ExternalIDFieldName string `json:"externalIdFieldName"`
}

type createQueryJobRequest struct {
	Operation string `json:"operation"`
	Query     string `json:"query"`
}

type jobStatusResponse struct {
	ID    string   `json:"id"`
	State JobState `json:"state"`
}

type setJobStateRequest struct {
	State JobState `json:"state"`
}

// IngestResult is what a write job hands back: the records the service
// persisted (now carrying remote-assigned ids) plus, when the job terminated
// Failed or Aborted, the raw failed-results CSV for remediation. Partial
// success is common in bulk upserts, so a failed write job is surfaced here
// rather than raised.
type IngestResult struct {
	JobID     string
	State     JobState
	Records   []Record
	FailedCSV string
}
