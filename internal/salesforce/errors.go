package salesforce

import "github.com/pkg/errors"

var (
	// ErrSchemaMismatch means a CSV header disagrees with the declared fields
	// of the target Shape. Fatal for that payload.
	ErrSchemaMismatch = errors.New("csv header does not match declared shape fields")

	// ErrJobCreationFailed means the bulk API rejected the job creation
	// request outright. Never retried.
	ErrJobCreationFailed = errors.New("bulk job creation failed")

	// ErrUploadRejected means the batch upload did not come back with the
	// single accepted status the API promises.
	ErrUploadRejected = errors.New("bulk batch upload rejected")

	// ErrJobFailed means a query job reached Failed or Aborted. A failed
	// query has no partial results worth returning.
	ErrJobFailed = errors.New("bulk query job failed")

	// ErrJobTimedOut means a job did not reach a terminal state before the
	// configured deadline.
	ErrJobTimedOut = errors.New("bulk job timed out")

	// ErrUnexpectedResponseShape means an ingest result CSV is missing the
	// sf__Id column the normalizer repopulates Id from.
	ErrUnexpectedResponseShape = errors.New("bulk result csv has unexpected columns")
)
