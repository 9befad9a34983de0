package temporal

import (
	"time"

	"github.com/chartsync/chartsync-api/internal/models"
)

// TaskQueueName is the Temporal task queue used for migration run workflows.
const TaskQueueName = "CHARTSYNC_MIGRATION"

// RunWorkflowIDPrefix is the prefix used for migration run workflow IDs.
const RunWorkflowIDPrefix = "chartsync-run-"

// DefaultActivityTimeout bounds a single activity. The fetch and writeback
// activities already carry their own bulk-job deadline below this.
const DefaultActivityTimeout = 30 * time.Minute

// RunParams defines the input for migration run workflows.
type RunParams struct {
	RunID string
}

// FetchResult carries the raw records of one bulk query, as field-value maps
// so they survive the activity serialization boundary.
type FetchResult struct {
	Records []map[string]string
}

// WritebackResult holds the outcome of the CRM writeback upsert.
type WritebackResult struct {
	Status    models.RunStatus
	FailedCSV string
}
