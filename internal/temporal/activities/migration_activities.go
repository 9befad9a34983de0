package activities

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/docker/docker/client"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/chartsync/chartsync-api/internal/ehr"
	"github.com/chartsync/chartsync-api/internal/models"
	"github.com/chartsync/chartsync-api/internal/notification"
	"github.com/chartsync/chartsync-api/internal/pairing"
	"github.com/chartsync/chartsync-api/internal/repository"
	"github.com/chartsync/chartsync-api/internal/salesforce"
	"github.com/chartsync/chartsync-api/internal/temporal"
)

type Activities struct {
	RunRepo       repository.RunRepository
	Notifications notification.Service
	DockerClient  *client.Client
	HTTPClient    *http.Client
	Salesforce    salesforce.Credentials
	EHR           ehr.CharmConfig
	BrowserImage  string
	BrowserPort   int
	PollInterval  time.Duration
	JobDeadline   time.Duration
	Logger        zerolog.Logger
}

// openSession dials the CRM for the scope of one activity. Sessions never
// outlive the activity that opened them.
func (a *Activities) openSession(ctx context.Context) (*salesforce.Session, error) {
	sess := salesforce.NewSession(a.HTTPClient, a.Salesforce, a.Logger,
		salesforce.WithPollInterval(a.PollInterval),
		salesforce.WithJobDeadline(a.JobDeadline))
	if err := sess.Login(ctx); err != nil {
		return nil, errors.Wrap(err, "logging into salesforce")
	}
	return sess, nil
}

func (a *Activities) StartRunActivity(ctx context.Context, runID string) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Marking migration run as running", "runID", runID)

	if err := a.RunRepo.MarkRunning(ctx, runID); err != nil {
		logger.Error("Failed to mark run as running", "error", err)
		return err
	}
	if err := a.Notifications.NotifyRunStarted(ctx, runID); err != nil {
		// The run proceeds either way; a lost notification is not fatal.
		logger.Warn("Failed to publish run-started notification", "error", err)
	}
	return nil
}

func (a *Activities) FetchAccountsActivity(ctx context.Context) (*temporal.FetchResult, error) {
	return a.fetchAll(ctx, salesforce.TempAccount)
}

func (a *Activities) FetchContactsActivity(ctx context.Context) (*temporal.FetchResult, error) {
	return a.fetchAll(ctx, salesforce.TempContact)
}

func (a *Activities) fetchAll(ctx context.Context, shape salesforce.Shape) (*temporal.FetchResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Fetching records through bulk query", "object", shape.ObjectName)

	sess, err := a.openSession(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	activity.RecordHeartbeat(ctx, "querying-"+shape.ObjectName)
	records, err := sess.QueryAll(ctx, shape)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", shape.ObjectName)
	}

	result := &temporal.FetchResult{Records: make([]map[string]string, len(records))}
	for i, rec := range records {
		result.Records[i] = rec.Values()
	}
	logger.Info("Bulk query finished", "object", shape.ObjectName, "count", len(records))
	return result, nil
}

// PairPatientsActivity reconciles the two fetched record sets into merged
// patients and persists the run's counters.
func (a *Activities) PairPatientsActivity(ctx context.Context, runID string, accounts, contacts temporal.FetchResult) ([]models.MergedPatient, error) {
	logger := activity.GetLogger(ctx)

	accountRecs, err := recordsFromValues(salesforce.TempAccount, accounts.Records)
	if err != nil {
		return nil, err
	}
	contactRecs, err := recordsFromValues(salesforce.TempContact, contacts.Records)
	if err != nil {
		return nil, err
	}

	patients := pairing.NewEngine(a.Logger).Merge(accountRecs, contactRecs)
	logger.Info("Paired accounts with contacts",
		"accounts", len(accountRecs), "contacts", len(contactRecs), "matched", len(patients))

	err = a.RunRepo.SetFetchCounts(ctx, runID, int64(len(accountRecs)), int64(len(contactRecs)), int64(len(patients)))
	if err != nil {
		logger.Error("Failed to persist fetch counts", "error", err)
		return nil, err
	}
	return patients, nil
}

func recordsFromValues(shape salesforce.Shape, values []map[string]string) ([]salesforce.Record, error) {
	records := make([]salesforce.Record, len(values))
	for i, v := range values {
		rec, err := salesforce.RecordFromValues(shape, v)
		if err != nil {
			return nil, err
		}
		records[i] = rec
	}
	return records, nil
}

// SubmitPatientsActivity drives the EHR web UI through a headless browser
// container, entering one patient at a time. The count of patients entered so
// far is persisted even when a later submission fails, since the EHR has no
// rollback.
func (a *Activities) SubmitPatientsActivity(ctx context.Context, runID string, patients []models.MergedPatient) (int64, error) {
	logger := activity.GetLogger(ctx)
	if len(patients) == 0 {
		return 0, a.RunRepo.SetSubmittedCount(ctx, runID, 0)
	}

	logger.Info("Starting browser container for EHR submission", "patients", len(patients))
	activity.RecordHeartbeat(ctx, "starting-browser")
	chrome, err := ehr.StartChrome(ctx, a.DockerClient, a.BrowserImage, a.BrowserPort, a.Logger)
	if err != nil {
		return 0, errors.Wrap(err, "starting browser container")
	}
	defer func() {
		// Teardown must survive activity cancellation.
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		chrome.Stop(stopCtx)
	}()

	charm, err := ehr.NewCharmClient(chrome.ControlURL(), a.EHR, a.Logger)
	if err != nil {
		return 0, errors.Wrap(err, "attaching to browser")
	}
	defer charm.Close()

	if err := charm.Login(ctx); err != nil {
		return 0, errors.Wrap(err, "logging into ehr")
	}

	submitted, err := a.submitAll(ctx, runID, charm, patients)
	if err != nil {
		return submitted, err
	}
	logger.Info("All patients submitted", "count", submitted)
	return submitted, nil
}

func (a *Activities) submitAll(ctx context.Context, runID string, submitter ehr.Submitter, patients []models.MergedPatient) (int64, error) {
	var submitted int64
	for _, patient := range patients {
		activity.RecordHeartbeat(ctx, fmt.Sprintf("submitting-%d-of-%d", submitted+1, len(patients)))
		if err := submitter.Submit(ctx, patient); err != nil {
			a.RunRepo.SetSubmittedCount(ctx, runID, submitted)
			return submitted, errors.Wrapf(err, "submitting patient %s %s", patient.FirstName, patient.LastName)
		}
		submitted++
	}
	return submitted, a.RunRepo.SetSubmittedCount(ctx, runID, submitted)
}

// WritebackActivity upserts the migrated patients back into the CRM so their
// account records reflect the reconciled contact data. A job that ends Failed
// or Aborted is a partial run, not a failed one: the failure CSV is carried
// back for remediation.
func (a *Activities) WritebackActivity(ctx context.Context, patients []models.MergedPatient) (*temporal.WritebackResult, error) {
	logger := activity.GetLogger(ctx)
	if len(patients) == 0 {
		return &temporal.WritebackResult{Status: models.RunStatusSucceeded}, nil
	}

	records := make([]salesforce.Record, 0, len(patients))
	for _, p := range patients {
		rec := salesforce.NewRecord(salesforce.TempAccount)
		rec.Set("Id", p.AccountID)
		rec.Set("Name", p.LastName+", "+p.FirstName)
		rec.Set("Phone", p.Phone)
		rec.Set("Email", p.Email)
		records = append(records, rec)
	}

	sess, err := a.openSession(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	activity.RecordHeartbeat(ctx, "upserting-accounts")
	result, err := sess.BulkUpsert(ctx, records)
	if err != nil {
		return nil, errors.Wrap(err, "writing accounts back to crm")
	}

	out := &temporal.WritebackResult{Status: models.RunStatusSucceeded}
	if result.State != salesforce.JobStateComplete {
		logger.Warn("Writeback job ended with failures",
			"jobID", result.JobID, "state", string(result.State), "persisted", len(result.Records))
		out.Status = models.RunStatusPartial
		out.FailedCSV = result.FailedCSV
	}
	return out, nil
}

func (a *Activities) CompleteRunActivity(ctx context.Context, runID string, status models.RunStatus, errorMessage, failedCSV string, submitted int64) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Completing migration run", "runID", runID, "status", string(status))

	if err := a.RunRepo.Complete(ctx, runID, status, errorMessage, failedCSV); err != nil {
		logger.Error("Failed to persist run completion", "error", err)
		return err
	}
	if err := a.Notifications.NotifyRunCompleted(ctx, runID, status, submitted, errorMessage); err != nil {
		logger.Warn("Failed to publish run-completed notification", "error", err)
	}
	return nil
}
