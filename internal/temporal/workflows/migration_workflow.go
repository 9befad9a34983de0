package workflows

import (
	"fmt"
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/chartsync/chartsync-api/internal/models"
	"github.com/chartsync/chartsync-api/internal/temporal"
	"github.com/chartsync/chartsync-api/internal/temporal/activities"
)

// MigrationWorkflow orchestrates one migration run end to end: fetch both
// record sets concurrently, pair them, enter the merged patients into the EHR,
// then write the reconciled accounts back to the CRM. Activities run at most
// once: a re-run of a half-entered patient set would create duplicates in the
// EHR, so recovery is a new run, not a retry.
func MigrationWorkflow(ctx workflow.Context, params temporal.RunParams) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy:         &sdktemporal.RetryPolicy{MaximumAttempts: 1},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting migration workflow", "RunID", params.RunID)

	// The actual implementation is on the worker; this is just a proxy.
	var a *activities.Activities

	fail := func(reason string) error {
		err := workflow.ExecuteActivity(ctx, a.CompleteRunActivity,
			params.RunID, models.RunStatusFailed, reason, "", int64(0)).Get(ctx, nil)
		if err != nil {
			logger.Error("Failed to record run failure.", "error", err)
		}
		return nil
	}

	// Step 1: Mark the run as running.
	err := workflow.ExecuteActivity(ctx, a.StartRunActivity, params.RunID).Get(ctx, nil)
	if err != nil {
		logger.Error("Failed to mark run as running.", "error", err)
		return err
	}

	// Step 2: Fetch accounts and contacts concurrently. Both bulk queries are
	// independent, and each one spends most of its time waiting on the remote
	// job, so they run as parallel activities and join here.
	accountsFuture := workflow.ExecuteActivity(ctx, a.FetchAccountsActivity)
	contactsFuture := workflow.ExecuteActivity(ctx, a.FetchContactsActivity)

	var accounts temporal.FetchResult
	if err := accountsFuture.Get(ctx, &accounts); err != nil {
		logger.Error("Account fetch failed.", "error", err)
		return fail(fmt.Sprintf("fetching accounts: %v", err))
	}
	var contacts temporal.FetchResult
	if err := contactsFuture.Get(ctx, &contacts); err != nil {
		logger.Error("Contact fetch failed.", "error", err)
		return fail(fmt.Sprintf("fetching contacts: %v", err))
	}

	// Step 3: Pair the record sets into merged patients.
	var patients []models.MergedPatient
	err = workflow.ExecuteActivity(ctx, a.PairPatientsActivity, params.RunID, accounts, contacts).Get(ctx, &patients)
	if err != nil {
		logger.Error("Pairing failed.", "error", err)
		return fail(fmt.Sprintf("pairing records: %v", err))
	}

	// Step 4: Enter each patient into the EHR through the browser.
	var submitted int64
	err = workflow.ExecuteActivity(ctx, a.SubmitPatientsActivity, params.RunID, patients).Get(ctx, &submitted)
	if err != nil {
		logger.Error("EHR submission failed.", "error", err, "submitted", submitted)
		return fail(fmt.Sprintf("submitting patients to ehr: %v", err))
	}

	// Step 5: Write the reconciled accounts back to the CRM.
	var writeback temporal.WritebackResult
	err = workflow.ExecuteActivity(ctx, a.WritebackActivity, patients).Get(ctx, &writeback)
	if err != nil {
		logger.Error("CRM writeback failed.", "error", err)
		return fail(fmt.Sprintf("writing accounts back to crm: %v", err))
	}

	// Step 6: Record the final status.
	err = workflow.ExecuteActivity(ctx, a.CompleteRunActivity,
		params.RunID, writeback.Status, "", writeback.FailedCSV, submitted).Get(ctx, nil)
	if err != nil {
		logger.Error("Failed to record run completion.", "error", err)
		return err
	}

	logger.Info("Migration workflow completed.", "RunID", params.RunID, "Status", string(writeback.Status), "Submitted", submitted)
	return nil
}
