package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	tc "go.temporal.io/sdk/client"

	"github.com/chartsync/chartsync-api/internal/repository"
	"github.com/chartsync/chartsync-api/internal/temporal"
	"github.com/chartsync/chartsync-api/internal/temporal/workflows"
)

// RunHandler exposes the migration run lifecycle: kick off a run, inspect its
// progress, and download the failed-records CSV of a partial run.
type RunHandler struct {
	repo           repository.RunRepository
	temporalClient tc.Client
	logger         zerolog.Logger
}

func NewRunHandler(repo repository.RunRepository, temporalClient tc.Client, logger zerolog.Logger) *RunHandler {
	return &RunHandler{
		repo:           repo,
		temporalClient: temporalClient,
		logger:         logger.With().Str("handler", "run").Logger(),
	}
}

func (h *RunHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.repo.Create(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create migration run")
		http.Error(w, "Failed to create migration run", http.StatusInternalServerError)
		return
	}

	opts := tc.StartWorkflowOptions{
		ID:        temporal.RunWorkflowIDPrefix + run.ID,
		TaskQueue: temporal.TaskQueueName,
	}
	_, err = h.temporalClient.ExecuteWorkflow(r.Context(), opts, workflows.MigrationWorkflow, temporal.RunParams{RunID: run.ID})
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to start migration workflow")
		http.Error(w, "Failed to start migration workflow", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, run)
}

func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(mux.Vars(r)["runID"])
	if runID == "" {
		http.Error(w, "Run ID is required", http.StatusBadRequest)
		return
	}

	run, err := h.repo.Get(r.Context(), runID)
	if err != nil {
		http.Error(w, "Failed to get migration run: "+err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	runs, err := h.repo.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list migration runs")
		http.Error(w, "Failed to list migration runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// FailedRecords serves the writeback failure CSV of a partial run verbatim, so
// the payload can be fixed up and re-uploaded as-is.
func (h *RunHandler) FailedRecords(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(mux.Vars(r)["runID"])
	if runID == "" {
		http.Error(w, "Run ID is required", http.StatusBadRequest)
		return
	}

	failed, err := h.repo.FailedRecords(r.Context(), runID)
	if err != nil {
		http.Error(w, "Failed to get failed records: "+err.Error(), http.StatusNotFound)
		return
	}
	if failed == "" {
		http.Error(w, "Run has no failed records", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="failed-records-`+runID+`.csv"`)
	w.Write([]byte(failed))
}
