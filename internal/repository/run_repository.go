package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/chartsync/chartsync-api/internal/models"
)

type RunRepository interface {
	Create(ctx context.Context) (models.MigrationRun, error)
	Get(ctx context.Context, runID string) (models.MigrationRun, error)
	List(ctx context.Context, limit, offset int) ([]models.MigrationRun, error)
	MarkRunning(ctx context.Context, runID string) error
	SetFetchCounts(ctx context.Context, runID string, accounts, contacts, matched int64) error
	SetSubmittedCount(ctx context.Context, runID string, submitted int64) error
	Complete(ctx context.Context, runID string, status models.RunStatus, errorMessage, failedRecords string) error
	FailedRecords(ctx context.Context, runID string) (string, error)
}

type runRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) RunRepository {
	return &runRepository{db: db}
}

const runColumns = `
	id, status, accounts_fetched, contacts_fetched, patients_matched,
	patients_submitted, error_message, failed_records, created_at, updated_at,
	run_started_at, run_completed_at`

func (r *runRepository) Create(ctx context.Context) (models.MigrationRun, error) {
	var run models.MigrationRun
	run.ID = uuid.NewString()
	run.Status = models.RunStatusPending
	query := `
		INSERT INTO migration_runs (id, status)
		VALUES ($1, $2)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, run.ID, run.Status).
		Scan(&run.CreatedAt, &run.UpdatedAt)
	return run, err
}

func (r *runRepository) Get(ctx context.Context, runID string) (models.MigrationRun, error) {
	query := `SELECT ` + runColumns + ` FROM migration_runs WHERE id = $1`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, errors.New("migration run not found")
		}
		return run, err
	}
	return run, nil
}

func (r *runRepository) List(ctx context.Context, limit, offset int) ([]models.MigrationRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM migration_runs
		ORDER BY created_at DESC
		LIMIT $1
		OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]models.MigrationRun, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *runRepository) MarkRunning(ctx context.Context, runID string) error {
	query := `
		UPDATE migration_runs
		SET status = $1, run_started_at = NOW(), updated_at = NOW(),
		    error_message = NULL, failed_records = NULL
		WHERE id = $2
	`
	_, err := r.db.ExecContext(ctx, query, models.RunStatusRunning, runID)
	return err
}

func (r *runRepository) SetFetchCounts(ctx context.Context, runID string, accounts, contacts, matched int64) error {
	query := `
		UPDATE migration_runs
		SET accounts_fetched = $1, contacts_fetched = $2, patients_matched = $3, updated_at = NOW()
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, accounts, contacts, matched, runID)
	return err
}

func (r *runRepository) SetSubmittedCount(ctx context.Context, runID string, submitted int64) error {
	query := `
		UPDATE migration_runs
		SET patients_submitted = $1, updated_at = NOW()
		WHERE id = $2
	`
	_, err := r.db.ExecContext(ctx, query, submitted, runID)
	return err
}

func (r *runRepository) Complete(ctx context.Context, runID string, status models.RunStatus, errorMessage, failedRecords string) error {
	query := `
		UPDATE migration_runs
		SET status = $1, run_completed_at = NOW(), updated_at = NOW(),
		    error_message = NULLIF($2, ''), failed_records = NULLIF($3, '')
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, status, errorMessage, failedRecords, runID)
	return err
}

func (r *runRepository) FailedRecords(ctx context.Context, runID string) (string, error) {
	var failed sql.NullString
	query := `SELECT failed_records FROM migration_runs WHERE id = $1`
	if err := r.db.QueryRowContext(ctx, query, runID).Scan(&failed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errors.New("migration run not found")
		}
		return "", err
	}
	return failed.String, nil
}

func scanRun(scanner interface {
	Scan(dest ...interface{}) error
}) (models.MigrationRun, error) {
	var (
		run           models.MigrationRun
		accounts      sql.NullInt64
		contacts      sql.NullInt64
		matched       sql.NullInt64
		submitted     sql.NullInt64
		errMsg        sql.NullString
		failedRecords sql.NullString
		startedAt     sql.NullTime
		completedAt   sql.NullTime
	)

	err := scanner.Scan(
		&run.ID,
		&run.Status,
		&accounts,
		&contacts,
		&matched,
		&submitted,
		&errMsg,
		&failedRecords,
		&run.CreatedAt,
		&run.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return run, err
	}

	if accounts.Valid {
		run.AccountsFetched = &accounts.Int64
	}
	if contacts.Valid {
		run.ContactsFetched = &contacts.Int64
	}
	if matched.Valid {
		run.PatientsMatched = &matched.Int64
	}
	if submitted.Valid {
		run.PatientsSubmitted = &submitted.Int64
	}
	if errMsg.Valid {
		run.ErrorMessage = &errMsg.String
	}
	if failedRecords.Valid {
		run.FailedRecords = &failedRecords.String
	}
	if startedAt.Valid {
		run.RunStartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		run.RunCompletedAt = &completedAt.Time
	}
	return run, nil
}
