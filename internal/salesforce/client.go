package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	defaultAPIVersion   = "49.0"
	defaultPollInterval = 2 * time.Second
	defaultJobDeadline  = 15 * time.Minute
)

// Credentials holds the connected-app secrets for the OAuth2 password grant.
type Credentials struct {
	LoginURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string // security token appended, per the bulk API's rules
	APIVersion   string
}

// Session is an authenticated connection to one Salesforce instance. The
// caller that opens the session owns it and closes it; every component that
// needs the connection receives the Session explicitly.
type Session struct {
	http         *http.Client
	logger       zerolog.Logger
	creds        Credentials
	instanceURL  string
	token        string
	pollInterval time.Duration
	jobDeadline  time.Duration
}

type SessionOpt func(*Session)

// WithPollInterval overrides the fixed delay between job status checks.
func WithPollInterval(d time.Duration) SessionOpt {
	return func(s *Session) { s.pollInterval = d }
}

// WithJobDeadline bounds how long a single job may stay non-terminal before
// polling gives up with ErrJobTimedOut.
func WithJobDeadline(d time.Duration) SessionOpt {
	return func(s *Session) { s.jobDeadline = d }
}

func NewSession(httpClient *http.Client, creds Credentials, logger zerolog.Logger, opts ...SessionOpt) *Session {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if creds.APIVersion == "" {
		creds.APIVersion = defaultAPIVersion
	}
	s := &Session{
		http:         httpClient,
		logger:       logger.With().Str("component", "salesforce").Logger(),
		creds:        creds,
		pollInterval: defaultPollInterval,
		jobDeadline:  defaultJobDeadline,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login performs the OAuth2 username-password flow and pins the instance URL.
// The token is fetched once per session and never refreshed mid-run.
func (s *Session) Login(ctx context.Context) error {
	params := url.Values{
		"grant_type":    {"password"},
		"client_id":     {s.creds.ClientID},
		"client_secret": {s.creds.ClientSecret},
		"username":      {s.creds.Username},
		"password":      {s.creds.Password},
	}
	tokenURL := strings.TrimSuffix(s.creds.LoginURL, "/") + "/services/oauth2/token?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, nil)
	if err != nil {
		return errors.Wrap(err, "building token request")
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "requesting access token")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		InstanceURL string `json:"instance_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return errors.Wrap(err, "decoding token response")
	}
	s.token = out.AccessToken
	s.instanceURL = out.InstanceURL
	s.logger.Info().Str("instance_url", s.instanceURL).Msg("authenticated against salesforce")
	return nil
}

// Close releases the session's connections. Idempotent.
func (s *Session) Close() {
	s.http.CloseIdleConnections()
}

// QueryAll fetches every record of the shape's object type through a bulk
// query job. A terminal Failed or Aborted state is fatal here: a failed query
// has no partial results worth returning.
func (s *Session) QueryAll(ctx context.Context, shape Shape) ([]Record, error) {
	soql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(shape.Fields, ", "), shape.ObjectName)
	var created jobStatusResponse
	err := s.postJSON(ctx, s.jobURL("query", ""), createQueryJobRequest{
		Operation: string(OpQuery),
		Query:     soql,
	}, &created)
	if err != nil {
		return nil, errors.Wrapf(ErrJobCreationFailed, "query job for %s: %v", shape.ObjectName, err)
	}
	s.logger.Info().Str("job_id", created.ID).Str("object", shape.ObjectName).Msg("bulk query job created")

	state, err := s.waitForJob(ctx, s.jobURL("query", created.ID))
	if err != nil {
		return nil, err
	}
	if state != JobStateComplete {
		return nil, errors.Wrapf(ErrJobFailed, "job %s ended in state %s", created.ID, state)
	}

	raw, err := s.getText(ctx, s.jobURL("query", created.ID)+"/results")
	if err != nil {
		return nil, errors.Wrap(err, "fetching query results")
	}
	return DecodeRecords(shape, raw)
}

// BulkUpsert pushes the record list through an ingest job and returns the
// persisted records with their remote-assigned ids. All records must share
// one shape. A Failed or Aborted job is not an error: whatever succeeded is
// returned alongside the failed-results payload.
func (s *Session) BulkUpsert(ctx context.Context, records []Record) (*IngestResult, error) {
	payload, err := EncodeRecords(records)
	if err != nil {
		return nil, err
	}
	return s.runIngestJob(ctx, records[0].shape, OpUpsert, payload, true)
}

// BulkDelete removes the given records remotely. Only the Id column is
// uploaded; nothing is decoded from the results since the rows are gone.
func (s *Session) BulkDelete(ctx context.Context, records []Record) (*IngestResult, error) {
	if len(records) == 0 {
		return nil, errors.New("no records to delete")
	}
	lines := make([]string, 0, len(records)+1)
	lines = append(lines, "Id")
	for _, rec := range records {
		lines = append(lines, encodeField(rec.ID()))
	}
	return s.runIngestJob(ctx, records[0].shape, OpDelete, strings.Join(lines, "\n"), false)
}

func (s *Session) runIngestJob(ctx context.Context, shape Shape, op Operation, payload string, decodeResults bool) (*IngestResult, error) {
	jobID, err := s.createIngestJob(ctx, shape, op)
	if err != nil {
		return nil, err
	}
	if err := s.uploadBatch(ctx, jobID, payload); err != nil {
		return nil, err
	}
	if err := s.closeJob(ctx, jobID); err != nil {
		return nil, err
	}

	state, err := s.waitForJob(ctx, s.jobURL("ingest", jobID))
	if err != nil {
		return nil, err
	}

	result := &IngestResult{JobID: jobID, State: state}
	if state != JobStateComplete {
		// Partial success is expected in bulk ingest; surface the failures
		// and keep going.
		s.logger.Warn().Str("job_id", jobID).Str("state", string(state)).Msg("ingest job did not complete cleanly")
		if result.FailedCSV, err = s.FailedResults(ctx, jobID); err != nil {
			return nil, err
		}
	}
	if !decodeResults {
		return result, nil
	}

	raw, err := s.getText(ctx, s.jobURL("ingest", jobID)+"/successfulResults")
	if err != nil {
		return nil, errors.Wrap(err, "fetching successful results")
	}
	canonical, err := NormalizeResults(raw)
	if err != nil {
		return nil, err
	}
	if result.Records, err = DecodeRecords(shape, canonical); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Session) createIngestJob(ctx context.Context, shape Shape, op Operation) (string, error) {
	var created jobStatusResponse
	err := s.postJSON(ctx, s.jobURL("ingest", ""), createIngestJobRequest{
		Object:              shape.ObjectName,
		ContentType:         "CSV",
		Operation:           string(op),
		LineEnding:          "LF",
		ExternalIDFieldName: "Id",
	}, &created)
	if err != nil {
		return "", errors.Wrapf(ErrJobCreationFailed, "%s job for %s: %v", op, shape.ObjectName, err)
	}
	s.logger.Info().Str("job_id", created.ID).Str("operation", string(op)).Str("object", shape.ObjectName).Msg("ingest job created")
	return created.ID, nil
}

func (s *Session) uploadBatch(ctx context.Context, jobID, payload string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.jobURL("ingest", jobID)+"/batches", strings.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "building batch upload request")
	}
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.http.Do(req)
	if err != nil {
		return errors.Wrapf(ErrUploadRejected, "job %s: %v", jobID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return errors.Wrapf(ErrUploadRejected, "job %s: upload returned %d", jobID, resp.StatusCode)
	}
	return nil
}

// closeJob marks the job's intake closed so the service starts processing.
func (s *Session) closeJob(ctx context.Context, jobID string) error {
	err := s.patchJSON(ctx, s.jobURL("ingest", jobID), setJobStateRequest{State: JobStateUploadComplete})
	return errors.Wrapf(err, "closing job %s", jobID)
}

// AbortJob transitions an ongoing ingest job to Aborted.
func (s *Session) AbortJob(ctx context.Context, jobID string) error {
	err := s.patchJSON(ctx, s.jobURL("ingest", jobID), setJobStateRequest{State: JobStateAborted})
	return errors.Wrapf(err, "aborting job %s", jobID)
}

// DeleteJob removes a job that already reached UploadComplete or a terminal
// state.
func (s *Session) DeleteJob(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.jobURL("ingest", jobID), nil)
	if err != nil {
		return errors.Wrap(err, "building job delete request")
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := s.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "deleting job %s", jobID)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusNoContent {
		return errors.Errorf("deleting job %s: got %d", jobID, resp.StatusCode)
	}
	return nil
}

// FailedResults fetches the failure diagnostics CSV of an ingest job.
func (s *Session) FailedResults(ctx context.Context, jobID string) (string, error) {
	raw, err := s.getText(ctx, s.jobURL("ingest", jobID)+"/failedResults")
	return raw, errors.Wrapf(err, "fetching failed results for job %s", jobID)
}

// waitForJob polls the status URL at a fixed interval until the job is
// terminal. No backoff: the interval is a property of the remote service, not
// of load. The configured deadline turns a stuck job into ErrJobTimedOut
// instead of polling forever.
func (s *Session) waitForJob(ctx context.Context, statusURL string) (JobState, error) {
	deadline := time.NewTimer(s.jobDeadline)
	defer deadline.Stop()

	for {
		var status jobStatusResponse
		if err := s.getJSON(ctx, statusURL, &status); err != nil {
			return "", errors.Wrap(err, "polling job status")
		}
		if status.State.Terminal() {
			return status.State, nil
		}
		s.logger.Debug().Str("job_id", status.ID).Str("state", string(status.State)).Msg("job still running")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", errors.Wrapf(ErrJobTimedOut, "job stuck in state %s after %s", status.State, s.jobDeadline)
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *Session) jobURL(kind, jobID string) string {
	u := fmt.Sprintf("%s/services/data/v%s/jobs/%s", s.instanceURL, s.creds.APIVersion, kind)
	if jobID != "" {
		u += "/" + jobID
	}
	return u
}

func (s *Session) postJSON(ctx context.Context, url string, body, out interface{}) error {
	return s.doJSON(ctx, http.MethodPost, url, body, out)
}

func (s *Session) patchJSON(ctx context.Context, url string, body interface{}) error {
	return s.doJSON(ctx, http.MethodPatch, url, body, nil)
}

func (s *Session) getJSON(ctx context.Context, url string, out interface{}) error {
	return s.doJSON(ctx, http.MethodGet, url, nil, out)
}

func (s *Session) doJSON(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, url)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return errors.Errorf("%s %s returned %d", method, url, resp.StatusCode)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decoding response")
}

func (s *Session) getText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "building request")
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := s.http.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "GET %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("GET %s returned %d", url, resp.StatusCode)
	}
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "reading response body")
	}
	return string(buf), nil
}
