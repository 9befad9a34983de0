package salesforce

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSession wires a Session against a fake bulk API. The fake answers the
// token endpoint itself so Login can pin the instance URL to the test server.
func newTestSession(t *testing.T, handler http.HandlerFunc) (*Session, *httptest.Server) {
	t.Helper()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/services/oauth2/token" {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "password", r.URL.Query().Get("grant_type"))
			json.NewEncoder(w).Encode(map[string]string{
				"access_token": "test-token",
				"instance_url": srv.URL,
			})
			return
		}
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	sess := NewSession(srv.Client(), Credentials{
		LoginURL: srv.URL,
		Username: "it@example.com",
		Password: "hunter2token",
	}, zerolog.Nop(),
		WithPollInterval(time.Millisecond),
		WithJobDeadline(time.Second))
	require.NoError(t, sess.Login(context.Background()))
	return sess, srv
}

func TestQueryAllPollsUntilComplete(t *testing.T) {
	var statusCalls int32
	resultsCSV := "Id,Name,Phone,Email\nA01,\"Doe, John\",555-0100,john@example.com"

	sess, _ := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/services/data/v49.0/jobs/query":
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "SELECT Id, Name, Phone, Email FROM TempAccount__c", req["query"])
			json.NewEncoder(w).Encode(map[string]string{"id": "q1", "state": "UploadComplete"})
		case r.Method == http.MethodGet && r.URL.Path == "/services/data/v49.0/jobs/query/q1":
			states := []string{"InProgress", "InProgress", "JobComplete"}
			n := atomic.AddInt32(&statusCalls, 1)
			json.NewEncoder(w).Encode(map[string]string{"id": "q1", "state": states[n-1]})
		case r.Method == http.MethodGet && r.URL.Path == "/services/data/v49.0/jobs/query/q1/results":
			io.WriteString(w, resultsCSV)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	records, err := sess.QueryAll(context.Background(), TempAccount)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Doe, John", records[0].Get("Name"))
	assert.EqualValues(t, 3, atomic.LoadInt32(&statusCalls))
}

func TestQueryAllFailedJobHasNoResults(t *testing.T) {
	var resultsFetched int32

	sess, _ := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/services/data/v49.0/jobs/query":
			json.NewEncoder(w).Encode(map[string]string{"id": "q1", "state": "UploadComplete"})
		case r.Method == http.MethodGet && r.URL.Path == "/services/data/v49.0/jobs/query/q1":
			json.NewEncoder(w).Encode(map[string]string{"id": "q1", "state": "Failed"})
		case r.URL.Path == "/services/data/v49.0/jobs/query/q1/results":
			atomic.AddInt32(&resultsFetched, 1)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	_, err := sess.QueryAll(context.Background(), TempAccount)
	assert.True(t, errors.Is(err, ErrJobFailed))
	assert.Zero(t, atomic.LoadInt32(&resultsFetched))
}

func TestBulkUpsertHappyPath(t *testing.T) {
	var uploaded string

	sess, _ := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/services/data/v49.0/jobs/ingest":
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "TempAccount__c", req["object"])
			assert.Equal(t, "upsert", req["operation"])
			assert.Equal(t, "CSV", req["contentType"])
			assert.Equal(t, "LF", req["lineEnding"])
			json.NewEncoder(w).Encode(map[string]string{"id": "i1", "state": "Open"})
		case r.Method == http.MethodPut && r.URL.Path == "/services/data/v49.0/jobs/ingest/i1/batches":
			assert.Equal(t, "text/csv", r.Header.Get("Content-Type"))
			body, _ := io.ReadAll(r.Body)
			uploaded = string(body)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPatch && r.URL.Path == "/services/data/v49.0/jobs/ingest/i1":
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "UploadComplete", req["state"])
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/services/data/v49.0/jobs/ingest/i1":
			json.NewEncoder(w).Encode(map[string]string{"id": "i1", "state": "JobComplete"})
		case r.Method == http.MethodGet && r.URL.Path == "/services/data/v49.0/jobs/ingest/i1/successfulResults":
			io.WriteString(w, "sf__Id,sf__Created,Id,Name,Phone,Email\nX01,true,,\"Doe, John\",555-0100,john@example.com")
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	rec := NewRecord(TempAccount)
	require.NoError(t, rec.Set("Name", "Doe, John"))
	require.NoError(t, rec.Set("Phone", "555-0100"))
	require.NoError(t, rec.Set("Email", "john@example.com"))

	result, err := sess.BulkUpsert(context.Background(), []Record{rec})
	require.NoError(t, err)

	assert.Equal(t, "Id,Name,Phone,Email\n,\"Doe, John\",555-0100,john@example.com", uploaded)
	assert.Equal(t, JobStateComplete, result.State)
	assert.Empty(t, result.FailedCSV)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "X01", result.Records[0].ID())
}

func TestBulkUpsertPartialFailure(t *testing.T) {
	sess, _ := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/services/data/v49.0/jobs/ingest":
			json.NewEncoder(w).Encode(map[string]string{"id": "i2", "state": "Open"})
		case r.Method == http.MethodPut && r.URL.Path == "/services/data/v49.0/jobs/ingest/i2/batches":
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPatch && r.URL.Path == "/services/data/v49.0/jobs/ingest/i2":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/services/data/v49.0/jobs/ingest/i2":
			json.NewEncoder(w).Encode(map[string]string{"id": "i2", "state": "Failed"})
		case r.Method == http.MethodGet && r.URL.Path == "/services/data/v49.0/jobs/ingest/i2/failedResults":
			io.WriteString(w, "sf__Error,Name\nREQUIRED_FIELD_MISSING,Broken")
		case r.Method == http.MethodGet && r.URL.Path == "/services/data/v49.0/jobs/ingest/i2/successfulResults":
			io.WriteString(w, "sf__Id,sf__Created,Id,Name,Phone,Email\nX02,true,,\"Smith, Sue\",,sue@example.com")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	rec := NewRecord(TempAccount)
	require.NoError(t, rec.Set("Name", "Smith, Sue"))

	// A Failed job is a partial result, not an error.
	result, err := sess.BulkUpsert(context.Background(), []Record{rec})
	require.NoError(t, err)
	assert.Equal(t, JobStateFailed, result.State)
	assert.Contains(t, result.FailedCSV, "REQUIRED_FIELD_MISSING")
	require.Len(t, result.Records, 1)
	assert.Equal(t, "X02", result.Records[0].ID())
}

func TestUploadRejectedOnWrongStatus(t *testing.T) {
	sess, _ := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/services/data/v49.0/jobs/ingest":
			json.NewEncoder(w).Encode(map[string]string{"id": "i3", "state": "Open"})
		case r.Method == http.MethodPut && r.URL.Path == "/services/data/v49.0/jobs/ingest/i3/batches":
			// 200 instead of the expected 201.
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	rec := NewRecord(TempAccount)
	require.NoError(t, rec.Set("Name", "Doe, Jane"))

	_, err := sess.BulkUpsert(context.Background(), []Record{rec})
	assert.True(t, errors.Is(err, ErrUploadRejected))
}

func TestWaitForJobTimesOut(t *testing.T) {
	sess, _ := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/services/data/v49.0/jobs/query":
			json.NewEncoder(w).Encode(map[string]string{"id": "q9", "state": "UploadComplete"})
		case r.Method == http.MethodGet && r.URL.Path == "/services/data/v49.0/jobs/query/q9":
			json.NewEncoder(w).Encode(map[string]string{"id": "q9", "state": "InProgress"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	sess.jobDeadline = 20 * time.Millisecond
	sess.pollInterval = 5 * time.Millisecond

	_, err := sess.QueryAll(context.Background(), TempAccount)
	assert.True(t, errors.Is(err, ErrJobTimedOut))
}

func TestBulkDeleteUploadsOnlyIDs(t *testing.T) {
	var uploaded string

	sess, _ := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/services/data/v49.0/jobs/ingest":
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "delete", req["operation"])
			json.NewEncoder(w).Encode(map[string]string{"id": "d1", "state": "Open"})
		case r.Method == http.MethodPut && r.URL.Path == "/services/data/v49.0/jobs/ingest/d1/batches":
			body, _ := io.ReadAll(r.Body)
			uploaded = string(body)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPatch && r.URL.Path == "/services/data/v49.0/jobs/ingest/d1":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/services/data/v49.0/jobs/ingest/d1":
			json.NewEncoder(w).Encode(map[string]string{"id": "d1", "state": "JobComplete"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	a := NewRecord(TempAccount)
	require.NoError(t, a.Set("Id", "A01"))
	b := NewRecord(TempAccount)
	require.NoError(t, b.Set("Id", "A02"))

	result, err := sess.BulkDelete(context.Background(), []Record{a, b})
	require.NoError(t, err)
	assert.Equal(t, "Id\nA01\nA02", uploaded)
	assert.Equal(t, JobStateComplete, result.State)
	assert.Empty(t, result.Records)
}

func TestDeleteJobRequiresNoContent(t *testing.T) {
	sess, _ := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/services/data/v49.0/jobs/ingest/gone":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete && r.URL.Path == "/services/data/v49.0/jobs/ingest/stuck":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	assert.NoError(t, sess.DeleteJob(context.Background(), "gone"))
	assert.Error(t, sess.DeleteJob(context.Background(), "stuck"))
}
