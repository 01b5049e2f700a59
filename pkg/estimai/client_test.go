package estimai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (Client, *MemoryTokenStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tokens := NewMemoryTokenStore("test-token")
	return NewClient(tokens, WithBaseURL(srv.URL)), tokens
}

func TestGetReview(t *testing.T) {
	conf := 0.92
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/projects/p1/review/takeoff", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(ReviewResponse{
			ProjectID: "p1",
			Stage:     StageTakeoff,
			Rows: []Row{
				{
					ID:         "row-1",
					Baseline:   Fields{"quantity": 10.0, "unit": "sf"},
					Merged:     Fields{"quantity": 10.0, "unit": "sf"},
					Confidence: &conf,
				},
			},
			TotalRows:      1,
			OverriddenRows: 0,
		})
	})

	resp, err := c.GetReview(context.Background(), "p1", StageTakeoff)
	require.NoError(t, err)
	assert.Equal(t, "p1", resp.ProjectID)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "row-1", resp.Rows[0].ID)
	assert.Nil(t, resp.Rows[0].Override)
	assert.InDelta(t, 0.92, *resp.Rows[0].Confidence, 1e-9)
}

func TestGetReview_UnknownStage(t *testing.T) {
	c := NewClient(NewMemoryTokenStore(""))
	_, err := c.GetReview(context.Background(), "p1", Stage("bogus"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")
}

func TestPatchReview(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/projects/p1/review/estimate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req PatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Patches, 1)
		assert.Equal(t, "row-1", req.Patches[0].RowID)
		assert.Equal(t, "reviewer@example.com", req.Patches[0].Author)
		assert.False(t, req.Patches[0].IssuedAt.IsZero())

		json.NewEncoder(w).Encode(PatchResponse{
			OK: true, Patched: 1, ProjectID: "p1", Stage: StageEstimate,
		})
	})

	patches := []Patch{{
		ID:       "patch-1",
		RowID:    "row-1",
		Fields:   Fields{"unit_cost": 200.0},
		Author:   "reviewer@example.com",
		IssuedAt: time.Now().UTC(),
	}}
	resp, err := c.PatchReview(context.Background(), "p1", StageEstimate, patches)
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, 1, resp.Patched)
}

func TestStartPipelineAndGetJob(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/projects/p1/pipeline_async":
			assert.Equal(t, http.MethodPost, r.Method)
			json.NewEncoder(w).Encode(PipelineResponse{JobID: "job-42"})
		case "/jobs/job-42":
			assert.Equal(t, http.MethodGet, r.Method)
			json.NewEncoder(w).Encode(JobStatus{
				JobID: "job-42", Status: JobRunning, Progress: 40, Message: "pricing",
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	started, err := c.StartPipeline(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "job-42", started.JobID)

	status, err := c.GetJob(context.Background(), started.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobRunning, status.Status)
	assert.False(t, status.Status.Terminal())
	assert.InDelta(t, 40, status.Progress, 1e-9)
}

func TestFetchBid(t *testing.T) {
	pdf := []byte("%PDF-1.7 fake")
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/p1/bid", r.URL.Path)
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(pdf)
	})

	data, err := c.FetchBid(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, pdf, data)
}

func TestUnauthorizedClearsToken(t *testing.T) {
	c, tokens := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"token expired"}`))
	})

	_, err := c.GetReview(context.Background(), "p1", StageTakeoff)
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Error(), "authentication required")

	token, err := tokens.Load()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestServerErrorDetail(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{
			name:       "structured detail",
			status:     http.StatusUnprocessableEntity,
			body:       `{"detail":"stage has no rows"}`,
			wantDetail: "stage has no rows",
		},
		{
			name:       "unparseable body",
			status:     http.StatusBadGateway,
			body:       `<html>bad gateway</html>`,
			wantDetail: "request failed with status 502",
		},
		{
			name:       "empty detail",
			status:     http.StatusInternalServerError,
			body:       `{}`,
			wantDetail: "request failed with status 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.GetReview(context.Background(), "p1", StageTakeoff)
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantDetail, apiErr.Detail)
		})
	}
}

func TestNoTokenOmitsHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(ReviewResponse{ProjectID: "p1", Stage: StageTakeoff})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(NewMemoryTokenStore(""), WithBaseURL(srv.URL))
	_, err := c.GetReview(context.Background(), "p1", StageTakeoff)
	require.NoError(t, err)
}
