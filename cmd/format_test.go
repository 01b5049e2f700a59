//go:build !integration

package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/info757/estimai-cli/internal/review"
	"github.com/info757/estimai-cli/internal/store"
	"github.com/info757/estimai-cli/pkg/estimai"
)

func TestFormatReviewRows(t *testing.T) {
	conf := 0.92
	rows := []estimai.Row{
		{
			ID:         "row-1",
			Merged:     estimai.Fields{"description": "Concrete slab", "quantity": 10.0, "unit_cost": 175.0},
			Override:   estimai.Fields{"unit_cost": 175.0},
			Confidence: &conf,
		},
		{
			ID:     "row-2",
			Merged: estimai.Fields{"description": "Rebar", "quantity": 5.0, "unit_cost": 250.0},
		},
	}

	var buf bytes.Buffer
	formatReviewRows(&buf, rows)

	output := buf.String()
	assert.Contains(t, output, "ROW")
	assert.Contains(t, output, "Concrete slab")
	assert.Contains(t, output, "175")
	assert.Contains(t, output, "0.92")
	assert.Contains(t, output, "*")
	assert.Contains(t, output, "Rebar")
}

func TestFormatReviewSummary(t *testing.T) {
	rows := []estimai.Row{
		{ID: "row-1", Override: estimai.Fields{"unit_cost": 175.0}},
		{ID: "row-2"},
		{ID: "row-3", Override: estimai.Fields{"quantity": 4.0}},
	}

	var buf bytes.Buffer
	formatReviewSummary(&buf, rows)
	assert.Equal(t, "3 rows, 2 edited\n", buf.String())
}

func TestFormatProgress(t *testing.T) {
	line := formatProgress(estimai.JobStatus{JobID: "job-1", Status: estimai.JobRunning, Progress: 70})
	assert.Equal(t, "job-1: running  70%", line)

	line = formatProgress(estimai.JobStatus{JobID: "job-1", Status: estimai.JobSucceeded, Progress: 100})
	assert.Equal(t, "job-1: succeeded 100%", line)
}

func TestFormatBreakdown(t *testing.T) {
	var buf bytes.Buffer
	formatBreakdown(&buf, review.Breakdown{
		Subtotal:       2825,
		OverheadAmount: 282.5,
		TotalMarkupPct: 18,
		GrandTotal:     3333.5,
	})

	output := buf.String()
	assert.Contains(t, output, "$2,825.00")
	assert.Contains(t, output, "18.0%")
	assert.Contains(t, output, "$3,333.50")
}

func TestFormatRuns(t *testing.T) {
	started := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(95 * time.Second)
	runs := []store.RunRecord{
		{JobID: "job-1", ProjectID: "p1", Status: "succeeded", StartedAt: started, FinishedAt: &finished},
		{JobID: "job-2", ProjectID: "p1", Status: "running", StartedAt: started},
	}

	var buf bytes.Buffer
	formatRuns(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "job-1")
	assert.Contains(t, output, "succeeded")
	assert.Contains(t, output, "1m35s")
	assert.Contains(t, output, "job-2")
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, 12.5, parseValue("12.5"))
	assert.Equal(t, float64(-3), parseValue("-3"))
	assert.Equal(t, "CY", parseValue("CY"))
}

func TestParseStage(t *testing.T) {
	stage, err := parseStage("takeoff")
	require.NoError(t, err)
	assert.Equal(t, estimai.StageTakeoff, stage)

	_, err = parseStage("design")
	assert.Error(t, err)
}

type linkMockClient struct {
	estimai.Client
	getReview func(ctx context.Context, projectID string, stage estimai.Stage) (*estimai.ReviewResponse, error)
}

func (m *linkMockClient) GetReview(ctx context.Context, projectID string, stage estimai.Stage) (*estimai.ReviewResponse, error) {
	return m.getReview(ctx, projectID, stage)
}

func TestQuantityLinks(t *testing.T) {
	client := &linkMockClient{
		getReview: func(_ context.Context, _ string, stage estimai.Stage) (*estimai.ReviewResponse, error) {
			require.Equal(t, estimai.StageTakeoff, stage)
			return &estimai.ReviewResponse{Rows: []estimai.Row{
				{ID: "tk-1", Merged: estimai.Fields{"quantity": 42.0}},
			}}, nil
		},
	}

	rows := []estimai.Row{
		{ID: "row-1", Merged: estimai.Fields{"takeoff_row_id": "tk-1"}},
		{ID: "row-2", Merged: estimai.Fields{}},
	}

	links, err := quantityLinks(context.Background(), client, "p1", estimai.StageEstimate, rows)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"row-1": 42.0}, links)
}

func TestQuantityLinks_TakeoffStageNeverLinks(t *testing.T) {
	links, err := quantityLinks(context.Background(), nil, "p1", estimai.StageTakeoff, nil)
	require.NoError(t, err)
	assert.Nil(t, links)
}

func TestQuantityLinks_NoReferences(t *testing.T) {
	rows := []estimai.Row{{ID: "row-1", Merged: estimai.Fields{"unit_cost": 10.0}}}
	links, err := quantityLinks(context.Background(), nil, "p1", estimai.StageEstimate, rows)
	require.NoError(t, err)
	assert.Nil(t, links)
}
