package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSummary() *Summary {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSummary("run-1", start)
	s.Add(Result{Key: "portfolio/a.jpg", Status: StatusUploaded, OriginalSize: 2000, OptimizedSize: 500})
	s.Add(Result{Key: "portfolio/b.png", Status: StatusSkipped, Reason: "already exists", OriginalSize: 300})
	s.Add(Result{Key: "portfolio/c.jpg", Status: StatusFailed, Err: errors.New("undecodable image"), OriginalSize: 10})
	s.Finish(start.Add(1500 * time.Millisecond))
	return s
}

func TestSummary_Counts(t *testing.T) {
	s := sampleSummary()

	assert.Equal(t, 3, s.Total())
	assert.Equal(t, 1, s.Count(StatusUploaded))
	assert.Equal(t, 1, s.Count(StatusSkipped))
	assert.Equal(t, 1, s.Count(StatusFailed))
	assert.Equal(t, 0, s.Count(StatusPlanned))

	in, out := s.Bytes()
	assert.Equal(t, int64(2000), in)
	assert.Equal(t, int64(500), out)
	assert.InDelta(t, 75.0, s.Reduction(), 0.001)
	assert.Equal(t, 1500*time.Millisecond, s.Duration)
}

func TestReduction(t *testing.T) {
	assert.InDelta(t, 50.0, Reduction(200, 100), 0.001)
	assert.InDelta(t, -50.0, Reduction(100, 150), 0.001)
	assert.Equal(t, 0.0, Reduction(0, 10))
}

func TestSummary_Render(t *testing.T) {
	s := sampleSummary()

	var buf bytes.Buffer
	require.NoError(t, s.Render(&buf, false))
	out := buf.String()

	assert.Contains(t, out, "portfolio/a.jpg")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "undecodable image")
	assert.NotContains(t, out, "portfolio/b.png")
	assert.Contains(t, out, "3 assets, 1 uploaded, 1 skipped, 1 failed")
	assert.Contains(t, out, "in 1.5s")

	buf.Reset()
	require.NoError(t, s.Render(&buf, true))
	assert.Contains(t, buf.String(), "portfolio/b.png")
}

func TestSummary_RenderLocked(t *testing.T) {
	s := NewSummary("run-2", time.Now())
	s.Locked = true

	var buf bytes.Buffer
	require.NoError(t, s.Render(&buf, true))
	assert.Contains(t, buf.String(), "another run holds the lock")
}

func TestSummary_WriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleSummary().WriteJSON(&buf))

	var got jsonSummary
	require.NoError(t, jsonDecoder(&buf, &got))

	assert.Equal(t, "run-1", got.RunID)
	assert.False(t, got.Locked)
	assert.Equal(t, int64(1500), got.DurationMs)
	assert.Equal(t, 1, got.Counts[StatusUploaded])
	assert.Equal(t, int64(2000), got.BytesIn)
	assert.Equal(t, int64(500), got.BytesOut)
	require.Len(t, got.Results, 3)
	assert.Equal(t, "portfolio/a.jpg", got.Results[0].Key)
	assert.Equal(t, StatusSkipped, got.Results[1].Status)
	assert.Equal(t, "already exists", got.Results[1].Reason)
	assert.Equal(t, "undecodable image", got.Results[2].Error)
}

func TestSummary_WriteJSONLocked(t *testing.T) {
	s := NewSummary("run-2", time.Now())
	s.Locked = true

	var buf bytes.Buffer
	require.NoError(t, s.WriteJSON(&buf))
	assert.Contains(t, buf.String(), `"locked": true`)
	assert.Contains(t, buf.String(), `"results": []`)
}
