package report

import (
	"io"
	"time"
)

type jsonSummary struct {
	RunID      string         `json:"run_id"`
	Locked     bool           `json:"locked"`
	Started    time.Time      `json:"started"`
	DurationMs int64          `json:"duration_ms"`
	Counts     map[Status]int `json:"counts"`
	BytesIn    int64          `json:"bytes_in"`
	BytesOut   int64          `json:"bytes_out"`
	Results    []jsonResult   `json:"results"`
}

type jsonResult struct {
	Key           string `json:"key,omitempty"`
	Path          string `json:"path,omitempty"`
	Status        Status `json:"status"`
	Reason        string `json:"reason,omitempty"`
	Error         string `json:"error,omitempty"`
	OriginalSize  int64  `json:"original_size"`
	OptimizedSize int64  `json:"optimized_size"`
	DurationMs    int64  `json:"duration_ms"`
}

// WriteJSON writes the summary as a single JSON document, for CI jobs that
// archive run reports.
func (s *Summary) WriteJSON(w io.Writer) error {
	out := jsonSummary{
		RunID:      s.RunID,
		Locked:     s.Locked,
		Started:    s.Started.UTC(),
		DurationMs: s.Duration.Milliseconds(),
		Counts:     make(map[Status]int, len(s.counts)),
		BytesIn:    s.bytesIn,
		BytesOut:   s.bytesOut,
		Results:    make([]jsonResult, 0, len(s.Results)),
	}
	for st, n := range s.counts {
		out.Counts[st] = n
	}
	for _, r := range s.Results {
		jr := jsonResult{
			Key:           r.Key,
			Path:          r.Path,
			Status:        r.Status,
			Reason:        r.Reason,
			OriginalSize:  r.OriginalSize,
			OptimizedSize: r.OptimizedSize,
			DurationMs:    r.Duration.Milliseconds(),
		}
		if r.Err != nil {
			jr.Error = r.Err.Error()
		}
		out.Results = append(out.Results, jr)
	}
	return jsonEncoder(w, out)
}
