// Package report collects per-asset outcomes of a run into a summary.
package report

import (
	"time"
)

type Status string

const (
	StatusUploaded Status = "uploaded"
	StatusWritten  Status = "written"
	StatusPlanned  Status = "planned"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Result is the outcome of processing one asset.
type Result struct {
	Key           string
	Path          string
	Status        Status
	Reason        string
	Err           error
	OriginalSize  int64
	OptimizedSize int64
	Duration      time.Duration
}

// Reduction is the saved share in percent, negative if the output grew.
func (r *Result) Reduction() float64 {
	return Reduction(r.OriginalSize, r.OptimizedSize)
}

type Summary struct {
	RunID    string
	Locked   bool
	Started  time.Time
	Duration time.Duration
	Results  []Result

	counts map[Status]int
	// byte totals only cover assets that were transformed
	bytesIn  int64
	bytesOut int64
}

func NewSummary(runID string, started time.Time) *Summary {
	return &Summary{
		RunID:   runID,
		Started: started,
		counts:  make(map[Status]int),
	}
}

func (s *Summary) Add(r Result) {
	s.Results = append(s.Results, r)
	s.counts[r.Status]++
	if r.OptimizedSize > 0 {
		s.bytesIn += r.OriginalSize
		s.bytesOut += r.OptimizedSize
	}
}

func (s *Summary) Count(status Status) int {
	return s.counts[status]
}

func (s *Summary) Total() int {
	return len(s.Results)
}

func (s *Summary) Bytes() (in, out int64) {
	return s.bytesIn, s.bytesOut
}

func (s *Summary) Reduction() float64 {
	return Reduction(s.bytesIn, s.bytesOut)
}

func (s *Summary) Finish(now time.Time) {
	s.Duration = now.Sub(s.Started)
}

func Reduction(before, after int64) float64 {
	if before <= 0 {
		return 0
	}
	return (1 - float64(after)/float64(before)) * 100
}
