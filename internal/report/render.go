package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

var (
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// Render prints one row per asset that was not skipped, or every asset when
// all is set, followed by the totals line.
func (s *Summary) Render(w io.Writer, all bool) error {
	if s.Locked {
		_, err := fmt.Fprintln(w, yellow.Render("another run holds the lock, nothing done"))
		return err
	}

	rows := make([][]string, 0, len(s.Results))
	for _, r := range s.Results {
		if r.Status == StatusSkipped && !all {
			continue
		}
		rows = append(rows, row(r))
	}

	if len(rows) > 0 {
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Status", "Key", "Original", "Optimized", "Saved", "Note"})
		table.SetBorder(false)
		table.SetAutoWrapText(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetCenterSeparator("")
		table.SetColumnSeparator("")
		table.SetRowSeparator("")
		table.SetHeaderLine(false)
		table.SetTablePadding("  ")
		table.SetNoWhiteSpace(true)
		table.AppendBulk(rows)
		table.Render()
	}

	_, err := fmt.Fprintln(w, s.totals())
	return err
}

func (s *Summary) totals() string {
	parts := []string{fmt.Sprintf("%d assets", s.Total())}
	for _, st := range []Status{StatusUploaded, StatusWritten, StatusPlanned, StatusSkipped, StatusFailed} {
		if n := s.Count(st); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, st))
		}
	}
	line := strings.Join(parts, ", ")
	if s.bytesIn > 0 {
		line += fmt.Sprintf(" | %s -> %s (%.1f%% saved)", humanize.Bytes(uint64(s.bytesIn)), humanize.Bytes(uint64(s.bytesOut)), s.Reduction())
	}
	if s.Duration > 0 {
		line += " in " + s.Duration.Round(time.Millisecond).String()
	}
	return line
}

func row(r Result) []string {
	status := string(r.Status)
	switch r.Status {
	case StatusUploaded, StatusWritten:
		status = green.Render(status)
	case StatusFailed:
		status = red.Render(status)
	case StatusSkipped:
		status = gray.Render(status)
	}

	var orig, opt, saved string
	if r.OriginalSize > 0 {
		orig = humanize.Bytes(uint64(r.OriginalSize))
	}
	if r.OptimizedSize > 0 {
		opt = humanize.Bytes(uint64(r.OptimizedSize))
		saved = fmt.Sprintf("%.1f%%", r.Reduction())
	}

	note := r.Reason
	if r.Err != nil {
		note = r.Err.Error()
	}
	return []string{status, r.Key, orig, opt, saved, note}
}
