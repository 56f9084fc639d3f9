package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/openmined/assetsync/internal/version"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

func showHeader(w io.Writer, dryRun bool) {
	line := cyan.Render(version.AppName) + " " + gray.Render(version.Short())
	if dryRun {
		line += " " + yellow.Render("(dry run)")
	}
	fmt.Fprintln(w, line)
}
