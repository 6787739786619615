package report

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/anthropic/dirwatch/internal/ipc"
	"github.com/anthropic/dirwatch/internal/store"
)

// ANSI escape codes for terminal formatting.
const (
	bold   = "\033[1m"
	dim    = "\033[2m"
	green  = "\033[32m"
	yellow = "\033[33m"
	reset  = "\033[0m"
)

// Style decides whether output carries ANSI colors.
type Style struct {
	Color bool
}

// Plain is a Style without colors.
var Plain = Style{}

// StyleFor colors output only when f is a terminal.
func StyleFor(f *os.File) Style {
	fd := f.Fd()
	return Style{Color: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)}
}

func (s Style) paint(code, text string) string {
	if !s.Color {
		return text
	}
	return code + text + reset
}

func (s Style) header(b *strings.Builder, title string) {
	b.WriteString(s.paint(bold, title) + "\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")
}

// FormatStatus formats daemon StatusData as a terminal-friendly table.
func FormatStatus(st Style, status *ipc.StatusData) string {
	var b strings.Builder

	st.header(&b, "dirwatch - Daemon Status")

	b.WriteString(fmt.Sprintf("%-20s %s\n", "Uptime:", status.Uptime))
	b.WriteString(fmt.Sprintf("%-20s %s\n", "Run:", status.RunID))
	b.WriteString(fmt.Sprintf("%-20s %s\n", "DB Size:", humanize.Bytes(uint64(max(status.DBSizeBytes, 0)))))
	b.WriteString(fmt.Sprintf("%-20s %s\n", "Journaled:", humanize.Comma(status.EventsCount)))
	b.WriteString(fmt.Sprintf("%-20s %s\n", "Delivered:", st.paint(green, humanize.Comma(int64(status.Delivered)))))
	b.WriteString(fmt.Sprintf("%-20s %d hidden, %d duplicate, %d unreadable\n", "Suppressed:",
		status.Hidden, status.Duplicates, status.Unreadable))
	b.WriteString(fmt.Sprintf("%-20s %s\n", "Pumps:", humanize.Comma(int64(status.Pumps))))

	if len(status.Watches) == 0 {
		b.WriteString(fmt.Sprintf("%-20s %s\n", "Watches:", "(none)"))
		return b.String()
	}

	b.WriteString("\n" + st.paint(bold, "Watches:") + "\n")
	tw := tabwriter.NewWriter(&b, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tpath\tflags")
	for _, w := range status.Watches {
		fmt.Fprintf(tw, "  %d\t%s\t%s\n", w.ID, w.Path, w.Flags)
	}
	_ = tw.Flush()

	return b.String()
}

// FormatEvents lists journaled events, newest first, with delivery times
// relative to now.
func FormatEvents(st Style, events []store.EventRecord, now time.Time) string {
	if len(events) == 0 {
		return st.paint(dim, "no events journaled") + "\n"
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "when\twatch\tfile")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%d\t%s\n",
			humanize.RelTime(ev.DeliveredAt, now, "ago", "from now"),
			ev.WatchpointID, ev.Filename)
	}
	_ = tw.Flush()
	return b.String()
}

// FormatSummary formats a journal Summary.
func FormatSummary(st Style, sum *Summary, now time.Time) string {
	var b strings.Builder

	st.header(&b, "dirwatch - Journal")

	b.WriteString(fmt.Sprintf("%-20s %s\n", "Database:", sum.DBPath))
	b.WriteString(fmt.Sprintf("%-20s %s\n", "DB Size:", humanize.Bytes(uint64(max(sum.DBSizeBytes, 0)))))
	b.WriteString(fmt.Sprintf("%-20s %s\n", "Runs:", humanize.Comma(sum.Runs)))
	if sum.LastRunID != "" {
		b.WriteString(fmt.Sprintf("%-20s %s (%s)\n", "Last run:", sum.LastRunID, sum.LastBackend))
	}
	b.WriteString(fmt.Sprintf("%-20s %s\n", "Events:", humanize.Comma(sum.Events)))

	if len(sum.ByWatch) > 0 {
		b.WriteString("\n" + st.paint(bold, "By directory:") + "\n")
		tw := tabwriter.NewWriter(&b, 0, 8, 2, ' ', 0)
		for _, c := range sum.ByWatch {
			fmt.Fprintf(tw, "  %s\t%s\n", c.WatchPath, st.paint(yellow, humanize.Comma(c.Events)))
		}
		_ = tw.Flush()
	}

	b.WriteString("\n" + st.paint(bold, "Recent:") + "\n")
	b.WriteString(FormatEvents(st, sum.Recent, now))
	return b.String()
}

// FormatJSON marshals any value as indented JSON.
func FormatJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}
