package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/signalnine/spatialbench/internal/result"
)

const maxMessageLen = 200

// FormatTime renders a duration in seconds for the report.
func FormatTime(seconds *float64) string {
	if seconds == nil {
		return "N/A"
	}
	if *seconds < 0.01 {
		return "<0.01s"
	}
	return fmt.Sprintf("%.2fs", *seconds)
}

func formatSeconds(s float64) string {
	return FormatTime(&s)
}

// cellText is the comparison-table entry for one engine and query.
func cellText(s QuerySummary, winner bool) string {
	switch s.Status() {
	case result.StatusSuccess:
		t := FormatTime(s.Representative.ElapsedSeconds)
		if winner {
			return "**" + t + "**"
		}
		return t
	case result.StatusTimeout:
		return "⏱️ TIMEOUT"
	case result.StatusError:
		return "❌ ERROR"
	default:
		return "—"
	}
}

func statusSymbol(s result.Status) string {
	switch s {
	case result.StatusSuccess:
		return "✅"
	case result.StatusTimeout:
		return "⏱️"
	case result.StatusError:
		return "❌"
	default:
		return "—"
	}
}

func truncateMessage(msg string) string {
	msg = strings.Join(strings.Fields(msg), " ")
	msg = strings.ReplaceAll(msg, "`", "'")
	if r := []rune(msg); len(r) > maxMessageLen {
		return string(r[:maxMessageLen]) + "..."
	}
	return msg
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

func writeMarkdown(rep *Report, w io.Writer) error {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("# 📊 SpatialBench Benchmark Results")
	line("")
	if len(rep.Engines) == 0 {
		line("⚠️ No results found.")
		_, err := io.WriteString(w, b.String())
		return err
	}

	line("| Parameter | Value |")
	line("|-----------|-------|")
	line("| **Scale Factor** | %g |", rep.ScaleFactor)
	line("| **Query Timeout** | %gs |", rep.TimeoutSeconds)
	line("| **Runs per Query** | %d |", rep.Runs)
	line("| **Timestamp** | %s |", formatTimestamp(rep.Timestamp))
	line("| **Queries** | %d |", len(rep.Queries))
	line("")

	line("## 🔧 Software Versions")
	line("")
	line("| Engine | Version | Adapter |")
	line("|--------|---------|---------|")
	for _, e := range rep.Engines {
		adapter := e.Adapter
		if adapter == "" {
			adapter = "—"
		}
		line("| %s | `%s` | %s |", e.Name, e.Version, adapter)
	}
	if h := rep.Host; h != nil {
		line("")
		line("| Host | Value |")
		line("|------|-------|")
		line("| **Platform** | %s/%s %s |", h.OS, h.Arch, h.Platform)
		if h.CPUModel != "" {
			line("| **CPU** | %s (%d cores) |", h.CPUModel, h.CPUCount)
		} else {
			line("| **CPU** | %d cores |", h.CPUCount)
		}
		line("| **Memory** | %.1f GB |", h.MemoryGB)
	}
	line("")

	line("## 🏁 Results Comparison")
	line("")
	header := "| Query |"
	align := "|:------|"
	for _, e := range rep.Engines {
		header += " " + e.Name + " |"
		align += ":---:|"
	}
	line("%s", header)
	line("%s", align)
	for _, row := range rep.Rows {
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = cellText(c, c.Engine == row.Winner)
		}
		line("| **%s** | %s |", strings.ToUpper(row.Query), strings.Join(cells, " | "))
	}
	line("")

	line("## 🥇 Performance Summary")
	line("")
	line("| Engine | Wins | Total Time | ✅ | ⏱️ | ❌ |")
	line("|--------|:----:|-----------:|---:|---:|---:|")
	for _, t := range rep.Tally {
		line("| %s | %d | %s | %d | %d | %d |", t.Engine, t.Wins, formatSeconds(t.TotalSeconds),
			t.Counts.Success, t.Counts.Timeout, t.Counts.Error)
	}
	line("")

	line("## 📋 Detailed Results")
	line("")
	for i, e := range rep.Engines {
		line("<details>")
		line("<summary><b>%s</b> - Click to expand</summary>", e.Name)
		line("")
		if !e.Present {
			line("No data.")
			line("")
			line("</details>")
			line("")
			continue
		}
		line("| Query | Time | Status | Rows | Runs OK | Min | Median |")
		line("|:------|-----:|:------:|-----:|:-------:|----:|-------:|")
		for _, row := range rep.Rows {
			c := row.Cells[i]
			timeStr, rows, minStr, medianStr := "N/A", "—", "—", "—"
			if c.Representative != nil {
				timeStr = FormatTime(c.Representative.ElapsedSeconds)
				if c.Representative.RowCount != nil {
					rows = humanize.Comma(*c.Representative.RowCount)
				}
			}
			if c.Stats.HasTimings() {
				minStr = formatSeconds(c.Stats.Min)
				medianStr = formatSeconds(c.Stats.Median)
			}
			line("| %s | %s | %s | %s | %d/%d | %s | %s |", strings.ToUpper(row.Query), timeStr,
				statusSymbol(c.Status()), rows, c.Stats.Success, c.Stats.Total(), minStr, medianStr)
		}
		line("")
		if e.Aborted {
			line("*Session was interrupted; results are partial.*")
			line("")
		} else if !e.Complete {
			line("*Session did not finish; results are partial.*")
			line("")
		}
		line("</details>")
		line("")
	}

	if len(rep.Failures) > 0 {
		line("## ⚠️ Errors and Timeouts")
		line("")
		for _, f := range rep.Failures {
			line("### %s", f.Engine)
			line("")
			for _, r := range f.Runs {
				msg := r.Message()
				if msg == "" {
					msg = "No details available"
				}
				line("- **%s** (run %d, %s): `%s`", strings.ToUpper(r.Query), r.RunIndex, r.Status, truncateMessage(msg))
			}
			line("")
		}
	}

	line("---")
	line("")
	line("| Legend | Meaning |")
	line("|--------|---------|")
	line("| **bold** | Fastest for this query |")
	line("| ⏱️ TIMEOUT | Query exceeded timeout |")
	line("| ❌ ERROR | Query failed |")
	line("| — | No data |")
	line("")
	line("*Generated by spatialbench from results recorded at %s*", formatTimestamp(rep.Timestamp))

	_, err := io.WriteString(w, b.String())
	return err
}
