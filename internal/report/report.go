package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/spatialbench/internal/result"
)

var Formats = []string{"markdown", "table", "json"}

// Generate summarizes results and renders the report in format.
func Generate(results map[string]*result.EngineResults, opts Options, format string, w io.Writer) error {
	rep := Summarize(results, opts)
	switch format {
	case "markdown", "md":
		return writeMarkdown(rep, w)
	case "json":
		return writeJSON(rep, w)
	case "table", "":
		return writeTable(rep, w)
	default:
		return fmt.Errorf("unknown report format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

func writeTable(rep *Report, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := []string{"QUERY"}
	for _, e := range rep.Engines {
		header = append(header, strings.ToUpper(e.Name))
	}
	header = append(header, "WINNER")
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	fmt.Fprintln(tw, strings.Repeat("-", 12*len(header)))
	for _, row := range rep.Rows {
		cols := []string{row.Query}
		for _, c := range row.Cells {
			cols = append(cols, tableCell(c))
		}
		winner := row.Winner
		if winner == "" {
			winner = "-"
		}
		cols = append(cols, winner)
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENGINE\tVERSION\tWINS\tTOTAL\tOK\tTIMEOUT\tERROR")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	versions := make(map[string]string, len(rep.Engines))
	for _, e := range rep.Engines {
		versions[e.Name] = e.Version
	}
	for _, t := range rep.Tally {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%d\t%d\n",
			t.Engine, versions[t.Engine], t.Wins, formatSeconds(t.TotalSeconds),
			t.Counts.Success, t.Counts.Timeout, t.Counts.Error)
	}
	return tw.Flush()
}

func tableCell(c QuerySummary) string {
	switch c.Status() {
	case result.StatusSuccess:
		return FormatTime(c.Representative.ElapsedSeconds)
	case result.StatusTimeout:
		return "TIMEOUT"
	case result.StatusError:
		return "ERROR"
	default:
		return "-"
	}
}

func writeJSON(rep *Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
