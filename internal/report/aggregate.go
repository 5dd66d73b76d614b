package report

import (
	"sort"
	"time"

	"github.com/signalnine/spatialbench/internal/result"
	"github.com/signalnine/spatialbench/internal/sysinfo"
)

// Options adjust how stored results are summarized.
type Options struct {
	// TimeoutSeconds and Runs override the values recorded in the result
	// headers when positive.
	TimeoutSeconds float64
	Runs           int
	// Engines that were expected to run. Engines without a result file
	// still get a column.
	Engines []string
}

type EngineInfo struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Adapter  string `json:"adapter,omitempty"`
	Present  bool   `json:"present"`
	Complete bool   `json:"complete"`
	Aborted  bool   `json:"aborted"`
}

// QuerySummary is one engine's showing on one query.
type QuerySummary struct {
	Engine         string            `json:"engine"`
	Query          string            `json:"query"`
	Representative *result.RunResult `json:"representative,omitempty"`
	Stats          result.QueryStats `json:"stats"`
}

// Status of the representative run, or "" when the engine has no runs
// for the query.
func (s QuerySummary) Status() result.Status {
	if s.Representative == nil {
		return ""
	}
	return s.Representative.Status
}

type QueryRow struct {
	Query string `json:"query"`
	// Cells follow Report.Engines order.
	Cells  []QuerySummary `json:"cells"`
	Winner string         `json:"winner,omitempty"`
}

// EngineTally counts wins per engine. TotalSeconds sums the
// representative times of the engine's successful queries.
type EngineTally struct {
	Engine       string        `json:"engine"`
	Wins         int           `json:"wins"`
	TotalSeconds float64       `json:"total_seconds"`
	Counts       result.Counts `json:"counts"`
}

type EngineFailures struct {
	Engine string             `json:"engine"`
	Runs   []result.RunResult `json:"runs"`
}

type Report struct {
	ScaleFactor    float64          `json:"scale_factor"`
	TimeoutSeconds float64          `json:"timeout_seconds"`
	Runs           int              `json:"runs"`
	Timestamp      time.Time        `json:"timestamp"`
	Host           *sysinfo.Info    `json:"host,omitempty"`
	Engines        []EngineInfo     `json:"engines"`
	Queries        []string         `json:"queries"`
	Rows           []QueryRow       `json:"rows"`
	Tally          []EngineTally    `json:"tally"`
	Failures       []EngineFailures `json:"failures"`
}

// Summarize merges per-engine results into a comparison report. The
// output depends only on its inputs.
func Summarize(results map[string]*result.EngineResults, opts Options) *Report {
	rep := &Report{}

	names := engineNames(results, opts.Engines)
	var earliest *result.EngineResults
	for _, name := range names {
		res, ok := results[name]
		info := EngineInfo{Name: name, Version: "unknown"}
		if ok {
			info.Present = true
			info.Version = res.Header.Version
			info.Adapter = res.Header.Adapter
			info.Complete = res.Complete()
			info.Aborted = res.Footer != nil && res.Footer.Aborted
			if earliest == nil || res.Header.StartedAt.Before(earliest.Header.StartedAt) {
				earliest = res
			}
		}
		rep.Engines = append(rep.Engines, info)
	}

	if earliest != nil {
		h := earliest.Header
		rep.ScaleFactor = h.ScaleFactor
		rep.TimeoutSeconds = h.TimeoutSeconds
		rep.Runs = h.Runs
		rep.Timestamp = h.StartedAt.UTC()
		host := h.Host
		rep.Host = &host
	}
	if opts.TimeoutSeconds > 0 {
		rep.TimeoutSeconds = opts.TimeoutSeconds
	}
	if opts.Runs > 0 {
		rep.Runs = opts.Runs
	}

	rep.Queries = queryIDs(results)
	byEngine := make(map[string]map[string][]result.RunResult, len(results))
	for name, res := range results {
		byEngine[name] = res.ByQuery()
	}

	tally := make(map[string]*EngineTally, len(names))
	for _, name := range names {
		t := &EngineTally{Engine: name}
		if res, ok := results[name]; ok {
			t.Counts = res.Counts()
		}
		tally[name] = t
	}

	for _, q := range rep.Queries {
		row := QueryRow{Query: q}
		best := -1.0
		for _, name := range names {
			runs := byEngine[name][q]
			cell := QuerySummary{
				Engine:         name,
				Query:          q,
				Representative: Representative(runs),
				Stats:          result.StatsFor(runs),
			}
			row.Cells = append(row.Cells, cell)

			if cell.Status() != result.StatusSuccess {
				continue
			}
			elapsed := cell.Representative.Elapsed()
			tally[name].TotalSeconds += elapsed
			// names are sorted, so strict comparison keeps the
			// lexically smallest engine on ties
			if best < 0 || elapsed < best {
				best = elapsed
				row.Winner = name
			}
		}
		if row.Winner != "" {
			tally[row.Winner].Wins++
		}
		rep.Rows = append(rep.Rows, row)
	}

	for _, name := range names {
		rep.Tally = append(rep.Tally, *tally[name])
	}
	sort.SliceStable(rep.Tally, func(i, j int) bool {
		return rep.Tally[i].Wins > rep.Tally[j].Wins
	})

	for _, name := range names {
		res, ok := results[name]
		if !ok {
			continue
		}
		var failed []result.RunResult
		for _, r := range res.Runs {
			if r.Status != result.StatusSuccess {
				failed = append(failed, r)
			}
		}
		if len(failed) == 0 {
			continue
		}
		sort.SliceStable(failed, func(i, j int) bool {
			if failed[i].Query != failed[j].Query {
				return result.LessQueryID(failed[i].Query, failed[j].Query)
			}
			return failed[i].RunIndex < failed[j].RunIndex
		})
		rep.Failures = append(rep.Failures, EngineFailures{Engine: name, Runs: failed})
	}
	return rep
}

// Representative picks the run that stands for a query: the fastest
// successful run, or the last attempted run when none succeeded.
func Representative(runs []result.RunResult) *result.RunResult {
	var rep *result.RunResult
	for i := range runs {
		r := &runs[i]
		if r.Status != result.StatusSuccess {
			continue
		}
		if rep == nil || r.Elapsed() < rep.Elapsed() ||
			(r.Elapsed() == rep.Elapsed() && r.RunIndex < rep.RunIndex) {
			rep = r
		}
	}
	if rep != nil {
		out := *rep
		return &out
	}
	for i := range runs {
		if rep == nil || runs[i].RunIndex > rep.RunIndex {
			rep = &runs[i]
		}
	}
	if rep == nil {
		return nil
	}
	out := *rep
	return &out
}

func engineNames(results map[string]*result.EngineResults, requested []string) []string {
	set := make(map[string]bool, len(results)+len(requested))
	for name := range results {
		set[name] = true
	}
	for _, name := range requested {
		if name != "" {
			set[name] = true
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func queryIDs(results map[string]*result.EngineResults) []string {
	set := make(map[string]bool)
	for _, res := range results {
		for _, q := range res.Header.Queries {
			set[q] = true
		}
		for _, r := range res.Runs {
			set[r.Query] = true
		}
	}
	ids := make([]string, 0, len(set))
	for q := range set {
		ids = append(ids, q)
	}
	sort.Strings(ids)
	result.SortQueryIDs(ids)
	return ids
}
