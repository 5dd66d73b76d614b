package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/signalnine/spatialbench/internal/result"
)

// LoadQueriesDir merges query text found under dir into declared.
//
// <dir>/<id>.sql supplies the shared text of query id and
// <dir>/<engine>/<id>.sql supplies a dialect override for that engine.
// Declared queries keep their order; queries that exist only on disk are
// appended in natural order.
func LoadQueriesDir(dir string, declared []Query) ([]Query, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading queries dir: %w", err)
	}

	queries := make([]Query, len(declared))
	copy(queries, declared)
	index := make(map[string]int, len(queries))
	for i, q := range queries {
		index[q.ID] = i
	}
	get := func(id string) *Query {
		if i, ok := index[id]; ok {
			return &queries[i]
		}
		return nil
	}

	var discovered []Query
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		id := queryIDFromFile(e.Name())
		text, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading query %s: %w", id, err)
		}
		if q := get(id); q != nil {
			if strings.TrimSpace(q.SQL) == "" {
				q.SQL = string(text)
			}
			continue
		}
		discovered = append(discovered, Query{ID: id, SQL: string(text)})
	}

	ids := make([]string, len(discovered))
	byID := make(map[string]Query, len(discovered))
	for i, q := range discovered {
		ids[i] = q.ID
		byID[q.ID] = q
	}
	result.SortQueryIDs(ids)
	for _, id := range ids {
		index[id] = len(queries)
		queries = append(queries, byID[id])
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		engine := strings.ToLower(e.Name())
		files, err := filepath.Glob(filepath.Join(dir, e.Name(), "*.sql"))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			q := get(queryIDFromFile(filepath.Base(f)))
			if q == nil {
				continue
			}
			text, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("reading dialect %s: %w", f, err)
			}
			if q.Dialects == nil {
				q.Dialects = map[string]string{}
			}
			if _, ok := q.Dialects[engine]; !ok {
				q.Dialects[engine] = string(text)
			}
		}
	}
	return queries, nil
}

func queryIDFromFile(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, ".sql"))
}
