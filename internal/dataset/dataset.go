// Package dataset locates the benchmark tables inside a data directory.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Tables of the spatial benchmark schema.
var Tables = []string{"building", "customer", "driver", "trip", "vehicle", "zone"}

var ErrNoTables = errors.New("no benchmark tables found")

// Discover maps each table to the path engines should read it from.
//
// A table may be stored as a directory of parquet parts (<dir>/trip/),
// a single file (<dir>/trip.parquet), or any file matching
// <dir>/trip*.parquet; the first layout found wins. Tables that are not
// found are left out of the map.
func Discover(dir string) (map[string]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("reading data dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data dir %s is not a directory", dir)
	}

	paths := make(map[string]string, len(Tables))
	for _, table := range Tables {
		tablePath := filepath.Join(dir, table)
		if fi, err := os.Stat(tablePath); err == nil && fi.IsDir() {
			paths[table] = tablePath
			continue
		}
		single := tablePath + ".parquet"
		if _, err := os.Stat(single); err == nil {
			paths[table] = single
			continue
		}
		matches, err := filepath.Glob(tablePath + "*.parquet")
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			sort.Strings(matches)
			paths[table] = matches[0]
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoTables, dir)
	}
	return paths, nil
}

// Missing returns the schema tables absent from paths.
func Missing(paths map[string]string) []string {
	var missing []string
	for _, t := range Tables {
		if _, ok := paths[t]; !ok {
			missing = append(missing, t)
		}
	}
	return missing
}

// Pattern returns a glob that reads every parquet part of a table path:
// <path>/*.parquet for directories, the path itself otherwise.
func Pattern(path string) string {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return filepath.Join(path, "*.parquet")
	}
	return path
}
