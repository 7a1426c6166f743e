package providers

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/opensoc/notebooklets/pkg/timespan"
	"github.com/opensoc/notebooklets/pkg/types"
)

// LocalDataConfig maps query names to CSV files under a base directory.
// When a query has no explicit mapping, "<query name>.csv" is used.
type LocalDataConfig struct {
	Path     string            `yaml:"path"`
	QueryMap map[string]string `yaml:"query_map,omitempty"`
}

// LocalData is a QueryProvider that serves canned CSV data from disk.
// It backs offline runs and tests; the timespan is accepted but not
// applied to the canned rows.
type LocalData struct {
	log logrus.FieldLogger
	cfg LocalDataConfig
}

// NewLocalData creates a LocalData provider rooted at cfg.Path.
func NewLocalData(log logrus.FieldLogger, cfg LocalDataConfig) (*LocalData, error) {
	info, err := os.Stat(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("localdata: checking path %q: %w", cfg.Path, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("localdata: path %q is not a directory", cfg.Path)
	}

	return &LocalData{
		log: log.WithField("component", "localdata_provider"),
		cfg: cfg,
	}, nil
}

// Name implements Provider.
func (l *LocalData) Name() string { return "localdata" }

// Query implements QueryProvider. An unmapped query with no matching
// file returns an empty table, mirroring the no-rows contract of the
// live backends.
func (l *LocalData) Query(
	_ context.Context,
	name string,
	_ timespan.TimeSpan,
	_ map[string]any,
) (*types.Table, error) {
	file, ok := l.cfg.QueryMap[name]
	if !ok {
		file = name + ".csv"
	}

	path := filepath.Join(l.cfg.Path, file)

	fh, err := os.Open(path)
	if os.IsNotExist(err) {
		l.log.WithField("query", name).Debug("No local data file, returning empty table")

		return types.NewTable(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("localdata: opening %q: %w", path, err)
	}
	defer fh.Close()

	reader := csv.NewReader(fh)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("localdata: reading %q: %w", path, err)
	}

	if len(records) == 0 {
		return types.NewTable(), nil
	}

	table := types.NewTable(records[0]...)

	for _, record := range records[1:] {
		row := make([]any, len(record))
		for i, cell := range record {
			row[i] = cell
		}

		table.Rows = append(table.Rows, row)
	}

	return table, nil
}
