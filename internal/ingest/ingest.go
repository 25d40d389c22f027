// Package ingest reads supplier files (CSV, XLSX, JSON, or a ZIP holding one
// of them) and maps their columns onto canonical records.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/schema"
	"github.com/sells-group/datafixer/internal/textnorm"
)

// Format is an importable file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
	FormatZIP  Format = "zip"
)

func formatOf(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, true
	case ".xlsx":
		return FormatXLSX, true
	case ".json":
		return FormatJSON, true
	case ".zip":
		return FormatZIP, true
	default:
		return "", false
	}
}

// Options tune how a file is read.
type Options struct {
	CSV  CSVOptions
	XLSX XLSXOptions
}

// Table is a file's header and data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadFile reads path into a table. The first row is the header; rows whose
// cells are all blank are dropped.
func ReadFile(ctx context.Context, path string, opts Options) (*Table, error) {
	format, ok := formatOf(path)
	if !ok {
		return nil, eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}

	switch format {
	case FormatZIP:
		dir, err := os.MkdirTemp("", "datafixer-import-*")
		if err != nil {
			return nil, eris.Wrap(err, "ingest: create temp dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck

		inner, err := ExtractSingle(path, dir)
		if err != nil {
			return nil, err
		}
		return ReadFile(ctx, inner, opts)

	case FormatJSON:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return readJSONTable(ctx, f)

	case FormatXLSX:
		rowCh, errCh := StreamXLSX(ctx, path, opts.XLSX)
		return collect(rowCh, errCh)

	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		csvOpts := opts.CSV
		if csvOpts.Delimiter == 0 && strings.EqualFold(filepath.Ext(path), ".tsv") {
			csvOpts.Delimiter = '\t'
		}
		rowCh, errCh := StreamCSV(ctx, f, csvOpts)
		return collect(rowCh, errCh)
	}
}

func collect(rowCh <-chan []string, errCh <-chan error) (*Table, error) {
	t := &Table{}
	first := true
	for row := range rowCh {
		if first {
			t.Header = row
			first = false
			continue
		}
		if blankRow(row) {
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if t.Header == nil {
		return nil, eris.New("ingest: file is empty")
	}
	return t, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Map converts table rows into records using s. Every mapped column must be
// present in the header; blank cells become nil.
func Map(t *Table, s model.Schema) ([]model.Record, error) {
	index := make(map[model.Field]int, len(s.Fields))
	var missing []string
	for _, f := range s.EnabledFields() {
		col := s.Column(f)
		i := columnIndex(t.Header, col)
		if i < 0 {
			missing = append(missing, col)
			continue
		}
		index[f] = i
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("ingest: columns not found in header: %s", strings.Join(missing, ", "))
	}

	records := make([]model.Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(model.Record, len(index))
		for f, i := range index {
			if i >= len(row) {
				continue
			}
			if v := strings.TrimSpace(row[i]); v != "" {
				rec.Set(f, v)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// columnIndex finds col in header, first exactly (case-insensitive), then by
// normalized key.
func columnIndex(header []string, col string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(col)) {
			return i
		}
	}
	key := textnorm.Key(col)
	for i, h := range header {
		if key != "" && textnorm.Key(h) == key {
			return i
		}
	}
	return -1
}

// Load reads path and maps it. With a nil schema only columns named like
// canonical fields are mapped.
func Load(ctx context.Context, path string, s *model.Schema, opts Options) (model.Schema, []model.Record, error) {
	t, err := ReadFile(ctx, path, opts)
	if err != nil {
		return model.Schema{}, nil, err
	}

	var sch model.Schema
	if s != nil {
		sch = *s
	} else {
		sch, err = schema.Canonical(t.Header)
		if err != nil {
			return model.Schema{}, nil, err
		}
		zap.L().Info("ingest: mapped canonical header columns",
			zap.String("path", path),
			zap.Any("fields", sch.Fields),
		)
	}

	records, err := Map(t, sch)
	if err != nil {
		return model.Schema{}, nil, err
	}
	return sch, records, nil
}
