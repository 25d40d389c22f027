package ingest

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects the sheet to read.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// StreamXLSX reads one sheet of an XLSX workbook and sends each row, header
// included, to the row channel. Both channels are closed when reading stops.
func StreamXLSX(ctx context.Context, path string, opts XLSXOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		f, err := xlsx.OpenFile(path)
		if err != nil {
			errCh <- eris.Wrap(err, "xlsx: open file")
			return
		}

		sheet, err := getSheet(f, opts)
		if err != nil {
			errCh <- err
			return
		}

		for _, row := range sheet.Rows {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "xlsx: context cancelled")
				return
			}

			select {
			case rowCh <- rowToStrings(row):
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xlsx: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// getSheet picks the sheet by name, ignoring case and surrounding spaces,
// or by index when no name is given.
func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if want := strings.TrimSpace(opts.SheetName); want != "" {
		names := make([]string, 0, len(f.Sheets))
		for _, sh := range f.Sheets {
			if strings.EqualFold(strings.TrimSpace(sh.Name), want) {
				return sh, nil
			}
			names = append(names, sh.Name)
		}
		return nil, eris.Errorf("xlsx: no sheet %q (have %s)", opts.SheetName, strings.Join(names, ", "))
	}
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet %d of %d requested", opts.SheetIndex+1, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}
