package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/ingest"
	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/schema"
	"github.com/sells-group/datafixer/internal/store"
)

// importFlags are shared by import, enrich and validate.
type importFlags struct {
	schemaPath string
	name       string
	sheet      string
	delimiter  string
}

func (f *importFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.schemaPath, "schema", "", "YAML schema mapping fields to columns (default: columns named like canonical fields)")
	cmd.Flags().StringVar(&f.name, "name", "", "job name (defaults to the file name)")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "XLSX sheet name (defaults to the first sheet)")
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "", "CSV delimiter (auto-detected when empty)")
}

func (f *importFlags) options() ingest.Options {
	var opts ingest.Options
	opts.XLSX.SheetName = f.sheet
	switch f.delimiter {
	case "":
	case `\t`, "tab":
		opts.CSV.Delimiter = '\t'
	default:
		opts.CSV.Delimiter = []rune(f.delimiter)[0]
	}
	return opts
}

// loadSource reads a local path or http(s) URL and maps it onto records.
func loadSource(ctx context.Context, src string, f *importFlags) (model.Schema, []model.Record, error) {
	var sch *model.Schema
	if f.schemaPath != "" {
		s, err := schema.LoadFile(f.schemaPath)
		if err != nil {
			return model.Schema{}, nil, err
		}
		sch = &s
	}

	path := src
	if ingest.IsURL(src) {
		dir, err := os.MkdirTemp("", "datafixer-download-*")
		if err != nil {
			return model.Schema{}, nil, eris.Wrap(err, "create download dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck

		path, err = ingest.NewDownloader().Download(ctx, src, dir)
		if err != nil {
			return model.Schema{}, nil, err
		}
	}

	return ingest.Load(ctx, path, sch, f.options())
}

// importJob creates a job from src and inserts its rows.
func importJob(ctx context.Context, st store.Store, src string, f *importFlags) (*model.Job, error) {
	sch, records, err := loadSource(ctx, src, f)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, eris.Errorf("no rows found in %s", src)
	}

	name := f.name
	if name == "" {
		name = filepath.Base(src)
	}
	job, err := st.CreateJob(ctx, name, sch)
	if err != nil {
		return nil, eris.Wrap(err, "create job")
	}
	if _, err := st.InsertRows(ctx, job.ID, records); err != nil {
		return nil, eris.Wrap(err, "insert rows")
	}
	job.TotalRows = len(records)

	zap.L().Info("import complete",
		zap.String("job_id", job.ID),
		zap.String("source", src),
		zap.Int("rows", len(records)),
	)
	return job, nil
}

var importOpts importFlags

var importCmd = &cobra.Command{
	Use:   "import <file-or-url>",
	Short: "Import a supplier file as a new job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := importJob(ctx, st, args[0], &importOpts)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

func init() {
	importOpts.register(importCmd)
	rootCmd.AddCommand(importCmd)
}
