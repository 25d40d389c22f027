// Package store persists jobs, rows and the entity cache in SQLite or Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/datafixer/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; a single connection keeps them in effect
	// and serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	schema       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'imported',
	total_rows   INTEGER NOT NULL DEFAULT 0,
	processed    INTEGER NOT NULL DEFAULT 0,
	enriched     INTEGER NOT NULL DEFAULT 0,
	errored      INTEGER NOT NULL DEFAULT 0,
	needs_review INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS job_rows (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL REFERENCES jobs(id),
	idx        INTEGER NOT NULL,
	record     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'PENDING',
	result     TEXT,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_cache (
	entity_key   TEXT NOT NULL,
	version_tag  TEXT NOT NULL,
	data         TEXT NOT NULL,
	retrieved_at DATETIME NOT NULL,
	ttl_seconds  INTEGER NOT NULL,
	expires_at   DATETIME NOT NULL,
	PRIMARY KEY (entity_key, version_tag)
);

CREATE INDEX IF NOT EXISTS idx_job_rows_job_id ON job_rows(job_id, idx);
CREATE INDEX IF NOT EXISTS idx_job_rows_status ON job_rows(job_id, status);
CREATE INDEX IF NOT EXISTS idx_entity_cache_expires_at ON entity_cache(expires_at);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, name string, schema model.Schema) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal schema")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, name, schema, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, string(schemaJSON), string(model.JobStatusImported), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}

	return &model.Job{
		ID:        id,
		Name:      name,
		Schema:    schema,
		Status:    model.JobStatusImported,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

const jobColumns = `id, name, schema, status, total_rows, processed, enriched, errored, needs_review, created_at, updated_at`

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "job %s", jobID)
	}
	return j, err
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close() //nolint:errcheck

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job status %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) IncrementJobCounters(ctx context.Context, jobID string, d model.BatchResult) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET processed = processed + ?, enriched = enriched + ?, errored = errored + ?,
		 needs_review = needs_review + ?, updated_at = ? WHERE id = ?`,
		d.Processed, d.Enriched, d.Errored, d.NeedsReview, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment job counters %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) ResetJobCounters(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET processed = 0, enriched = 0, errored = 0, needs_review = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: reset job counters %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) InsertRows(ctx context.Context, jobID string, records []model.Record) ([]model.Row, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin insert rows")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO job_rows (id, job_id, idx, record, status, updated_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare insert rows")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	out := make([]model.Row, 0, len(records))
	for i, rec := range records {
		recJSON, err := json.Marshal(rec)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal record")
		}
		r := model.Row{
			ID:        uuid.New().String(),
			JobID:     jobID,
			Index:     i,
			Record:    rec,
			Status:    model.RowStatusPending,
			UpdatedAt: now,
		}
		if _, err := stmt.ExecContext(ctx, r.ID, jobID, i, string(recJSON), string(r.Status), now); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert row %d", i)
		}
		out = append(out, r)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET total_rows = total_rows + ?, updated_at = ? WHERE id = ?`,
		len(records), now, jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: update job total")
	}
	if err := checkRowsAffected(res, "job", jobID); err != nil {
		return nil, err
	}
	return out, eris.Wrap(tx.Commit(), "sqlite: commit insert rows")
}

const rowColumns = `id, job_id, idx, record, status, result, updated_at`

func (s *SQLiteStore) GetRow(ctx context.Context, rowID string) (*model.Row, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rowColumns+` FROM job_rows WHERE id = ?`, rowID)
	r, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "row %s", rowID)
	}
	return r, err
}

func (s *SQLiteStore) ListRows(ctx context.Context, jobID string, filter RowFilter) ([]model.Row, error) {
	query := `SELECT ` + rowColumns + ` FROM job_rows WHERE job_id = ?`
	args := []any{jobID}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY idx`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rows")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list rows iterate")
}

func (s *SQLiteStore) ListRowIDs(ctx context.Context, jobID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM job_rows WHERE job_id = ? ORDER BY idx`, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list row ids")
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan row id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list row ids iterate")
}

func (s *SQLiteStore) UpdateRowStatus(ctx context.Context, rowID string, status model.RowStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_rows SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), rowID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update row status %s", rowID)
	}
	return checkRowsAffected(res, "row", rowID)
}

func (s *SQLiteStore) SaveRowResult(ctx context.Context, rowID string, result *model.RowResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal row result")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_rows SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(result.Status), time.Now().UTC(), rowID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save row result %s", rowID)
	}
	return checkRowsAffected(res, "row", rowID)
}

func (s *SQLiteStore) GetEntry(ctx context.Context, key, versionTag string) (*model.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT entity_key, version_tag, data, retrieved_at, ttl_seconds FROM entity_cache
		 WHERE entity_key = ? AND version_tag = ? AND expires_at > ?`,
		key, versionTag, time.Now().UTC(),
	)

	var e model.CacheEntry
	var data string
	var ttl int64
	err := row.Scan(&e.Key, &e.VersionTag, &data, &e.RetrievedAt, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cache entry")
	}
	e.TTL = time.Duration(ttl) * time.Second
	if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cache entry")
	}
	return &e, nil
}

func (s *SQLiteStore) PutEntry(ctx context.Context, e model.CacheEntry) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cache entry")
	}
	retrieved := e.RetrievedAt.UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entity_cache (entity_key, version_tag, data, retrieved_at, ttl_seconds, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (entity_key, version_tag) DO UPDATE SET
		   data = excluded.data, retrieved_at = excluded.retrieved_at,
		   ttl_seconds = excluded.ttl_seconds, expires_at = excluded.expires_at`,
		e.Key, e.VersionTag, string(data), retrieved, int64(e.TTL/time.Second), retrieved.Add(e.TTL),
	)
	return eris.Wrap(err, "sqlite: put cache entry")
}

func (s *SQLiteStore) DeleteExpiredEntries(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entity_cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired entries")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	var schemaJSON string
	err := row.Scan(&j.ID, &j.Name, &schemaJSON, &j.Status, &j.TotalRows,
		&j.Processed, &j.Enriched, &j.Errored, &j.NeedsReview, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}
	if err := json.Unmarshal([]byte(schemaJSON), &j.Schema); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal schema")
	}
	return &j, nil
}

func scanRow(row scannable) (*model.Row, error) {
	var r model.Row
	var recJSON string
	var resultJSON sql.NullString
	err := row.Scan(&r.ID, &r.JobID, &r.Index, &recJSON, &r.Status, &resultJSON, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan row")
	}
	if err := json.Unmarshal([]byte(recJSON), &r.Record); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal record")
	}
	if resultJSON.Valid {
		r.Result = &model.RowResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal row result")
		}
	}
	return &r, nil
}
