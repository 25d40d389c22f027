package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/datafixer/internal/db"
	"github.com/sells-group/datafixer/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements are prepared on each new connection for the hot paths
// of a running job.
var preparedStatements = map[string]string{
	"get_row":         `SELECT ` + rowColumns + ` FROM job_rows WHERE id = $1`,
	"update_row":      `UPDATE job_rows SET status = $1, updated_at = $2 WHERE id = $3`,
	"save_row_result": `UPDATE job_rows SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_entry":       `SELECT entity_key, version_tag, data, retrieved_at, ttl_seconds FROM entity_cache WHERE entity_key = $1 AND version_tag = $2 AND expires_at > now()`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	schema       JSONB NOT NULL,
	status       TEXT NOT NULL DEFAULT 'imported',
	total_rows   INTEGER NOT NULL DEFAULT 0,
	processed    BIGINT NOT NULL DEFAULT 0,
	enriched     BIGINT NOT NULL DEFAULT 0,
	errored      BIGINT NOT NULL DEFAULT 0,
	needs_review BIGINT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS job_rows (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL REFERENCES jobs(id),
	idx        INTEGER NOT NULL,
	record     JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'PENDING',
	result     JSONB,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entity_cache (
	entity_key   TEXT NOT NULL,
	version_tag  TEXT NOT NULL,
	data         JSONB NOT NULL,
	retrieved_at TIMESTAMPTZ NOT NULL,
	ttl_seconds  BIGINT NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (entity_key, version_tag)
);

CREATE INDEX IF NOT EXISTS idx_job_rows_job_id ON job_rows(job_id, idx);
CREATE INDEX IF NOT EXISTS idx_job_rows_status ON job_rows(job_id, status);
CREATE INDEX IF NOT EXISTS idx_entity_cache_expires_at ON entity_cache(expires_at);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, name string, schema model.Schema) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal schema")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, name, schema, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, name, schemaJSON, string(model.JobStatusImported), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
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

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	j, err := scanPgJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "job %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) exec(ctx context.Context, entity, id, op, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: %s %s", op, id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error {
	return s.exec(ctx, "job", jobID, "update job status",
		`UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), jobID,
	)
}

func (s *PostgresStore) IncrementJobCounters(ctx context.Context, jobID string, d model.BatchResult) error {
	return s.exec(ctx, "job", jobID, "increment job counters",
		`UPDATE jobs SET processed = processed + $1, enriched = enriched + $2, errored = errored + $3,
		 needs_review = needs_review + $4, updated_at = $5 WHERE id = $6`,
		d.Processed, d.Enriched, d.Errored, d.NeedsReview, time.Now().UTC(), jobID,
	)
}

func (s *PostgresStore) ResetJobCounters(ctx context.Context, jobID string) error {
	return s.exec(ctx, "job", jobID, "reset job counters",
		`UPDATE jobs SET processed = 0, enriched = 0, errored = 0, needs_review = 0, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), jobID,
	)
}

// InsertRows bulk-loads records with COPY and bumps the job's row total in
// the same transaction.
func (s *PostgresStore) InsertRows(ctx context.Context, jobID string, records []model.Record) ([]model.Row, error) {
	now := time.Now().UTC()
	out := make([]model.Row, 0, len(records))
	data := make([][]any, 0, len(records))
	for i, rec := range records {
		recJSON, err := json.Marshal(rec)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal record")
		}
		r := model.Row{
			ID:        uuid.New().String(),
			JobID:     jobID,
			Index:     i,
			Record:    rec,
			Status:    model.RowStatusPending,
			UpdatedAt: now,
		}
		out = append(out, r)
		data = append(data, []any{r.ID, jobID, i, recJSON, string(r.Status), now})
	}

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"job_rows"},
			[]string{"id", "job_id", "idx", "record", "status", "updated_at"},
			pgx.CopyFromRows(data)); err != nil {
			return eris.Wrap(err, "postgres: copy rows")
		}
		tag, err := tx.Exec(ctx,
			`UPDATE jobs SET total_rows = total_rows + $1, updated_at = $2 WHERE id = $3`,
			len(records), now, jobID,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: update job total")
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrNotFound, "job %s", jobID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) GetRow(ctx context.Context, rowID string) (*model.Row, error) {
	r, err := scanPgRow(s.pool.QueryRow(ctx, `SELECT `+rowColumns+` FROM job_rows WHERE id = $1`, rowID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "row %s", rowID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get row %s", rowID)
	}
	return r, nil
}

func (s *PostgresStore) ListRows(ctx context.Context, jobID string, filter RowFilter) ([]model.Row, error) {
	query := `SELECT ` + rowColumns + ` FROM job_rows WHERE job_id = $1`
	args := []any{jobID}
	argIdx := 2

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY idx`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rows")
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		r, err := scanPgRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan row")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list rows iterate")
}

func (s *PostgresStore) ListRowIDs(ctx context.Context, jobID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM job_rows WHERE job_id = $1 ORDER BY idx`, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list row ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan row id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list row ids iterate")
}

func (s *PostgresStore) UpdateRowStatus(ctx context.Context, rowID string, status model.RowStatus) error {
	return s.exec(ctx, "row", rowID, "update row status",
		`UPDATE job_rows SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), rowID,
	)
}

func (s *PostgresStore) SaveRowResult(ctx context.Context, rowID string, result *model.RowResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal row result")
	}
	return s.exec(ctx, "row", rowID, "save row result",
		`UPDATE job_rows SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(result.Status), time.Now().UTC(), rowID,
	)
}

func (s *PostgresStore) GetEntry(ctx context.Context, key, versionTag string) (*model.CacheEntry, error) {
	var e model.CacheEntry
	var data []byte
	var ttl int64
	err := s.pool.QueryRow(ctx,
		`SELECT entity_key, version_tag, data, retrieved_at, ttl_seconds FROM entity_cache
		 WHERE entity_key = $1 AND version_tag = $2 AND expires_at > now()`,
		key, versionTag,
	).Scan(&e.Key, &e.VersionTag, &data, &e.RetrievedAt, &ttl)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cache entry")
	}
	e.TTL = time.Duration(ttl) * time.Second
	if err := json.Unmarshal(data, &e.Data); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cache entry")
	}
	return &e, nil
}

func (s *PostgresStore) PutEntry(ctx context.Context, e model.CacheEntry) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cache entry")
	}
	retrieved := e.RetrievedAt.UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO entity_cache (entity_key, version_tag, data, retrieved_at, ttl_seconds, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (entity_key, version_tag) DO UPDATE SET
		   data = EXCLUDED.data, retrieved_at = EXCLUDED.retrieved_at,
		   ttl_seconds = EXCLUDED.ttl_seconds, expires_at = EXCLUDED.expires_at`,
		e.Key, e.VersionTag, data, retrieved, int64(e.TTL/time.Second), retrieved.Add(e.TTL),
	)
	return eris.Wrap(err, "postgres: put cache entry")
}

func (s *PostgresStore) DeleteExpiredEntries(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM entity_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired entries")
	}
	return int(tag.RowsAffected()), nil
}

func scanPgJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var schemaJSON []byte
	var status string
	if err := row.Scan(&j.ID, &j.Name, &schemaJSON, &status, &j.TotalRows,
		&j.Processed, &j.Enriched, &j.Errored, &j.NeedsReview, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)
	if err := json.Unmarshal(schemaJSON, &j.Schema); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal schema")
	}
	return &j, nil
}

func scanPgRow(row pgx.Row) (*model.Row, error) {
	var r model.Row
	var recJSON []byte
	var resultJSON *[]byte
	var status string
	if err := row.Scan(&r.ID, &r.JobID, &r.Index, &recJSON, &status, &resultJSON, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RowStatus(status)
	if err := json.Unmarshal(recJSON, &r.Record); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal record")
	}
	if resultJSON != nil {
		r.Result = &model.RowResult{}
		if err := json.Unmarshal(*resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal row result")
		}
	}
	return &r, nil
}
