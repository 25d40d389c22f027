package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/ingest"
	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/schema"
	"github.com/sells-group/datafixer/internal/store"
	"github.com/sells-group/datafixer/internal/validate"
)

const (
	maxBodyBytes  = 32 << 20
	maxRowsPerJob = 100_000
	defaultLimit  = 100
	maxLimit      = 1000
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeStoreError maps store errors onto responses.
func writeStoreError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	zap.L().Error("api: store error", zap.String("entity", what), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createJobRequest carries rows keyed by source column. Without a schema,
// only keys named like canonical fields are mapped.
type createJobRequest struct {
	Name   string           `json:"name"`
	Schema json.RawMessage  `json:"schema,omitempty"`
	Rows   []map[string]any `json:"rows"`
}

type createJobResponse struct {
	Job  *model.Job `json:"job"`
	Rows int        `json:"rows"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "rows are required")
		return
	}
	if len(req.Rows) > maxRowsPerJob {
		writeError(w, http.StatusRequestEntityTooLarge, "too many rows")
		return
	}

	table := ingest.TableFromObjects(req.Rows)

	var sch model.Schema
	var err error
	if len(req.Schema) > 0 && string(req.Schema) != "null" {
		// JSON is valid YAML, so the schema file parser applies as is.
		sch, err = schema.Parse(req.Schema)
	} else {
		sch, err = schema.Canonical(table.Header)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := ingest.Map(table, sch)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	job, err := s.store.CreateJob(ctx, req.Name, sch)
	if err != nil {
		writeStoreError(w, err, "job")
		return
	}
	rows, err := s.store.InsertRows(ctx, job.ID, records)
	if err != nil {
		writeStoreError(w, err, "job")
		return
	}
	job.TotalRows = len(rows)

	zap.L().Info("api: job created",
		zap.String("job_id", job.ID),
		zap.String("name", job.Name),
		zap.Int("rows", len(rows)),
	)
	writeJSON(w, http.StatusCreated, createJobResponse{Job: job, Rows: len(rows)})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", defaultLimit)
	if !ok {
		return
	}
	jobs, err := s.store.ListJobs(r.Context(), min(limit, maxLimit))
	if err != nil {
		writeStoreError(w, err, "jobs")
		return
	}
	if jobs == nil {
		jobs = []model.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeStoreError(w, err, "job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, err := s.store.GetJob(r.Context(), jobID); err != nil {
		writeStoreError(w, err, "job")
		return
	}
	if !s.startRun(jobID) {
		writeError(w, http.StatusConflict, "job is already running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "job_id": jobID})
}

func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	filter := store.RowFilter{}

	if v := r.URL.Query().Get("status"); v != "" {
		status, ok := model.ParseRowStatus(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown status "+v)
			return
		}
		filter.Status = status
	}
	limit, ok := queryInt(w, r, "limit", defaultLimit)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}
	filter.Limit = min(limit, maxLimit)
	filter.Offset = offset

	ctx := r.Context()
	if _, err := s.store.GetJob(ctx, jobID); err != nil {
		writeStoreError(w, err, "job")
		return
	}
	rows, err := s.store.ListRows(ctx, jobID, filter)
	if err != nil {
		writeStoreError(w, err, "rows")
		return
	}
	if rows == nil {
		rows = []model.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetRow(w http.ResponseWriter, r *http.Request) {
	row, err := s.store.GetRow(r.Context(), chi.URLParam(r, "rowID"))
	if err != nil {
		writeStoreError(w, err, "row")
		return
	}
	if row.JobID != chi.URLParam(r, "jobID") {
		writeError(w, http.StatusNotFound, "row not found")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// validateRequest holds one record keyed by canonical field. Fields lists the
// enabled fields; it defaults to the record's keys.
type validateRequest struct {
	Record map[string]*string `json:"record"`
	Fields []string           `json:"fields,omitempty"`
}

type validateResponse struct {
	Record model.Record  `json:"record"`
	Issues []model.Issue `json:"issues"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Record) == 0 {
		writeError(w, http.StatusBadRequest, "record is required")
		return
	}

	rec := make(model.Record, len(req.Record))
	for name, v := range req.Record {
		f, err := model.ParseField(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rec[f] = v
	}

	names := req.Fields
	if len(names) == 0 {
		for f := range rec {
			names = append(names, string(f))
		}
	}
	sch, err := schema.FromFields(names)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := validate.Validate(rec, sch)
	issues := res.Issues
	if issues == nil {
		issues = []model.Issue{}
	}
	writeJSON(w, http.StatusOK, validateResponse{Record: res.Record, Issues: issues})
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}
