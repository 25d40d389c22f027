// Package reconcile drives a row through validation, enrichment, merge and
// gated write-back, and runs whole jobs in bounded parallel batches.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/datafixer/internal/cache"
	"github.com/sells-group/datafixer/internal/enrich"
	"github.com/sells-group/datafixer/internal/merge"
	"github.com/sells-group/datafixer/internal/metrics"
	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/textnorm"
	"github.com/sells-group/datafixer/internal/validate"
)

// MaxNameCandidates bounds the candidates reported per row.
const MaxNameCandidates = 3

// RecordResolver loads and persists the rows the engine works on.
type RecordResolver interface {
	Get(ctx context.Context, rowID string) (model.Record, error)
	Save(ctx context.Context, rowID string, result *model.RowResult) error
	SaveStatus(ctx context.Context, rowID string, status model.RowStatus) error
}

// ProgressCounter receives per-row tallies while a job runs.
type ProgressCounter interface {
	Increment(ctx context.Context, jobID string, delta model.BatchResult) error
}

// Adapters are the enrichment sources, in merge priority order. A nil adapter
// is skipped.
type Adapters struct {
	VAT      enrich.Adapter
	Registry enrich.Adapter
	Sibling  enrich.Adapter
	Search   enrich.Adapter
	LLM      enrich.Adapter
}

// Options tune the engine.
type Options struct {
	Threshold     float64
	CacheVersion  string
	CacheTTL      time.Duration
	MaxCandidates int
}

// Deps are the collaborators of an Engine. Cache, Progress, Guard and Metrics
// are optional.
type Deps struct {
	Resolver RecordResolver
	Cache    cache.Store
	Progress ProgressCounter
	Adapters Adapters
	Guard    *enrich.Guard
	Metrics  *metrics.Metrics
}

// Engine reconciles rows. It is safe for concurrent use.
type Engine struct {
	resolver RecordResolver
	cache    cache.Store
	progress ProgressCounter
	adapters Adapters
	guard    *enrich.Guard
	metrics  *metrics.Metrics
	opts     Options
	now      func() time.Time
}

// NewEngine creates an Engine, filling zero options with defaults.
func NewEngine(deps Deps, opts Options) *Engine {
	if opts.Threshold <= 0 {
		opts.Threshold = merge.DefaultThreshold
	}
	if opts.CacheVersion == "" {
		opts.CacheVersion = cache.DefaultVersion
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cache.DefaultTTL
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = MaxNameCandidates
	}
	guard := deps.Guard
	if guard == nil {
		guard = enrich.NewGuard(0, nil, deps.Metrics)
	}
	return &Engine{
		resolver: deps.Resolver,
		cache:    deps.Cache,
		progress: deps.Progress,
		adapters: deps.Adapters,
		guard:    guard,
		metrics:  deps.Metrics,
		opts:     opts,
		now:      time.Now,
	}
}

// sourceSet collects what each adapter returned for one row.
type sourceSet struct {
	vat, registry, sibling, search, llm enrich.Result
	vatRan, registryRan                 bool
}

func (s *sourceSet) all() []enrich.Result {
	return []enrich.Result{s.vat, s.registry, s.sibling, s.search, s.llm}
}

// ProcessRow reconciles one row of job and persists the result. An error is
// returned only when the row could not be loaded or saved.
func (e *Engine) ProcessRow(ctx context.Context, job *model.Job, rowID string) (*model.RowResult, error) {
	start := e.now()
	log := zap.L().With(zap.String("job_id", job.ID), zap.String("row_id", rowID))

	raw, err := e.resolver.Get(ctx, rowID)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: load row %s", rowID)
	}

	checked := validate.Validate(raw, job.Schema)
	base := checked.Record
	if err := e.resolver.SaveStatus(ctx, rowID, model.RowStatusValidated); err != nil {
		return nil, eris.Wrapf(err, "reconcile: mark row %s validated", rowID)
	}

	result := &model.RowResult{
		RowID:  rowID,
		Record: base,
		Issues: checked.Issues,
		Status: model.RowStatusValidated,
	}

	if !needsEnrichment(base, checked.Issues, job.Schema) {
		log.Debug("reconcile: row clean, skipping enrichment")
		return e.finish(ctx, log, result, start)
	}

	in := enrich.Input{
		RowID:  rowID,
		JobID:  job.ID,
		Record: base,
		Issues: checked.Issues,
		Schema: job.Schema,
	}

	var src sourceSet
	working := e.preResolve(ctx, in, &src)
	in.Record = working

	key := cache.Key(working.Get(model.FieldCompanyName), working.Get(model.FieldCountry))
	cached := e.lookup(ctx, log, key)

	var bySource [][]model.FieldChange
	if cached != nil {
		result.CacheHit = true
		bySource = [][]model.FieldChange{src.vat.Changes, src.registry.Changes, cached.Data}
	} else {
		e.fanOut(ctx, in, &src)
		bySource = [][]model.FieldChange{src.vat.Changes, src.registry.Changes, src.sibling.Changes, src.llm.Changes}
	}

	var flags []model.FieldChange
	for i, set := range bySource {
		f, rest := splitVATFlags(set)
		flags = append(flags, f...)
		bySource[i] = merge.DropNoOps(rest, base)
	}
	changes := merge.Merge(bySource...)

	if cached == nil && key != "" && len(changes)+len(flags) > 0 {
		e.store(ctx, log, key, append(append([]model.FieldChange{}, flags...), changes...))
	}
	// A cached entry may carry the verdict on another row's id.
	flags = flagsFor(flags, base)

	changes = merge.FilterSchema(changes, job.Schema)
	final, applied := merge.Apply(base, changes, e.opts.Threshold)
	for _, c := range applied {
		e.metrics.ChangeApplied(string(c.Field))
	}

	// Corrections made by re-validation are kept in the output record.
	revalidated := validate.Validate(final, job.Schema)
	issues := carryIssues(checked.Issues, base, final, revalidated.Issues)
	for _, f := range flags {
		issues = appendIssue(issues, vatInvalidIssue(f, base))
	}
	for _, is := range src.llm.Issues {
		if job.Schema.Enabled(is.Field) {
			issues = appendIssue(issues, is)
		}
	}

	result.Record = revalidated.Record
	result.Issues = issues
	result.Changes = changes
	result.NameCandidates = rankCandidates(src.all(), e.opts.MaxCandidates)
	if src.llm.Review != nil {
		result.ReviewReason = src.llm.Review.Reason
	}

	switch {
	case model.HasSeverity(issues, model.SeverityError):
		result.Status = model.RowStatusNeedsReview
	case src.llm.Review != nil:
		result.Status = model.RowStatusNeedsReview
		log.Info("reconcile: review requested", zap.String("reason", src.llm.Review.Reason))
	case merge.Real(changes):
		result.Status = model.RowStatusEnriched
	default:
		result.Status = model.RowStatusValidated
	}

	log.Debug("reconcile: row reconciled",
		zap.Int("proposed", len(changes)),
		zap.Int("applied", len(applied)),
		zap.Bool("cache_hit", result.CacheHit),
	)
	return e.finish(ctx, log, result, start)
}

func (e *Engine) finish(ctx context.Context, log *zap.Logger, result *model.RowResult, start time.Time) (*model.RowResult, error) {
	if err := e.resolver.Save(ctx, result.RowID, result); err != nil {
		return nil, eris.Wrapf(err, "reconcile: save row %s", result.RowID)
	}
	e.metrics.ObserveRow(string(result.Status), start)
	log.Info("reconcile: row done",
		zap.String("status", string(result.Status)),
		zap.Int("changes", len(result.Changes)),
		zap.Int("issues", len(result.Issues)),
	)
	return result, nil
}

// needsEnrichment reports whether a mapped field is empty or an issue of at
// least WARNING severity is open.
func needsEnrichment(rec model.Record, issues []model.Issue, schema model.Schema) bool {
	for _, f := range schema.EnabledFields() {
		if !rec.Has(f) {
			return true
		}
	}
	return model.HasSeverity(issues, model.SeverityWarning)
}

// preResolve looks the entity up by identifier when the name is missing, so
// the cache key, siblings and search all see a name. The returned record is
// the working copy with the best proposed name injected.
func (e *Engine) preResolve(ctx context.Context, in enrich.Input, src *sourceSet) model.Record {
	rec := in.Record
	if rec.Has(model.FieldCompanyName) {
		return rec
	}
	if !rec.Has(model.FieldVATID) && !rec.Has(model.FieldRegistrationID) {
		return rec
	}

	var g errgroup.Group
	if e.adapters.VAT != nil {
		src.vatRan = true
		g.Go(func() error {
			src.vat, _ = e.guard.Run(ctx, e.adapters.VAT, in)
			return nil
		})
	}
	if e.adapters.Registry != nil {
		src.registryRan = true
		g.Go(func() error {
			src.registry, _ = e.guard.Run(ctx, e.adapters.Registry, in)
			return nil
		})
	}
	_ = g.Wait()

	var best *model.FieldChange
	for _, res := range []enrich.Result{src.vat, src.registry} {
		for i := range res.Changes {
			c := &res.Changes[i]
			if c.Field != model.FieldCompanyName || c.Proposed() == "" {
				continue
			}
			if best == nil || c.Confidence > best.Confidence {
				best = c
			}
		}
	}
	if best == nil {
		return rec
	}

	working := rec.Clone()
	working.Set(model.FieldCompanyName, best.Proposed())
	zap.L().Debug("reconcile: name resolved from identifier",
		zap.String("row_id", in.RowID),
		zap.String("name", best.Proposed()),
		zap.Float64("confidence", best.Confidence),
	)
	return working
}

// fanOut runs the stage-one sources concurrently and then the language model
// with their evidence. Sources already consulted during pre-resolution are
// not called again.
func (e *Engine) fanOut(ctx context.Context, in enrich.Input, src *sourceSet) {
	var g errgroup.Group
	run := func(a enrich.Adapter, dst *enrich.Result) {
		if a == nil {
			return
		}
		g.Go(func() error {
			*dst, _ = e.guard.Run(ctx, a, in)
			return nil
		})
	}
	if !src.vatRan {
		run(e.adapters.VAT, &src.vat)
	}
	if !src.registryRan {
		run(e.adapters.Registry, &src.registry)
	}
	run(e.adapters.Sibling, &src.sibling)
	run(e.adapters.Search, &src.search)
	_ = g.Wait()

	if e.adapters.LLM == nil {
		return
	}
	in.Snippets = src.search.Snippets
	in.VAT = src.vat.VAT
	src.llm, _ = e.guard.Run(ctx, e.adapters.LLM, in)
}

func (e *Engine) lookup(ctx context.Context, log *zap.Logger, key string) *model.CacheEntry {
	if e.cache == nil || key == "" {
		e.metrics.CacheLookup(metrics.CacheSkip)
		return nil
	}
	entry, err := e.cache.GetEntry(ctx, key, e.opts.CacheVersion)
	if err != nil {
		log.Warn("reconcile: cache lookup failed", zap.String("key", key), zap.Error(err))
		e.metrics.CacheLookup(metrics.CacheError)
		return nil
	}
	if !cache.Fresh(entry, e.opts.CacheVersion, e.now()) {
		e.metrics.CacheLookup(metrics.CacheMiss)
		return nil
	}
	e.metrics.CacheLookup(metrics.CacheHit)
	return entry
}

func (e *Engine) store(ctx context.Context, log *zap.Logger, key string, changes []model.FieldChange) {
	if e.cache == nil {
		return
	}
	err := e.cache.PutEntry(ctx, model.CacheEntry{
		Key:         key,
		VersionTag:  e.opts.CacheVersion,
		Data:        changes,
		RetrievedAt: e.now().UTC(),
		TTL:         e.opts.CacheTTL,
	})
	if err != nil {
		log.Warn("reconcile: cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// splitVATFlags separates registry "id invalid" verifications from the
// change set.
func splitVATFlags(changes []model.FieldChange) (flags, rest []model.FieldChange) {
	for _, c := range changes {
		if enrich.IsVATInvalid(c) {
			flags = append(flags, c)
			continue
		}
		rest = append(rest, c)
	}
	return flags, rest
}

// flagsFor keeps the flags raised on the id rec actually carries.
func flagsFor(flags []model.FieldChange, rec model.Record) []model.FieldChange {
	var out []model.FieldChange
	for _, f := range flags {
		if validate.NormalizeVAT(f.Proposed()) == validate.NormalizeVAT(rec.Get(f.Field)) {
			out = append(out, f)
		}
	}
	return out
}

func vatInvalidIssue(flag model.FieldChange, rec model.Record) model.Issue {
	return model.Issue{
		Field:         flag.Field,
		OriginalValue: rec.Ptr(flag.Field),
		Type:          model.IssueInvalid,
		Severity:      model.SeverityWarning,
		Message:       fmt.Sprintf("%s is not registered as an active VAT number", rec.Get(flag.Field)),
	}
}

// carryIssues keeps the issues raised on the loaded record for fields that
// enrichment left untouched, followed by what re-validation of the final
// record raises.
func carryIssues(initial []model.Issue, base, final model.Record, revalidated []model.Issue) []model.Issue {
	out := make([]model.Issue, 0, len(initial)+len(revalidated))
	for _, is := range initial {
		if final.Get(is.Field) != base.Get(is.Field) {
			continue
		}
		out = append(out, is)
	}
	for _, is := range revalidated {
		out = appendIssue(out, is)
	}
	return out
}

// appendIssue adds is unless an issue of the same type is already open on
// the field.
func appendIssue(issues []model.Issue, is model.Issue) []model.Issue {
	for _, existing := range issues {
		if existing.Field == is.Field && existing.Type == is.Type {
			return issues
		}
	}
	return append(issues, is)
}

// rankCandidates merges name candidates from all sources, keeping the highest
// confidence per normalized name.
func rankCandidates(results []enrich.Result, limit int) []model.NameCandidate {
	best := make(map[string]model.NameCandidate)
	var order []string
	for _, res := range results {
		for _, c := range res.Candidates {
			k := textnorm.Key(c.Name)
			if k == "" {
				continue
			}
			existing, ok := best[k]
			if !ok {
				order = append(order, k)
			}
			if !ok || c.Confidence > existing.Confidence {
				best[k] = c
			}
		}
	}

	out := make([]model.NameCandidate, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
