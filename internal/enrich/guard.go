package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/metrics"
	"github.com/sells-group/datafixer/internal/resilience"
)

// DefaultTimeout bounds a single adapter call.
const DefaultTimeout = 12 * time.Second

// Guard runs adapters with a timeout, a per-source circuit breaker and panic
// recovery. Any failure degrades to an empty Result.
type Guard struct {
	Timeout  time.Duration
	Breakers *resilience.Breakers
	Metrics  *metrics.Metrics
}

// NewGuard returns a guard. A zero timeout uses DefaultTimeout; nil breakers
// disable circuit breaking.
func NewGuard(timeout time.Duration, breakers *resilience.Breakers, m *metrics.Metrics) *Guard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guard{Timeout: timeout, Breakers: breakers, Metrics: m}
}

// Run calls a.Enrich and never returns an error.
func (g *Guard) Run(ctx context.Context, a Adapter, in Input) (res Result, out Outcome) {
	start := time.Now()
	name := a.Name()
	out.Source = name

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var breaker *resilience.Breaker
	if g.Breakers != nil {
		breaker = g.Breakers.Get(string(name))
	}

	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			out.Err = eris.Errorf("enrich: %s panicked: %v", name, r)
			out.Status = metrics.OutcomePanic
		}
		out.Duration = time.Since(start)
		g.report(ctx, in, &out)
		g.Metrics.ObserveAdapter(string(name), out.Status, start)
		if breaker != nil {
			g.Metrics.SetBreaker(string(name), int(breaker.State()))
		}
	}()

	call := func(ctx context.Context) (Result, error) {
		return a.Enrich(ctx, in)
	}

	var err error
	if breaker != nil {
		res, err = resilience.Call(callCtx, breaker, call)
	} else {
		res, err = call(callCtx)
	}

	switch {
	case err == nil && res.Empty():
		out.Status = metrics.OutcomeEmpty
	case err == nil:
		out.Status = metrics.OutcomeOK
	case eris.Is(err, resilience.ErrOpen):
		out.Status = metrics.OutcomeOpen
	case callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		out.Status = metrics.OutcomeTimeout
	default:
		out.Status = metrics.OutcomeError
	}
	if err != nil {
		out.Err = err
		res = Result{}
	}
	return res, out
}

func (g *Guard) report(ctx context.Context, in Input, out *Outcome) {
	if out.Err == nil {
		return
	}
	log := zap.L().With(
		zap.String("source", string(out.Source)),
		zap.String("row_id", in.RowID),
		zap.String("job_id", in.JobID),
		zap.Duration("duration", out.Duration),
	)
	switch out.Status {
	case metrics.OutcomeOpen:
		log.Debug("enrich: source skipped, circuit open")
	case metrics.OutcomePanic:
		log.Error("enrich: source panicked", zap.String("panic", fmt.Sprint(out.Err)))
	default:
		if ctx.Err() != nil {
			log.Debug("enrich: source cancelled", zap.Error(out.Err))
			return
		}
		log.Warn("enrich: source failed", zap.String("outcome", out.Status), zap.Error(out.Err))
	}
}
