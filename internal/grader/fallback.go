package grader

import (
	"context"
	"errors"
	"sync"
	"time"

	"arena-core/internal/arena"
)

// PassRateFunc extracts the fraction of test cases passed for a
// submission, used to derive the fallback correctness criterion. Returns
// 0 if unknown (the problem didn't report partial results).
type PassRateFunc func(req Request) float64

// FallbackClient wraps a Client and substitutes a calibrated fallback
// verdict on timeout or grader error, per spec's degraded-grading
// policy. It also caches reports by submission id so a retried Grade
// call is idempotent even across a fallback substitution, matching the
// GraderClient contract's idempotence guarantee.
type FallbackClient struct {
	inner    Client
	passRate PassRateFunc
	weights  arena.ScoreWeights

	mu     sync.Mutex
	cached map[string]arena.GradeReport
}

func NewFallbackClient(inner Client, passRate PassRateFunc, weights arena.ScoreWeights) *FallbackClient {
	return &FallbackClient{
		inner:    inner,
		passRate: passRate,
		weights:  weights,
		cached:   make(map[string]arena.GradeReport),
	}
}

func (f *FallbackClient) Grade(ctx context.Context, req Request, deadline time.Time) (arena.GradeReport, error) {
	id := req.Submission.SubmissionID

	f.mu.Lock()
	if report, ok := f.cached[id]; ok {
		f.mu.Unlock()
		return report, nil
	}
	f.mu.Unlock()

	report, err := f.inner.Grade(ctx, req, deadline)
	if err != nil {
		var verdict arena.Verdict
		switch {
		case errors.Is(err, ErrTimeout), errors.Is(ctx.Err(), context.DeadlineExceeded):
			verdict = arena.VerdictTimeout
		default:
			verdict = arena.VerdictGraderError
		}
		pct := 0.0
		if f.passRate != nil {
			pct = f.passRate(req)
		}
		report = arena.FallbackReport(id, verdict, pct, f.weights)
	}

	f.mu.Lock()
	f.cached[id] = report
	f.mu.Unlock()
	return report, nil
}

var _ Client = (*FallbackClient)(nil)
