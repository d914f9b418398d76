package grader

import (
	"context"
	"testing"
	"time"

	"arena-core/internal/arena"
)

type stubClient struct {
	err    error
	report arena.GradeReport
	calls  int
}

func (s *stubClient) Grade(ctx context.Context, req Request, deadline time.Time) (arena.GradeReport, error) {
	s.calls++
	if s.err != nil {
		return arena.GradeReport{}, s.err
	}
	return s.report, nil
}

func TestFallbackClientSubstitutesOnTimeout(t *testing.T) {
	stub := &stubClient{err: ErrTimeout}
	fc := NewFallbackClient(stub, func(req Request) float64 { return 0.75 }, arena.DefaultScoreWeights)

	req := Request{
		Submission: arena.Submission{SubmissionID: "sub-a"},
		Problem:    arena.Problem{ProblemID: "p1"},
	}
	report, err := fc.Grade(context.Background(), req, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Verdict != arena.VerdictTimeout {
		t.Fatalf("verdict = %v, want timeout", report.Verdict)
	}
	if int(report.ScoreTotal) != 58 {
		t.Fatalf("score = %v, want 58", report.ScoreTotal)
	}
}

func TestFallbackClientIdempotentOnRetry(t *testing.T) {
	stub := &stubClient{err: ErrGraderError}
	fc := NewFallbackClient(stub, func(req Request) float64 { return 1.0 }, arena.DefaultScoreWeights)

	req := Request{Submission: arena.Submission{SubmissionID: "sub-b"}}
	first, _ := fc.Grade(context.Background(), req, time.Now().Add(time.Second))
	second, _ := fc.Grade(context.Background(), req, time.Now().Add(time.Second))

	if first != second {
		t.Fatalf("expected identical cached report, got %+v vs %+v", first, second)
	}
	if stub.calls != 1 {
		t.Fatalf("inner client called %d times, want 1 (idempotent cache hit)", stub.calls)
	}
}

func TestFallbackClientPassesThroughSuccess(t *testing.T) {
	want := arena.GradeReport{SubmissionID: "sub-c", ScoreTotal: 92, Verdict: arena.VerdictOK}
	stub := &stubClient{report: want}
	fc := NewFallbackClient(stub, nil, arena.DefaultScoreWeights)

	got, err := fc.Grade(context.Background(), Request{Submission: arena.Submission{SubmissionID: "sub-c"}}, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
