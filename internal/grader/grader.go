// Package grader implements the GraderClient contract: an async
// code-to-grade interface with a hard deadline and an idempotence
// guarantee on submission_id, plus the fallback-verdict path used when
// the grader times out or errors.
package grader

import (
	"context"
	"errors"
	"time"

	"arena-core/internal/arena"
)

var (
	ErrTimeout     = errors.New("grader: deadline exceeded")
	ErrGraderError = errors.New("grader: upstream error")
)

// Request bundles the inputs to a single grading call.
type Request struct {
	Submission arena.Submission
	Problem    arena.Problem
}

// Client grades a submission against a problem, honoring the deadline
// passed as its own parameter. Implementations must be idempotent on Submission.SubmissionID
// within a match lifetime — a retried call for the same id returns the
// same GradeReport.
type Client interface {
	Grade(ctx context.Context, req Request, deadline time.Time) (arena.GradeReport, error)
}
