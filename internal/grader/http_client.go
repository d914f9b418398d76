package grader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"arena-core/internal/arena"
)

// HTTPClient is an HTTP-based GraderClient: it POSTs the submission and
// problem to a sandboxed grading service and decodes the response,
// honoring the caller's deadline via the request context. Grounded on
// the riot.Client pattern — *http.Client{Timeout: ...} plus a context
// deadline per call — without the sliding-window rate limiter, which
// doesn't apply here (the grading deadline is per-match, not a global
// API quota).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient builds an HTTP GraderClient. requestTimeout bounds the
// underlying transport regardless of the per-call deadline, as a
// last-resort guard against a hung connection.
func NewHTTPClient(baseURL string, requestTimeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type gradeRequestBody struct {
	SubmissionID string `json:"submission_id"`
	ProblemID    string `json:"problem_id"`
	Code         string `json:"code"`
	Language     string `json:"language"`
}

type gradeResponseBody struct {
	ScoreTotal float64        `json:"score_total"`
	Criteria   arena.Criteria `json:"criteria"`
	Feedback   string         `json:"feedback"`
	Verdict    string         `json:"verdict"`
}

func (c *HTTPClient) Grade(ctx context.Context, req Request, deadline time.Time) (arena.GradeReport, error) {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	body, err := json.Marshal(gradeRequestBody{
		SubmissionID: req.Submission.SubmissionID,
		ProblemID:    req.Problem.ProblemID,
		Code:         req.Submission.Code,
		Language:     req.Submission.Language,
	})
	if err != nil {
		return arena.GradeReport{}, fmt.Errorf("grader: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/grade", bytes.NewReader(body))
	if err != nil {
		return arena.GradeReport{}, fmt.Errorf("grader: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return arena.GradeReport{}, ErrTimeout
		}
		return arena.GradeReport{}, fmt.Errorf("%w: %v", ErrGraderError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return arena.GradeReport{}, fmt.Errorf("%w: status %d", ErrGraderError, resp.StatusCode)
	}

	var decoded gradeResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return arena.GradeReport{}, fmt.Errorf("%w: decode response: %v", ErrGraderError, err)
	}

	return arena.GradeReport{
		SubmissionID: req.Submission.SubmissionID,
		ScoreTotal:   decoded.ScoreTotal,
		Criteria:     decoded.Criteria,
		Feedback:     decoded.Feedback,
		Verdict:      arena.Verdict(decoded.Verdict),
	}, nil
}

var _ Client = (*HTTPClient)(nil)
