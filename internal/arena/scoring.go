package arena

import "math"

// RoundScore computes the weighted round score for a single grade report,
// rounded to the nearest integer per spec's worked examples.
func RoundScore(c Criteria, w ScoreWeights) int {
	total := c.Correctness*w.Correctness/100 +
		c.Efficiency*w.Efficiency/100 +
		c.Readability*w.Readability/100 +
		c.Style*w.Style/100 +
		c.Innovation*w.Innovation/100
	return int(math.Round(total))
}

// FallbackCriteria builds the calibrated-midpoint criteria used when the
// grader times out or errors. correctnessPct is the fraction of test
// cases passed, in [0,1], or 0 if unknown.
func FallbackCriteria(correctnessPct float64) Criteria {
	if correctnessPct < 0 {
		correctnessPct = 0
	}
	if correctnessPct > 1 {
		correctnessPct = 1
	}
	return Criteria{
		Correctness: correctnessPct * 100,
		Efficiency:  50,
		Readability: 50,
		Style:       50,
		Innovation:  0,
	}
}

// FallbackReport builds the GradeReport substituted on grader_error or
// timeout, per the core's degraded-grading policy.
func FallbackReport(submissionID string, verdict Verdict, correctnessPct float64, w ScoreWeights) GradeReport {
	c := FallbackCriteria(correctnessPct)
	return GradeReport{
		SubmissionID: submissionID,
		Criteria:     c,
		ScoreTotal:   float64(RoundScore(c, w)),
		Feedback:     "AI offline — heuristic score.",
		Verdict:      verdict,
	}
}
