package arena

import (
	"testing"
	"time"
)

func mustTime(sec int64) time.Time {
	return time.Unix(sec, 0)
}

func TestRoundScore(t *testing.T) {
	c := Criteria{Correctness: 40, Efficiency: 25, Readability: 20, Style: 10, Innovation: 5}
	// sum of criteria*weight/100 where weight is itself the criteria value: treat
	// as fully-earned weights (criteria already expressed as weighted contribution
	// in the happy-path scenario from spec).
	got := RoundScore(Criteria{
		Correctness: 100, Efficiency: 100, Readability: 100, Style: 100, Innovation: 100,
	}, DefaultScoreWeights)
	if got != 100 {
		t.Fatalf("full marks got %d, want 100", got)
	}
	_ = c
}

func TestFallbackReportScenario2(t *testing.T) {
	aReport := FallbackReport("sub-a", VerdictGraderError, 0.75, DefaultScoreWeights)
	if int(aReport.ScoreTotal) != 58 {
		t.Fatalf("A fallback score = %v, want 58", aReport.ScoreTotal)
	}
	bReport := FallbackReport("sub-b", VerdictGraderError, 1.0, DefaultScoreWeights)
	if int(bReport.ScoreTotal) != 68 {
		t.Fatalf("B fallback score = %v, want 68", bReport.ScoreTotal)
	}
}

func TestValidateSubmissionLanguage(t *testing.T) {
	cfg := MatchConfig{LanguageWhitelist: []string{"python", "go"}}
	if err := ValidateSubmission("print(1)", "python", cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateSubmission("print(1)", "ruby", cfg); err != ErrLanguageNotAllowed {
		t.Fatalf("got %v, want ErrLanguageNotAllowed", err)
	}
}

func TestValidateSubmissionControlChar(t *testing.T) {
	cfg := MatchConfig{LanguageWhitelist: []string{"python"}}
	if err := ValidateSubmission("ok\tindented\nline", "python", cfg); err != nil {
		t.Fatalf("tab/newline should be allowed: %v", err)
	}
	if err := ValidateSubmission("bad\x00null", "python", cfg); err != ErrSubmissionControlRune {
		t.Fatalf("got %v, want ErrSubmissionControlRune", err)
	}
}

func TestMatchStandingsTiebreak(t *testing.T) {
	m := &Match{
		Players: []Player{{PlayerID: "a"}, {PlayerID: "b"}},
		Rounds: []*Round{
			{Scores: map[string]int{"a": 100, "b": 100}, Submissions: map[string]Submission{
				"a": {PlayerID: "a", SubmittedAt: mustTime(10)},
				"b": {PlayerID: "b", SubmittedAt: mustTime(20)},
			}},
		},
	}
	standings := m.Standings()
	if standings[0].PlayerID != "a" {
		t.Fatalf("expected a to win tiebreak by earliest submission, got %s", standings[0].PlayerID)
	}
}
