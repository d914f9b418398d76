package runtime

import (
	"context"
	"fmt"
	"time"

	"arena-core/internal/arena"
	"arena-core/internal/grader"
	"arena-core/internal/wire"
)

// preloadNextProblem draws the next problem from the pool during the
// starting countdown, so round 0 opens without waiting on a fetch.
func (r *Runtime) preloadNextProblem() {
	p := r.drawProblem()
	r.nextProblem = &p
}

func (r *Runtime) drawProblem() arena.Problem {
	if len(r.problems) == 0 {
		return arena.Problem{ProblemID: fmt.Sprintf("stub-%d", r.problemCursor), TimeLimit: r.match.Config.RoundTimeLimit}
	}
	rec := r.problems[r.problemCursor%len(r.problems)]
	r.problemCursor++
	return arena.Problem{ProblemID: rec.ProblemID, TimeLimit: rec.TimeLimit, Payload: rec.Payload}
}

// openRound transitions round idx to open: broadcasts round_start and
// schedules its deadline.
func (r *Runtime) openRound(idx int) {
	var problem arena.Problem
	if r.nextProblem != nil {
		problem = *r.nextProblem
		r.nextProblem = nil
	} else {
		problem = r.drawProblem()
	}
	round := arena.NewRound(idx, problem)
	round.StartedAt = r.clk.Now()
	round.DeadlineAt = r.clk.Now().Add(r.match.Config.RoundTimeLimit)
	round.Status = arena.RoundOpen
	if idx < len(r.match.Rounds) {
		r.match.Rounds[idx] = round
	} else {
		r.match.Rounds = append(r.match.Rounds, round)
	}
	r.match.Cursor = idx
	r.match.Bump()
	r.phaseDeadline = round.DeadlineAt

	r.persistAndBroadcast(wire.Event{
		Kind: wire.EvRoundStart,
		Payload: map[string]any{
			"round_index": idx,
			"problem":     problem,
			"deadline_at": round.DeadlineAt,
		},
	})
}

// closeSubmissionsAndGrade moves the current round from open to
// grading: cancels the round deadline, dispatches concurrent grade
// calls (bounded by MaxConcurrentGrades), and arms the grading budget.
func (r *Runtime) closeSubmissionsAndGrade() {
	round := r.match.CurrentRound()
	if round == nil || round.Status != arena.RoundOpen {
		return
	}
	round.Status = arena.RoundGrading
	r.match.Bump()
	r.phaseDeadline = r.clk.Now().Add(r.cfg.GradingBudget)

	inflight := 0
	for _, sub := range round.Submissions {
		if inflight >= r.cfg.MaxConcurrentGrades {
			break
		}
		inflight++
		r.dispatchGrade(sub, round.Problem, round.DeadlineAt.Add(r.cfg.GradingBudget))
	}
	if len(round.Submissions) == 0 {
		r.finishGradingOnBudget()
	}
}

func (r *Runtime) dispatchGrade(sub arena.Submission, problem arena.Problem, deadline time.Time) {
	go func() {
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		defer cancel()
		report, err := r.grade.Grade(ctx, grader.Request{Submission: sub, Problem: problem}, deadline)
		if err != nil {
			report = arena.FallbackReport(sub.SubmissionID, arena.VerdictGraderError, 0, r.match.Config.Weights)
		}
		select {
		case r.grades <- gradeResult{submissionID: sub.SubmissionID, roundIndex: sub.RoundIndex, report: report}:
		default:
		}
	}()
}

// onGradeResult records a completed grade. Once every submitted
// player's grade is in for the round currently grading, the round
// closes immediately rather than waiting out the grading budget.
func (r *Runtime) onGradeResult(gr gradeResult) {
	round := r.match.CurrentRound()
	if round == nil || round.RoundIndex != gr.roundIndex || round.Status != arena.RoundGrading {
		return
	}
	owner := submissionOwner(round, gr.submissionID)
	if owner == "" {
		return
	}
	if _, already := round.Grades[owner]; already {
		return
	}
	round.Grades[owner] = gr.report
	round.Scores[owner] = arena.RoundScore(gr.report.Criteria, r.match.Config.Weights)
	r.match.Bump()
	r.archiveGradeReport(r.match.MatchID, round.RoundIndex, gr.report)

	if len(round.Grades) >= len(round.Submissions) {
		r.closeRound(false)
	}
}

// archiveSubmission writes a durable copy of sub to the archival store,
// off the actor goroutine so a slow archive write never stalls
// submission intake or round-closing.
func (r *Runtime) archiveSubmission(sub arena.Submission) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.persist.ArchiveSubmission(ctx, sub); err != nil {
			r.logger.Printf("runtime: match %s failed to archive submission %s: %v", r.match.MatchID, sub.SubmissionID, err)
		}
	}()
}

// archiveGradeReport writes a durable copy of a round's grade report,
// covering both normally-graded and fallback-verdict reports.
func (r *Runtime) archiveGradeReport(matchID string, roundIndex int, report arena.GradeReport) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.persist.ArchiveGradeReport(ctx, matchID, roundIndex, report); err != nil {
			r.logger.Printf("runtime: match %s failed to archive grade report for submission %s: %v", matchID, report.SubmissionID, err)
		}
	}()
}

func submissionOwner(round *arena.Round, submissionID string) string {
	for pid, sub := range round.Submissions {
		if sub.SubmissionID == submissionID {
			return pid
		}
	}
	return ""
}

// finishGradingOnBudget fires when the grading deadline elapses before
// every submission has a grade: outstanding submissions get the
// fallback verdict with unknown correctness, and the round closes.
func (r *Runtime) finishGradingOnBudget() {
	round := r.match.CurrentRound()
	if round == nil || round.Status != arena.RoundGrading {
		return
	}
	degraded := false
	for pid, sub := range round.Submissions {
		if _, ok := round.Grades[pid]; ok {
			continue
		}
		degraded = true
		report := arena.FallbackReport(sub.SubmissionID, arena.VerdictTimeout, 0, r.match.Config.Weights)
		round.Grades[pid] = report
		round.Scores[pid] = arena.RoundScore(report.Criteria, r.match.Config.Weights)
		r.archiveGradeReport(r.match.MatchID, round.RoundIndex, report)
	}
	r.closeRound(degraded)
}

// closeRound broadcasts round_result with per-player scores and running
// totals, then advances to the next round or completes the match.
func (r *Runtime) closeRound(gradingDegraded bool) {
	round := r.match.CurrentRound()
	if round == nil {
		return
	}
	round.Status = arena.RoundClosed
	r.match.Bump()

	running := map[string]int{}
	for _, rd := range r.match.Rounds {
		if rd.RoundIndex > round.RoundIndex {
			continue
		}
		for pid, s := range rd.Scores {
			running[pid] += s
		}
	}

	r.persistAndBroadcast(wire.Event{
		Kind: wire.EvRoundResult,
		Payload: map[string]any{
			"round_index":       round.RoundIndex,
			"scores":            round.Scores,
			"running_totals":    running,
			"grading_degraded":  gradingDegraded,
		},
	})

	next := round.RoundIndex + 1
	if next >= r.match.Config.RoundCount {
		r.completeMatch("completed", "")
		return
	}
	r.openRound(next)
}
