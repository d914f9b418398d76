package store

import (
	"context"
	"fmt"
	"time"

	"arena-core/internal/arena"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoArchive appends submissions and grade reports to schema-light,
// append-only collections. Grounded on the teacher's AnalyticsService,
// which records events the same way: build a bson.M and InsertOne. An
// insert error is wrapped and returned to the caller.
type MongoArchive struct {
	db *mongo.Database
}

func NewMongoArchive(db *mongo.Database) *MongoArchive {
	return &MongoArchive{db: db}
}

func (a *MongoArchive) ArchiveSubmission(ctx context.Context, sub arena.Submission) error {
	doc := bson.M{
		"submission_id": sub.SubmissionID,
		"match_id":      sub.MatchID,
		"round_index":   sub.RoundIndex,
		"player_id":     sub.PlayerID,
		"code":          sub.Code,
		"language":      sub.Language,
		"submitted_at":  sub.SubmittedAt,
		"archived_at":   time.Now(),
	}
	if _, err := a.db.Collection("submissions").InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("archive submission %s: %w", sub.SubmissionID, err)
	}
	return nil
}

func (a *MongoArchive) ArchiveGradeReport(ctx context.Context, matchID string, roundIndex int, report arena.GradeReport) error {
	doc := bson.M{
		"submission_id": report.SubmissionID,
		"match_id":      matchID,
		"round_index":   roundIndex,
		"score_total":   report.ScoreTotal,
		"criteria":      report.Criteria,
		"feedback":      report.Feedback,
		"verdict":       report.Verdict,
		"archived_at":   time.Now(),
	}
	if _, err := a.db.Collection("grade_reports").InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("archive grade report for submission %s: %w", report.SubmissionID, err)
	}
	return nil
}
