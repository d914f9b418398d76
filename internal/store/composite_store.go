package store

import (
	"context"

	"arena-core/internal/arena"
)

// CompositeStore implements Store by delegating relational reads/writes
// to MySQLStore and append-only archival to MongoArchive — mirroring the
// teacher's database.Connections, which hands out both a *sql.DB and a
// *mongo.Database from one place without blending their concerns.
type CompositeStore struct {
	MySQL   *MySQLStore
	Archive *MongoArchive
}

func NewCompositeStore(mysql *MySQLStore, archive *MongoArchive) *CompositeStore {
	return &CompositeStore{MySQL: mysql, Archive: archive}
}

func (c *CompositeStore) GetPlayer(ctx context.Context, playerID string) (PlayerRecord, error) {
	return c.MySQL.GetPlayer(ctx, playerID)
}

func (c *CompositeStore) GetProblemsByMode(ctx context.Context, mode arena.MatchMode, n int) ([]ProblemRecord, error) {
	return c.MySQL.GetProblemsByMode(ctx, mode, n)
}

func (c *CompositeStore) SaveFinalResult(ctx context.Context, result FinalResult) error {
	return c.MySQL.SaveFinalResult(ctx, result)
}

func (c *CompositeStore) ArchiveSubmission(ctx context.Context, sub arena.Submission) error {
	return c.Archive.ArchiveSubmission(ctx, sub)
}

func (c *CompositeStore) ArchiveGradeReport(ctx context.Context, matchID string, roundIndex int, report arena.GradeReport) error {
	return c.Archive.ArchiveGradeReport(ctx, matchID, roundIndex, report)
}

var _ Store = (*CompositeStore)(nil)
