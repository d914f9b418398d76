package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"arena-core/internal/arena"
)

// MySQLStore persists players, problems, and final match results.
// Grounded on the teacher's MatchRepository: parameterized database/sql
// queries, sql.ErrNoRows translated to a sentinel, no ORM.
type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) GetPlayer(ctx context.Context, playerID string) (PlayerRecord, error) {
	const query = `SELECT player_id, display_name, rating FROM players WHERE player_id = ?`
	var rec PlayerRecord
	err := s.db.QueryRowContext(ctx, query, playerID).Scan(&rec.PlayerID, &rec.DisplayName, &rec.Rating)
	if err == sql.ErrNoRows {
		return PlayerRecord{}, ErrNotFound
	}
	if err != nil {
		return PlayerRecord{}, fmt.Errorf("get player %s: %w", playerID, err)
	}
	return rec, nil
}

func (s *MySQLStore) GetProblemsByMode(ctx context.Context, mode arena.MatchMode, n int) ([]ProblemRecord, error) {
	const query = `
		SELECT problem_id, mode, time_limit_ms, payload
		FROM problems
		WHERE mode = ?
		ORDER BY RAND()
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, string(mode), n)
	if err != nil {
		return nil, fmt.Errorf("get problems for mode %s: %w", mode, err)
	}
	defer rows.Close()

	problems := make([]ProblemRecord, 0, n)
	for rows.Next() {
		var (
			rec       ProblemRecord
			modeStr   string
			timeMS    int64
			payloadJS []byte
		)
		if err := rows.Scan(&rec.ProblemID, &modeStr, &timeMS, &payloadJS); err != nil {
			return nil, fmt.Errorf("scan problem row: %w", err)
		}
		rec.Mode = arena.MatchMode(modeStr)
		rec.TimeLimit = time.Duration(timeMS) * time.Millisecond
		if len(payloadJS) > 0 {
			if err := json.Unmarshal(payloadJS, &rec.Payload); err != nil {
				return nil, fmt.Errorf("decode problem payload %s: %w", rec.ProblemID, err)
			}
		}
		problems = append(problems, rec)
	}
	return problems, rows.Err()
}

func (s *MySQLStore) SaveFinalResult(ctx context.Context, result FinalResult) error {
	standingsJSON, err := json.Marshal(result.Standings)
	if err != nil {
		return fmt.Errorf("marshal standings for match %s: %w", result.MatchID, err)
	}

	const query = `
		INSERT INTO match_results (match_id, mode, standings, reason, ended_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE standings = VALUES(standings), reason = VALUES(reason), ended_at = VALUES(ended_at)
	`
	_, err = s.db.ExecContext(ctx, query, result.MatchID, string(result.Mode), standingsJSON, result.Reason, result.EndedAt)
	if err != nil {
		return fmt.Errorf("save final result for match %s: %w", result.MatchID, err)
	}
	return nil
}
