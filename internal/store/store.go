package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"minewatch-go/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// Store persists finished analysis runs in sqlite.
type Store struct {
	*sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize run schema: %w", err)
	}
	return &Store{db}, nil
}

type Run struct {
	ID          string         `json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	Source      string         `json:"source"`
	FrameCount  int            `json:"frame_count"`
	Analysis    types.Analysis `json:"analysis"`
	Predictions json.RawMessage `json:"predictions,omitempty"`
}

func (s *Store) SaveRun(run Run) error {
	recommendations := strings.Join(run.Analysis.Recommendations, "\n")
	predictions := run.Predictions
	if predictions == nil {
		predictions = json.RawMessage("{}")
	}

	query := `
		INSERT INTO runs (id, created_at, source, frame_count, risk_level, confidence, rock_size, trajectory, recommendations, predictions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.Exec(query,
		run.ID,
		run.CreatedAt.UTC().Format(time.RFC3339),
		run.Source,
		run.FrameCount,
		string(run.Analysis.RiskLevel),
		run.Analysis.Confidence,
		string(run.Analysis.RockSize),
		string(run.Analysis.Trajectory),
		recommendations,
		string(predictions),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// RecentRuns returns the newest runs first, without prediction bodies.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	if limit < 1 {
		limit = 20
	}
	query := `
		SELECT id, created_at, source, frame_count, risk_level, confidence, rock_size, trajectory, recommendations
		FROM runs
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := s.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var createdAt, riskLevel, rockSize, trajectory, recommendations string
		if err := rows.Scan(&run.ID, &createdAt, &run.Source, &run.FrameCount,
			&riskLevel, &run.Analysis.Confidence, &rockSize, &trajectory, &recommendations); err != nil {
			return nil, err
		}
		run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		run.Analysis.RiskLevel = types.RiskLevel(riskLevel)
		run.Analysis.RockSize = types.RockSize(rockSize)
		run.Analysis.Trajectory = types.Trajectory(trajectory)
		if recommendations != "" {
			run.Analysis.Recommendations = strings.Split(recommendations, "\n")
		} else {
			run.Analysis.Recommendations = []string{}
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns one run including its stored predictions.
func (s *Store) GetRun(id string) (*Run, error) {
	query := `
		SELECT id, created_at, source, frame_count, risk_level, confidence, rock_size, trajectory, recommendations, predictions
		FROM runs
		WHERE id = ?
	`
	var run Run
	var createdAt, riskLevel, rockSize, trajectory, recommendations, predictions string
	err := s.QueryRow(query, id).Scan(&run.ID, &createdAt, &run.Source, &run.FrameCount,
		&riskLevel, &run.Analysis.Confidence, &rockSize, &trajectory, &recommendations, &predictions)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	run.Analysis.RiskLevel = types.RiskLevel(riskLevel)
	run.Analysis.RockSize = types.RockSize(rockSize)
	run.Analysis.Trajectory = types.Trajectory(trajectory)
	if recommendations != "" {
		run.Analysis.Recommendations = strings.Split(recommendations, "\n")
	} else {
		run.Analysis.Recommendations = []string{}
	}
	run.Predictions = json.RawMessage(predictions)
	return &run, nil
}
