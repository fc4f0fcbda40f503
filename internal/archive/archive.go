// Package archive provides PostgreSQL persistence for solve history.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/solvegate/solvegate/internal/task"
)

type Archive struct {
	db *sql.DB
}

type SolveStats struct {
	Type          string  `json:"type"`
	Status        string  `json:"status"`
	Count         int     `json:"count"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	MaxDurationMs int     `json:"max_duration_ms"`
	MinDurationMs int     `json:"min_duration_ms"`
}

type RecentSolve struct {
	TaskID           string    `json:"task_id"`
	Type             string    `json:"type"`
	Status           string    `json:"status"`
	ErrorDescription string    `json:"error_description,omitempty"`
	DurationMs       int       `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

func New(connectionString string) (*Archive, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Archive{db: db}, nil
}

// Record appends one finished solve. History is insert-only.
func (a *Archive) Record(ctx context.Context, r *task.Result, taskType string, duration time.Duration) error {
	query := `
		INSERT INTO solve_history (
			task_id, type, status, error_description, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
	`

	var errDesc any
	if r.ErrorDescription == "" {
		errDesc = nil
	} else {
		errDesc = r.ErrorDescription
	}

	_, err := a.db.ExecContext(
		ctx,
		query,
		r.TaskID,
		taskType,
		string(r.Status),
		errDesc,
		duration.Milliseconds(),
	)

	return err
}

func (a *Archive) GetSolveStats(ctx context.Context, hours int) ([]SolveStats, error) {
	query := `
		SELECT
			type, status, COUNT(*) as count,
			COALESCE(AVG(duration_ms), 0) as avg_duration_ms,
			COALESCE(MAX(duration_ms), 0) as max_duration_ms,
			COALESCE(MIN(duration_ms), 0) as min_duration_ms
		FROM solve_history
		WHERE created_at > NOW() - INTERVAL '1 hour' * $1
		GROUP BY type, status
		ORDER BY type, status
	`
	rows, err := a.db.QueryContext(ctx, query, hours)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var stats []SolveStats
	for rows.Next() {
		var s SolveStats
		if err := rows.Scan(
			&s.Type,
			&s.Status,
			&s.Count,
			&s.AvgDurationMs,
			&s.MaxDurationMs,
			&s.MinDurationMs,
		); err != nil {
			return nil, err
		}

		stats = append(stats, s)
	}

	return stats, rows.Err()
}

func (a *Archive) GetRecentSolves(ctx context.Context, limit int) ([]RecentSolve, error) {
	query := `
		SELECT
			task_id, type, status, COALESCE(error_description, ''),
			duration_ms, created_at
		FROM solve_history
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := a.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var solves []RecentSolve
	for rows.Next() {
		var s RecentSolve
		if err := rows.Scan(
			&s.TaskID,
			&s.Type,
			&s.Status,
			&s.ErrorDescription,
			&s.DurationMs,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}

		solves = append(solves, s)
	}

	return solves, rows.Err()
}

func (a *Archive) GetSolvesByType(ctx context.Context, taskType string, limit int) ([]RecentSolve, error) {
	query := `
		SELECT
			task_id, type, status, COALESCE(error_description, ''),
			duration_ms, created_at
		FROM solve_history
		WHERE type = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := a.db.QueryContext(ctx, query, taskType, limit)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var solves []RecentSolve
	for rows.Next() {
		var s RecentSolve
		if err := rows.Scan(
			&s.TaskID,
			&s.Type,
			&s.Status,
			&s.ErrorDescription,
			&s.DurationMs,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}

		solves = append(solves, s)
	}

	return solves, rows.Err()
}

// Sink adapts Record to the engine result callback. Archive failures
// never affect solve delivery.
func (a *Archive) Sink() func(*task.Result, string, time.Duration) {
	return func(r *task.Result, taskType string, duration time.Duration) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := a.Record(ctx, r, taskType, duration); err != nil {
			log.Printf("Failed to archive solve %s: %v", r.TaskID, err)
		}
	}
}

func (a *Archive) DB() *sql.DB {
	return a.db
}

func (a *Archive) Close() error {
	return a.db.Close()
}
