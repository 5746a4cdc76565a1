package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StatsRepo exposes the aggregate queries backing the statistics read model.
type StatsRepo interface {
	CountSignalsByUser(ctx context.Context, userID uuid.UUID) (int, error)
	CountResponsesToUser(ctx context.Context, userID uuid.UUID) (int, error)
	CountResponsesByResponder(ctx context.Context, userID uuid.UUID) (int, error)
	CountDistinctSendersHelped(ctx context.Context, responderID uuid.UUID) (int, error)
	// AvgFirstResponseSeconds averages, over the user's responded signals,
	// the gap between signal creation and its earliest response.
	AvgFirstResponseSeconds(ctx context.Context, userID uuid.UUID) (float64, error)
	SignalSummaries(ctx context.Context, userID uuid.UUID) ([]SignalStatsRow, error)
}

// SignalStatsRow is one signal with its response count, as read for statistics.
type SignalStatsRow struct {
	ID            uuid.UUID
	Status        string
	Intensity     *int
	ResponseCount int
	CreatedAt     time.Time
}

type statsRepo struct {
	db *sql.DB
}

// NewStatsRepo creates a new StatsRepo instance.
func NewStatsRepo(db *sql.DB) StatsRepo {
	return &statsRepo{db: db}
}

func (r *statsRepo) countRow(ctx context.Context, query string, args ...any) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count query: %w", err)
	}
	return count, nil
}

// CountSignalsByUser counts all of the user's signals regardless of status.
func (r *statsRepo) CountSignalsByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	return r.countRow(ctx, `SELECT COUNT(*) FROM signals WHERE user_id = $1`, userID)
}

// CountResponsesToUser counts responses to the user's own signals.
func (r *statsRepo) CountResponsesToUser(ctx context.Context, userID uuid.UUID) (int, error) {
	return r.countRow(ctx, `
		SELECT COUNT(*)
		FROM responses r
		JOIN signals s ON s.id = r.signal_id
		WHERE s.user_id = $1
	`, userID)
}

// CountResponsesByResponder counts times the user accompanied others.
func (r *statsRepo) CountResponsesByResponder(ctx context.Context, userID uuid.UUID) (int, error) {
	return r.countRow(ctx, `SELECT COUNT(*) FROM responses WHERE responder_id = $1`, userID)
}

// CountDistinctSendersHelped counts distinct signal owners the user responded to.
func (r *statsRepo) CountDistinctSendersHelped(ctx context.Context, responderID uuid.UUID) (int, error) {
	return r.countRow(ctx, `
		SELECT COUNT(DISTINCT s.user_id)
		FROM responses r
		JOIN signals s ON s.id = r.signal_id
		WHERE r.responder_id = $1
	`, responderID)
}

// AvgFirstResponseSeconds returns 0 when the user has no responded signals.
func (r *statsRepo) AvgFirstResponseSeconds(ctx context.Context, userID uuid.UUID) (float64, error) {
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT AVG(EXTRACT(EPOCH FROM first.created_at - s.created_at))
		FROM signals s
		JOIN LATERAL (
			SELECT created_at FROM responses
			WHERE signal_id = s.id
			ORDER BY created_at ASC
			LIMIT 1
		) first ON TRUE
		WHERE s.user_id = $1
	`, userID).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("avg first response: %w", err)
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}

// SignalSummaries returns the user's signals with response counts, newest first.
func (r *statsRepo) SignalSummaries(ctx context.Context, userID uuid.UUID) ([]SignalStatsRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.status, s.intensity, COUNT(r.id), s.created_at
		FROM signals s
		LEFT JOIN responses r ON r.signal_id = s.id
		WHERE s.user_id = $1
		GROUP BY s.id
		ORDER BY s.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("signal summaries: %w", err)
	}
	defer rows.Close()

	var result []SignalStatsRow
	for rows.Next() {
		var row SignalStatsRow
		if err := rows.Scan(&row.ID, &row.Status, &row.Intensity, &row.ResponseCount, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
