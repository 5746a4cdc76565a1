// Package stats derives the statistics read model from signal and response
// history. Nothing is stored: every read recomputes from the repositories,
// which gives read-after-write consistency for free.
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/beside/server/internal/model"
	"github.com/beside/server/internal/repo"
)

// Service computes per-user statistics.
type Service struct {
	stats repo.StatsRepo
}

// NewService creates a statistics service.
func NewService(stats repo.StatsRepo) *Service {
	return &Service{stats: stats}
}

// ForUser builds the statistics payload for a user. Totals count all signal
// statuses; time buckets use the server's UTC clock so cross-device reads
// agree.
func (s *Service) ForUser(ctx context.Context, userID uuid.UUID) (model.Statistics, error) {
	var out model.Statistics
	var err error

	if out.TotalSignalsSent, err = s.stats.CountSignalsByUser(ctx, userID); err != nil {
		return out, fmt.Errorf("total signals: %w", err)
	}
	if out.TotalResponsesReceived, err = s.stats.CountResponsesToUser(ctx, userID); err != nil {
		return out, fmt.Errorf("responses received: %w", err)
	}
	if out.TotalAccompanied, err = s.stats.CountResponsesByResponder(ctx, userID); err != nil {
		return out, fmt.Errorf("accompanied: %w", err)
	}
	if out.PeopleHelped, err = s.stats.CountDistinctSendersHelped(ctx, userID); err != nil {
		return out, fmt.Errorf("people helped: %w", err)
	}

	avgSeconds, err := s.stats.AvgFirstResponseSeconds(ctx, userID)
	if err != nil {
		return out, fmt.Errorf("avg response time: %w", err)
	}
	out.AvgResponseTimeMinutes = round1(avgSeconds / 60)

	rows, err := s.stats.SignalSummaries(ctx, userID)
	if err != nil {
		return out, fmt.Errorf("summaries: %w", err)
	}

	out.Signals = make([]model.SignalSummary, len(rows))
	activeDays := make(map[string]struct{})
	intensitySum, intensityCount := 0, 0

	for i, row := range rows {
		out.Signals[i] = model.SignalSummary{
			ID:            row.ID,
			Status:        row.Status,
			Intensity:     row.Intensity,
			ResponseCount: row.ResponseCount,
			CreatedAt:     row.CreatedAt,
		}

		t := row.CreatedAt.UTC()
		out.HourlyActivity[t.Hour()]++
		out.DailyActivity[int(t.Weekday())]++
		out.WeeklyActivity[weekOfMonth(t)]++
		out.MonthlyActivity[int(t.Month())-1]++
		activeDays[t.Format("2006-01-02")] = struct{}{}

		if row.Intensity != nil {
			intensitySum += *row.Intensity
			intensityCount++
			if *row.Intensity > out.MaxIntensity {
				out.MaxIntensity = *row.Intensity
			}
		}
	}

	out.ActiveDays = len(activeDays)
	if intensityCount > 0 {
		out.AvgIntensity = round1(float64(intensitySum) / float64(intensityCount))
	}

	return out, nil
}

// weekOfMonth buckets a day into weeks 0-4 of its month.
func weekOfMonth(t time.Time) int {
	week := (t.Day() - 1) / 7
	if week > 4 {
		week = 4
	}
	return week
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
