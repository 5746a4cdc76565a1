package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/beside/server/internal/model"
)

// SignalRepo defines the interface for signal repository operations.
type SignalRepo interface {
	Create(ctx context.Context, s *model.Signal) error
	GetByID(ctx context.Context, id uuid.UUID) (model.Signal, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Signal, error)
	// ListLiveInBox returns active, unexpired signals inside the given
	// lat/lon bounding box. Exact radius filtering happens in the caller.
	ListLiveInBox(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]model.Signal, error)
	// GetLiveByIDs hydrates geo-index candidates, dropping anything no
	// longer active or already past its TTL.
	GetLiveByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Signal, error)
	// Cancel transitions the user's signal from active to cancelled. It is
	// a conditional update: a signal that already left the active state
	// (responded, expired, previously cancelled) reports model.ErrNotFound.
	Cancel(ctx context.Context, userID, signalID uuid.UUID) error
	// MarkResponded is the single compare-and-swap serialization point:
	// UPDATE ... WHERE status='active'. Returns true when this call won the
	// transition, false when the signal was already out of the active state.
	MarkResponded(ctx context.Context, signalID uuid.UUID) (bool, error)
	// ExpireOlderThan flips active signals whose TTL passed and returns
	// their IDs so the caller can retire them from the geo index.
	ExpireOlderThan(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

type signalRepo struct {
	db *sql.DB
}

// NewSignalRepo creates a new SignalRepo instance.
func NewSignalRepo(db *sql.DB) SignalRepo {
	return &signalRepo{db: db}
}

const signalColumns = `
	id, user_id, latitude, longitude, intensity, status,
	created_at, expires_at, responded_at, cancelled_at
`

func scanSignal(scan func(...any) error) (model.Signal, error) {
	var s model.Signal
	err := scan(
		&s.ID,
		&s.UserID,
		&s.Latitude,
		&s.Longitude,
		&s.Intensity,
		&s.Status,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.RespondedAt,
		&s.CancelledAt,
	)
	return s, err
}

// Create inserts a new active signal. The partial unique index on
// (user_id) WHERE status='active' rejects a second active signal even under
// concurrent creates; that surfaces as model.ErrConflict.
func (r *signalRepo) Create(ctx context.Context, s *model.Signal) error {
	query := `
		INSERT INTO signals (user_id, latitude, longitude, intensity, status, expires_at)
		VALUES ($1, $2, $3, $4, 'active', $5)
		RETURNING id, status, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		s.UserID, s.Latitude, s.Longitude, s.Intensity, s.ExpiresAt,
	).Scan(&s.ID, &s.Status, &s.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("user already has an active signal: %w", model.ErrConflict)
		}
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// GetByID retrieves a signal by ID.
func (r *signalRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Signal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = $1`, id)
	s, err := scanSignal(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Signal{}, model.ErrNotFound
		}
		return model.Signal{}, fmt.Errorf("query signal: %w", err)
	}
	return s, nil
}

// ListByUser returns all of a user's signals, newest first.
func (r *signalRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Signal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+signalColumns+`
		FROM signals
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()
	return collectSignals(rows)
}

// ListLiveInBox returns active unexpired signals inside the bounding box.
func (r *signalRepo) ListLiveInBox(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]model.Signal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+signalColumns+`
		FROM signals
		WHERE status = 'active'
		  AND expires_at > now()
		  AND latitude BETWEEN $1 AND $2
		  AND longitude BETWEEN $3 AND $4
	`, minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, fmt.Errorf("list live signals: %w", err)
	}
	defer rows.Close()
	return collectSignals(rows)
}

// GetLiveByIDs returns the subset of the given signals that are still live.
func (r *signalRepo) GetLiveByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Signal, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+signalColumns+`
		FROM signals
		WHERE id = ANY($1)
		  AND status = 'active'
		  AND expires_at > now()
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("hydrate signals: %w", err)
	}
	defer rows.Close()
	return collectSignals(rows)
}

// Cancel transitions an active signal owned by userID to cancelled.
func (r *signalRepo) Cancel(ctx context.Context, userID, signalID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE signals
		SET status = 'cancelled', cancelled_at = now()
		WHERE id = $1 AND user_id = $2 AND status = 'active'
	`, signalID, userID)
	if err != nil {
		return fmt.Errorf("cancel signal: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}

	// Distinguish "nothing to cancel" from "not yours".
	var ownerID uuid.UUID
	err = r.db.QueryRowContext(ctx, `SELECT user_id FROM signals WHERE id = $1`, signalID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		return fmt.Errorf("check signal owner: %w", err)
	}
	if ownerID != userID {
		return model.ErrForbidden
	}
	return model.ErrNotFound
}

// MarkResponded performs the at-most-once active→responded transition.
func (r *signalRepo) MarkResponded(ctx context.Context, signalID uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE signals
		SET status = 'responded', responded_at = now()
		WHERE id = $1 AND status = 'active'
	`, signalID)
	if err != nil {
		return false, fmt.Errorf("mark responded: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// ExpireOlderThan transitions stale active signals to expired.
func (r *signalRepo) ExpireOlderThan(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE signals
		SET status = 'expired'
		WHERE status = 'active' AND expires_at <= $1
		RETURNING id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("expire signals: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func collectSignals(rows *sql.Rows) ([]model.Signal, error) {
	var result []model.Signal
	for rows.Next() {
		s, err := scanSignal(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
