package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/beside/server/internal/model"
)

// ResponseRepo defines the interface for response ledger persistence.
type ResponseRepo interface {
	Create(ctx context.Context, resp *model.Response) error
	GetByID(ctx context.Context, id uuid.UUID) (model.Response, error)
	// ListUnthankedForSender returns the full unacknowledged backlog of
	// responses to signals owned by userID, newest first. Responses attached
	// to cancelled signals are excluded: a respond racing a cancel can leave
	// such a row behind, and the sender already walked away from that signal.
	ListUnthankedForSender(ctx context.Context, userID uuid.UUID) ([]model.ResponseView, error)
	// MarkThanked sets thanked=true. Idempotent: thanking an already
	// thanked response succeeds without effect.
	MarkThanked(ctx context.Context, id uuid.UUID) error
	CountBySignal(ctx context.Context, signalID uuid.UUID) (int, error)
	CountBySignals(ctx context.Context, signalIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

type responseRepo struct {
	db *sql.DB
}

// NewResponseRepo creates a new ResponseRepo instance.
func NewResponseRepo(db *sql.DB) ResponseRepo {
	return &responseRepo{db: db}
}

// Create inserts a response row. Rows are retained forever for statistics,
// even after the sender thanks them.
func (r *responseRepo) Create(ctx context.Context, resp *model.Response) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO responses (signal_id, responder_id, message)
		VALUES ($1, $2, $3)
		RETURNING id, thanked, created_at
	`, resp.SignalID, resp.ResponderID, resp.Message).Scan(&resp.ID, &resp.Thanked, &resp.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	return nil
}

// GetByID retrieves a response by ID.
func (r *responseRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Response, error) {
	var resp model.Response
	err := r.db.QueryRowContext(ctx, `
		SELECT id, signal_id, responder_id, message, thanked, thanked_at, created_at
		FROM responses
		WHERE id = $1
	`, id).Scan(
		&resp.ID,
		&resp.SignalID,
		&resp.ResponderID,
		&resp.Message,
		&resp.Thanked,
		&resp.ThankedAt,
		&resp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Response{}, model.ErrNotFound
		}
		return model.Response{}, fmt.Errorf("query response: %w", err)
	}
	return resp, nil
}

// ListUnthankedForSender returns unacknowledged responses to the user's
// signals, newest first, annotated with responder display names.
func (r *responseRepo) ListUnthankedForSender(ctx context.Context, userID uuid.UUID) ([]model.ResponseView, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.signal_id, r.responder_id, u.name, r.message, r.created_at
		FROM responses r
		JOIN signals s ON s.id = r.signal_id
		JOIN users u ON u.id = r.responder_id
		WHERE s.user_id = $1 AND r.thanked = FALSE AND s.status <> 'cancelled'
		ORDER BY r.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var result []model.ResponseView
	for rows.Next() {
		var v model.ResponseView
		if err := rows.Scan(&v.ID, &v.SignalID, &v.ResponderID, &v.ResponderName, &v.Message, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// MarkThanked sets thanked=true, once.
func (r *responseRepo) MarkThanked(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE responses
		SET thanked = TRUE, thanked_at = now()
		WHERE id = $1 AND thanked = FALSE
	`, id)
	if err != nil {
		return fmt.Errorf("mark thanked: %w", err)
	}
	return nil
}

// CountBySignal returns the number of responses recorded for a signal.
func (r *responseRepo) CountBySignal(ctx context.Context, signalID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM responses WHERE signal_id = $1`, signalID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	return count, nil
}

// CountBySignals returns response counts keyed by signal ID.
func (r *responseRepo) CountBySignals(ctx context.Context, signalIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(signalIDs))
	if len(signalIDs) == 0 {
		return counts, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT signal_id, COUNT(*)
		FROM responses
		WHERE signal_id = ANY($1)
		GROUP BY signal_id
	`, pq.Array(signalIDs))
	if err != nil {
		return nil, fmt.Errorf("count responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
