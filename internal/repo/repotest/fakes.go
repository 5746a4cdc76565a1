// Package repotest provides in-memory implementations of the repo interfaces
// for tests that should not need a running Postgres.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/beside/server/internal/model"
	"github.com/beside/server/internal/repo"
)

// UserRepo is an in-memory repo.UserRepo.
type UserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]model.User
}

// NewUserRepo creates an empty in-memory user repo.
func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[uuid.UUID]model.User)}
}

var _ repo.UserRepo = (*UserRepo)(nil)

func (r *UserRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("email already registered: %w", model.ErrConflict)
		}
	}
	u.ID = uuid.New()
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	r.users[u.ID] = *u
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (r *UserRepo) UpdateProfile(_ context.Context, id uuid.UUID, name, gender *string, birthday *time.Time) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	if name != nil {
		u.Name = *name
	}
	if gender != nil {
		u.Gender = *gender
	}
	if birthday != nil {
		u.Birthday = *birthday
	}
	u.UpdatedAt = time.Now()
	r.users[id] = u
	return u, nil
}

func (r *UserRepo) UpdateLocation(_ context.Context, id uuid.UUID, lat, lon float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return model.ErrNotFound
	}
	now := time.Now()
	u.LastLatitude = &lat
	u.LastLongitude = &lon
	u.LocationUpdatedAt = &now
	u.UpdatedAt = now
	r.users[id] = u
	return nil
}

type signalEntry struct {
	model.Signal
	seq int64
}

// SignalRepo is an in-memory repo.SignalRepo with the same conditional-update
// semantics as the SQL implementation.
type SignalRepo struct {
	mu      sync.Mutex
	signals map[uuid.UUID]signalEntry
	seq     int64
}

// NewSignalRepo creates an empty in-memory signal repo.
func NewSignalRepo() *SignalRepo {
	return &SignalRepo{signals: make(map[uuid.UUID]signalEntry)}
}

var _ repo.SignalRepo = (*SignalRepo)(nil)

func (r *SignalRepo) Create(_ context.Context, s *model.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.signals {
		if existing.UserID == s.UserID && existing.Status == model.SignalActive {
			return fmt.Errorf("user already has an active signal: %w", model.ErrConflict)
		}
	}
	s.ID = uuid.New()
	s.Status = model.SignalActive
	s.CreatedAt = time.Now()
	r.seq++
	r.signals[s.ID] = signalEntry{Signal: *s, seq: r.seq}
	return nil
}

func (r *SignalRepo) GetByID(_ context.Context, id uuid.UUID) (model.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.signals[id]
	if !ok {
		return model.Signal{}, model.ErrNotFound
	}
	return e.Signal, nil
}

func (r *SignalRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var entries []signalEntry
	for _, e := range r.signals {
		if e.UserID == userID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq > entries[j].seq })
	result := make([]model.Signal, len(entries))
	for i, e := range entries {
		result[i] = e.Signal
	}
	return result, nil
}

func (r *SignalRepo) ListLiveInBox(_ context.Context, minLat, maxLat, minLon, maxLon float64) ([]model.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var result []model.Signal
	for _, e := range r.signals {
		if e.Live(now) &&
			e.Latitude >= minLat && e.Latitude <= maxLat &&
			e.Longitude >= minLon && e.Longitude <= maxLon {
			result = append(result, e.Signal)
		}
	}
	return result, nil
}

func (r *SignalRepo) GetLiveByIDs(_ context.Context, ids []uuid.UUID) ([]model.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var result []model.Signal
	for _, id := range ids {
		if e, ok := r.signals[id]; ok && e.Live(now) {
			result = append(result, e.Signal)
		}
	}
	return result, nil
}

func (r *SignalRepo) Cancel(_ context.Context, userID, signalID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.signals[signalID]
	if !ok {
		return model.ErrNotFound
	}
	if e.UserID != userID {
		return model.ErrForbidden
	}
	if e.Status != model.SignalActive {
		return model.ErrNotFound
	}
	now := time.Now()
	e.Status = model.SignalCancelled
	e.CancelledAt = &now
	r.signals[signalID] = e
	return nil
}

func (r *SignalRepo) MarkResponded(_ context.Context, signalID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.signals[signalID]
	if !ok || e.Status != model.SignalActive {
		return false, nil
	}
	now := time.Now()
	e.Status = model.SignalResponded
	e.RespondedAt = &now
	r.signals[signalID] = e
	return true, nil
}

func (r *SignalRepo) ExpireOlderThan(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id, e := range r.signals {
		if e.Status == model.SignalActive && !e.ExpiresAt.After(now) {
			e.Status = model.SignalExpired
			r.signals[id] = e
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// SetExpiresAt rewinds a signal's TTL. Test hook.
func (r *SignalRepo) SetExpiresAt(id uuid.UUID, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.signals[id]; ok {
		e.ExpiresAt = t
		r.signals[id] = e
	}
}

type responseEntry struct {
	model.Response
	seq int64
}

// ResponseRepo is an in-memory repo.ResponseRepo. It joins against the
// signal and user fakes the way the SQL implementation joins tables.
type ResponseRepo struct {
	mu        sync.Mutex
	responses map[uuid.UUID]responseEntry
	seq       int64
	signals   *SignalRepo
	users     *UserRepo
}

// NewResponseRepo creates an in-memory response repo joined to the given fakes.
func NewResponseRepo(signals *SignalRepo, users *UserRepo) *ResponseRepo {
	return &ResponseRepo{
		responses: make(map[uuid.UUID]responseEntry),
		signals:   signals,
		users:     users,
	}
}

var _ repo.ResponseRepo = (*ResponseRepo)(nil)

func (r *ResponseRepo) Create(_ context.Context, resp *model.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp.ID = uuid.New()
	resp.CreatedAt = time.Now()
	r.seq++
	r.responses[resp.ID] = responseEntry{Response: *resp, seq: r.seq}
	return nil
}

func (r *ResponseRepo) GetByID(_ context.Context, id uuid.UUID) (model.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.responses[id]
	if !ok {
		return model.Response{}, model.ErrNotFound
	}
	return e.Response, nil
}

func (r *ResponseRepo) ListUnthankedForSender(ctx context.Context, userID uuid.UUID) ([]model.ResponseView, error) {
	r.mu.Lock()
	entries := make([]responseEntry, 0, len(r.responses))
	for _, e := range r.responses {
		if !e.Thanked {
			entries = append(entries, e)
		}
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq > entries[j].seq })

	var result []model.ResponseView
	for _, e := range entries {
		sig, err := r.signals.GetByID(ctx, e.SignalID)
		if err != nil || sig.UserID != userID || sig.Status == model.SignalCancelled {
			continue
		}
		responder, err := r.users.GetByID(ctx, e.ResponderID)
		if err != nil {
			continue
		}
		result = append(result, model.ResponseView{
			ID:            e.ID,
			SignalID:      e.SignalID,
			ResponderID:   e.ResponderID,
			ResponderName: responder.Name,
			Message:       e.Message,
			CreatedAt:     e.CreatedAt,
		})
	}
	return result, nil
}

func (r *ResponseRepo) MarkThanked(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.responses[id]
	if !ok || e.Thanked {
		return nil
	}
	now := time.Now()
	e.Thanked = true
	e.ThankedAt = &now
	r.responses[id] = e
	return nil
}

func (r *ResponseRepo) CountBySignal(_ context.Context, signalID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.responses {
		if e.SignalID == signalID {
			count++
		}
	}
	return count, nil
}

func (r *ResponseRepo) CountBySignals(_ context.Context, signalIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[uuid.UUID]bool, len(signalIDs))
	for _, id := range signalIDs {
		wanted[id] = true
	}
	counts := make(map[uuid.UUID]int, len(signalIDs))
	for _, e := range r.responses {
		if wanted[e.SignalID] {
			counts[e.SignalID]++
		}
	}
	return counts, nil
}

// StatsRepo is an in-memory repo.StatsRepo computed over the signal and
// response fakes.
type StatsRepo struct {
	signals   *SignalRepo
	responses *ResponseRepo
}

// NewStatsRepo creates an in-memory stats repo over the given fakes.
func NewStatsRepo(signals *SignalRepo, responses *ResponseRepo) *StatsRepo {
	return &StatsRepo{signals: signals, responses: responses}
}

var _ repo.StatsRepo = (*StatsRepo)(nil)

func (r *StatsRepo) CountSignalsByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	signals, err := r.signals.ListByUser(ctx, userID)
	return len(signals), err
}

func (r *StatsRepo) CountResponsesToUser(ctx context.Context, userID uuid.UUID) (int, error) {
	count := 0
	r.responses.mu.Lock()
	defer r.responses.mu.Unlock()
	for _, e := range r.responses.responses {
		sig, err := r.signals.GetByID(ctx, e.SignalID)
		if err == nil && sig.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *StatsRepo) CountResponsesByResponder(_ context.Context, userID uuid.UUID) (int, error) {
	count := 0
	r.responses.mu.Lock()
	defer r.responses.mu.Unlock()
	for _, e := range r.responses.responses {
		if e.ResponderID == userID {
			count++
		}
	}
	return count, nil
}

func (r *StatsRepo) CountDistinctSendersHelped(ctx context.Context, responderID uuid.UUID) (int, error) {
	senders := make(map[uuid.UUID]bool)
	r.responses.mu.Lock()
	defer r.responses.mu.Unlock()
	for _, e := range r.responses.responses {
		if e.ResponderID != responderID {
			continue
		}
		sig, err := r.signals.GetByID(ctx, e.SignalID)
		if err == nil {
			senders[sig.UserID] = true
		}
	}
	return len(senders), nil
}

func (r *StatsRepo) AvgFirstResponseSeconds(ctx context.Context, userID uuid.UUID) (float64, error) {
	firsts := make(map[uuid.UUID]time.Time)
	r.responses.mu.Lock()
	for _, e := range r.responses.responses {
		if t, ok := firsts[e.SignalID]; !ok || e.CreatedAt.Before(t) {
			firsts[e.SignalID] = e.CreatedAt
		}
	}
	r.responses.mu.Unlock()

	var total float64
	var n int
	for signalID, first := range firsts {
		sig, err := r.signals.GetByID(ctx, signalID)
		if err != nil || sig.UserID != userID {
			continue
		}
		total += first.Sub(sig.CreatedAt).Seconds()
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return total / float64(n), nil
}

func (r *StatsRepo) SignalSummaries(ctx context.Context, userID uuid.UUID) ([]repo.SignalStatsRow, error) {
	signals, err := r.signals.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	rows := make([]repo.SignalStatsRow, len(signals))
	for i, s := range signals {
		count, _ := r.responses.CountBySignal(ctx, s.ID)
		rows[i] = repo.SignalStatsRow{
			ID:            s.ID,
			Status:        s.Status,
			Intensity:     s.Intensity,
			ResponseCount: count,
			CreatedAt:     s.CreatedAt,
		}
	}
	return rows, nil
}

// SetCreatedAt rewrites a signal's creation time. Test hook for bucketing.
func (r *SignalRepo) SetCreatedAt(id uuid.UUID, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.signals[id]; ok {
		e.CreatedAt = t
		r.signals[id] = e
	}
}
