// Package signal implements the signal store: create/cancel lifecycle and
// TTL-based expiry of anxiety signals.
package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/beside/server/internal/geo"
	"github.com/beside/server/internal/model"
	"github.com/beside/server/internal/proximity"
	"github.com/beside/server/internal/repo"
)

// Service owns the signal lifecycle. Status transitions are guarded in the
// repository layer (conditional updates); the service composes them with the
// geo index and validation.
type Service struct {
	signals   repo.SignalRepo
	users     repo.UserRepo
	responses repo.ResponseRepo
	engine    *proximity.Engine
	ttl       time.Duration
	logger    *logrus.Logger
}

// NewService creates a signal service.
func NewService(signals repo.SignalRepo, users repo.UserRepo, responses repo.ResponseRepo, engine *proximity.Engine, ttl time.Duration, logger *logrus.Logger) *Service {
	return &Service{
		signals:   signals,
		users:     users,
		responses: responses,
		engine:    engine,
		ttl:       ttl,
		logger:    logger,
	}
}

// CreateInput carries the optional signal creation payload. When Latitude
// and Longitude are nil the user's cached location is used.
type CreateInput struct {
	Latitude  *float64
	Longitude *float64
	Intensity *int
}

// Create persists a new active signal. A user with an outstanding active
// signal gets model.ErrConflict (reject, not supersede).
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (model.Signal, error) {
	var lat, lon float64
	switch {
	case in.Latitude != nil && in.Longitude != nil:
		lat, lon = *in.Latitude, *in.Longitude
	case in.Latitude == nil && in.Longitude == nil:
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return model.Signal{}, fmt.Errorf("load user: %w", err)
		}
		if user.LastLatitude == nil || user.LastLongitude == nil {
			return model.Signal{}, fmt.Errorf("no location provided and no cached location: %w", model.ErrInvalid)
		}
		lat, lon = *user.LastLatitude, *user.LastLongitude
	default:
		return model.Signal{}, fmt.Errorf("latitude and longitude must be provided together: %w", model.ErrInvalid)
	}

	if !geo.ValidLatLon(lat, lon) {
		return model.Signal{}, fmt.Errorf("coordinates out of range: %w", model.ErrInvalid)
	}
	if in.Intensity != nil && (*in.Intensity < 1 || *in.Intensity > 10) {
		return model.Signal{}, fmt.Errorf("intensity must be between 1 and 10: %w", model.ErrInvalid)
	}

	sig := model.Signal{
		UserID:    userID,
		Latitude:  lat,
		Longitude: lon,
		Intensity: in.Intensity,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	if err := s.signals.Create(ctx, &sig); err != nil {
		return model.Signal{}, err
	}

	s.engine.Index(ctx, sig)
	s.logger.WithFields(logrus.Fields{
		"signal_id": sig.ID,
		"user_id":   userID,
	}).Info("signal created")

	return sig, nil
}

// Cancel transitions the user's active signal to cancelled. Cancelling a
// signal that already left the active state (responded, expired or cancelled
// before) reports model.ErrNotFound; a signal owned by someone else reports
// model.ErrForbidden.
func (s *Service) Cancel(ctx context.Context, userID, signalID uuid.UUID) error {
	if err := s.signals.Cancel(ctx, userID, signalID); err != nil {
		return err
	}
	s.engine.Remove(ctx, signalID)
	s.logger.WithField("signal_id", signalID).Info("signal cancelled")
	return nil
}

// SignalWithCount pairs a signal with its recorded response count.
type SignalWithCount struct {
	model.Signal
	ResponseCount int
}

// MySignals returns all of the user's signals, newest first.
func (s *Service) MySignals(ctx context.Context, userID uuid.UUID) ([]SignalWithCount, error) {
	signals, err := s.signals.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(signals))
	for i, sig := range signals {
		ids[i] = sig.ID
	}
	counts, err := s.responses.CountBySignals(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]SignalWithCount, len(signals))
	for i, sig := range signals {
		result[i] = SignalWithCount{Signal: sig, ResponseCount: counts[sig.ID]}
	}
	return result, nil
}

// ExpireStale transitions active signals past their TTL to expired and
// retires them from the geo index. Returns the number expired.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	ids, err := s.signals.ExpireOlderThan(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.engine.Remove(ctx, id)
	}
	if len(ids) > 0 {
		s.logger.WithField("count", len(ids)).Info("expired stale signals")
	}
	return len(ids), nil
}
