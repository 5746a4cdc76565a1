// Package ledger records responses to signals and tracks sender
// acknowledgements.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/beside/server/internal/model"
	"github.com/beside/server/internal/proximity"
	"github.com/beside/server/internal/repo"
)

// DefaultMessage is used when a responder sends no message ("I'll be with you").
const DefaultMessage = "我陪你"

// Service is the response ledger. Every accepted response is persisted; the
// target signal's active→responded transition happens at most once via the
// repository's conditional update.
type Service struct {
	responses repo.ResponseRepo
	signals   repo.SignalRepo
	engine    *proximity.Engine
	logger    *logrus.Logger
}

// NewService creates a response ledger service.
func NewService(responses repo.ResponseRepo, signals repo.SignalRepo, engine *proximity.Engine, logger *logrus.Logger) *Service {
	return &Service{
		responses: responses,
		signals:   signals,
		engine:    engine,
		logger:    logger,
	}
}

// Respond records a response to a signal. Rules:
//   - the signal must exist and be active or responded; cancelled and
//     expired (including past-TTL actives) targets report model.ErrNotFound
//   - responding to your own signal reports model.ErrForbidden
//   - the first response wins the active→responded transition; later
//     responses still persist rows but never touch status, so a concurrent
//     cancel can't be resurrected and counts stay exact
//
// A cancel landing between the status check and the insert leaves a response
// row attached to a cancelled signal. That row is harmless: the inbox query
// excludes responses to cancelled signals, and the CAS below no-ops.
//
// Respond is deliberately not idempotent: each call records a new response.
func (s *Service) Respond(ctx context.Context, responderID, signalID uuid.UUID, message string) (model.Response, error) {
	sig, err := s.signals.GetByID(ctx, signalID)
	if err != nil {
		return model.Response{}, err
	}

	switch sig.Status {
	case model.SignalActive, model.SignalResponded:
	default:
		return model.Response{}, fmt.Errorf("signal is %s: %w", sig.Status, model.ErrNotFound)
	}
	if sig.Status == model.SignalActive && !sig.ExpiresAt.After(time.Now()) {
		// Past the TTL but not yet swept.
		return model.Response{}, fmt.Errorf("signal expired: %w", model.ErrNotFound)
	}
	if sig.UserID == responderID {
		return model.Response{}, fmt.Errorf("cannot respond to your own signal: %w", model.ErrForbidden)
	}

	message = strings.TrimSpace(message)
	if message == "" {
		message = DefaultMessage
	}

	resp := model.Response{
		SignalID:    signalID,
		ResponderID: responderID,
		Message:     message,
	}
	if err := s.responses.Create(ctx, &resp); err != nil {
		return model.Response{}, err
	}

	won, err := s.signals.MarkResponded(ctx, signalID)
	if err != nil {
		return model.Response{}, err
	}
	if won {
		s.engine.Remove(ctx, signalID)
		s.logger.WithFields(logrus.Fields{
			"signal_id":   signalID,
			"response_id": resp.ID,
		}).Info("signal responded")
	}

	return resp, nil
}

// MyResponses returns the full unacknowledged backlog of responses to the
// user's signals, newest first. Trimming to the single most recent response
// is the client's presentation policy, not the server's.
func (s *Service) MyResponses(ctx context.Context, userID uuid.UUID) ([]model.ResponseView, error) {
	return s.responses.ListUnthankedForSender(ctx, userID)
}

// MarkThanked acknowledges a response, permanently retiring it from the
// sender's inbox. Idempotent. Only the owner of the target signal may thank.
func (s *Service) MarkThanked(ctx context.Context, userID, responseID uuid.UUID) error {
	resp, err := s.responses.GetByID(ctx, responseID)
	if err != nil {
		return err
	}

	sig, err := s.signals.GetByID(ctx, resp.SignalID)
	if err != nil {
		return err
	}
	if sig.UserID != userID {
		return fmt.Errorf("response belongs to another user's signal: %w", model.ErrForbidden)
	}

	if resp.Thanked {
		return nil
	}
	return s.responses.MarkThanked(ctx, responseID)
}
