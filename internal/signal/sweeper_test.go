package signal_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beside/server/internal/model"
	"github.com/beside/server/internal/signal"
)

func TestSweeper_expiresStaleSignals(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig, err := f.service.Create(ctx, user.ID, signal.CreateInput{
		Latitude: ptr(25.0), Longitude: ptr(121.5),
	})
	require.NoError(t, err)
	f.signals.SetExpiresAt(sig.ID, time.Now().Add(-time.Second))

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	sweeper := signal.NewSweeper(f.service, 5*time.Millisecond, logger)
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		stored, err := f.signals.GetByID(context.Background(), sig.ID)
		return err == nil && stored.Status == model.SignalExpired
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}

	// An expired signal stays expired.
	stored, err := f.signals.GetByID(context.Background(), sig.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SignalExpired, stored.Status)
}
