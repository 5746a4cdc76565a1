package signal_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beside/server/internal/model"
	"github.com/beside/server/internal/proximity"
	"github.com/beside/server/internal/repo/repotest"
	"github.com/beside/server/internal/signal"
)

type fixture struct {
	service   *signal.Service
	users     *repotest.UserRepo
	signals   *repotest.SignalRepo
	responses *repotest.ResponseRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	users := repotest.NewUserRepo()
	signals := repotest.NewSignalRepo()
	responses := repotest.NewResponseRepo(signals, users)
	engine := proximity.NewEngine(signals, users, responses, nil, logger)

	return &fixture{
		service:   signal.NewService(signals, users, responses, engine, 15*time.Minute, logger),
		users:     users,
		signals:   signals,
		responses: responses,
	}
}

func (f *fixture) addUser(t *testing.T) model.User {
	t.Helper()
	u := model.User{
		Name:     "user",
		Gender:   model.GenderOther,
		Birthday: time.Date(1995, 1, 1, 0, 0, 0, 0, time.UTC),
		Email:    uuid.NewString() + "@example.com",
	}
	require.NoError(t, f.users.Create(context.Background(), &u))
	return u
}

func ptr[T any](v T) *T { return &v }

func TestCreate_withExplicitLocation(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t)

	sig, err := f.service.Create(context.Background(), user.ID, signal.CreateInput{
		Latitude:  ptr(25.0330),
		Longitude: ptr(121.5654),
		Intensity: ptr(7),
	})
	require.NoError(t, err)
	assert.Equal(t, model.SignalActive, sig.Status)
	assert.Equal(t, 25.0330, sig.Latitude)
	assert.True(t, sig.ExpiresAt.After(time.Now()))
}

func TestCreate_fallsBackToCachedLocation(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t)
	ctx := context.Background()

	// No location anywhere.
	_, err := f.service.Create(ctx, user.ID, signal.CreateInput{})
	assert.ErrorIs(t, err, model.ErrInvalid)

	require.NoError(t, f.users.UpdateLocation(ctx, user.ID, 25.04, 121.56))

	sig, err := f.service.Create(ctx, user.ID, signal.CreateInput{})
	require.NoError(t, err)
	assert.Equal(t, 25.04, sig.Latitude)
	assert.Equal(t, 121.56, sig.Longitude)
}

func TestCreate_secondActiveSignalConflicts(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t)
	ctx := context.Background()

	first, err := f.service.Create(ctx, user.ID, signal.CreateInput{
		Latitude: ptr(25.0), Longitude: ptr(121.5),
	})
	require.NoError(t, err)

	_, err = f.service.Create(ctx, user.ID, signal.CreateInput{
		Latitude: ptr(25.0), Longitude: ptr(121.5),
	})
	assert.ErrorIs(t, err, model.ErrConflict)

	// After cancelling, a new signal is allowed again.
	require.NoError(t, f.service.Cancel(ctx, user.ID, first.ID))
	_, err = f.service.Create(ctx, user.ID, signal.CreateInput{
		Latitude: ptr(25.0), Longitude: ptr(121.5),
	})
	assert.NoError(t, err)
}

func TestCreate_validation(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, user.ID, signal.CreateInput{Latitude: ptr(25.0)})
	assert.ErrorIs(t, err, model.ErrInvalid, "latitude without longitude")

	_, err = f.service.Create(ctx, user.ID, signal.CreateInput{
		Latitude: ptr(95.0), Longitude: ptr(121.5),
	})
	assert.ErrorIs(t, err, model.ErrInvalid, "latitude out of range")

	_, err = f.service.Create(ctx, user.ID, signal.CreateInput{
		Latitude: ptr(25.0), Longitude: ptr(121.5), Intensity: ptr(11),
	})
	assert.ErrorIs(t, err, model.ErrInvalid, "intensity out of range")
}

func TestCancel_semantics(t *testing.T) {
	f := newFixture(t)
	owner := f.addUser(t)
	stranger := f.addUser(t)
	ctx := context.Background()

	sig, err := f.service.Create(ctx, owner.ID, signal.CreateInput{
		Latitude: ptr(25.0), Longitude: ptr(121.5),
	})
	require.NoError(t, err)

	err = f.service.Cancel(ctx, stranger.ID, sig.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	err = f.service.Cancel(ctx, owner.ID, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, f.service.Cancel(ctx, owner.ID, sig.ID))

	// Cancelling again is NotFound, not success.
	err = f.service.Cancel(ctx, owner.ID, sig.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMySignals_newestFirstWithCounts(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t)
	responder := f.addUser(t)
	ctx := context.Background()

	first, err := f.service.Create(ctx, user.ID, signal.CreateInput{
		Latitude: ptr(25.0), Longitude: ptr(121.5),
	})
	require.NoError(t, err)
	require.NoError(t, f.service.Cancel(ctx, user.ID, first.ID))

	second, err := f.service.Create(ctx, user.ID, signal.CreateInput{
		Latitude: ptr(25.0), Longitude: ptr(121.5),
	})
	require.NoError(t, err)

	require.NoError(t, f.responses.Create(ctx, &model.Response{
		SignalID: second.ID, ResponderID: responder.ID, Message: "hi",
	}))

	signals, err := f.service.MySignals(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, second.ID, signals[0].ID)
	assert.Equal(t, 1, signals[0].ResponseCount)
	assert.Equal(t, first.ID, signals[1].ID)
	assert.Equal(t, 0, signals[1].ResponseCount)
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t)
	ctx := context.Background()

	sig, err := f.service.Create(ctx, user.ID, signal.CreateInput{
		Latitude: ptr(25.0), Longitude: ptr(121.5),
	})
	require.NoError(t, err)

	// Nothing stale yet.
	n, err := f.service.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.signals.SetExpiresAt(sig.ID, time.Now().Add(-time.Second))

	n, err = f.service.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := f.signals.GetByID(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SignalExpired, stored.Status)
}
