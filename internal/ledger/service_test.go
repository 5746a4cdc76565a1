package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beside/server/internal/ledger"
	"github.com/beside/server/internal/model"
	"github.com/beside/server/internal/proximity"
	"github.com/beside/server/internal/repo/repotest"
)

type fixture struct {
	service   *ledger.Service
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
		service:   ledger.NewService(responses, signals, engine, logger),
		users:     users,
		signals:   signals,
		responses: responses,
	}
}

func (f *fixture) addUser(t *testing.T, name string) model.User {
	t.Helper()
	u := model.User{
		Name:     name,
		Gender:   model.GenderOther,
		Birthday: time.Date(1995, 1, 1, 0, 0, 0, 0, time.UTC),
		Email:    uuid.NewString() + "@example.com",
	}
	require.NoError(t, f.users.Create(context.Background(), &u))
	return u
}

func intp(v int) *int { return &v }

func (f *fixture) addSignal(t *testing.T, owner uuid.UUID) model.Signal {
	t.Helper()
	s := model.Signal{
		UserID:    owner,
		Latitude:  25.0330,
		Longitude: 121.5654,
		Intensity: intp(5),
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}
	require.NoError(t, f.signals.Create(context.Background(), &s))
	return s
}

func TestRespond_firstResponseWinsTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.addUser(t, "sender")
	helper := f.addUser(t, "helper")
	sig := f.addSignal(t, sender.ID)

	resp, err := f.service.Respond(ctx, helper.ID, sig.ID, "我陪你")
	require.NoError(t, err)
	assert.Equal(t, "我陪你", resp.Message)
	assert.NotEqual(t, uuid.Nil, resp.ID)

	stored, err := f.signals.GetByID(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SignalResponded, stored.Status)
	require.NotNil(t, stored.RespondedAt)
}

func TestRespond_laterResponsesPersistWithoutStatusChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.addUser(t, "sender")
	first := f.addUser(t, "first")
	second := f.addUser(t, "second")
	sig := f.addSignal(t, sender.ID)

	_, err := f.service.Respond(ctx, first.ID, sig.ID, "")
	require.NoError(t, err)

	before, err := f.signals.GetByID(ctx, sig.ID)
	require.NoError(t, err)

	_, err = f.service.Respond(ctx, second.ID, sig.ID, "加油")
	require.NoError(t, err)

	after, err := f.signals.GetByID(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SignalResponded, after.Status)
	assert.Equal(t, before.RespondedAt, after.RespondedAt)

	count, err := f.responses.CountBySignal(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRespond_emptyMessageGetsDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.addUser(t, "sender")
	helper := f.addUser(t, "helper")
	sig := f.addSignal(t, sender.ID)

	resp, err := f.service.Respond(ctx, helper.ID, sig.ID, "   ")
	require.NoError(t, err)
	assert.Equal(t, ledger.DefaultMessage, resp.Message)
}

func TestRespond_rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.addUser(t, "sender")
	helper := f.addUser(t, "helper")

	// Unknown signal.
	_, err := f.service.Respond(ctx, helper.ID, uuid.New(), "hi")
	assert.ErrorIs(t, err, model.ErrNotFound)

	// Own signal.
	sig := f.addSignal(t, sender.ID)
	_, err = f.service.Respond(ctx, sender.ID, sig.ID, "hi")
	assert.ErrorIs(t, err, model.ErrForbidden)

	// Cancelled signal.
	require.NoError(t, f.signals.Cancel(ctx, sender.ID, sig.ID))
	_, err = f.service.Respond(ctx, helper.ID, sig.ID, "hi")
	assert.ErrorIs(t, err, model.ErrNotFound)

	// Past the TTL but not yet swept.
	sig2 := f.addSignal(t, sender.ID)
	f.signals.SetExpiresAt(sig2.ID, time.Now().Add(-time.Second))
	_, err = f.service.Respond(ctx, helper.ID, sig2.ID, "hi")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

// With many concurrent responders, the status transition happens exactly once
// and every response is still persisted.
func TestRespond_concurrentRespondersTransitionOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.addUser(t, "sender")
	sig := f.addSignal(t, sender.ID)

	const n = 32
	responders := make([]model.User, n)
	for i := range responders {
		responders[i] = f.addUser(t, "helper")
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.Respond(ctx, responders[i].ID, sig.ID, "我陪你")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "responder %d", i)
	}

	stored, err := f.signals.GetByID(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SignalResponded, stored.Status)

	count, err := f.responses.CountBySignal(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestMyResponses_andThank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.addUser(t, "sender")
	helperA := f.addUser(t, "Mei")
	helperB := f.addUser(t, "Jun")
	sig := f.addSignal(t, sender.ID)

	respA, err := f.service.Respond(ctx, helperA.ID, sig.ID, "我陪你")
	require.NoError(t, err)
	respB, err := f.service.Respond(ctx, helperB.ID, sig.ID, "抱抱")
	require.NoError(t, err)

	views, err := f.service.MyResponses(ctx, sender.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, respB.ID, views[0].ID, "newest first")
	assert.Equal(t, "Jun", views[0].ResponderName)
	assert.Equal(t, respA.ID, views[1].ID)

	// Responders have no inbox of their own here.
	views, err = f.service.MyResponses(ctx, helperA.ID)
	require.NoError(t, err)
	assert.Empty(t, views)

	require.NoError(t, f.service.MarkThanked(ctx, sender.ID, respA.ID))

	views, err = f.service.MyResponses(ctx, sender.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, respB.ID, views[0].ID)

	// Thanking twice is a no-op.
	require.NoError(t, f.service.MarkThanked(ctx, sender.ID, respA.ID))
}

// A respond racing a cancel can persist a response row after the signal is
// already cancelled. Such rows must never surface in the sender's inbox.
func TestMyResponses_skipsCancelledSignals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.addUser(t, "sender")
	helper := f.addUser(t, "helper")
	sig := f.addSignal(t, sender.ID)

	// The row lands the way the race would leave it: inserted directly,
	// without the status transition.
	require.NoError(t, f.responses.Create(ctx, &model.Response{
		SignalID: sig.ID, ResponderID: helper.ID, Message: "hi",
	}))
	require.NoError(t, f.signals.Cancel(ctx, sender.ID, sig.ID))

	views, err := f.service.MyResponses(ctx, sender.ID)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestMarkThanked_authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.addUser(t, "sender")
	helper := f.addUser(t, "helper")
	other := f.addUser(t, "other")
	sig := f.addSignal(t, sender.ID)

	resp, err := f.service.Respond(ctx, helper.ID, sig.ID, "hi")
	require.NoError(t, err)

	err = f.service.MarkThanked(ctx, other.ID, resp.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	err = f.service.MarkThanked(ctx, sender.ID, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}
