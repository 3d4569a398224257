package ticket

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/queue"
	"github.com/iliyamo/event-gate/internal/testutil"
)

var now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) PublishPaid(ctx context.Context, ev queue.TicketPaidEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func newService(store Store, pub PaidPublisher) *Service {
	return NewService(store, pub, testutil.NoopLogger(), "", 15*time.Minute).
		WithClock(func() time.Time { return now })
}

func TestService_Reserve(t *testing.T) {
	store := checkin.NewMemoryStore()
	tk, err := newService(store, nil).Reserve(context.Background(), 7, 42, 3)
	require.NoError(t, err)

	assert.Equal(t, model.TicketReserved, tk.Status)
	assert.Equal(t, uint64(1), tk.Version)
	assert.Regexp(t, regexp.MustCompile(`^E42-[0-9A-F]{12}$`), tk.Number)

	ref, err := checkin.ParsePayload(tk.QRPayload, checkin.DefaultQRPrefix)
	require.NoError(t, err)
	assert.Equal(t, checkin.Reference{TicketID: tk.ID, EventID: 42, UserID: 7}, ref)

	byNumber, err := store.GetByNumber(context.Background(), tk.Number)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, byNumber.ID)
}

func TestService_PayThenCheckIn(t *testing.T) {
	ctx := context.Background()
	store := checkin.NewMemoryStore()
	pub := &mockPublisher{}
	svc := newService(store, pub)

	tk, err := svc.Reserve(ctx, 7, 42, 0)
	require.NoError(t, err)

	pub.On("PublishPaid", mock.Anything, mock.MatchedBy(func(ev queue.TicketPaidEvent) bool {
		return ev.TicketID == tk.ID && ev.PaymentRef == "pay_123"
	})).Return(nil).Once()

	paid, err := svc.ConfirmPayment(ctx, tk.ID, "pay_123")
	require.NoError(t, err)
	assert.Equal(t, model.TicketPaid, paid.Status)
	assert.Equal(t, uint64(2), paid.Version)
	require.NotNil(t, paid.PaymentRef)
	assert.Equal(t, "pay_123", *paid.PaymentRef)
	pub.AssertExpectations(t)

	res := checkin.NewCoordinator(store, nil, nil, testutil.NoopLogger(), "").CheckIn(ctx, checkin.Request{EventID: 42, Payload: paid.QRPayload})
	assert.Equal(t, checkin.OutcomeSuccess, res.Outcome)

	_, err = svc.Cancel(ctx, tk.ID, 7)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_ConfirmPaymentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := checkin.NewMemoryStore()
	svc := newService(store, nil)
	tk, err := svc.Reserve(ctx, 7, 42, 0)
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(ctx, tk.ID, "pay_1")
	require.NoError(t, err)
	again, err := svc.ConfirmPayment(ctx, tk.ID, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), again.Version)

	_, err = svc.ConfirmPayment(ctx, tk.ID, "pay_2")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_OtherOwnerSeesNothing(t *testing.T) {
	ctx := context.Background()
	store := checkin.NewMemoryStore()
	svc := newService(store, nil)
	tk, err := svc.Reserve(ctx, 7, 42, 0)
	require.NoError(t, err)

	_, err = svc.Get(ctx, tk.ID, 8)
	assert.ErrorIs(t, err, model.ErrTicketNotFound)
	_, err = svc.Cancel(ctx, tk.ID, 8)
	assert.ErrorIs(t, err, model.ErrTicketNotFound)

	stored, _ := store.GetByID(ctx, tk.ID)
	assert.Equal(t, model.TicketReserved, stored.Status)
}

func TestService_CancelledTicketIsNotRedeemable(t *testing.T) {
	ctx := context.Background()
	store := checkin.NewMemoryStore()
	svc := newService(store, nil)
	tk, err := svc.Reserve(ctx, 7, 42, 0)
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(ctx, tk.ID, "pay_1")
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, tk.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.TicketCancelled, cancelled.Status)

	res := checkin.NewCoordinator(store, nil, nil, testutil.NoopLogger(), "").CheckIn(ctx, checkin.Request{EventID: 42, TicketID: tk.ID})
	assert.Equal(t, checkin.KindNotRedeemable, res.Kind)
	assert.Equal(t, model.TicketCancelled, res.Status)
}

func TestService_ExpireStale(t *testing.T) {
	ctx := context.Background()
	store := checkin.NewMemoryStore()
	svc := newService(store, nil)

	old, err := svc.WithClock(func() time.Time { return now.Add(-time.Hour) }).Reserve(ctx, 7, 42, 0)
	require.NoError(t, err)
	paidOld, err := svc.Reserve(ctx, 7, 42, 0)
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(ctx, paidOld.ID, "pay_1")
	require.NoError(t, err)
	fresh, err := svc.WithClock(func() time.Time { return now.Add(-time.Minute) }).Reserve(ctx, 7, 42, 0)
	require.NoError(t, err)

	n, err := svc.WithClock(func() time.Time { return now }).ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := store.GetByID(ctx, old.ID)
	assert.Equal(t, model.TicketExpired, got.Status)
	got, _ = store.GetByID(ctx, paidOld.ID)
	assert.Equal(t, model.TicketPaid, got.Status)
	got, _ = store.GetByID(ctx, fresh.ID)
	assert.Equal(t, model.TicketReserved, got.Status)
}

type conflictingStore struct {
	*checkin.MemoryStore
}

func (conflictingStore) Transition(context.Context, model.Transition) (bool, error) {
	return false, nil
}

type brokenStore struct {
	*checkin.MemoryStore
}

func (brokenStore) Transition(context.Context, model.Transition) (bool, error) {
	return false, errors.New("deadlock found")
}

func TestService_ChangeFailures(t *testing.T) {
	ctx := context.Background()

	mem := checkin.NewMemoryStore()
	tk, err := newService(mem, nil).Reserve(ctx, 7, 42, 0)
	require.NoError(t, err)

	_, err = newService(conflictingStore{mem}, nil).Cancel(ctx, tk.ID, 7)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = newService(brokenStore{mem}, nil).Cancel(ctx, tk.ID, 7)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
}
