// Package ticket implements the ticket lifecycle around check-in:
// reservation, payment confirmation, cancellation and expiry of unpaid
// holds. Every status change goes through the same version
// compare-and-set the gates use, so a cancellation can never overwrite
// a concurrent check-in.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/queue"
)

var (
	// ErrInvalidTransition is returned when the ticket's status does not
	// allow the requested change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict is returned when the ticket kept changing underneath
	// the update.
	ErrConflict = errors.New("concurrent update")
)

// Store is the ticket persistence used by the service.
type Store interface {
	checkin.Store
	Create(ctx context.Context, t model.Ticket) error
	ListReservedBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Ticket, error)
}

// PaidPublisher announces confirmed payments.
type PaidPublisher interface {
	PublishPaid(ctx context.Context, ev queue.TicketPaidEvent) error
}

const (
	maxAttempts = 3
	expireBatch = 500
)

// Service manages tickets on behalf of their owners.
type Service struct {
	store     Store
	publisher PaidPublisher
	logger    *logger.Logger
	qrPrefix  string
	holdTTL   time.Duration
	now       func() time.Time
}

// NewService returns a service. Reservations not paid within holdTTL
// are expired by ExpireStale. publisher may be nil.
func NewService(store Store, publisher PaidPublisher, logger *logger.Logger, qrPrefix string, holdTTL time.Duration) *Service {
	if qrPrefix == "" {
		qrPrefix = checkin.DefaultQRPrefix
	}
	return &Service{store: store, publisher: publisher, logger: logger, qrPrefix: qrPrefix, holdTTL: holdTTL, now: time.Now}
}

// WithClock replaces the time source and returns s.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// HoldTTL is how long a reservation stays payable.
func (s *Service) HoldTTL() time.Duration { return s.holdTTL }

// Reserve creates a RESERVED ticket for ownerID.
func (s *Service) Reserve(ctx context.Context, ownerID, eventID, ticketTypeID uint64) (model.Ticket, error) {
	if ownerID == 0 || eventID == 0 {
		return model.Ticket{}, fmt.Errorf("reserve: owner and event are required")
	}
	id := uuid.NewString()
	now := s.now().UTC().Truncate(time.Microsecond)
	t := model.Ticket{
		ID:           id,
		EventID:      eventID,
		TicketTypeID: ticketTypeID,
		OwnerID:      ownerID,
		Number:       ticketNumber(eventID, id),
		QRPayload:    checkin.FormatPayload(s.qrPrefix, id, eventID, ownerID),
		Status:       model.TicketReserved,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return model.Ticket{}, fmt.Errorf("reserve: %w", err)
	}
	return t, nil
}

// ticketNumber derives a human-typeable number such as E42-5B0F6A433F0E.
func ticketNumber(eventID uint64, id string) string {
	compact := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	return fmt.Sprintf("E%d-%s", eventID, compact[:12])
}

// Get returns the ticket if ownerID owns it. Other owners get
// model.ErrTicketNotFound.
func (s *Service) Get(ctx context.Context, id string, ownerID uint64) (model.Ticket, error) {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		return model.Ticket{}, err
	}
	if t.OwnerID != ownerID {
		return model.Ticket{}, model.ErrTicketNotFound
	}
	return t, nil
}

// ConfirmPayment moves a RESERVED ticket to PAID and records the
// payment reference. It is called on behalf of the payment provider, not
// the ticket owner, so ownership is not checked. Confirming an already
// PAID ticket with the same reference is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, id string, paymentRef string) (model.Ticket, error) {
	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return model.Ticket{}, fmt.Errorf("confirm payment: payment reference is required")
	}
	load := func(ctx context.Context) (model.Ticket, error) { return s.store.GetByID(ctx, id) }
	t, err := s.change(ctx, load, model.TicketPaid, func(t model.Ticket) bool {
		return t.Status == model.TicketPaid && t.PaymentRef != nil && *t.PaymentRef == paymentRef
	}, &paymentRef)
	if err != nil {
		return t, err
	}

	if s.publisher != nil {
		ev := queue.TicketPaidEvent{
			TicketID:   t.ID,
			EventID:    t.EventID,
			OwnerID:    t.OwnerID,
			PaymentRef: paymentRef,
			PaidAt:     t.UpdatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := s.publisher.PublishPaid(ctx, ev); err != nil {
			s.logger.Warn("ticket paid event not published", "ticket_id", t.ID, "error", err)
		}
	}
	return t, nil
}

// Cancel moves a RESERVED or PAID ticket to CANCELLED. Cancelling a
// cancelled ticket is a no-op.
func (s *Service) Cancel(ctx context.Context, id string, ownerID uint64) (model.Ticket, error) {
	load := func(ctx context.Context) (model.Ticket, error) { return s.Get(ctx, id, ownerID) }
	return s.change(ctx, load, model.TicketCancelled, func(t model.Ticket) bool {
		return t.Status == model.TicketCancelled
	}, nil)
}

// change applies the transition to `to` with bounded compare-and-set
// retries, re-reading the ticket through load before each attempt. done
// reports whether the ticket is already in the desired state, in which
// case it is returned unchanged.
func (s *Service) change(ctx context.Context, load func(context.Context) (model.Ticket, error), to model.TicketStatus, done func(model.Ticket) bool, paymentRef *string) (model.Ticket, error) {
	for attempt := 1; ; attempt++ {
		t, err := load(ctx)
		if err != nil {
			return model.Ticket{}, err
		}
		if done(t) {
			return t, nil
		}
		if !t.Status.CanTransition(to) {
			return t, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, t.Status, to)
		}

		tr := model.Transition{
			TicketID:        t.ID,
			ExpectedVersion: t.Version,
			From:            t.Status,
			To:              to,
			At:              s.now().UTC().Truncate(time.Microsecond),
			PaymentRef:      paymentRef,
		}
		committed, err := s.store.Transition(ctx, tr)
		if err != nil {
			return t, fmt.Errorf("ticket %s: %w", t.ID, err)
		}
		if committed {
			return tr.Apply(t), nil
		}
		if attempt >= maxAttempts {
			return t, ErrConflict
		}
	}
}

// ExpireStale moves RESERVED tickets older than the hold TTL to EXPIRED
// and returns how many it expired. Tickets paid or cancelled in the
// meantime are skipped by the compare-and-set.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	now := s.now().UTC().Truncate(time.Microsecond)
	stale, err := s.store.ListReservedBefore(ctx, now.Add(-s.holdTTL), expireBatch)
	if err != nil {
		return 0, fmt.Errorf("list stale reservations: %w", err)
	}
	expired := 0
	for _, t := range stale {
		committed, err := s.store.Transition(ctx, model.Transition{
			TicketID:        t.ID,
			ExpectedVersion: t.Version,
			From:            model.TicketReserved,
			To:              model.TicketExpired,
			At:              now,
		})
		if err != nil {
			return expired, fmt.Errorf("expire ticket %s: %w", t.ID, err)
		}
		if committed {
			expired++
		}
	}
	if expired > 0 {
		s.logger.Info("expired stale reservations", "count", expired)
	}
	return expired, nil
}
