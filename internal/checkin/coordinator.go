// Package checkin redeems tickets at event gates. Redemption is a
// compare-and-set on the ticket's version: when several gates scan the
// same ticket at once exactly one update commits and every other gate
// re-reads the row and reports ALREADY_CHECKED_IN with the winner's
// timestamp.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/event-gate/internal/audit"
	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/queue"
)

// Store is the ticket persistence the coordinator needs. Transition
// commits only if the row still has tr.ExpectedVersion and tr.From and
// reports false (with a nil error) when it does not.
type Store interface {
	GetByID(ctx context.Context, id string) (model.Ticket, error)
	GetByNumber(ctx context.Context, number string) (model.Ticket, error)
	Transition(ctx context.Context, tr model.Transition) (bool, error)
}

// Publisher announces successful check-ins.
type Publisher interface {
	PublishCheckedIn(ctx context.Context, ev queue.TicketCheckedInEvent) error
}

// Request is one gate interaction. Payload (QR content or typed ticket
// number) takes precedence; otherwise exactly one of TicketID and
// TicketNumber must be set.
type Request struct {
	EventID      uint64
	Payload      string
	TicketID     string
	UserID       uint64
	TicketNumber string
	Gate         string
	Operator     string
}

// maxAttempts bounds compare-and-set retries when the row changes
// without reaching a terminal status.
const maxAttempts = 3

// Coordinator validates and redeems tickets.
type Coordinator struct {
	store     Store
	auditor   audit.Auditor
	publisher Publisher
	logger    *logger.Logger
	qrPrefix  string
	now       func() time.Time
}

// NewCoordinator wires a coordinator. publisher may be nil.
func NewCoordinator(store Store, auditor audit.Auditor, publisher Publisher, logger *logger.Logger, qrPrefix string) *Coordinator {
	if qrPrefix == "" {
		qrPrefix = DefaultQRPrefix
	}
	if auditor == nil {
		auditor = audit.Discard{}
	}
	return &Coordinator{store: store, auditor: auditor, publisher: publisher, logger: logger, qrPrefix: qrPrefix, now: time.Now}
}

// WithClock replaces the coordinator's time source and returns c.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// CheckIn runs the validation pipeline and, for a PAID ticket of the
// right event, redeems it. Every outcome is audited.
func (c *Coordinator) CheckIn(ctx context.Context, req Request) Result {
	res, ticket := c.checkIn(ctx, req)

	entry := model.AuditEntry{
		Category: model.AuditCheckIn,
		Outcome:  res.AuditOutcome(),
		TicketID: res.TicketID,
		EventID:  req.EventID,
		Gate:     req.Gate,
		Operator: req.Operator,
		Detail:   res.Message,
		At:       c.now().UTC(),
	}
	if err := c.auditor.Record(ctx, entry); err != nil {
		c.logger.Error("check-in audit failed", "ticket_id", res.TicketID, "error", err)
	}

	if res.Outcome == OutcomeSuccess {
		c.publish(ticket, req)
	}
	return res
}

func (c *Coordinator) checkIn(ctx context.Context, req Request) (Result, model.Ticket) {
	ref, err := c.reference(req)
	if err != nil {
		return failure(KindMalformedPayload, "", err.Error()), model.Ticket{}
	}

	t, res, ok := c.load(ctx, ref)
	if !ok {
		return res, model.Ticket{}
	}
	if ref.UserID != 0 && t.OwnerID != ref.UserID {
		return failure(KindNotFound, "", "ticket not found"), model.Ticket{}
	}
	if t.EventID != req.EventID || (ref.EventID != 0 && ref.EventID != req.EventID) {
		return failure(KindEventMismatch, t.ID, "ticket is not valid for this event"), model.Ticket{}
	}

	for attempt := 1; ; attempt++ {
		switch t.Status {
		case model.TicketCheckedIn:
			return alreadyCheckedIn(t), t
		case model.TicketPaid:
		default:
			return notRedeemable(t), t
		}

		tr := model.Transition{
			TicketID:        t.ID,
			ExpectedVersion: t.Version,
			From:            model.TicketPaid,
			To:              model.TicketCheckedIn,
			At:              c.now().UTC().Truncate(time.Microsecond),
		}
		committed, err := c.store.Transition(ctx, tr)
		if err != nil {
			c.logger.Error("check-in update failed", "ticket_id", t.ID, "error", err)
			return failure(KindUnavailable, t.ID, "ticket store unavailable"), t
		}
		if committed {
			t = tr.Apply(t)
			return success(t), t
		}
		if attempt >= maxAttempts {
			return failure(KindUnavailable, t.ID, "ticket is being updated concurrently, retry"), t
		}

		// lost the race or the row moved on: re-read and decide again
		t, err = c.store.GetByID(ctx, t.ID)
		if err != nil {
			c.logger.Error("check-in reload failed", "ticket_id", tr.TicketID, "error", err)
			return failure(KindUnavailable, tr.TicketID, "ticket store unavailable"), t
		}
	}
}

func (c *Coordinator) reference(req Request) (Reference, error) {
	switch {
	case req.Payload != "":
		return ParsePayload(req.Payload, c.qrPrefix)
	case req.TicketID != "" && req.TicketNumber != "":
		return Reference{}, fmt.Errorf("%w: ticket_id and ticket_number are mutually exclusive", ErrMalformedPayload)
	case req.TicketID != "":
		id, err := uuid.Parse(req.TicketID)
		if err != nil {
			return Reference{}, ErrMalformedPayload
		}
		return Reference{TicketID: id.String(), UserID: req.UserID}, nil
	case req.TicketNumber != "":
		return parseNumber(req.TicketNumber)
	}
	return Reference{}, fmt.Errorf("%w: no ticket reference", ErrMalformedPayload)
}

func (c *Coordinator) load(ctx context.Context, ref Reference) (model.Ticket, Result, bool) {
	var (
		t   model.Ticket
		err error
	)
	if ref.TicketID != "" {
		t, err = c.store.GetByID(ctx, ref.TicketID)
	} else {
		t, err = c.store.GetByNumber(ctx, ref.Number)
	}
	switch {
	case errors.Is(err, model.ErrTicketNotFound):
		return t, failure(KindNotFound, "", "ticket not found"), false
	case err != nil:
		c.logger.Error("check-in load failed", "error", err)
		return t, failure(KindUnavailable, ref.TicketID, "ticket store unavailable"), false
	}
	return t, Result{}, true
}

func (c *Coordinator) publish(t model.Ticket, req Request) {
	if c.publisher == nil || t.CheckedInAt == nil {
		return
	}
	ev := queue.TicketCheckedInEvent{
		TicketID:     t.ID,
		TicketNumber: t.Number,
		EventID:      t.EventID,
		OwnerID:      t.OwnerID,
		Gate:         req.Gate,
		Operator:     req.Operator,
		CheckedInAt:  t.CheckedInAt.UTC().Format(time.RFC3339Nano),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.publisher.PublishCheckedIn(ctx, ev); err != nil {
			c.logger.Warn("check-in event not published", "ticket_id", ev.TicketID, "error", err)
		}
	}()
}
