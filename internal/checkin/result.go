package checkin

import (
	"fmt"
	"time"

	"github.com/iliyamo/event-gate/internal/model"
)

// Outcome is the top-level result of a check-in attempt.
type Outcome string

const (
	OutcomeSuccess          Outcome = "SUCCESS"
	OutcomeAlreadyCheckedIn Outcome = "ALREADY_CHECKED_IN"
	OutcomeError            Outcome = "ERROR"
)

// Kind enumerates hard failures. The ticket is untouched whenever Kind is set.
type Kind string

const (
	KindMalformedPayload Kind = "MALFORMED_PAYLOAD"
	KindNotFound         Kind = "NOT_FOUND"
	KindEventMismatch    Kind = "EVENT_MISMATCH"
	KindNotRedeemable    Kind = "NOT_REDEEMABLE"
	// KindUnavailable: the ticket store could not be reached or kept
	// changing under us; the attempt fails closed.
	KindUnavailable Kind = "UNAVAILABLE"
)

// Result is the check-in response contract. ALREADY_CHECKED_IN is a
// success-shaped answer to a duplicate or racing scan and carries the
// original redemption time.
type Result struct {
	Outcome     Outcome            `json:"outcome"`
	Kind        Kind               `json:"kind,omitempty"`
	Status      model.TicketStatus `json:"status,omitempty"`
	TicketID    string             `json:"ticket_id,omitempty"`
	CheckedInAt *time.Time         `json:"checked_in_at,omitempty"`
	Message     string             `json:"message"`
}

// Error is the error form of a failed Result.
type Error struct {
	Kind   Kind
	Status model.TicketStatus
	Msg    string
}

func (e *Error) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("check-in %s (%s): %s", e.Kind, e.Status, e.Msg)
	}
	return fmt.Sprintf("check-in %s: %s", e.Kind, e.Msg)
}

// Err returns nil for SUCCESS and ALREADY_CHECKED_IN, and an *Error otherwise.
func (r Result) Err() error {
	if r.Outcome != OutcomeError {
		return nil
	}
	return &Error{Kind: r.Kind, Status: r.Status, Msg: r.Message}
}

// AuditOutcome is the label written to the audit log.
func (r Result) AuditOutcome() string {
	if r.Outcome == OutcomeError {
		return string(r.Kind)
	}
	return string(r.Outcome)
}

func success(t model.Ticket) Result {
	return Result{Outcome: OutcomeSuccess, TicketID: t.ID, Status: model.TicketCheckedIn, CheckedInAt: t.CheckedInAt, Message: "checked in"}
}

func alreadyCheckedIn(t model.Ticket) Result {
	return Result{Outcome: OutcomeAlreadyCheckedIn, TicketID: t.ID, Status: model.TicketCheckedIn, CheckedInAt: t.CheckedInAt, Message: "ticket already checked in"}
}

func failure(kind Kind, ticketID, msg string) Result {
	return Result{Outcome: OutcomeError, Kind: kind, TicketID: ticketID, Message: msg}
}

func notRedeemable(t model.Ticket) Result {
	r := failure(KindNotRedeemable, t.ID, fmt.Sprintf("ticket is %s", t.Status))
	r.Status = t.Status
	return r
}
