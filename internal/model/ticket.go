package model

import "time"

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketReserved  TicketStatus = "RESERVED"
	TicketPaid      TicketStatus = "PAID"
	TicketCheckedIn TicketStatus = "CHECKED_IN"
	TicketCancelled TicketStatus = "CANCELLED"
	TicketExpired   TicketStatus = "EXPIRED"
)

// transitions lists, for every status, the statuses it may move to.
// Terminal statuses have no entry.
var transitions = map[TicketStatus][]TicketStatus{
	TicketReserved: {TicketPaid, TicketCancelled, TicketExpired},
	TicketPaid:     {TicketCheckedIn, TicketCancelled},
}

// CanTransition reports whether a ticket may move from s to next.
func (s TicketStatus) CanTransition(next TicketStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition ever leaves s.
func (s TicketStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketReserved, TicketPaid, TicketCheckedIn, TicketCancelled, TicketExpired:
		return true
	}
	return false
}

// Ticket mirrors a row in the `tickets` table. Version increases by one
// on every committed update and is the compare-and-set guard for all
// status changes; tickets are never deleted.
//
// Fields:
//  ID           – uuid primary key.
//  EventID      – event the ticket admits to.
//  TicketTypeID – ticket category within the event.
//  OwnerID      – user who reserved the ticket.
//  Number       – human readable ticket number (manual entry at gates).
//  QRPayload    – structured reference encoded in the QR code.
//  Status       – lifecycle state.
//  PaymentRef   – external payment reference once paid.
//  CheckedInAt  – redemption time, set exactly once.
//  Version      – optimistic concurrency counter.
type Ticket struct {
	ID           string       // tickets.id
	EventID      uint64       // tickets.event_id
	TicketTypeID uint64       // tickets.ticket_type_id
	OwnerID      uint64       // tickets.owner_id
	Number       string       // tickets.ticket_number
	QRPayload    string       // tickets.qr_payload
	Status       TicketStatus // tickets.status
	PaymentRef   *string      // tickets.payment_ref (nullable)
	CheckedInAt  *time.Time   // tickets.checked_in_at (nullable)
	Version      uint64       // tickets.version
	CreatedAt    time.Time    // tickets.created_at
	UpdatedAt    time.Time    // tickets.updated_at
}

// Transition describes one compare-and-set status change. The update
// commits only when the stored row still has ExpectedVersion and From.
type Transition struct {
	TicketID        string
	ExpectedVersion uint64
	From            TicketStatus
	To              TicketStatus
	At              time.Time
	PaymentRef      *string // set on RESERVED→PAID
}

// Apply returns a copy of t with the transition applied, as a store
// would persist it.
func (tr Transition) Apply(t Ticket) Ticket {
	t.Status = tr.To
	t.Version++
	t.UpdatedAt = tr.At
	if tr.To == TicketCheckedIn {
		at := tr.At
		t.CheckedInAt = &at
	}
	if tr.PaymentRef != nil {
		ref := *tr.PaymentRef
		t.PaymentRef = &ref
	}
	return t
}
