// Package queue defines message payloads exchanged over the message broker
// and the publisher/consumer that move them.
package queue

// Queue names. Both queues are durable.
const (
	TicketCheckedInQueue = "ticket.checked_in"
	TicketPaidQueue      = "ticket.paid"
)

// TicketCheckedInEvent is published once per ticket, when a gate wins the
// check-in. Duplicate or racing scans do not publish.
type TicketCheckedInEvent struct {
	TicketID     string `json:"ticket_id"`
	TicketNumber string `json:"ticket_number"`
	EventID      uint64 `json:"event_id"`
	OwnerID      uint64 `json:"owner_id"`
	Gate         string `json:"gate,omitempty"`
	Operator     string `json:"operator,omitempty"`
	CheckedInAt  string `json:"checked_in_at"` // RFC3339Nano, UTC
}

// TicketPaidEvent is published when a reservation's payment is confirmed.
type TicketPaidEvent struct {
	TicketID   string `json:"ticket_id"`
	EventID    uint64 `json:"event_id"`
	OwnerID    uint64 `json:"owner_id"`
	PaymentRef string `json:"payment_ref"`
	PaidAt     string `json:"paid_at"`
}
