package model

import "time"

// Audit categories.
const (
	AuditAuth    = "auth"
	AuditCheckIn = "checkin"
)

// AuditEntry is one append-only decision record. Authentication
// rejections fill Subject/ClientAddr; check-in outcomes fill TicketID,
// EventID, Gate and Operator.
type AuditEntry struct {
	Category   string    // audit_log.category
	Outcome    string    // audit_log.outcome: rejection reason or check-in outcome kind
	Subject    string    // audit_log.subject
	TicketID   string    // audit_log.ticket_id
	EventID    uint64    // audit_log.event_id
	Gate       string    // audit_log.gate
	Operator   string    // audit_log.operator
	ClientAddr string    // audit_log.client_addr
	Detail     string    // audit_log.detail
	At         time.Time // audit_log.created_at
}
