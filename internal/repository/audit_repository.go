package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/event-gate/internal/model"
)

// AuditRepo appends decision records to the audit_log table.
type AuditRepo struct{ db *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

// Record implements audit.Auditor.
func (r *AuditRepo) Record(ctx context.Context, e model.AuditEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (category, outcome, subject, ticket_id, event_id, gate, operator, client_addr, detail, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.Category, e.Outcome, nullString(e.Subject), nullString(e.TicketID), nullUint(e.EventID),
		nullString(e.Gate), nullString(e.Operator), nullString(e.ClientAddr), e.Detail, e.At.UTC())
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUint(n uint64) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
