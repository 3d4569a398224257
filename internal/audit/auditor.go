// Package audit records authentication rejections and check-in outcomes
// in an append-only decision log.
package audit

import (
	"context"
	"errors"

	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/model"
)

// Auditor appends one entry to the decision log.
type Auditor interface {
	Record(ctx context.Context, entry model.AuditEntry) error
}

// LogAuditor writes entries as structured log records.
type LogAuditor struct {
	logger *logger.Logger
}

// NewLogAuditor returns an auditor writing to logger.
func NewLogAuditor(logger *logger.Logger) *LogAuditor {
	return &LogAuditor{logger: logger}
}

// Record implements Auditor.
func (a *LogAuditor) Record(ctx context.Context, e model.AuditEntry) error {
	attrs := []any{"category", e.Category, "outcome", e.Outcome, "at", e.At}
	if e.Subject != "" {
		attrs = append(attrs, "subject", e.Subject)
	}
	if e.ClientAddr != "" {
		attrs = append(attrs, "client_addr", e.ClientAddr)
	}
	if e.TicketID != "" {
		attrs = append(attrs, "ticket_id", e.TicketID, "event_id", e.EventID)
	}
	if e.Gate != "" {
		attrs = append(attrs, "gate", e.Gate)
	}
	if e.Operator != "" {
		attrs = append(attrs, "operator", e.Operator)
	}
	if e.Detail != "" {
		attrs = append(attrs, "detail", e.Detail)
	}
	a.logger.InfoContext(ctx, "audit", attrs...)
	return nil
}

// Multi fans an entry out to several auditors and joins their errors.
type Multi []Auditor

// Record implements Auditor.
func (m Multi) Record(ctx context.Context, e model.AuditEntry) error {
	var errs []error
	for _, a := range m {
		if err := a.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every entry.
type Discard struct{}

// Record implements Auditor.
func (Discard) Record(context.Context, model.AuditEntry) error { return nil }
