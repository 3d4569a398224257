package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/event-gate/internal/model"
)

const ticketColumns = "id,event_id,ticket_type_id,owner_id,ticket_number,qr_payload,status,payment_ref,checked_in_at,version,created_at,updated_at"

// TicketRepo is the MySQL ticket state store. Rows are never deleted;
// every status change is a single UPDATE guarded by the version column.
type TicketRepo struct{ db *sql.DB }

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// Create inserts a new ticket.
func (r *TicketRepo) Create(ctx context.Context, t model.Ticket) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tickets (id, event_id, ticket_type_id, owner_id, ticket_number, qr_payload, status, version, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.EventID, t.TicketTypeID, t.OwnerID, t.Number, t.QRPayload, string(t.Status), t.Version, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if isDuplicate(err) {
		return fmt.Errorf("ticket %s: %w", t.ID, ErrDuplicate)
	}
	return err
}

// GetByID loads a ticket by id.
func (r *TicketRepo) GetByID(ctx context.Context, id string) (model.Ticket, error) {
	return scanTicket(r.db.QueryRowContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets WHERE id=? LIMIT 1", id))
}

// GetByNumber loads a ticket by its human readable number.
func (r *TicketRepo) GetByNumber(ctx context.Context, number string) (model.Ticket, error) {
	return scanTicket(r.db.QueryRowContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets WHERE ticket_number=? LIMIT 1", number))
}

// Transition applies tr if and only if the row still has
// tr.ExpectedVersion and tr.From. A false result with a nil error means
// another writer got there first.
func (r *TicketRepo) Transition(ctx context.Context, tr model.Transition) (bool, error) {
	var checkedIn sql.NullTime
	if tr.To == model.TicketCheckedIn {
		checkedIn = sql.NullTime{Time: tr.At.UTC(), Valid: true}
	}
	var paymentRef sql.NullString
	if tr.PaymentRef != nil {
		paymentRef = sql.NullString{String: *tr.PaymentRef, Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE tickets
		    SET status=?, version=version+1, updated_at=?,
		        checked_in_at=COALESCE(?, checked_in_at),
		        payment_ref=COALESCE(?, payment_ref)
		  WHERE id=? AND version=? AND status=?`,
		string(tr.To), tr.At.UTC(), checkedIn, paymentRef,
		tr.TicketID, tr.ExpectedVersion, string(tr.From))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListReservedBefore returns up to limit RESERVED tickets created before
// cutoff, oldest first.
func (r *TicketRepo) ListReservedBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Ticket, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets WHERE status=? AND created_at < ? ORDER BY created_at LIMIT ?",
		string(model.TicketReserved), cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (model.Ticket, error) {
	var (
		t          model.Ticket
		status     string
		paymentRef sql.NullString
		checkedIn  sql.NullTime
	)
	err := row.Scan(&t.ID, &t.EventID, &t.TicketTypeID, &t.OwnerID, &t.Number, &t.QRPayload, &status,
		&paymentRef, &checkedIn, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Ticket{}, model.ErrTicketNotFound
	}
	if err != nil {
		return model.Ticket{}, err
	}
	t.Status = model.TicketStatus(status)
	if paymentRef.Valid {
		t.PaymentRef = &paymentRef.String
	}
	if checkedIn.Valid {
		at := checkedIn.Time.UTC()
		t.CheckedInAt = &at
	}
	return t, nil
}
