package checkin

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DefaultQRPrefix is the first field of structured QR payloads.
const DefaultQRPrefix = "TICKET"

var (
	// ErrMalformedPayload is wrapped by every parse failure.
	ErrMalformedPayload = errors.New("malformed payload")

	ticketNumberRe = regexp.MustCompile(`^[A-Za-z0-9-]{4,64}$`)
)

// Reference is a parsed ticket reference. Exactly one of TicketID and
// Number is set. UserID and EventID are zero when the presentation did
// not carry them.
type Reference struct {
	TicketID string
	Number   string
	UserID   uint64
	EventID  uint64
}

// ParsePayload parses what a gate scanned or an operator typed: either
// a structured PREFIX:<ticketId>:<eventId>:<userId> reference or a bare
// ticket number.
func ParsePayload(raw, prefix string) (Reference, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, ":") {
		return parseNumber(raw)
	}

	fields := strings.Split(raw, ":")
	if len(fields) != 4 {
		return Reference{}, fmt.Errorf("%w: want 4 fields, got %d", ErrMalformedPayload, len(fields))
	}
	if fields[0] != prefix {
		return Reference{}, fmt.Errorf("%w: unknown prefix %q", ErrMalformedPayload, fields[0])
	}
	id, err := parseTicketID(fields[1])
	if err != nil {
		return Reference{}, err
	}
	eventID, err := parseID("event id", fields[2])
	if err != nil {
		return Reference{}, err
	}
	userID, err := parseID("user id", fields[3])
	if err != nil {
		return Reference{}, err
	}
	return Reference{TicketID: id, EventID: eventID, UserID: userID}, nil
}

// FormatPayload builds the structured QR payload for a ticket.
func FormatPayload(prefix, ticketID string, eventID, userID uint64) string {
	return fmt.Sprintf("%s:%s:%d:%d", prefix, ticketID, eventID, userID)
}

func parseNumber(raw string) (Reference, error) {
	if !ticketNumberRe.MatchString(raw) {
		return Reference{}, fmt.Errorf("%w: invalid ticket number", ErrMalformedPayload)
	}
	return Reference{Number: raw}, nil
}

func parseTicketID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: invalid ticket id", ErrMalformedPayload)
	}
	return id.String(), nil
}

func parseID(name, s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: invalid %s", ErrMalformedPayload, name)
	}
	return n, nil
}
