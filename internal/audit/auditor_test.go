package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/model"
)

type recorder struct {
	entries []model.AuditEntry
	err     error
}

func (r *recorder) Record(_ context.Context, e model.AuditEntry) error {
	r.entries = append(r.entries, e)
	return r.err
}

func TestLogAuditor_Record(t *testing.T) {
	var buf bytes.Buffer
	a := NewLogAuditor(logger.NewWithWriter(&buf, 0))

	err := a.Record(context.Background(), model.AuditEntry{
		Category:   model.AuditAuth,
		Outcome:    "revoked",
		Subject:    "ana@example.com",
		ClientAddr: "10.0.0.1",
		At:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "category=auth")
	assert.Contains(t, out, "outcome=revoked")
	assert.Contains(t, out, "client_addr=10.0.0.1")
	assert.NotContains(t, out, "ticket_id")
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	boom := errors.New("db down")
	ok := &recorder{}
	bad := &recorder{err: boom}

	err := Multi{ok, bad}.Record(context.Background(), model.AuditEntry{Outcome: "SUCCESS"})
	require.ErrorIs(t, err, boom)
	assert.Len(t, ok.entries, 1)
	assert.Len(t, bad.entries, 1)

	require.NoError(t, Multi{ok, Discard{}}.Record(context.Background(), model.AuditEntry{}))
	assert.Len(t, ok.entries, 2)
}
