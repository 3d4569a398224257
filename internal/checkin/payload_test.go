package checkin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ticketUUID = "5b0f6a43-3f0e-4c53-9a57-2f1d1e1b7c11"

func TestParsePayload_Structured(t *testing.T) {
	ref, err := ParsePayload(FormatPayload(DefaultQRPrefix, ticketUUID, 42, 7), DefaultQRPrefix)
	require.NoError(t, err)
	assert.Equal(t, Reference{TicketID: ticketUUID, EventID: 42, UserID: 7}, ref)
}

func TestParsePayload_TicketNumber(t *testing.T) {
	ref, err := ParsePayload("  EVT42-000123 ", DefaultQRPrefix)
	require.NoError(t, err)
	assert.Equal(t, Reference{Number: "EVT42-000123"}, ref)
}

func TestParsePayload_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"too few fields": "TICKET:" + ticketUUID + ":42",
		"too many":       "TICKET:" + ticketUUID + ":42:7:1",
		"wrong prefix":   "PASS:" + ticketUUID + ":42:7",
		"bad uuid":       "TICKET:not-a-uuid:42:7",
		"zero event":     "TICKET:" + ticketUUID + ":0:7",
		"negative user":  "TICKET:" + ticketUUID + ":42:-7",
		"short number":   "AB1",
		"bad number":     "EVT 42",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePayload(raw, DefaultQRPrefix)
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}
