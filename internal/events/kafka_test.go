package events

import (
	"testing"
	"time"

	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderEvent(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	o := &domain.Order{
		ID: 7, UserID: 3, FlightID: 9, OrderNumber: "ORD1", TotalCents: 1500,
		PaymentStatus: domain.PaymentPaid, TripStatus: domain.TripPendingCheckin,
	}

	ev := NewOrderEvent(TypeOrderPaid, o, at)

	assert.Equal(t, TypeOrderPaid, ev.Type)
	assert.EqualValues(t, 7, ev.OrderID)
	assert.Equal(t, domain.PaymentPaid, ev.PaymentStatus)
	assert.Equal(t, time.UTC, ev.OccurredAt.Location())
}

func TestDecodeOrderEvent(t *testing.T) {
	ev, err := DecodeOrderEvent([]byte(`{"type":"order.created","order_id":4,"order_number":"ORD9","trip_status":"pending_checkin"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeOrderCreated, ev.Type)
	assert.Equal(t, domain.TripPendingCheckin, ev.TripStatus)

	_, err = DecodeOrderEvent([]byte(`{"type":""}`))
	assert.Error(t, err)

	_, err = DecodeOrderEvent([]byte(`not json`))
	assert.Error(t, err)
}
