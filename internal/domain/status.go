package domain

type PaymentStatus string

const (
	PaymentUnpaid    PaymentStatus = "unpaid"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
)

type TripStatus string

const (
	TripPendingCheckin TripStatus = "pending_checkin"
	TripConfirmed      TripStatus = "confirmed"
	TripCompleted      TripStatus = "completed"
	TripCancelled      TripStatus = "cancelled"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentUnpaid: {PaymentPaid, PaymentCancelled},
}

var tripTransitions = map[TripStatus][]TripStatus{
	TripPendingCheckin: {TripConfirmed, TripCancelled},
	TripConfirmed:      {TripCompleted, TripCancelled},
}

// CanTransitionPayment reports whether from -> to is a legal payment move.
// paid and cancelled are terminal.
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionTrip reports whether from -> to is a legal trip move.
// completed and cancelled are terminal.
func CanTransitionTrip(from, to TripStatus) bool {
	for _, s := range tripTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s TripStatus) Terminal() bool {
	return len(tripTransitions[s]) == 0
}

func ParseTripStatus(s string) (TripStatus, bool) {
	switch t := TripStatus(s); t {
	case TripPendingCheckin, TripConfirmed, TripCompleted, TripCancelled:
		return t, true
	}
	return "", false
}
