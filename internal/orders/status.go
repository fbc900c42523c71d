package orders

import "errors"

type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusReady          Status = "ready"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

type Fulfillment string

const (
	FulfillmentPickup   Fulfillment = "pickup"
	FulfillmentDelivery Fulfillment = "delivery"
)

var ErrInvalidTransition = errors.New("invalid status transition")

var (
	deliveryStages = []Status{StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusOutForDelivery, StatusDelivered}
	pickupStages   = []Status{StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusDelivered}
)

func (f Fulfillment) Valid() bool {
	return f == FulfillmentPickup || f == FulfillmentDelivery
}

func (s Status) Valid() bool {
	return s == StatusCancelled || Rank(s, FulfillmentDelivery) >= 0
}

// Terminal reports whether no further transitions are accepted from s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Stages returns the ordered stage path for the fulfillment type. Cancelled sits
// outside the path. The returned slice must not be modified.
func Stages(f Fulfillment) []Status {
	if f == FulfillmentPickup {
		return pickupStages
	}
	return deliveryStages
}

// Rank is the position of s on the stage path of f, or -1 when s is not on it
// (cancelled, unknown, or out_for_delivery for pickup orders).
func Rank(s Status, f Fulfillment) int {
	for i, st := range Stages(f) {
		if st == s {
			return i
		}
	}
	return -1
}

// CanTransition: forward-only along the stage path; cancelled from any non-terminal state.
func CanTransition(from, to Status, f Fulfillment) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	fr, tr := Rank(from, f), Rank(to, f)
	if fr < 0 || tr < 0 {
		return false
	}
	return tr > fr
}
