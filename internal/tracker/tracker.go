package tracker

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ariefcatur/go-restaurant-orders/internal/orders"
)

var ErrTrackerDesync = errors.New("tracker desync")

// DesyncError describes a status event the tracker refused. It is logged and
// dropped; the tracker state is unchanged.
type DesyncError struct {
	OrderID string
	Current orders.Status
	Got     orders.Status
	Reason  string
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("order %s: ignoring %q while at %q: %s", e.OrderID, e.Got, e.Current, e.Reason)
}

func (e *DesyncError) Is(target error) bool { return target == ErrTrackerDesync }

// Event is one status notification. Heartbeats carry no status and only prove
// the feed is alive.
type Event struct {
	OrderID   string        `json:"order_id"`
	Status    orders.Status `json:"status,omitempty"`
	At        time.Time     `json:"at"`
	Heartbeat bool          `json:"heartbeat,omitempty"`
}

// ETAModel is the expected time an order spends in each stage before moving on.
type ETAModel map[orders.Status]time.Duration

func DefaultETAModel() ETAModel {
	return ETAModel{
		orders.StatusPending:        2 * time.Minute,
		orders.StatusConfirmed:      3 * time.Minute,
		orders.StatusPreparing:      15 * time.Minute,
		orders.StatusReady:          5 * time.Minute,
		orders.StatusOutForDelivery: 20 * time.Minute,
	}
}

type View struct {
	OrderID     string             `json:"order_id"`
	Fulfillment orders.Fulfillment `json:"fulfillment"`
	Status      orders.Status      `json:"status,omitempty"`
	Stage       orders.Status      `json:"stage,omitempty"`
	StageIndex  int                `json:"stage_index"`
	StageCount  int                `json:"stage_count"`
	Progress    int                `json:"progress"`
	ETA         *time.Time         `json:"eta,omitempty"`
	Cancelled   bool               `json:"cancelled"`
	Offline     bool               `json:"offline"`
	Available   bool               `json:"available"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Tracker follows one order through its stages. It only moves forward; the
// cancelled flag sits outside the stage sequence and is absorbing.
type Tracker struct {
	mu          sync.RWMutex
	orderID     string
	fulfillment orders.Fulfillment
	stage       orders.Status
	cancelled   bool
	offline     bool
	available   bool
	updatedAt   time.Time
	eta         ETAModel
}

// New starts a tracker at the last known status. An empty or unusable status
// leaves the tracker unavailable until the first valid event.
func New(orderID string, f orders.Fulfillment, initial orders.Status, at time.Time) *Tracker {
	t := &Tracker{orderID: orderID, fulfillment: f, eta: DefaultETAModel(), updatedAt: at}
	switch {
	case initial == orders.StatusCancelled:
		t.cancelled, t.available = true, true
	case orders.Rank(initial, f) >= 0:
		t.stage, t.available = initial, true
	}
	return t
}

func (t *Tracker) WithETAModel(m ETAModel) *Tracker {
	t.mu.Lock()
	t.eta = m
	t.mu.Unlock()
	return t
}

func (t *Tracker) OrderID() string { return t.orderID }

func (t *Tracker) desync(got orders.Status, reason string) error {
	return &DesyncError{OrderID: t.orderID, Current: t.currentLocked(), Got: got, Reason: reason}
}

func (t *Tracker) currentLocked() orders.Status {
	if t.cancelled {
		return orders.StatusCancelled
	}
	return t.stage
}

// Apply feeds one event. Duplicates are no-ops. Events for another order,
// backward moves, stages the fulfillment type does not have, and anything after
// a terminal state return a *DesyncError and change nothing. Any event,
// accepted or not, proves the feed is live and clears the offline flag.
func (t *Tracker) Apply(e Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.OrderID != t.orderID {
		return t.desync(e.Status, "event for unknown order "+e.OrderID)
	}
	t.offline = false
	if e.Heartbeat {
		return nil
	}

	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if e.Status == orders.StatusCancelled {
		if t.cancelled {
			return nil
		}
		if t.stage == orders.StatusDelivered {
			return t.desync(e.Status, "order already delivered")
		}
		t.cancelled, t.available, t.updatedAt = true, true, at
		return nil
	}

	rank := orders.Rank(e.Status, t.fulfillment)
	if rank < 0 {
		return t.desync(e.Status, fmt.Sprintf("not a %s stage", t.fulfillment))
	}
	if t.cancelled {
		return t.desync(e.Status, "order cancelled")
	}
	if !t.available {
		t.stage, t.available, t.updatedAt = e.Status, true, at
		return nil
	}

	cur := orders.Rank(t.stage, t.fulfillment)
	switch {
	case rank == cur:
		return nil
	case rank < cur:
		return t.desync(e.Status, "backward transition")
	}
	t.stage, t.updatedAt = e.Status, at
	return nil
}

func (t *Tracker) MarkOffline() {
	t.mu.Lock()
	t.offline = true
	t.mu.Unlock()
}

func (t *Tracker) MarkOnline() {
	t.mu.Lock()
	t.offline = false
	t.mu.Unlock()
}

// Terminal reports delivered or cancelled.
func (t *Tracker) Terminal() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cancelled || t.stage == orders.StatusDelivered
}

func (t *Tracker) Current() orders.Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentLocked()
}

func (t *Tracker) Snapshot() View {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stages := orders.Stages(t.fulfillment)
	v := View{
		OrderID:     t.orderID,
		Fulfillment: t.fulfillment,
		Status:      t.currentLocked(),
		Stage:       t.stage,
		StageIndex:  -1,
		StageCount:  len(stages),
		Cancelled:   t.cancelled,
		Offline:     t.offline,
		Available:   t.available,
		UpdatedAt:   t.updatedAt,
	}
	if t.stage == "" {
		return v
	}
	idx := orders.Rank(t.stage, t.fulfillment)
	v.StageIndex = idx
	v.Progress = Progress(idx, len(stages))

	if !t.cancelled && t.stage != orders.StatusDelivered {
		remaining := time.Duration(0)
		for _, st := range stages[idx : len(stages)-1] {
			remaining += t.eta[st]
		}
		eta := t.updatedAt.Add(remaining)
		v.ETA = &eta
	}
	return v
}

// Progress is round((idx+1)/count*100); the last stage is always 100.
func Progress(idx, count int) int {
	if count <= 0 || idx < 0 {
		return 0
	}
	if idx >= count-1 {
		return 100
	}
	return int(math.Round(float64(idx+1) / float64(count) * 100))
}
