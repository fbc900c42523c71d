package tracker

import (
	"testing"
	"time"

	"github.com/ariefcatur/go-restaurant-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

func ev(id string, s orders.Status) Event { return Event{OrderID: id, Status: s, At: t0} }

func TestOutOfOrderEventNeverRegresses(t *testing.T) {
	tr := New("o-1", orders.FulfillmentDelivery, orders.StatusPending, t0)

	require.NoError(t, tr.Apply(ev("o-1", orders.StatusPreparing)))
	err := tr.Apply(ev("o-1", orders.StatusPending))
	assert.ErrorIs(t, err, ErrTrackerDesync)
	assert.Equal(t, orders.StatusPreparing, tr.Current())
}

func TestCancelledIsAbsorbing(t *testing.T) {
	tr := New("o-1", orders.FulfillmentDelivery, orders.StatusConfirmed, t0)

	require.NoError(t, tr.Apply(ev("o-1", orders.StatusCancelled)))
	assert.ErrorIs(t, tr.Apply(ev("o-1", orders.StatusPreparing)), ErrTrackerDesync)
	assert.Equal(t, orders.StatusCancelled, tr.Current())
	assert.NoError(t, tr.Apply(ev("o-1", orders.StatusCancelled)), "duplicate cancel is a no-op")
	assert.True(t, tr.Terminal())

	v := tr.Snapshot()
	assert.True(t, v.Cancelled)
	assert.Equal(t, orders.StatusConfirmed, v.Stage)
	assert.Nil(t, v.ETA)
}

func TestDeliveredIsTerminal(t *testing.T) {
	tr := New("o-1", orders.FulfillmentPickup, orders.StatusReady, t0)
	require.NoError(t, tr.Apply(ev("o-1", orders.StatusDelivered)))
	assert.ErrorIs(t, tr.Apply(ev("o-1", orders.StatusCancelled)), ErrTrackerDesync)
	assert.Equal(t, 100, tr.Snapshot().Progress)
}

func TestPickupSkipsOutForDelivery(t *testing.T) {
	tr := New("o-1", orders.FulfillmentPickup, orders.StatusReady, t0)

	err := tr.Apply(ev("o-1", orders.StatusOutForDelivery))
	assert.ErrorIs(t, err, ErrTrackerDesync)
	assert.Equal(t, orders.StatusReady, tr.Current())
	assert.Equal(t, 80, tr.Snapshot().Progress)
}

func TestUnknownOrderEventIgnored(t *testing.T) {
	tr := New("o-1", orders.FulfillmentDelivery, orders.StatusPending, t0)
	assert.ErrorIs(t, tr.Apply(ev("o-2", orders.StatusReady)), ErrTrackerDesync)
	assert.Equal(t, orders.StatusPending, tr.Current())
}

func TestDuplicateAndSkipAhead(t *testing.T) {
	tr := New("o-1", orders.FulfillmentDelivery, orders.StatusPending, t0)
	require.NoError(t, tr.Apply(ev("o-1", orders.StatusPending)))
	require.NoError(t, tr.Apply(ev("o-1", orders.StatusOutForDelivery)))
	assert.Equal(t, orders.StatusOutForDelivery, tr.Current())
}

func TestUnavailableUntilFirstValidEvent(t *testing.T) {
	tr := New("o-1", orders.FulfillmentDelivery, "", t0)
	v := tr.Snapshot()
	assert.False(t, v.Available)
	assert.Equal(t, -1, v.StageIndex)
	assert.Equal(t, 0, v.Progress)

	assert.ErrorIs(t, tr.Apply(ev("o-1", "bogus")), ErrTrackerDesync)
	require.NoError(t, tr.Apply(ev("o-1", orders.StatusReady)))
	assert.True(t, tr.Snapshot().Available)
	assert.Equal(t, orders.StatusReady, tr.Current())
}

func TestProgress(t *testing.T) {
	want := map[orders.Status]int{
		orders.StatusPending:        17,
		orders.StatusConfirmed:      33,
		orders.StatusPreparing:      50,
		orders.StatusReady:          67,
		orders.StatusOutForDelivery: 83,
		orders.StatusDelivered:      100,
	}
	for st, p := range want {
		tr := New("o", orders.FulfillmentDelivery, st, t0)
		assert.Equal(t, p, tr.Snapshot().Progress, st)
	}
	assert.Equal(t, 20, Progress(0, 5))
	assert.Equal(t, 0, Progress(-1, 5))
}

func TestETA(t *testing.T) {
	tr := New("o-1", orders.FulfillmentDelivery, orders.StatusPreparing, t0)
	v := tr.Snapshot()
	require.NotNil(t, v.ETA)
	assert.Equal(t, t0.Add(40*time.Minute), *v.ETA)

	pickup := New("o-2", orders.FulfillmentPickup, orders.StatusPreparing, t0)
	assert.Equal(t, t0.Add(20*time.Minute), *pickup.Snapshot().ETA)

	later := t0.Add(10 * time.Minute)
	require.NoError(t, tr.Apply(Event{OrderID: "o-1", Status: orders.StatusReady, At: later}))
	assert.Equal(t, later.Add(25*time.Minute), *tr.Snapshot().ETA)

	custom := New("o-3", orders.FulfillmentPickup, orders.StatusReady, t0).
		WithETAModel(ETAModel{orders.StatusReady: time.Minute})
	assert.Equal(t, t0.Add(time.Minute), *custom.Snapshot().ETA)
}

func TestOfflineKeepsState(t *testing.T) {
	tr := New("o-1", orders.FulfillmentDelivery, orders.StatusPreparing, t0)
	tr.MarkOffline()

	v := tr.Snapshot()
	assert.True(t, v.Offline)
	assert.Equal(t, orders.StatusPreparing, v.Status)

	require.NoError(t, tr.Apply(Event{OrderID: "o-1", Heartbeat: true}))
	assert.False(t, tr.Snapshot().Offline)
}
