package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	kafkax "github.com/ariefcatur/go-restaurant-orders/internal/kafka"
	"github.com/ariefcatur/go-restaurant-orders/internal/logger"
	"github.com/ariefcatur/go-restaurant-orders/internal/metrics"
	"github.com/ariefcatur/go-restaurant-orders/internal/orders"
	"github.com/ariefcatur/go-restaurant-orders/internal/redisx"
	"github.com/ariefcatur/go-restaurant-orders/internal/tracker"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// OrderStore is the part of orders.Repo the handlers need.
type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
	GetOrderStatus(ctx context.Context, orderID string) (orders.Status, orders.Fulfillment, error)
	ListItems(ctx context.Context, orderID string) ([]orders.OrderItem, error)
	UpdateStatus(ctx context.Context, orderID string, to orders.Status) (orders.StatusChange, error)
}

type OrdersHandler struct {
	Repo    OrderStore
	Cache   *redisx.StatusCache
	Feed    tracker.StatusSource
	Events  kafkax.Publisher // order.status.changed
	Tracker tracker.Options
	ETA     tracker.ETAModel
	Metrics *metrics.Orders
	Log     *logger.Logger
	Service string
	// Optional. Cancelling it ends every open track stream; other requests are unaffected.
	Streams context.Context
}

type UpdateStatusReq struct {
	Status orders.Status `json:"status" validate:"required,oneof=confirmed preparing ready out_for_delivery delivered cancelled"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/items", h.listItems)
		r.Get("/orders/{id}/status", h.getStatus)
		r.Post("/orders/{id}/status", h.updateStatus)
	})
	// streams outlive the request timeout
	r.Get("/orders/{id}/track", h.track)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Repo.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	items, err := h.Repo.ListItems(ctx, id)
	if err != nil {
		h.storeError(ctx, w, err)
		return
	}
	if len(items) == 0 {
		// an order always has items, so none means no such order
		if _, _, err := h.Repo.GetOrderStatus(ctx, id); err != nil {
			h.storeError(ctx, w, err)
			return
		}
	}
	if items == nil {
		items = []orders.OrderItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	st, err := h.lookupStatus(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// lookupStatus reads the cache first and falls back to the database, refilling the cache.
func (h *OrdersHandler) lookupStatus(ctx context.Context, orderID string) (redisx.CachedStatus, error) {
	// 1) coba cache
	if cached, ok, err := h.Cache.Get(ctx, orderID); err == nil && ok {
		return cached, nil
	} else if err != nil {
		h.Log.Warn(ctx, "orders: status cache read", err)
	}

	// 2) fallback DB
	o, err := h.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return redisx.CachedStatus{}, err
	}
	st := redisx.CachedStatus{Status: o.Status, Fulfillment: o.Fulfillment, UpdatedAt: o.UpdatedAt}
	if err := h.Cache.Set(ctx, orderID, st); err != nil {
		h.Log.Warn(ctx, "orders: status cache fill", err)
	}
	return st, nil
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	ctx := h.Log.WithFields(r.Context(), map[string]any{"order_id": id, "status": req.Status})

	ch, err := h.Repo.UpdateStatus(ctx, id, req.Status)
	if err != nil {
		h.storeError(ctx, w, err)
		return
	}
	h.Metrics.StatusChange(string(ch.To))

	if _, err := h.Cache.Advance(ctx, id, redisx.CachedStatus{Status: ch.To, Fulfillment: ch.Fulfillment, UpdatedAt: ch.ChangedAt}); err != nil {
		h.Log.Warn(ctx, "orders: status cache advance", err)
	}
	env := kafkax.NewEnvelope(orders.EventOrderStatusChanged, h.Service, middleware.GetReqID(ctx), id, orders.OrderStatusChangedPayload{
		OrderID: id, Fulfillment: ch.Fulfillment, From: ch.From, To: ch.To, ChangedAt: ch.ChangedAt,
	})
	if err := kafkax.PublishEnvelope(ctx, h.Events, env); err != nil {
		h.Log.Warn(ctx, "orders: publish status changed", err)
	}
	h.Log.Info(ctx, "order status changed")
	writeJSON(w, http.StatusOK, ch)
}

// track streams tracker views as server-sent events until the order is
// delivered or cancelled, or the client goes away.
func (h *OrdersHandler) track(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	id := chi.URLParam(r, "id")
	ctx, cancelStream := context.WithCancel(h.Log.WithField(r.Context(), "order_id", id))
	defer cancelStream()
	if h.Streams != nil {
		stop := context.AfterFunc(h.Streams, cancelStream)
		defer stop()
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	st, err := h.lookupStatus(lookupCtx, id)
	cancel()
	if err != nil {
		h.storeError(ctx, w, err)
		return
	}

	t := tracker.New(id, st.Fulfillment, st.Status, st.UpdatedAt)
	if h.ETA != nil {
		t.WithETAModel(h.ETA)
	}
	opts := h.Tracker
	opts.Log, opts.Metrics = h.Log, h.Metrics
	opts.Resync = func(ctx context.Context) (orders.Status, error) {
		s, _, err := h.Repo.GetOrderStatus(ctx, id)
		return s, err
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := tracker.Subscribe(ctx, h.Feed, t, opts)
	defer sub.Close()
	for v := range sub.Updates() {
		if err := writeEvent(w, "status", v); err != nil {
			h.Log.Debug(ctx, "orders: track client gone")
			return
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, b)
	return err
}

func (h *OrdersHandler) storeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, orders.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.Log.Error(ctx, "orders: store", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
