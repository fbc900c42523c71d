package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-restaurant-orders/internal/checkout"
	kafkax "github.com/ariefcatur/go-restaurant-orders/internal/kafka"
	"github.com/ariefcatur/go-restaurant-orders/internal/logger"
	"github.com/ariefcatur/go-restaurant-orders/internal/orders"
	"github.com/ariefcatur/go-restaurant-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

type CheckoutHandler struct {
	Sessions  CartSessions
	Quoter    Quoter
	Submitter *checkout.Submitter
	Redis     redis.Cmdable // checkout lock
	LockTTL   time.Duration
	Cache     *redisx.StatusCache
	Events    kafkax.Publisher // order.placed
	Log       *logger.Logger
	Service   string
}

type CheckoutReq struct {
	Fulfillment orders.Fulfillment `json:"fulfillment" validate:"required,oneof=pickup delivery"`
}

type CheckoutResp struct {
	OrderID string             `json:"order_id"`
	Order   orders.Order       `json:"order"`
	Items   []orders.OrderItem `json:"items"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.With(middleware.Timeout(requestTimeout)).Post("/checkout", h.checkout)
}

func (h *CheckoutHandler) lockTTL() time.Duration {
	if h.LockTTL > 0 {
		return h.LockTTL
	}
	return redisx.TTLCheckout
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing "+headerSessionID)
		return
	}
	var req CheckoutReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := h.Log.WithField(r.Context(), "session_id", sid)

	// one checkout per session at a time; a double tap gets 409 instead of a second order
	lock, err := redisx.Acquire(ctx, h.Redis, fmt.Sprintf(redisx.KeyCheckoutLock, sid), h.lockTTL())
	if errors.Is(err, redisx.ErrLocked) {
		writeError(w, http.StatusConflict, "checkout already in progress")
		return
	}
	if err != nil {
		h.Log.Error(ctx, "checkout: acquire lock", err)
		writeError(w, http.StatusServiceUnavailable, "checkout unavailable")
		return
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			h.Log.Warn(ctx, "checkout: release lock", err)
		}
	}()

	sess, err := h.Sessions.Load(ctx, sid)
	if err != nil {
		h.Log.Error(ctx, "checkout: load session", err)
		writeError(w, http.StatusInternalServerError, "cart unavailable")
		return
	}
	breakdown, sel := h.Quoter.Quote(sess)
	conf, err := h.Submitter.Submit(ctx, checkout.Request{
		Ledger:      sess.Ledger,
		Breakdown:   breakdown,
		PromoCode:   sel.Code(),
		Fulfillment: req.Fulfillment,
		UserID:      r.Header.Get(headerUserID),
	})
	switch {
	case errors.Is(err, checkout.ErrEmptyCart), errors.Is(err, checkout.ErrInvalidFulfillment):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, checkout.ErrPersistence):
		writeError(w, http.StatusBadGateway, checkout.ErrPersistence.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ctx = h.Log.WithField(ctx, "order_id", conf.OrderID)

	// the order exists from here on; follow-up failures are logged, not returned
	sess.Ledger.Clear()
	sess.PromoCode = ""
	if err := h.Sessions.Save(ctx, sid, sess); err != nil {
		h.Log.Warn(ctx, "checkout: clear cart", err)
	}
	if err := h.Cache.Set(ctx, conf.OrderID, redisx.CachedStatus{
		Status: conf.Order.Status, Fulfillment: conf.Order.Fulfillment, UpdatedAt: conf.Order.UpdatedAt,
	}); err != nil {
		h.Log.Warn(ctx, "checkout: seed status cache", err)
	}
	env := kafkax.NewEnvelope(orders.EventOrderPlaced, h.Service, middleware.GetReqID(ctx), conf.OrderID,
		orders.NewOrderPlacedPayload(conf.Order, conf.Items))
	if err := kafkax.PublishEnvelope(ctx, h.Events, env); err != nil {
		h.Log.Warn(ctx, "checkout: publish order placed", err)
	}

	writeJSON(w, http.StatusCreated, CheckoutResp{OrderID: conf.OrderID, Order: conf.Order, Items: conf.Items})
}
