package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-restaurant-orders/internal/cart"
	"github.com/ariefcatur/go-restaurant-orders/internal/catalog"
	"github.com/ariefcatur/go-restaurant-orders/internal/logger"
	"github.com/ariefcatur/go-restaurant-orders/internal/metrics"
	"github.com/ariefcatur/go-restaurant-orders/internal/pricing"
	"github.com/ariefcatur/go-restaurant-orders/internal/promo"
	"github.com/ariefcatur/go-restaurant-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

// CartSessions persists one cart per session id. cart.RedisStore implements it.
type CartSessions interface {
	Load(ctx context.Context, sessionID string) (*cart.Session, error)
	Save(ctx context.Context, sessionID string, sess *cart.Session) error
}

// Quoter prices a session cart against the promo registry.
type Quoter struct {
	Promos *promo.Registry
	Params pricing.Params
}

// Quote resolves the stored code again so a code removed from the registry
// stops discounting. The returned selection reflects what was applied.
func (q Quoter) Quote(sess *cart.Session) (pricing.Breakdown, *promo.Selection) {
	sel := &promo.Selection{}
	if sess.PromoCode != "" {
		_, _ = sel.Apply(q.Promos, sess.PromoCode)
	}
	return pricing.Price(sess.Ledger.Subtotal(), sel.Active(), q.Params), sel
}

type CartView struct {
	Items     []cart.LineItem   `json:"items"`
	ItemCount int               `json:"item_count"`
	Promo     *promo.Rule       `json:"promo"`
	Pricing   pricing.Breakdown `json:"pricing"`
}

func (q Quoter) View(sess *cart.Session) CartView {
	b, sel := q.Quote(sess)
	items := sess.Ledger.Items()
	if items == nil {
		items = []cart.LineItem{}
	}
	return CartView{Items: items, ItemCount: sess.Ledger.ItemCount(), Promo: sel.Active(), Pricing: b.Rounded()}
}

type CartHandler struct {
	Menu     *catalog.Menu
	Sessions CartSessions
	Quoter   Quoter
	Metrics  *metrics.Orders
	Log      *logger.Logger
	// Optional. When set, edits are refused while a checkout holds the session lock.
	Redis redis.Cmdable
}

type AddItemReq struct {
	DishID int `json:"dish_id" validate:"required,gt=0"`
}

type UpdateQuantityReq struct {
	Delta int `json:"delta" validate:"required"`
}

type ApplyPromoReq struct {
	Code string `json:"code" validate:"required,max=32"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/menu", h.listMenu)
		r.Get("/cart", h.getCart)
		r.Post("/cart/items", h.addItem)
		r.Patch("/cart/items/{id}", h.updateQuantity)
		r.Delete("/cart/items/{id}", h.removeItem)
		r.Delete("/cart", h.clearCart)
		r.Post("/cart/promo", h.applyPromo)
		r.Delete("/cart/promo", h.removePromo)
	})
}

func (h *CartHandler) listMenu(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"version": h.Menu.Version, "dishes": h.Menu.All()})
}

// withSession loads the caller's cart, runs fn and saves the cart when fn reports a change.
func (h *CartHandler) withSession(w http.ResponseWriter, r *http.Request, edit bool, fn func(*cart.Session) (changed bool, ok bool)) {
	sid, ok := sessionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing "+headerSessionID)
		return
	}
	ctx := h.Log.WithField(r.Context(), "session_id", sid)
	if edit && h.Redis != nil {
		// checkout clears the cart when it finishes, so an edit made now would be lost
		busy, err := redisx.Exists(ctx, h.Redis, fmt.Sprintf(redisx.KeyCheckoutLock, sid))
		if err != nil {
			h.Log.Error(ctx, "cart: check checkout lock", err)
			writeError(w, http.StatusInternalServerError, "cart unavailable")
			return
		}
		if busy {
			writeError(w, http.StatusConflict, "checkout in progress")
			return
		}
	}
	sess, err := h.Sessions.Load(ctx, sid)
	if err != nil {
		h.Log.Error(ctx, "cart: load session", err)
		writeError(w, http.StatusInternalServerError, "cart unavailable")
		return
	}
	changed, ok := fn(sess)
	if !ok {
		return
	}
	if changed {
		if err := h.Sessions.Save(ctx, sid, sess); err != nil {
			h.Log.Error(ctx, "cart: save session", err)
			writeError(w, http.StatusInternalServerError, "cart unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, h.Quoter.View(sess))
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, false, func(*cart.Session) (bool, bool) { return false, true })
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dish, found := h.Menu.Lookup(req.DishID)
	if !found {
		writeError(w, http.StatusNotFound, "dish not on menu")
		return
	}
	h.withSession(w, r, true, func(s *cart.Session) (bool, bool) {
		s.Ledger.AddItem(dish)
		return true, true
	})
}

func dishParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid dish id")
		return 0, false
	}
	return id, true
}

func (h *CartHandler) updateQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := dishParam(w, r)
	if !ok {
		return
	}
	var req UpdateQuantityReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.withSession(w, r, true, func(s *cart.Session) (bool, bool) {
		if !s.Ledger.IsInCart(id) {
			writeError(w, http.StatusNotFound, "dish not in cart")
			return false, false
		}
		s.Ledger.UpdateQuantity(id, req.Delta)
		return true, true
	})
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, ok := dishParam(w, r)
	if !ok {
		return
	}
	h.withSession(w, r, true, func(s *cart.Session) (bool, bool) {
		s.Ledger.RemoveItem(id)
		return true, true
	})
}

func (h *CartHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, true, func(s *cart.Session) (bool, bool) {
		s.Ledger.Clear()
		return true, true
	})
}

func (h *CartHandler) applyPromo(w http.ResponseWriter, r *http.Request) {
	var req ApplyPromoReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.withSession(w, r, true, func(s *cart.Session) (bool, bool) {
		rule, err := h.Quoter.Promos.Resolve(req.Code)
		if err != nil {
			h.Metrics.Promo("rejected")
			if errors.Is(err, promo.ErrInvalidPromoCode) {
				writeError(w, http.StatusUnprocessableEntity, err.Error())
			} else {
				writeError(w, http.StatusBadRequest, err.Error())
			}
			return false, false
		}
		h.Metrics.Promo("applied")
		s.PromoCode = rule.Code
		return true, true
	})
}

func (h *CartHandler) removePromo(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, true, func(s *cart.Session) (bool, bool) {
		s.PromoCode = ""
		return true, true
	})
}
