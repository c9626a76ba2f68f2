package api

import (
	"net/http"

	"github.com/velora-labs/storefront-api/internal/apperr"
	"github.com/velora-labs/storefront-api/internal/models"
)

// GetCartHandler handles GET /api/v1/cart
func (a *App) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	view, err := a.carts.Get(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, view)
}

// AddToCartHandler handles POST /api/v1/cart/add
func (a *App) AddToCartHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var req models.CartItemRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	view, err := a.carts.AddItem(r.Context(), userID, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, view)
}

// UpdateCartHandler handles POST /api/v1/cart/update
func (a *App) UpdateCartHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var req models.CartItemRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	view, err := a.carts.UpdateItem(r.Context(), userID, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, view)
}

// RemoveFromCartHandler handles POST /api/v1/cart/remove
func (a *App) RemoveFromCartHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var req models.CartItemRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	view, err := a.carts.RemoveItem(r.Context(), userID, req.ProductID, req.Size, req.Color)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, view)
}

// ClearCartHandler handles POST /api/v1/cart/clear
func (a *App) ClearCartHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	view, err := a.carts.Clear(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, view)
}

// GetWishlistHandler handles GET /api/v1/wishlist
func (a *App) GetWishlistHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	items, err := a.wishlists.Get(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, items)
}

type wishlistRequest struct {
	ProductID int64 `json:"product_id"`
}

// AddToWishlistHandler handles POST /api/v1/wishlist/add
func (a *App) AddToWishlistHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var req wishlistRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.wishlists.Add(r.Context(), userID, req.ProductID); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

// RemoveFromWishlistHandler handles POST /api/v1/wishlist/remove
func (a *App) RemoveFromWishlistHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var req wishlistRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.wishlists.Remove(r.Context(), userID, req.ProductID); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// CreateOrderHandler handles POST /api/v1/orders
func (a *App) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var req models.CreateOrderRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	result, err := a.orders.CreateOrder(r.Context(), userID, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, result)
}

// ListOrdersHandler handles GET /api/v1/orders
func (a *App) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	orders, err := a.orders.ListUserOrders(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	a.writeJSON(w, http.StatusOK, orders)
}

// GetOrderHandler handles GET /api/v1/orders/{id}
func (a *App) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	order, err := a.orders.GetOrder(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if order.UserID != userID {
		a.writeError(w, r, apperr.Forbidden("order does not belong to you"))
		return
	}
	a.writeJSON(w, http.StatusOK, order)
}

// AdminListOrdersHandler handles GET /api/v1/admin/orders
func (a *App) AdminListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", "50")
	offset := queryInt(r, "offset", "0")

	orders, err := a.orders.ListOrders(r.Context(), limit, offset)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	a.writeJSON(w, http.StatusOK, orders)
}

// AdminUpdateOrderStatusHandler handles PUT /api/v1/admin/orders/{id}/status
func (a *App) AdminUpdateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var req struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.orders.UpdateOrderStatus(r.Context(), id, req.Status); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}
