package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/velora-labs/storefront-api/internal/apperr"
	"github.com/velora-labs/storefront-api/internal/db"
	"github.com/velora-labs/storefront-api/internal/metrics"
	"github.com/velora-labs/storefront-api/internal/middleware"
	"github.com/velora-labs/storefront-api/internal/services"
	"github.com/velora-labs/storefront-api/pkg/config"
)

// App holds application dependencies
type App struct {
	config      *config.Config
	db          *db.DB
	metrics     *metrics.AppMetrics
	products    *services.ProductService
	categories  *services.CategoryService
	carts       *services.CartService
	wishlists   *services.WishlistService
	orders      *services.OrderService
	fulfillment *services.FulfillmentService
	reviews     *services.ReviewService
	settings    *services.SettingsService
}

// NewApp creates a new application instance
func NewApp(
	cfg *config.Config,
	database *db.DB,
	m *metrics.AppMetrics,
	products *services.ProductService,
	categories *services.CategoryService,
	carts *services.CartService,
	wishlists *services.WishlistService,
	orders *services.OrderService,
	fulfillment *services.FulfillmentService,
	reviews *services.ReviewService,
	settings *services.SettingsService,
) *App {
	return &App{
		config:      cfg,
		db:          database,
		metrics:     m,
		products:    products,
		categories:  categories,
		carts:       carts,
		wishlists:   wishlists,
		orders:      orders,
		fulfillment: fulfillment,
		reviews:     reviews,
		settings:    settings,
	}
}

// SetupRoutes configures the HTTP routes
func (a *App) SetupRoutes(r *mux.Router) {
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.RecoverMiddleware)
	r.Use(middleware.IdentityMiddleware)
	r.Use(middleware.MetricsMiddleware(a.metrics))

	api := r.PathPrefix("/api/v1").Subrouter()

	// Catalog
	api.HandleFunc("/products", a.ListProductsHandler).Methods("GET")
	api.HandleFunc("/products/{id}", a.GetProductHandler).Methods("GET")
	api.HandleFunc("/products/{id}/reviews", a.ListReviewsHandler).Methods("GET")
	api.HandleFunc("/products/{id}/reviews", a.CreateReviewHandler).Methods("POST")
	api.HandleFunc("/reviews/{id}", a.DeleteReviewHandler).Methods("DELETE")
	api.HandleFunc("/categories", a.ListCategoriesHandler).Methods("GET")
	api.HandleFunc("/categories/{id}", a.GetCategoryHandler).Methods("GET")
	api.HandleFunc("/settings", a.GetSettingsHandler).Methods("GET")

	// Cart
	api.HandleFunc("/cart", a.GetCartHandler).Methods("GET")
	api.HandleFunc("/cart/add", a.AddToCartHandler).Methods("POST")
	api.HandleFunc("/cart/update", a.UpdateCartHandler).Methods("POST")
	api.HandleFunc("/cart/remove", a.RemoveFromCartHandler).Methods("POST")
	api.HandleFunc("/cart/clear", a.ClearCartHandler).Methods("POST")

	// Wishlist
	api.HandleFunc("/wishlist", a.GetWishlistHandler).Methods("GET")
	api.HandleFunc("/wishlist/add", a.AddToWishlistHandler).Methods("POST")
	api.HandleFunc("/wishlist/remove", a.RemoveFromWishlistHandler).Methods("POST")

	// Orders
	api.HandleFunc("/orders", a.CreateOrderHandler).Methods("POST")
	api.HandleFunc("/orders", a.ListOrdersHandler).Methods("GET")
	api.HandleFunc("/orders/{id}", a.GetOrderHandler).Methods("GET")

	// Payment webhook (raw body, signed)
	api.HandleFunc("/payments/webhook", a.PaymentWebhookHandler).Methods("POST")

	// Admin
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.AdminKeyMiddleware(a.config.AdminAPIKey))
	admin.HandleFunc("/products", a.AdminCreateProductHandler).Methods("POST")
	admin.HandleFunc("/products/{id}", a.AdminUpdateProductHandler).Methods("PUT")
	admin.HandleFunc("/products/{id}", a.AdminDeleteProductHandler).Methods("DELETE")
	admin.HandleFunc("/categories", a.AdminCreateCategoryHandler).Methods("POST")
	admin.HandleFunc("/categories/{id}", a.AdminUpdateCategoryHandler).Methods("PUT")
	admin.HandleFunc("/categories/{id}", a.AdminDeleteCategoryHandler).Methods("DELETE")
	admin.HandleFunc("/orders", a.AdminListOrdersHandler).Methods("GET")
	admin.HandleFunc("/orders/{id}/status", a.AdminUpdateOrderStatusHandler).Methods("PUT")
	admin.HandleFunc("/reviews/{id}", a.AdminDeleteReviewHandler).Methods("DELETE")
	admin.HandleFunc("/settings", a.AdminUpdateSettingsHandler).Methods("PUT")

	// Health
	r.HandleFunc("/health", a.HealthHandler).Methods("GET")
}

// HealthHandler handles health check requests
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ---- shared helpers ----

func (a *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps a tagged error onto the wire. Internal causes are logged
// in full but masked in the response.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", middleware.RequestID(r.Context())).Msg("request failed")
	}
	a.writeJSON(w, status, map[string]string{"error": apperr.Message(err)})
}

// requireUser returns the authenticated user ID or an Unauthorized error.
func requireUser(r *http.Request) (string, error) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		return "", apperr.Unauthorized("missing user identity")
	}
	return userID, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, apperr.Validation("invalid id in path")
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("malformed request body")
	}
	return nil
}

func queryInt(r *http.Request, key, fallback string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		v = fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
