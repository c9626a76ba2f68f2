package api

import (
	"net/http"
	"strconv"

	"github.com/velora-labs/storefront-api/internal/models"
)

// ListProductsHandler handles GET /api/v1/products
func (a *App) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", "20")
	offset := queryInt(r, "offset", "0")

	var categoryID int64
	if c := r.URL.Query().Get("category_id"); c != "" {
		if parsed, err := strconv.ParseInt(c, 10, 64); err == nil {
			categoryID = parsed
		}
	}

	products, err := a.products.ListProducts(r.Context(), categoryID, true, limit, offset)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	a.writeJSON(w, http.StatusOK, products)
}

// GetProductHandler handles GET /api/v1/products/{id}
func (a *App) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	product, err := a.products.GetProduct(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, product)
}

// ListCategoriesHandler handles GET /api/v1/categories
func (a *App) ListCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := a.categories.List(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, categories)
}

// GetCategoryHandler handles GET /api/v1/categories/{id}
func (a *App) GetCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	category, err := a.categories.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, category)
}

// ListReviewsHandler handles GET /api/v1/products/{id}/reviews
func (a *App) ListReviewsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	reviews, err := a.reviews.List(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, reviews)
}

// CreateReviewHandler handles POST /api/v1/products/{id}/reviews
func (a *App) CreateReviewHandler(w http.ResponseWriter, r *http.Request) {
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

	var req models.CreateReviewRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	req.ProductID = id

	review, err := a.reviews.Create(r.Context(), userID, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, review)
}

// DeleteReviewHandler handles DELETE /api/v1/reviews/{id}. Owners only; admin
// deletion has its own route.
func (a *App) DeleteReviewHandler(w http.ResponseWriter, r *http.Request) {
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

	if err := a.reviews.Delete(r.Context(), id, userID); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GetSettingsHandler handles GET /api/v1/settings
func (a *App) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := a.settings.Get(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, settings)
}

// ---- admin catalog ----

// AdminCreateProductHandler handles POST /api/v1/admin/products
func (a *App) AdminCreateProductHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ProductUpsert
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	product, err := a.products.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, product)
}

// AdminUpdateProductHandler handles PUT /api/v1/admin/products/{id}
func (a *App) AdminUpdateProductHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var req models.ProductUpsert
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	product, err := a.products.UpdateProduct(r.Context(), id, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, product)
}

// AdminDeleteProductHandler handles DELETE /api/v1/admin/products/{id}
func (a *App) AdminDeleteProductHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.products.DeleteProduct(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// AdminCreateCategoryHandler handles POST /api/v1/admin/categories
func (a *App) AdminCreateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CategoryUpsert
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	category, err := a.categories.Create(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, category)
}

// AdminUpdateCategoryHandler handles PUT /api/v1/admin/categories/{id}
func (a *App) AdminUpdateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var req models.CategoryUpsert
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	category, err := a.categories.Update(r.Context(), id, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, category)
}

// AdminDeleteCategoryHandler handles DELETE /api/v1/admin/categories/{id}
func (a *App) AdminDeleteCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.categories.Delete(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// AdminDeleteReviewHandler handles DELETE /api/v1/admin/reviews/{id}
func (a *App) AdminDeleteReviewHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.reviews.Delete(r.Context(), id, ""); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// AdminUpdateSettingsHandler handles PUT /api/v1/admin/settings
func (a *App) AdminUpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req models.Settings
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	settings, err := a.settings.Update(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, settings)
}
