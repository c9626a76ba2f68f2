package models

import "time"

// OrderStatus is the lifecycle axis of an order, independent of payment.
type OrderStatus string

// PaymentStatus tracks the money side of an order. Stock is decremented at
// most once per order, gated by PaymentStatus leaving PENDING.
type PaymentStatus string

// PaymentMethod selects the checkout channel.
type PaymentMethod string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderShipped   OrderStatus = "SHIPPED"
	OrderFulfilled OrderStatus = "FULFILLED"
	OrderCancelled OrderStatus = "CANCELLED"

	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"

	MethodCOD        PaymentMethod = "COD"
	MethodCreditCard PaymentMethod = "CREDIT_CARD"
)

// ValidOrderStatus reports whether s is one of the known order statuses.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderShipped, OrderFulfilled, OrderCancelled:
		return true
	}
	return false
}

// Product is a catalog entry. Stock is the one piece of shared mutable state
// with a real consistency requirement; it is only changed through conditional
// updates.
type Product struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CategoryID  int64     `json:"category_id" db:"category_id"`
	SKU         string    `json:"sku" db:"sku"`
	ImageURL    string    `json:"image_url" db:"image_url"`
	Price       float64   `json:"price" db:"price"`
	Discount    float64   `json:"discount" db:"discount"`
	FinalPrice  float64   `json:"final_price"`
	Stock       int       `json:"stock" db:"stock"`
	SalesCount  int       `json:"sales_count" db:"sales_count"`
	Rating      float64   `json:"rating" db:"rating"`
	NumReviews  int       `json:"num_reviews" db:"num_reviews"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ComputeFinalPrice derives the effective price from price and discount.
// It is recomputed on every read so price/discount edits take effect
// immediately and the derived value is never stored authoritatively.
func (p *Product) ComputeFinalPrice() {
	p.FinalPrice = p.Price * (1 - p.Discount/100)
}

// Category groups products for the storefront navigation.
type Category struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	ImageURL  string    `json:"image_url" db:"image_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Cart is the per-user shopping cart. Exactly one cart exists per user,
// created lazily on first access and cleared (not deleted) after checkout.
type Cart struct {
	ID        int64     `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CartItem is one line in a cart. Name, price and image are snapshots taken
// at add-time; the price snapshot is refreshed from the live product on
// updates, so the cart always reflects current pricing. Size and Color are
// nil when the line has no variant; a nil selector matches only nil.
type CartItem struct {
	ID        int64     `json:"id" db:"id"`
	CartID    int64     `json:"cart_id" db:"cart_id"`
	ProductID int64     `json:"product_id" db:"product_id"`
	Name      string    `json:"name" db:"name"`
	Price     float64   `json:"price" db:"price"`
	ImageURL  string    `json:"image_url" db:"image_url"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Size      *string   `json:"size,omitempty" db:"size"`
	Color     *string   `json:"color,omitempty" db:"color"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MatchesVariant reports whether the line is the one identified by
// (productID, size, color). Absent selectors match only absent selectors;
// there is no wildcard.
func (ci *CartItem) MatchesVariant(productID int64, size, color *string) bool {
	if ci.ProductID != productID {
		return false
	}
	return strPtrEqual(ci.Size, size) && strPtrEqual(ci.Color, color)
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CartView is a cart with its lines and synchronously derived totals.
type CartView struct {
	Cart        *Cart      `json:"cart"`
	Items       []CartItem `json:"items"`
	TotalItems  int        `json:"total_items"`
	TotalAmount float64    `json:"total_amount"`
}

// RecomputeTotals rederives TotalItems and TotalAmount from the lines. The
// totals are never persisted; every mutation path recomputes them before
// returning the view.
func (v *CartView) RecomputeTotals() {
	v.TotalItems = 0
	v.TotalAmount = 0
	for _, it := range v.Items {
		v.TotalItems += it.Quantity
		v.TotalAmount += it.Price * float64(it.Quantity)
	}
}

// WishlistItem is a set entry keyed by product only; no quantity, no variant.
type WishlistItem struct {
	ID        int64     `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	ProductID int64     `json:"product_id" db:"product_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Order is created once per checkout and is immutable except for the two
// status axes and the payment session reference. Its items are frozen copies
// so later price or stock changes never alter a placed order.
type Order struct {
	ID               int64         `json:"id" db:"id"`
	OrderNumber      string        `json:"order_number" db:"order_number"`
	UserID           string        `json:"user_id" db:"user_id"`
	OrderStatus      OrderStatus   `json:"order_status" db:"order_status"`
	PaymentStatus    PaymentStatus `json:"payment_status" db:"payment_status"`
	PaymentMethod    PaymentMethod `json:"payment_method" db:"payment_method"`
	PaymentSessionID string        `json:"payment_session_id,omitempty" db:"payment_session_id"`
	TotalAmount      float64       `json:"total_amount" db:"total_amount"`
	Currency         string        `json:"currency" db:"currency"`
	ShippingName     string        `json:"shipping_name" db:"shipping_name"`
	ShippingStreet   string        `json:"shipping_street" db:"shipping_street"`
	ShippingCity     string        `json:"shipping_city" db:"shipping_city"`
	ShippingZip      string        `json:"shipping_zip" db:"shipping_zip"`
	ShippingCountry  string        `json:"shipping_country" db:"shipping_country"`
	Items            []OrderItem   `json:"items,omitempty"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// OrderItem is a frozen line: price is the product price at order time.
type OrderItem struct {
	ID        int64   `json:"id" db:"id"`
	OrderID   int64   `json:"order_id" db:"order_id"`
	ProductID int64   `json:"product_id" db:"product_id"`
	Name      string  `json:"name" db:"name"`
	Price     float64 `json:"price" db:"price"`
	Quantity  int     `json:"quantity" db:"quantity"`
	Size      *string `json:"size,omitempty" db:"size"`
	Color     *string `json:"color,omitempty" db:"color"`
}

// Review is one user's rating of a product; one review per (product, user).
type Review struct {
	ID        int64     `json:"id" db:"id"`
	ProductID int64     `json:"product_id" db:"product_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Rating    int       `json:"rating" db:"rating"`
	Comment   string    `json:"comment" db:"comment"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Settings is the single-row store configuration, last-write-wins.
type Settings struct {
	StoreName             string    `json:"store_name" db:"store_name"`
	Currency              string    `json:"currency" db:"currency"`
	ShippingFee           float64   `json:"shipping_fee" db:"shipping_fee"`
	FreeShippingThreshold float64   `json:"free_shipping_threshold" db:"free_shipping_threshold"`
	CODEnabled            bool      `json:"cod_enabled" db:"cod_enabled"`
	UpdatedAt             time.Time `json:"updated_at" db:"updated_at"`
}

// ---- request DTOs ----

// CartItemRequest is the body for cart add/update/remove.
type CartItemRequest struct {
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Size      *string `json:"size,omitempty"`
	Color     *string `json:"color,omitempty"`
}

// ShippingAddress is the delivery destination captured at checkout.
type ShippingAddress struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// CreateOrderRequest is the checkout body. Items are re-validated against the
// live catalog; client-supplied prices are ignored.
type CreateOrderRequest struct {
	Items           []CartItemRequest `json:"items"`
	ShippingAddress ShippingAddress   `json:"shipping_address"`
	PaymentMethod   PaymentMethod     `json:"payment_method"`
}

// CreateReviewRequest is the body for posting a review.
type CreateReviewRequest struct {
	ProductID int64  `json:"product_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

// ProductUpsert is the admin body for creating or updating a product.
type ProductUpsert struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	CategoryID  int64   `json:"category_id"`
	SKU         string  `json:"sku"`
	ImageURL    string  `json:"image_url"`
	Price       float64 `json:"price"`
	Discount    float64 `json:"discount"`
	Stock       int     `json:"stock"`
	IsActive    bool    `json:"is_active"`
}

// CategoryUpsert is the admin body for creating or updating a category.
type CategoryUpsert struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ImageURL string `json:"image_url"`
}
