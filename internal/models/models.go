package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Version      int       `json:"-"`
}

type Address struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"-"`
	FullName   string    `json:"fullName"`
	Line1      string    `json:"line1"`
	Line2      string    `json:"line2,omitempty"`
	City       string    `json:"city"`
	State      string    `json:"state,omitempty"`
	PostalCode string    `json:"postalCode"`
	Country    string    `json:"country"`
	IsDefault  bool      `json:"isDefault"`
	CreatedAt  time.Time `json:"createdAt"`
}

type RefreshToken struct {
	ID        int64
	UserID    int64
	JTI       string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

type PasswordReset struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
}

type Product struct {
	ID          int64           `json:"id"`
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category"`
	BasePrice   decimal.Decimal `json:"basePrice"`
	IsActive    bool            `json:"isActive"`
	InWishlist  bool            `json:"inWishlist"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Version     int             `json:"-"`
	Variants    []Variant       `json:"variants,omitempty"`
}

type Variant struct {
	ID            int64            `json:"id"`
	ProductID     int64            `json:"productId"`
	SKU           string           `json:"sku"`
	Size          string           `json:"size"`
	Color         string           `json:"color"`
	PriceOverride *decimal.Decimal `json:"priceOverride,omitempty"`
	StockQuantity int              `json:"stockQuantity"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	Version       int              `json:"version"`
}

// UnitPrice is the variant's override when set, the product base price otherwise.
func (v Variant) UnitPrice(base decimal.Decimal) decimal.Decimal {
	if v.PriceOverride != nil {
		return *v.PriceOverride
	}
	return base
}

type Cart struct {
	ID        int64      `json:"id"`
	UserID    *int64     `json:"-"`
	SessionID *string    `json:"-"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"-"`
	UpdatedAt time.Time  `json:"-"`
}

// CartItem is a cart line joined with live catalog data.
type CartItem struct {
	ID             int64           `json:"id"`
	CartID         int64           `json:"-"`
	VariantID      int64           `json:"variantId"`
	ProductID      int64           `json:"productId"`
	ProductName    string          `json:"productName"`
	ProductSlug    string          `json:"productSlug"`
	SKU            string          `json:"sku"`
	Size           string          `json:"size"`
	Color          string          `json:"color"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Quantity       int             `json:"quantity"`
	AvailableStock int             `json:"availableStock"`
	LineTotal      decimal.Decimal `json:"lineTotal"`
}

type Order struct {
	ID              int64           `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	UserID          *int64          `json:"-"`
	SessionID       *string         `json:"-"`
	CartID          *int64          `json:"-"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone,omitempty"`
	ShippingAddress json.RawMessage `json:"shippingAddress"`
	BillingAddress  json.RawMessage `json:"billingAddress"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Discount        decimal.Decimal `json:"discount"`
	Shipping        decimal.Decimal `json:"shipping"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"paymentStatus"`
	PaymentIntentID *string         `json:"-"`
	RewardCode      *string         `json:"rewardCode,omitempty"`
	TrackingNumber  string          `json:"trackingNumber,omitempty"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	Version         int             `json:"-"`
	Items           []OrderItem     `json:"items,omitempty"`
}

// OrderItem is frozen at order creation and never follows later catalog edits.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"-"`
	VariantID   *int64          `json:"variantId,omitempty"`
	ProductName string          `json:"productName"`
	SKU         string          `json:"sku"`
	Size        string          `json:"size,omitempty"`
	Color       string          `json:"color,omitempty"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	CreatedAt   time.Time       `json:"createdAt"`
}

const (
	OrderStatusPending           = "pending"
	OrderStatusPaid              = "paid"
	OrderStatusShipped           = "shipped"
	OrderStatusDelivered         = "delivered"
	OrderStatusFailed            = "failed"
	OrderStatusRefunded          = "refunded"
	OrderStatusPartiallyRefunded = "partially_refunded"
)

const (
	PaymentStatusPending           = "pending"
	PaymentStatusPaid              = "paid"
	PaymentStatusFailed            = "failed"
	PaymentStatusRefunded          = "refunded"
	PaymentStatusPartiallyRefunded = "partially_refunded"
)

type LoyaltyAccount struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"userId"`
	PointsBalance  int       `json:"pointsBalance"`
	LifetimePoints int       `json:"lifetimePoints"`
	Tier           string    `json:"tier"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type LoyaltyTransaction struct {
	ID           int64     `json:"id"`
	AccountID    int64     `json:"-"`
	Type         string    `json:"type"`
	Source       string    `json:"source"`
	Amount       int       `json:"amount"`
	BalanceAfter int       `json:"balanceAfter"`
	OrderID      *int64    `json:"orderId,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

const (
	LoyaltyTxEarn   = "earn"
	LoyaltyTxRedeem = "redeem"
)

type LoyaltyRedemption struct {
	ID          int64      `json:"id"`
	AccountID   int64      `json:"-"`
	RewardID    string     `json:"rewardId"`
	Code        string     `json:"code"`
	PointsSpent int        `json:"pointsSpent"`
	OrderID     *int64     `json:"orderId,omitempty"`
	UsedAt      *time.Time `json:"usedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type Raffle struct {
	ID           int64      `json:"id"`
	ProductID    int64      `json:"productId"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	EntryStart   time.Time  `json:"entryStart"`
	EntryEnd     time.Time  `json:"entryEnd"`
	DrawAt       time.Time  `json:"drawAt"`
	MaxEntries   int        `json:"maxEntries"`
	WinnersCount int        `json:"winnersCount"`
	Status       string     `json:"status"`
	EntryCount   int        `json:"entryCount"`
	DrawnAt      *time.Time `json:"drawnAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// AcceptingEntries is derived, never stored: the raffle must be active and
// now must fall in [EntryStart, EntryEnd).
func (r Raffle) AcceptingEntries(now time.Time) bool {
	return r.Status == RaffleStatusActive && !now.Before(r.EntryStart) && now.Before(r.EntryEnd)
}

const (
	RaffleStatusActive    = "active"
	RaffleStatusDrawn     = "drawn"
	RaffleStatusCompleted = "completed"
	RaffleStatusCancelled = "cancelled"
)

type RaffleEntry struct {
	ID                 int64     `json:"id"`
	RaffleID           int64     `json:"raffleId"`
	UserID             int64     `json:"-"`
	SizePreference     string    `json:"sizePreference"`
	ShippingAddressID  *int64    `json:"shippingAddressId,omitempty"`
	Tier               string    `json:"tier"`
	PriorityMultiplier int       `json:"priorityMultiplier"`
	Status             string    `json:"status"`
	EnteredAt          time.Time `json:"enteredAt"`
}

const (
	EntryStatusPending = "pending"
	EntryStatusWon     = "won"
	EntryStatusLost    = "lost"
)
