package models

import (
	"time"

	"github.com/mandymgr/helseriet-backend/internal/status"
)

type Product struct {
	ID          uint    `gorm:"primaryKey;autoIncrement"  json:"id"`
	Name        string  `gorm:"not null"                  json:"name"`
	Description string  `gorm:"not null"                  json:"description"`
	Price       float64 `gorm:"not null"                  json:"price"`
	Count       uint    `json:"count"`
}

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	Email        string `gorm:"not null"                 json:"email"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null"                 json:"role"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"          json:"id"`
	Token     string `gorm:"unique;not null"     json:"token"`
	UserID    uint   `gorm:"index;not null"      json:"user_id"`
	Role      string `gorm:"not null"            json:"role"`
	ExpiresAt int64  `gorm:"not null"            json:"expires_at"`
	Revoked   bool   `gorm:"default:false"       json:"revoked"`
}

type CartItem struct {
	ID        uint `gorm:"primaryKey"                  json:"id"`
	UserID    uint `gorm:"index;not null"              json:"user_id"`
	ProductID uint `gorm:"not null"                    json:"product_id"`
	Quantity  uint `gorm:"default:1;check:quantity>0"  json:"quantity"`
}

// Address is embedded twice on Order, once per prefix.
type Address struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

func (a Address) Complete() bool {
	return a.FirstName != "" && a.LastName != "" && a.Street != "" &&
		a.City != "" && a.PostalCode != "" && a.Country != ""
}

type Order struct {
	ID                uint                     `gorm:"primaryKey"                          json:"id"`
	OrderNumber       string                   `gorm:"uniqueIndex;not null"                json:"order_number"`
	UserID            uint                     `gorm:"index;not null"                      json:"user_id"`
	Email             string                   `gorm:"not null"                            json:"email"`
	Status            status.OrderStatus       `gorm:"not null"                            json:"status"`
	PaymentStatus     status.PaymentStatus     `gorm:"not null"                            json:"payment_status"`
	FulfillmentStatus status.FulfillmentStatus `gorm:"not null"                            json:"fulfillment_status"`
	Billing           Address                  `gorm:"embedded;embeddedPrefix:billing_"    json:"billing_address"`
	Shipping          Address                  `gorm:"embedded;embeddedPrefix:shipping_"   json:"shipping_address"`
	Notes             string                   `json:"notes"`
	Total             float64                  `gorm:"not null"                            json:"total"`
	CreatedAt         time.Time                `json:"created_at"`
	ConfirmedAt       *time.Time               `json:"confirmed_at"`
	Items             []OrderItem              `json:"items"`
}

// OrderItem is a snapshot of a cart line at checkout time. Name and
// unit price are frozen here and never re-read from Product.
type OrderItem struct {
	ID        uint    `gorm:"primaryKey"       json:"id"`
	OrderID   uint    `gorm:"index;not null"   json:"order_id"`
	ProductID uint    `gorm:"not null"         json:"product_id"`
	Name      string  `gorm:"not null"         json:"name"`
	Quantity  uint    `gorm:"not null"         json:"quantity"`
	UnitPrice float64 `gorm:"not null"         json:"unit_price"`
	LineTotal float64 `gorm:"not null"         json:"line_total"`
}

// Payment is one attempt to collect funds for an order via a provider.
// TransactionID is set once, on the first provider confirmation.
// Metadata holds the latest raw provider payload for audit.
type Payment struct {
	ID            uint                 `gorm:"primaryKey"      json:"id"`
	OrderID       uint                 `gorm:"index;not null"  json:"order_id"`
	Provider      string               `gorm:"not null"        json:"provider"`
	TransactionID string               `json:"transaction_id"`
	Status        status.PaymentStatus `gorm:"not null"        json:"status"`
	Amount        float64              `gorm:"not null"        json:"amount"`
	Metadata      string               `gorm:"type:text"       json:"metadata"`
	CreatedAt     time.Time            `json:"created_at"`
	ConfirmedAt   *time.Time           `json:"confirmed_at"`
}
