package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// OrderType distinguishes one-off purchases from period (subscription) purchases
type OrderType string

const (
	OrderTypeOneTime OrderType = "onetime-order"
	OrderTypePeriod  OrderType = "period-order"
)

// InvoiceType mirrors OrderType on the billing side
type InvoiceType string

const (
	InvoiceTypeOneTime InvoiceType = "one-time"
	InvoiceTypePeriod  InvoiceType = "period"
)

// InvoiceStatus is the billing state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// User is the materialized identity-provider contract. Admin-gated
// operations require Admin to be true.
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Email     string         `gorm:"not null;uniqueIndex" json:"email"`
	Admin     bool           `gorm:"not null;default:false" json:"admin"`
	APIToken  string         `gorm:"not null;uniqueIndex" json:"-"`
}

// Product represents a catalog item referenced by order line items
type Product struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
	Price     int64          `gorm:"not null;default:0" json:"price"`
	Stock     int            `gorm:"not null;default:0" json:"stock"`
}

// Order is a purchase record. Identified externally by Number
// (ORD-YYYYMM-NNNN, PORD-... for period orders), internally by ID.
type Order struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
	Number         string         `gorm:"not null;uniqueIndex" json:"number"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	CustomerName   string         `gorm:"not null" json:"customer_name"`
	CustomerEmail  string         `gorm:"not null" json:"customer_email"`
	CustomerPhone  string         `json:"customer_phone"`
	AddressPrimary string         `gorm:"not null" json:"address_primary"`
	AddressSecond  string         `json:"address_secondary"`
	Latitude       *float64       `json:"latitude"`
	Longitude      *float64       `json:"longitude"`
	DeliveryMethod int            `gorm:"not null;default:0" json:"delivery_method"`
	DeliveryCost   int64          `gorm:"not null;default:0" json:"delivery_cost"`
	Subtotal       int64          `gorm:"not null;default:0" json:"subtotal"`
	Total          int64          `gorm:"not null;default:0" json:"total"`
	PaymentMethod  string         `json:"payment_method"`
	Type           OrderType      `gorm:"not null;index" json:"type"`
	InvoiceNumber  *string        `gorm:"index" json:"invoice_number,omitempty"`
	Status         OrderStatus    `gorm:"not null;index;default:pending" json:"status"`
	VehicleID      *uuid.UUID     `gorm:"type:uuid" json:"vehicle_id,omitempty"`
	RejectReason   *string        `json:"reject_reason,omitempty"`
	Items          []OrderItem    `gorm:"foreignKey:OrderID" json:"items"`
}

// OrderItem is a single order line
type OrderItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID   uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index" json:"product_id"`
	Quantity  int       `gorm:"not null;default:1" json:"quantity"`
	UnitPrice int64     `gorm:"not null;default:0" json:"unit_price"`
	Product   Product   `gorm:"foreignKey:ProductID" json:"product"`
}

// Invoice groups one or more orders for billing. A one-time invoice
// groups exactly one order; a period invoice groups many. Amount must
// equal the sum of the totals of the orders it references; the
// reconciliation service restores that invariant after removals.
type Invoice struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
	Number           string         `gorm:"not null;uniqueIndex" json:"number"`
	UserID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Type             InvoiceType    `gorm:"not null;index" json:"type"`
	Amount           int64          `gorm:"not null;default:0" json:"amount"`
	Status           InvoiceStatus  `gorm:"not null;index;default:pending" json:"status"`
	BillingAddress   string         `json:"billing_address"`
	ShippingAddress  string         `json:"shipping_address"`
	PeriodStart      *time.Time     `json:"period_start,omitempty"`
	PeriodEnd        *time.Time     `json:"period_end,omitempty"`
	PaymentMethod    *string        `json:"payment_method,omitempty"`
	PaymentProofURL  *string        `json:"payment_proof_url,omitempty"`
	PaymentReference *string        `json:"payment_reference,omitempty"`
	PaymentDate      *time.Time     `json:"payment_date,omitempty"`
	Items            []InvoiceItem  `gorm:"foreignKey:InvoiceID" json:"items"`
}

// InvoiceItem is a denormalized invoice line mirroring the orders' contents
type InvoiceItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID uuid.UUID `gorm:"type:uuid;not null;index" json:"invoice_id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index" json:"product_id"`
	Quantity  int       `gorm:"not null;default:1" json:"quantity"`
	UnitPrice int64     `gorm:"not null;default:0" json:"unit_price"`
}

// InvoiceOrder links an invoice to an order it bills. Every row must
// reference an order that still exists.
type InvoiceOrder struct {
	InvoiceID uuid.UUID `gorm:"type:uuid;primaryKey" json:"invoice_id"`
	OrderID   uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"order_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&User{},
		&Product{},
		&Order{},
		&OrderItem{},
		&Invoice{},
		&InvoiceItem{},
		&InvoiceOrder{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
