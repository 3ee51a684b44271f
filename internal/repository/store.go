package repository

import (
	"context"
	"time"

	"example.com/storefront/services/orders/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListOrdersFilter narrows the order listing
type ListOrdersFilter struct {
	Status    models.OrderStatus
	OrderType models.OrderType
	Page      int
	Limit     int
}

// OrderRepository provides access to order data
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByNumber(ctx context.Context, number string) (*models.Order, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error)
	List(ctx context.Context, filter ListOrdersFilter) ([]models.Order, int64, error)
	Save(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
}

// InvoiceRepository provides access to invoice data and the
// invoice-order reference rows
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	GetByNumber(ctx context.Context, number string) (*models.Invoice, error)
	ListAll(ctx context.Context) ([]models.Invoice, error)
	Save(ctx context.Context, invoice *models.Invoice) error
	Delete(ctx context.Context, id uuid.UUID) error

	FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Invoice, error)
	FindEmptyPeriod(ctx context.Context) ([]models.Invoice, error)
	FindOpenPeriodByUser(ctx context.Context, userID uuid.UUID, at time.Time) (*models.Invoice, error)

	OrderIDs(ctx context.Context, invoiceID uuid.UUID) ([]uuid.UUID, error)
	AddOrder(ctx context.Context, invoiceID, orderID uuid.UUID) error
	RemoveOrder(ctx context.Context, invoiceID, orderID uuid.UUID) error
	ReplaceItems(ctx context.Context, invoiceID uuid.UUID, items []models.InvoiceItem) error

	MarkOverdue(ctx context.Context, before time.Time) (int64, error)
}

// ProductRepository provides access to product data
type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error
}

// UserRepository provides access to user data
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByToken(ctx context.Context, token string) (*models.User, error)
}

// Store bundles the repositories with a transaction boundary. Fn runs
// against a transaction-scoped store; any error aborts the whole
// transaction, so multi-document updates are all-or-nothing.
type Store interface {
	Orders() OrderRepository
	Invoices() InvoiceRepository
	Products() ProductRepository
	Users() UserRepository
	Transaction(ctx context.Context, fn func(Store) error) error
}

// gormStore implements Store over a write DB and a read-only DB pair
type gormStore struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewStore creates a Store backed by GORM
func NewStore(db, readOnlyDB *gorm.DB) Store {
	if readOnlyDB == nil {
		readOnlyDB = db
	}
	return &gormStore{db: db, readOnlyDB: readOnlyDB}
}

func (s *gormStore) Orders() OrderRepository {
	return &orderRepository{db: s.db, readOnlyDB: s.readOnlyDB}
}

func (s *gormStore) Invoices() InvoiceRepository {
	return &invoiceRepository{db: s.db, readOnlyDB: s.readOnlyDB}
}

func (s *gormStore) Products() ProductRepository {
	return &productRepository{db: s.db, readOnlyDB: s.readOnlyDB}
}

func (s *gormStore) Users() UserRepository {
	return &userRepository{db: s.db, readOnlyDB: s.readOnlyDB}
}

// Transaction runs fn against a store scoped to a single database
// transaction. Reads inside the transaction go to the write connection
// so they observe the transaction's own mutations.
func (s *gormStore) Transaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx, readOnlyDB: tx})
	})
}
