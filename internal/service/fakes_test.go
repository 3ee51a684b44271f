package service

import (
	"context"
	"sort"
	"time"

	"example.com/storefront/services/orders/internal/models"
	"example.com/storefront/services/orders/internal/repository"

	"github.com/google/uuid"
)

// fakeStore is an in-memory Store for exercising the service layer
// without a database. Transaction runs fn against the store itself, so
// a returned error leaves no rollback to simulate; failure-path tests
// inject errors before any mutation happens.
type fakeStore struct {
	orders   map[uuid.UUID]*models.Order
	invoices map[uuid.UUID]*models.Invoice
	products map[uuid.UUID]*models.Product
	users    map[uuid.UUID]*models.User
	links    map[uuid.UUID][]uuid.UUID // invoice id -> order ids

	findByOrderErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:   make(map[uuid.UUID]*models.Order),
		invoices: make(map[uuid.UUID]*models.Invoice),
		products: make(map[uuid.UUID]*models.Product),
		users:    make(map[uuid.UUID]*models.User),
		links:    make(map[uuid.UUID][]uuid.UUID),
	}
}

func (f *fakeStore) Orders() repository.OrderRepository     { return &fakeOrderRepo{f} }
func (f *fakeStore) Invoices() repository.InvoiceRepository { return &fakeInvoiceRepo{f} }
func (f *fakeStore) Products() repository.ProductRepository { return &fakeProductRepo{f} }
func (f *fakeStore) Users() repository.UserRepository       { return &fakeUserRepo{f} }

func (f *fakeStore) Transaction(ctx context.Context, fn func(repository.Store) error) error {
	return fn(f)
}

func (f *fakeStore) addOrder(order *models.Order) {
	clone := *order
	f.orders[order.ID] = &clone
}

func (f *fakeStore) addInvoice(invoice *models.Invoice, orderIDs ...uuid.UUID) {
	clone := *invoice
	f.invoices[invoice.ID] = &clone
	f.links[invoice.ID] = append([]uuid.UUID{}, orderIDs...)
}

func (f *fakeStore) addProduct(product *models.Product) {
	clone := *product
	f.products[product.ID] = &clone
}

func cloneOrder(o *models.Order) *models.Order {
	clone := *o
	clone.Items = append([]models.OrderItem{}, o.Items...)
	return &clone
}

func cloneInvoice(inv *models.Invoice) *models.Invoice {
	clone := *inv
	clone.Items = append([]models.InvoiceItem{}, inv.Items...)
	return &clone
}

type fakeOrderRepo struct{ s *fakeStore }

func (r *fakeOrderRepo) Create(ctx context.Context, order *models.Order) error {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := r.s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (r *fakeOrderRepo) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	for _, order := range r.s.orders {
		if order.Number == number {
			return cloneOrder(order), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeOrderRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error) {
	var out []models.Order
	for _, id := range ids {
		if order, ok := r.s.orders[id]; ok {
			out = append(out, *cloneOrder(order))
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) List(ctx context.Context, filter repository.ListOrdersFilter) ([]models.Order, int64, error) {
	var matched []models.Order
	for _, order := range r.s.orders {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.OrderType != "" && order.Type != filter.OrderType {
			continue
		}
		matched = append(matched, *cloneOrder(order))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.Limit
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *fakeOrderRepo) Save(ctx context.Context, order *models.Order) error {
	if _, ok := r.s.orders[order.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *fakeOrderRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.s.orders, id)
	return nil
}

func (r *fakeOrderRepo) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	for _, order := range r.s.orders {
		if !order.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

type fakeInvoiceRepo struct{ s *fakeStore }

func (r *fakeInvoiceRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	r.s.invoices[invoice.ID] = cloneInvoice(invoice)
	if _, ok := r.s.links[invoice.ID]; !ok {
		r.s.links[invoice.ID] = nil
	}
	return nil
}

func (r *fakeInvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	invoice, ok := r.s.invoices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneInvoice(invoice), nil
}

func (r *fakeInvoiceRepo) GetByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	for _, invoice := range r.s.invoices {
		if invoice.Number == number {
			return cloneInvoice(invoice), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeInvoiceRepo) ListAll(ctx context.Context) ([]models.Invoice, error) {
	var out []models.Invoice
	for _, invoice := range r.s.invoices {
		out = append(out, *cloneInvoice(invoice))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *fakeInvoiceRepo) Save(ctx context.Context, invoice *models.Invoice) error {
	if _, ok := r.s.invoices[invoice.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.invoices[invoice.ID] = cloneInvoice(invoice)
	return nil
}

func (r *fakeInvoiceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.s.invoices, id)
	delete(r.s.links, id)
	return nil
}

func (r *fakeInvoiceRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Invoice, error) {
	if r.s.findByOrderErr != nil {
		return nil, r.s.findByOrderErr
	}
	var out []models.Invoice
	for invoiceID, orderIDs := range r.s.links {
		for _, id := range orderIDs {
			if id == orderID {
				out = append(out, *cloneInvoice(r.s.invoices[invoiceID]))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *fakeInvoiceRepo) FindEmptyPeriod(ctx context.Context) ([]models.Invoice, error) {
	var out []models.Invoice
	for id, invoice := range r.s.invoices {
		if invoice.Type == models.InvoiceTypePeriod && len(r.s.links[id]) == 0 {
			out = append(out, *cloneInvoice(invoice))
		}
	}
	return out, nil
}

func (r *fakeInvoiceRepo) FindOpenPeriodByUser(ctx context.Context, userID uuid.UUID, at time.Time) (*models.Invoice, error) {
	for _, invoice := range r.s.invoices {
		if invoice.Type != models.InvoiceTypePeriod || invoice.UserID != userID {
			continue
		}
		if invoice.Status != models.InvoiceStatusPending {
			continue
		}
		if invoice.PeriodStart != nil && at.Before(*invoice.PeriodStart) {
			continue
		}
		if invoice.PeriodEnd != nil && at.After(*invoice.PeriodEnd) {
			continue
		}
		return cloneInvoice(invoice), nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeInvoiceRepo) OrderIDs(ctx context.Context, invoiceID uuid.UUID) ([]uuid.UUID, error) {
	return append([]uuid.UUID{}, r.s.links[invoiceID]...), nil
}

func (r *fakeInvoiceRepo) AddOrder(ctx context.Context, invoiceID, orderID uuid.UUID) error {
	r.s.links[invoiceID] = append(r.s.links[invoiceID], orderID)
	return nil
}

func (r *fakeInvoiceRepo) RemoveOrder(ctx context.Context, invoiceID, orderID uuid.UUID) error {
	kept := r.s.links[invoiceID][:0]
	for _, id := range r.s.links[invoiceID] {
		if id != orderID {
			kept = append(kept, id)
		}
	}
	r.s.links[invoiceID] = kept
	return nil
}

func (r *fakeInvoiceRepo) ReplaceItems(ctx context.Context, invoiceID uuid.UUID, items []models.InvoiceItem) error {
	invoice, ok := r.s.invoices[invoiceID]
	if !ok {
		return repository.ErrNotFound
	}
	invoice.Items = append([]models.InvoiceItem{}, items...)
	return nil
}

func (r *fakeInvoiceRepo) MarkOverdue(ctx context.Context, before time.Time) (int64, error) {
	var updated int64
	for _, invoice := range r.s.invoices {
		if invoice.Status != models.InvoiceStatusPending || invoice.PeriodEnd == nil {
			continue
		}
		if invoice.PeriodEnd.Before(before) {
			invoice.Status = models.InvoiceStatusOverdue
			updated++
		}
	}
	return updated, nil
}

type fakeProductRepo struct{ s *fakeStore }

func (r *fakeProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, ok := r.s.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *product
	return &clone, nil
}

func (r *fakeProductRepo) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	product, ok := r.s.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	product.Stock -= quantity
	if product.Stock < 0 {
		product.Stock = 0
	}
	return nil
}

type fakeUserRepo struct{ s *fakeStore }

func (r *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *fakeUserRepo) GetByToken(ctx context.Context, token string) (*models.User, error) {
	for _, user := range r.s.users {
		if user.APIToken == token {
			clone := *user
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}
