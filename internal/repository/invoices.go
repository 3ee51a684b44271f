package repository

import (
	"context"
	"time"

	"example.com/storefront/services/orders/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// invoiceRepository implements InvoiceRepository over GORM
type invoiceRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// Create inserts an invoice together with its denormalized items
func (r *invoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	if err := r.db.WithContext(ctx).Create(invoice).Error; err != nil {
		return errors.Wrap(err, "failed to create invoice")
	}
	return nil
}

// GetByID gets an invoice by ID, items populated
func (r *invoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Items").
		First(&invoice, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get invoice by ID")
	}
	return &invoice, nil
}

// GetByNumber gets an invoice by its invoice number
func (r *invoiceRepository) GetByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Items").
		First(&invoice, "number = ?", number).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get invoice by number")
	}
	return &invoice, nil
}

// ListAll returns every invoice in the store. Invoice counts are small
// enough that the integrity sweep loads them in one pass.
func (r *invoiceRepository) ListAll(ctx context.Context) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Items").
		Find(&invoices).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list invoices")
	}
	return invoices, nil
}

// Save persists the invoice record
func (r *invoiceRepository) Save(ctx context.Context, invoice *models.Invoice) error {
	if err := r.db.WithContext(ctx).Omit("Items").Save(invoice).Error; err != nil {
		return errors.Wrap(err, "failed to save invoice")
	}
	return nil
}

// Delete removes an invoice, its items, and its order references
func (r *invoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", id).Delete(&models.InvoiceItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("invoice_id = ?", id).Delete(&models.InvoiceOrder{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Invoice{}, "id = ?", id).Error
	})
	if err != nil {
		return errors.Wrap(err, "failed to delete invoice")
	}
	return nil
}

// FindByOrderID finds every invoice whose order references include the
// given order
func (r *invoiceRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Items").
		Joins("JOIN invoice_orders ON invoice_orders.invoice_id = invoices.id").
		Where("invoice_orders.order_id = ?", orderID).
		Find(&invoices).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find invoices by order ID")
	}
	return invoices, nil
}

// FindEmptyPeriod finds period invoices with no order references left
func (r *invoiceRepository) FindEmptyPeriod(ctx context.Context) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.readOnlyDB.WithContext(ctx).
		Where("type = ?", models.InvoiceTypePeriod).
		Where("NOT EXISTS (SELECT 1 FROM invoice_orders WHERE invoice_orders.invoice_id = invoices.id)").
		Find(&invoices).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find empty period invoices")
	}
	return invoices, nil
}

// FindOpenPeriodByUser finds the user's pending period invoice whose
// period covers the given time, if one exists
func (r *invoiceRepository) FindOpenPeriodByUser(ctx context.Context, userID uuid.UUID, at time.Time) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Items").
		Where("user_id = ? AND type = ? AND status = ?", userID, models.InvoiceTypePeriod, models.InvoiceStatusPending).
		Where("period_start <= ? AND period_end >= ?", at, at).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find open period invoice")
	}
	return &invoice, nil
}

// OrderIDs returns the identifiers of the orders an invoice references
func (r *invoiceRepository) OrderIDs(ctx context.Context, invoiceID uuid.UUID) ([]uuid.UUID, error) {
	var refs []models.InvoiceOrder
	err := r.readOnlyDB.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Find(&refs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get invoice order references")
	}

	ids := make([]uuid.UUID, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.OrderID)
	}
	return ids, nil
}

// AddOrder records that an invoice bills an order
func (r *invoiceRepository) AddOrder(ctx context.Context, invoiceID, orderID uuid.UUID) error {
	ref := models.InvoiceOrder{InvoiceID: invoiceID, OrderID: orderID}
	if err := r.db.WithContext(ctx).Create(&ref).Error; err != nil {
		return errors.Wrap(err, "failed to add order reference to invoice")
	}
	return nil
}

// RemoveOrder drops an order reference from an invoice
func (r *invoiceRepository) RemoveOrder(ctx context.Context, invoiceID, orderID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("invoice_id = ? AND order_id = ?", invoiceID, orderID).
		Delete(&models.InvoiceOrder{}).Error
	if err != nil {
		return errors.Wrap(err, "failed to remove order reference from invoice")
	}
	return nil
}

// ReplaceItems swaps an invoice's denormalized items wholesale. Items
// are always rebuilt from the currently-valid orders, never patched.
func (r *invoiceRepository) ReplaceItems(ctx context.Context, invoiceID uuid.UUID, items []models.InvoiceItem) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", invoiceID).Delete(&models.InvoiceItem{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		for i := range items {
			items[i].InvoiceID = invoiceID
			if items[i].ID == uuid.Nil {
				items[i].ID = uuid.New()
			}
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		return errors.Wrap(err, "failed to replace invoice items")
	}
	return nil
}

// MarkOverdue flips pending invoices whose period ended before the
// cutoff to overdue, returning how many were updated
func (r *invoiceRepository) MarkOverdue(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("status = ? AND period_end IS NOT NULL AND period_end < ?", models.InvoiceStatusPending, before).
		Update("status", models.InvoiceStatusOverdue)
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to mark overdue invoices")
	}
	return result.RowsAffected, nil
}
