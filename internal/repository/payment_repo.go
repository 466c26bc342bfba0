package repository

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eventpay/internal/models"
)

// ErrNotFound is returned when no payment matches the lookup.
var ErrNotFound = errors.New("payment not found")

// PaymentRepository handles payment database operations.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// FindByID returns a payment by its numeric id.
func (r *PaymentRepository) FindByID(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

// FindByPidx returns a payment by gateway transaction reference.
func (r *PaymentRepository) FindByPidx(ctx context.Context, pidx string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("pidx = ?", pidx).First(&payment).Error; err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

// CreateForBooking inserts payment unless its booking already has a non-failed
// payment, in which case that payment is returned and nothing is written. The
// booking's rows are locked for the duration of the check and the insert.
func (r *PaymentRepository) CreateForBooking(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	var active *models.Payment
	txn := func(tx *gorm.DB) error {
		active = nil
		var existing models.Payment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("booking_id = ? AND status <> ?", payment.BookingID, models.StatusFailed).
			Order("id DESC").
			First(&existing).Error
		switch {
		case err == nil:
			active = &existing
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		return tx.Create(payment).Error
	}

	err := r.db.WithContext(ctx).Transaction(txn)
	if isDeadlock(err) {
		// The competing insert has committed by now; the retry sees it.
		err = r.db.WithContext(ctx).Transaction(txn)
	}
	if err != nil {
		return nil, err
	}
	return active, nil
}

// Update applies column updates to a payment.
func (r *PaymentRepository) Update(ctx context.Context, id uint, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).Updates(updates).Error
}

// AdvanceStatus moves a payment from one status to another only if it is
// still in the expected state. It reports whether a row was changed.
func (r *PaymentRepository) AdvanceStatus(ctx context.Context, id uint, from, to models.Status, updates map[string]interface{}) (bool, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	updates["updated_at"] = time.Now()

	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Touch bumps updated_at after a re-check that observed no change.
func (r *PaymentRepository) Touch(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}

// FindUnsettled returns non-terminal payments last updated before the cutoff.
func (r *PaymentRepository) FindUnsettled(ctx context.Context, before time.Time, limit int) ([]models.Payment, error) {
	return r.findByStatusesBefore(ctx, []models.Status{models.StatusInitiated, models.StatusPending}, before, limit)
}

// FindInitiatedBefore returns payments still in the initiated state created before the cutoff.
func (r *PaymentRepository) FindInitiatedBefore(ctx context.Context, before time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	if limit <= 0 {
		limit = 100
	}
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.StatusInitiated, before).
		Order("id ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) findByStatusesBefore(ctx context.Context, statuses []models.Status, before time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	if limit <= 0 {
		limit = 100
	}
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", statuses, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func isDeadlock(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1213
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
