package repository

import (
	"context"
	"time"

	"coffeeshop/internal/domain/model"
	repo "coffeeshop/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type paymentEventGormRepository struct {
	db *gorm.DB
}

func NewPaymentEventGormRepository(db *gorm.DB) repo.PaymentEventRepository {
	return &paymentEventGormRepository{db: db}
}

func (r *paymentEventGormRepository) Create(ctx context.Context, ev model.PaymentEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(&ev).Error; err != nil {
		return err
	}
	return nil
}

func (r *paymentEventGormRepository) List(ctx context.Context, filter repo.PaymentEventFilter) ([]model.PaymentEvent, error) {
	q := r.db.WithContext(ctx).Model(&model.PaymentEvent{})

	if filter.OrderID != nil {
		q = q.Where("order_id = ?", *filter.OrderID)
	}
	if filter.Outcome != nil {
		q = q.Where("outcome = ?", *filter.Outcome)
	}

	//新しい順
	q = q.Order("created_at DESC").Order("id DESC")

	// limit/offset
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	q = q.Limit(limit).Offset(filter.Offset)

	var events []model.PaymentEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
