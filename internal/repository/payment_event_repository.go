package repository

import (
	"context"

	"coffeeshop/internal/domain/model"
)

// 決済結果ログの絞り込み条件。
type PaymentEventFilter struct {
	OrderID *int64
	Outcome *model.PaymentOutcome
	Limit   int
	Offset  int
}

// 決済結果ログの保存・一覧取得の約束。
type PaymentEventRepository interface {
	Create(ctx context.Context, ev model.PaymentEvent) error
	List(ctx context.Context, filter PaymentEventFilter) ([]model.PaymentEvent, error)
}
