package repository

import (
	"context"
	"time"

	"coffeeshop/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	Create(ctx context.Context, order model.Order) (int64, error)
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)

	//参照キーで検索
	FindByGatewayReference(ctx context.Context, reference string) (model.Order, error)
	//取引ID、または代行側の注文IDで検索
	FindByGatewayKey(ctx context.Context, key string) (model.Order, error)
	//決済リンク作成後に代行側のIDを保存
	SetGatewayOrderID(ctx context.Context, orderID int64, gatewayOrderID string) error

	// fromのときだけtoに変える（条件付きUPDATE）。
	// 変わったらtrue、他のリクエストが先に変えていたらfalse。
	TransitionStatus(ctx context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus, transactionID *string) (bool, error)

	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
	//結果コードが不明でpendingのままの注文
	ListNeedsReview(ctx context.Context, limit int) ([]model.Order, error)
}
