package repository

import (
	"context"

	"coffeeshop/internal/domain/model"
)

type CartRepository interface {
	// 無ければ作る（何回呼んでも1つ）
	GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error)
	FindByUserID(ctx context.Context, userID int64) (model.Cart, error)
	// ユーザーのカート明細を全削除して、消した件数を返す
	ClearByUserID(ctx context.Context, userID int64) (int64, error)
}
