package repository

import (
	"context"

	"coffeeshop/internal/domain/model"
)

// 一覧検索
type ProductListQuery struct {
	Page  int
	Limit int
	Q     string
	Line  string
	Sort  string
}

// 商品の取得だけを約束。
type ProductRepository interface {
	List(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	ListFeatured(ctx context.Context, limit int) ([]model.Product, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)
	// 存在するものだけをIDで引けるmapで返す
	FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error)
}
