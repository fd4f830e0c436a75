package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 商品（カタログの参照データ）
// stockは表示用で、注文時に減算しない。
type Product struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Line        string          `gorm:"type:varchar(100);index" json:"line"`
	Stock       int64           `gorm:"not null;default:0" json:"stock"`
	Description string          `gorm:"type:text" json:"description"`
	ImageURL    string          `gorm:"type:varchar(500)" json:"image_url"`
	CreatedAt   time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
