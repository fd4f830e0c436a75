package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// paid/cancelledは終端。以降は変更しない。
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

type Order struct {
	ID       int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID   int64           `gorm:"not null;index" json:"user_id"`
	Total    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	Currency string          `gorm:"type:varchar(8);not null" json:"currency"`
	Status   OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`

	//決済代行とつなぐ参照キー（作成ごとに一意）
	GatewayReference string `gorm:"type:varchar(100);not null;uniqueIndex" json:"gateway_reference"`
	//決済リンク作成時に返る代行側のID
	GatewayOrderID *string `gorm:"type:varchar(100);index" json:"gateway_order_id"`
	//確定時の取引ID
	GatewayTransactionID *string `gorm:"type:varchar(100);index" json:"gateway_transaction_id"`

	Phone      string `gorm:"type:varchar(30)" json:"phone"`
	Address    string `gorm:"type:varchar(255);not null" json:"address"`
	City       string `gorm:"type:varchar(100);not null" json:"city"`
	PostalCode string `gorm:"type:varchar(20);not null" json:"postal_code"`
	Country    string `gorm:"type:varchar(60)" json:"country"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
