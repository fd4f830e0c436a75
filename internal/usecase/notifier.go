package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type OrderMailItem struct {
	Name     string
	Quantity int64
	Price    decimal.Decimal
	Subtotal decimal.Decimal
}

// 支払い完了メールの中身
type OrderMail struct {
	OrderID       int64
	Reference     string
	TransactionID string
	PaidAt        time.Time

	CustomerName  string
	CustomerEmail string
	Phone         string
	Address       string
	City          string
	PostalCode    string
	Country       string

	Items    []OrderMailItem
	Total    decimal.Decimal
	Currency string
}

// メール送信の約束。実装は infra/mailer。
type Notifier interface {
	SendCustomerConfirmation(ctx context.Context, m OrderMail) error
	SendCompanyNotification(ctx context.Context, m OrderMail) error
}
