package usecase

import (
	"context"

	"github.com/shopspring/decimal"
)

// 決済代行に渡す情報（請求先と配送先は同じ）
type PaymentRequest struct {
	Reference string
	Amount    decimal.Decimal
	Currency  string

	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Address    string
	City       string
	PostalCode string
	Country    string
}

// 決済リンク
type PaymentSession struct {
	URL            string
	GatewayOrderID string
}

// 決済代行の約束。実装は infra/tilopay。
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req PaymentRequest) (PaymentSession, error)
}
