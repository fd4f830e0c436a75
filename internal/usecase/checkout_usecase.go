package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"coffeeshop/internal/domain/model"
	repo "coffeeshop/internal/repository"

	"github.com/shopspring/decimal"
)

// 入力チェックの約束。実装は validator パッケージ。
type CheckoutValidator interface {
	ValidateCheckout(in CheckoutInput) error
}

type CheckoutItemInput struct {
	ProductID int64
	Quantity  int64
	// クライアントが表示していた価格（保存には使わない）
	Price decimal.Decimal
}

type CheckoutInput struct {
	Items      []CheckoutItemInput
	Amount     decimal.Decimal
	Phone      string
	Address    string
	City       string
	PostalCode string
	Country    string
}

type CheckoutOutput struct {
	PaymentURL     string `json:"paymentUrl"`
	OrderID        int64  `json:"orderId"`
	OrderReference string `json:"orderReference"`
}

type CheckoutUsecase struct {
	tx        repo.TransactionManager
	orders    repo.OrderRepository
	users     repo.UserRepository
	gateway   PaymentGateway
	validator CheckoutValidator
	clock     Clock
	currency  string
	log       *slog.Logger
}

func NewCheckoutUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	users repo.UserRepository,
	gateway PaymentGateway,
	validator CheckoutValidator,
	clock Clock,
	currency string,
	log *slog.Logger,
) *CheckoutUsecase {
	return &CheckoutUsecase{
		tx:        tx,
		orders:    orders,
		users:     users,
		gateway:   gateway,
		validator: validator,
		clock:     clock,
		currency:  currency,
		log:       log,
	}
}

// 決済代行の参照キー
func GatewayReference(userID int64, nanos int64) string {
	return fmt.Sprintf("ORDER_%d_%d", userID, nanos)
}

// Checkout は pending の注文を作って、決済リンクを返す。
// 注文と明細は1つのトランザクションで保存し、決済代行はcommit後に呼ぶ。
func (u *CheckoutUsecase) Checkout(ctx context.Context, userID int64, in CheckoutInput) (CheckoutOutput, error) {
	if userID <= 0 {
		return CheckoutOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := u.validator.ValidateCheckout(in); err != nil {
		return CheckoutOutput{}, err
	}

	user, err := u.users.FindByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return CheckoutOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	now := u.clock.Now()
	order := model.Order{
		UserID:           userID,
		Currency:         u.currency,
		Status:           model.OrderStatusPending,
		GatewayReference: GatewayReference(userID, now.UnixNano()),
		Phone:            in.Phone,
		Address:          in.Address,
		City:             in.City,
		PostalCode:       in.PostalCode,
		Country:          in.Country,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		ids := make([]int64, 0, len(in.Items))
		for _, it := range in.Items {
			ids = append(ids, it.ProductID)
		}
		products, err := r.Products().FindByIDs(ctx, ids)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//価格はDBの商品価格を使う
		items := make([]model.OrderItem, 0, len(in.Items))
		total := decimal.Zero
		for _, it := range in.Items {
			p, ok := products[it.ProductID]
			if !ok {
				return NewHTTPError(http.StatusNotFound, "product not found")
			}
			item := model.OrderItem{
				ProductID:           p.ID,
				ProductNameSnapshot: p.Name,
				Price:               p.Price,
				Quantity:            it.Quantity,
				CreatedAt:           now,
			}
			items = append(items, item)
			total = total.Add(item.Subtotal())
		}

		if !total.Equal(in.Amount.Round(2)) {
			return NewHTTPError(http.StatusBadRequest, "amount mismatch")
		}
		order.Total = total

		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		order.ID = orderID

		if err := r.OrderItems().CreateBulk(ctx, orderID, items); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		return CheckoutOutput{}, err
	}

	first, last := user.SplitName()
	session, err := u.gateway.CreatePayment(ctx, PaymentRequest{
		Reference:  order.GatewayReference,
		Amount:     order.Total,
		Currency:   order.Currency,
		FirstName:  first,
		LastName:   last,
		Email:      user.Email,
		Phone:      order.Phone,
		Address:    order.Address,
		City:       order.City,
		PostalCode: order.PostalCode,
		Country:    order.Country,
	})
	if err != nil {
		// 注文はpendingのまま残る
		u.log.ErrorContext(ctx, "payment session failed",
			slog.Int64("order_id", order.ID),
			slog.String("reference", order.GatewayReference),
			slog.Any("err", err),
		)
		return CheckoutOutput{}, NewHTTPError(http.StatusBadGateway, "payment could not be initiated")
	}

	if session.GatewayOrderID != "" {
		if err := u.orders.SetGatewayOrderID(ctx, order.ID, session.GatewayOrderID); err != nil {
			u.log.WarnContext(ctx, "save gateway order id failed",
				slog.Int64("order_id", order.ID),
				slog.String("gateway_order_id", session.GatewayOrderID),
				slog.Any("err", err),
			)
		}
	}

	u.log.InfoContext(ctx, "order created",
		slog.Int64("order_id", order.ID),
		slog.Int64("user_id", userID),
		slog.String("reference", order.GatewayReference),
		slog.String("total", order.Total.StringFixed(2)),
	)

	return CheckoutOutput{
		PaymentURL:     session.URL,
		OrderID:        order.ID,
		OrderReference: order.GatewayReference,
	}, nil
}
