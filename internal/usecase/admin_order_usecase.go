package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"coffeeshop/internal/domain/model"
	repo "coffeeshop/internal/repository"
)

type AdminOrderUsecase struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	events     repo.PaymentEventRepository
	carts      CartClearer
	log        *slog.Logger
}

func NewAdminOrderUsecase(
	orders repo.OrderRepository,
	orderItems repo.OrderItemRepository,
	events repo.PaymentEventRepository,
	carts CartClearer,
	log *slog.Logger,
) *AdminOrderUsecase {
	return &AdminOrderUsecase{
		orders:     orders,
		orderItems: orderItems,
		events:     events,
		carts:      carts,
		log:        log,
	}
}

type AdminOrderListInput struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   string
	To     string
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, in AdminOrderListInput) (OrderListOutput, error) {
	// page/limitの最低限チェック
	if in.Page < 1 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	status := strings.TrimSpace(in.Status)
	switch model.OrderStatus(status) {
	case "", model.OrderStatusPending, model.OrderStatusPaid, model.OrderStatusCancelled:
	default:
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	f := repo.AdminOrderListFilter{
		Page:   in.Page,
		Limit:  in.Limit,
		Status: status,
		UserID: in.UserID,
	}
	var ok bool
	if f.From, ok = parseDateTimeRFC3339(in.From); !ok && strings.TrimSpace(in.From) != "" {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid from")
	}
	if f.To, ok = parseDateTimeRFC3339(in.To); !ok && strings.TrimSpace(in.To) != "" {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid to")
	}

	orders, total, err := u.orders.ListAdmin(ctx, f)
	if err != nil {
		return OrderListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	outs, err := loadOrderOutputs(ctx, u.orderItems, orders)
	if err != nil {
		return OrderListOutput{}, err
	}
	return OrderListOutput{Items: outs, Total: total, Page: in.Page, Limit: in.Limit}, nil
}

// 結果コードが不明でpendingのままの注文
func (u *AdminOrderUsecase) NeedsReview(ctx context.Context, limit int) ([]OrderOutput, error) {
	if limit < 1 || limit > 200 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	orders, err := u.orders.ListNeedsReview(ctx, limit)
	if err != nil {
		return []OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return loadOrderOutputs(ctx, u.orderItems, orders)
}

// 注文に届いた決済結果の履歴（新しい順）
func (u *AdminOrderUsecase) Events(ctx context.Context, orderID int64) ([]model.PaymentEvent, error) {
	if orderID <= 0 {
		return []model.PaymentEvent{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if _, err := u.orders.FindByID(ctx, orderID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return []model.PaymentEvent{}, NewHTTPError(http.StatusNotFound, "order not found")
		}
		return []model.PaymentEvent{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	events, err := u.events.List(ctx, repo.PaymentEventFilter{OrderID: &orderID, Limit: 200})
	if err != nil {
		return []model.PaymentEvent{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return events, nil
}

// pendingの注文を取り消す。決済結果と同じ条件付きUPDATEを使う。
func (u *AdminOrderUsecase) Cancel(ctx context.Context, adminUserID int64, orderID int64) (OrderOutput, error) {
	if adminUserID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return OrderOutput{}, NewHTTPError(http.StatusNotFound, "order not found")
	}
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	// 終端ガード
	if o.Status.IsTerminal() {
		return OrderOutput{}, NewHTTPError(http.StatusConflict, fmt.Sprintf("order already %s", o.Status))
	}

	ok, err := u.orders.TransitionStatus(ctx, orderID, model.OrderStatusPending, model.OrderStatusCancelled, nil)
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !ok {
		// 取り消しの間に決済結果が届いた
		latest, err := u.orders.FindByID(ctx, orderID)
		if err != nil {
			return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return OrderOutput{}, NewHTTPError(http.StatusConflict, fmt.Sprintf("order already %s", latest.Status))
	}

	u.log.InfoContext(ctx, "order cancelled by admin",
		slog.Int64("order_id", orderID),
		slog.Int64("admin_user_id", adminUserID),
	)

	o.Status = model.OrderStatusCancelled
	items, err := u.orderItems.ListByOrderID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return toOrderOutput(o, items), nil
}

// ユーザーのカートを空にする
func (u *AdminOrderUsecase) ClearUserCart(ctx context.Context, adminUserID int64, userID int64) (int64, error) {
	if adminUserID <= 0 {
		return 0, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	n, err := u.carts.ClearCart(ctx, userID)
	if err != nil {
		return 0, err
	}
	u.log.InfoContext(ctx, "cart cleared by admin",
		slog.Int64("user_id", userID),
		slog.Int64("admin_user_id", adminUserID),
	)
	return n, nil
}

// 期間パラメータ。空ならnil。
func parseDateTimeRFC3339(s string) (*time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}
