package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"coffeeshop/internal/domain/model"
	repo "coffeeshop/internal/repository"
)

var (
	ErrOrderNotFound    = NewHTTPError(http.StatusNotFound, "order not found")
	ErrMissingReference = NewHTTPError(http.StatusBadRequest, "orderNumber is required")
)

// 支払い完了時にカートを空にする（CartUsecaseが実装）
type CartClearer interface {
	ClearCart(ctx context.Context, userID int64) (int64, error)
}

// 決済結果の報告（ブラウザの戻り・webhook・確認APIの共通入力）
type ReconcileInput struct {
	Channel       model.PaymentChannel
	Reference     string
	TransactionID string
	Code          string
	// 確認APIのときだけ。注文の持ち主と一致しなければ403。
	UserID  *int64
	Payload map[string]string
}

type ReconcileResult struct {
	OrderID          int64                `json:"orderId"`
	Reference        string               `json:"orderReference"`
	Status           model.OrderStatus    `json:"status"`
	Outcome          model.PaymentOutcome `json:"outcome"`
	Transitioned     bool                 `json:"transitioned"`
	AlreadyConfirmed bool                 `json:"alreadyConfirmed"`
	NeedsReview      bool                 `json:"needsReview"`
}

// PaymentReconciler は決済結果と注文の状態を突き合わせる。
// 状態の変更は条件付きUPDATEだけで行うので、同じ結果が何回・同時に届いても
// pending→paid は1回しか起きず、後処理も1回しか流れない。
type PaymentReconciler struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	users      repo.UserRepository
	events     repo.PaymentEventRepository
	carts      CartClearer
	notifier   Notifier
	dispatcher Dispatcher
	classifier *OutcomeClassifier
	clock      Clock
	log        *slog.Logger
}

func NewPaymentReconciler(
	orders repo.OrderRepository,
	orderItems repo.OrderItemRepository,
	users repo.UserRepository,
	events repo.PaymentEventRepository,
	carts CartClearer,
	notifier Notifier,
	dispatcher Dispatcher,
	classifier *OutcomeClassifier,
	clock Clock,
	log *slog.Logger,
) *PaymentReconciler {
	return &PaymentReconciler{
		orders:     orders,
		orderItems: orderItems,
		users:      users,
		events:     events,
		carts:      carts,
		notifier:   notifier,
		dispatcher: dispatcher,
		classifier: classifier,
		clock:      clock,
		log:        log,
	}
}

func (r *PaymentReconciler) Reconcile(ctx context.Context, in ReconcileInput) (ReconcileResult, error) {
	in.Reference = strings.TrimSpace(in.Reference)
	in.TransactionID = strings.TrimSpace(in.TransactionID)
	in.Code = strings.TrimSpace(in.Code)
	if in.Reference == "" && in.TransactionID == "" {
		return ReconcileResult{}, ErrMissingReference
	}

	outcome := r.classifier.Classify(in.Code)
	log := r.log.With(
		slog.String("channel", string(in.Channel)),
		slog.String("reference", in.Reference),
		slog.String("code", in.Code),
		slog.String("outcome", string(outcome)),
	)

	order, err := r.findOrder(ctx, in)
	if errors.Is(err, repo.ErrNotFound) {
		log.WarnContext(ctx, "payment result for unknown order")
		r.record(ctx, nil, in, outcome, model.PaymentEventNotFound)
		return ReconcileResult{}, ErrOrderNotFound
	}
	if err != nil {
		return ReconcileResult{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	log = log.With(slog.Int64("order_id", order.ID))

	// 他人の注文は確定させない
	if in.UserID != nil && *in.UserID != order.UserID {
		log.WarnContext(ctx, "confirm for another user's order", slog.Int64("user_id", *in.UserID))
		return ReconcileResult{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}

	res := ReconcileResult{
		OrderID:   order.ID,
		Reference: order.GatewayReference,
		Status:    order.Status,
		Outcome:   outcome,
	}

	var eventResult model.PaymentEventResult
	switch order.Status {
	case model.OrderStatusPaid:
		res.AlreadyConfirmed = true
		eventResult = model.PaymentEventAlreadyConfirmed
		if outcome == model.PaymentOutcomeDeclined {
			log.WarnContext(ctx, "decline code for paid order")
		}

	case model.OrderStatusCancelled:
		eventResult = model.PaymentEventAlreadyTerminal
		if outcome == model.PaymentOutcomeApproved {
			log.WarnContext(ctx, "approval code for cancelled order")
		}

	default:
		res, eventResult, err = r.settlePending(ctx, order, in, res)
		if err != nil {
			return ReconcileResult{}, err
		}
	}

	orderID := order.ID
	r.record(ctx, &orderID, in, outcome, eventResult)

	log.InfoContext(ctx, "payment reconciled",
		slog.String("status", string(res.Status)),
		slog.String("result", string(eventResult)),
	)
	return res, nil
}

// pendingの注文に結果を反映する
func (r *PaymentReconciler) settlePending(ctx context.Context, order model.Order, in ReconcileInput, res ReconcileResult) (ReconcileResult, model.PaymentEventResult, error) {
	var to model.OrderStatus
	switch res.Outcome {
	case model.PaymentOutcomeApproved:
		to = model.OrderStatusPaid
	case model.PaymentOutcomeDeclined:
		// ブラウザの戻りは認証なしで誰でも叩けるので、取消はwebhookか確認APIに任せる
		if in.Channel == model.PaymentChannelRedirect {
			r.log.WarnContext(ctx, "decline from browser return not applied, order left pending",
				slog.Int64("order_id", order.ID),
			)
			return res, model.PaymentEventDeclineDeferred, nil
		}
		to = model.OrderStatusCancelled
	default:
		// 不明なコードは推測しない。管理者の確認待ち。
		r.log.WarnContext(ctx, "unrecognized payment code, order left pending",
			slog.Int64("order_id", order.ID),
			slog.String("code", in.Code),
		)
		res.NeedsReview = true
		return res, model.PaymentEventNeedsReview, nil
	}

	var txID *string
	if in.TransactionID != "" {
		txID = &in.TransactionID
	}

	ok, err := r.orders.TransitionStatus(ctx, order.ID, model.OrderStatusPending, to, txID)
	if err != nil {
		return res, "", NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if ok {
		res.Status = to
		res.Transitioned = true
		if to == model.OrderStatusPaid {
			r.dispatchPaidEffects(ctx, order, in.TransactionID)
		}
		return res, model.PaymentEventTransitioned, nil
	}

	// 他のリクエストが先に変えた
	latest, err := r.orders.FindByID(ctx, order.ID)
	if err != nil {
		return res, "", NewHTTPError(http.StatusInternalServerError, "db error")
	}
	res.Status = latest.Status
	if latest.Status == model.OrderStatusPaid {
		res.AlreadyConfirmed = true
		return res, model.PaymentEventAlreadyConfirmed, nil
	}
	return res, model.PaymentEventAlreadyTerminal, nil
}

// 支払い確定後の処理（カート削除とメール2通）。CASに勝ったときだけ呼ぶ。
func (r *PaymentReconciler) dispatchPaidEffects(ctx context.Context, order model.Order, transactionID string) {
	r.dispatcher.Dispatch(ctx, "cart_clear", func(ctx context.Context) error {
		_, err := r.carts.ClearCart(ctx, order.UserID)
		return err
	})

	r.dispatcher.Dispatch(ctx, "order_emails", func(ctx context.Context) error {
		m, err := r.buildMail(ctx, order, transactionID)
		if err != nil {
			return err
		}
		// 片方が失敗してももう片方は送る
		var errs []error
		if err := r.notifier.SendCustomerConfirmation(ctx, m); err != nil {
			errs = append(errs, fmt.Errorf("customer email: %w", err))
		}
		if err := r.notifier.SendCompanyNotification(ctx, m); err != nil {
			errs = append(errs, fmt.Errorf("company email: %w", err))
		}
		return errors.Join(errs...)
	})
}

func (r *PaymentReconciler) buildMail(ctx context.Context, order model.Order, transactionID string) (OrderMail, error) {
	user, err := r.users.FindByID(ctx, order.UserID)
	if err != nil {
		return OrderMail{}, fmt.Errorf("load user %d: %w", order.UserID, err)
	}
	items, err := r.orderItems.ListByOrderID(ctx, order.ID)
	if err != nil {
		return OrderMail{}, fmt.Errorf("load items of order %d: %w", order.ID, err)
	}

	m := OrderMail{
		OrderID:       order.ID,
		Reference:     order.GatewayReference,
		TransactionID: transactionID,
		PaidAt:        r.clock.Now(),
		CustomerName:  user.Name,
		CustomerEmail: user.Email,
		Phone:         order.Phone,
		Address:       order.Address,
		City:          order.City,
		PostalCode:    order.PostalCode,
		Country:       order.Country,
		Total:         order.Total,
		Currency:      order.Currency,
		Items:         make([]OrderMailItem, 0, len(items)),
	}
	for _, it := range items {
		m.Items = append(m.Items, OrderMailItem{
			Name:     it.ProductNameSnapshot,
			Quantity: it.Quantity,
			Price:    it.Price,
			Subtotal: it.Subtotal(),
		})
	}
	return m, nil
}

// 参照キー → 取引ID → 代行側の注文ID の順に探す
func (r *PaymentReconciler) findOrder(ctx context.Context, in ReconcileInput) (model.Order, error) {
	if in.Reference != "" {
		o, err := r.orders.FindByGatewayReference(ctx, in.Reference)
		if err == nil || !errors.Is(err, repo.ErrNotFound) {
			return o, err
		}
	}
	if in.TransactionID != "" {
		o, err := r.orders.FindByGatewayKey(ctx, in.TransactionID)
		if err == nil || !errors.Is(err, repo.ErrNotFound) {
			return o, err
		}
	}
	if in.Reference != "" {
		return r.orders.FindByGatewayKey(ctx, in.Reference)
	}
	return model.Order{}, repo.ErrNotFound
}

// 受信ログ。失敗しても照合の結果は変えない。
func (r *PaymentReconciler) record(ctx context.Context, orderID *int64, in ReconcileInput, outcome model.PaymentOutcome, result model.PaymentEventResult) {
	payload := "{}"
	if len(in.Payload) > 0 {
		if b, err := json.Marshal(in.Payload); err == nil {
			payload = string(b)
		}
	}

	ev := model.PaymentEvent{
		OrderID:       orderID,
		Channel:       in.Channel,
		Reference:     in.Reference,
		TransactionID: in.TransactionID,
		Code:          in.Code,
		Outcome:       outcome,
		Result:        result,
		Payload:       payload,
		CreatedAt:     r.clock.Now(),
	}
	if err := r.events.Create(ctx, ev); err != nil {
		r.log.ErrorContext(ctx, "save payment event failed",
			slog.String("reference", in.Reference),
			slog.Any("err", err),
		)
	}
}
