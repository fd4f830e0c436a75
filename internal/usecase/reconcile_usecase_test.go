package usecase_test

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"testing"

	"coffeeshop/internal/domain/model"
	infraRepo "coffeeshop/internal/infra/repository"
	repo "coffeeshop/internal/repository"
	"coffeeshop/internal/testutil"
	"coffeeshop/internal/usecase"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type ReconcileSuite struct {
	suite.Suite

	db       *gorm.DB
	orders   *infraRepo.OrderGormRepository
	carts    *infraRepo.CartGormRepository
	events   repo.PaymentEventRepository
	notifier *mockNotifier
	rec      *usecase.PaymentReconciler

	user    model.User
	product model.Product
	order   model.Order
}

func TestReconcileSuite(t *testing.T) {
	suite.Run(t, new(ReconcileSuite))
}

func (s *ReconcileSuite) SetupTest() {
	t := s.T()
	s.db = testutil.NewSQLite(t)
	s.orders = infraRepo.NewOrderGormRepository(s.db)
	s.carts = infraRepo.NewCartGormRepository(s.db)
	s.events = infraRepo.NewPaymentEventGormRepository(s.db)
	users := infraRepo.NewUserGormRepository(s.db)
	products := infraRepo.NewProductGormRepository(s.db)
	log := discardLogger()

	s.notifier = new(mockNotifier)
	cartUC := usecase.NewCartUsecase(s.carts, s.carts, products, log)
	s.rec = usecase.NewPaymentReconciler(
		s.orders,
		infraRepo.NewOrderItemGormRepository(s.db),
		users,
		s.events,
		cartUC,
		s.notifier,
		usecase.NewInlineDispatcher(log),
		usecase.NewOutcomeClassifier([]string{"1"}, []string{"0"}),
		newFixedClock(),
		log,
	)

	s.user = testutil.CreateUser(t, s.db, "Ana Mora", "ana@example.com")
	s.product = testutil.CreateProduct(t, s.db, "Tarrazú", "4500")
	s.order = testutil.CreatePendingOrder(t, s.db, s.user.ID, "ORDER_1_100", "9000")
	s.Require().NoError(infraRepo.NewOrderItemGormRepository(s.db).CreateBulk(context.Background(), s.order.ID, []model.OrderItem{
		{ProductID: s.product.ID, ProductNameSnapshot: s.product.Name, Price: s.product.Price, Quantity: 2},
	}))

	cart, err := s.carts.GetOrCreateByUserID(context.Background(), s.user.ID)
	s.Require().NoError(err)
	s.Require().NoError(s.carts.UpsertByCartAndProduct(context.Background(), cart.ID, s.product.ID, 2, s.product.Price))
}

func (s *ReconcileSuite) expectEmails() {
	s.notifier.On("SendCustomerConfirmation", mock.Anything, mock.MatchedBy(func(m usecase.OrderMail) bool {
		return m.OrderID == s.order.ID && m.CustomerEmail == "ana@example.com" && len(m.Items) == 1
	})).Return(nil).Once()
	s.notifier.On("SendCompanyNotification", mock.Anything, mock.Anything).Return(nil).Once()
}

func (s *ReconcileSuite) cartSize() int {
	cart, err := s.carts.GetOrCreateByUserID(context.Background(), s.user.ID)
	s.Require().NoError(err)
	items, err := s.carts.ListByCartID(context.Background(), cart.ID)
	s.Require().NoError(err)
	return len(items)
}

func (s *ReconcileSuite) status() model.OrderStatus {
	o, err := s.orders.FindByID(context.Background(), s.order.ID)
	s.Require().NoError(err)
	return o.Status
}

func (s *ReconcileSuite) eventsFor() []model.PaymentEvent {
	id := s.order.ID
	evs, err := s.events.List(context.Background(), repo.PaymentEventFilter{OrderID: &id, Limit: 100})
	s.Require().NoError(err)
	return evs
}

// =====================
// 結果コードごと
// =====================

func (s *ReconcileSuite) TestApproved_MarksPaidClearsCartAndSendsEmails() {
	s.expectEmails()

	res, err := s.rec.Reconcile(context.Background(), usecase.ReconcileInput{
		Channel:       model.PaymentChannelRedirect,
		Reference:     "ORDER_1_100",
		TransactionID: "TX-1",
		Code:          "1",
	})
	s.Require().NoError(err)

	s.True(res.Transitioned)
	s.Equal(model.OrderStatusPaid, res.Status)
	s.Equal(model.PaymentOutcomeApproved, res.Outcome)
	s.Equal(model.OrderStatusPaid, s.status())
	s.Zero(s.cartSize())
	s.notifier.AssertExpectations(s.T())

	evs := s.eventsFor()
	s.Require().Len(evs, 1)
	s.Equal(model.PaymentEventTransitioned, evs[0].Result)
}

func (s *ReconcileSuite) TestDeclined_CancelsWithoutSideEffects() {
	res, err := s.rec.Reconcile(context.Background(), usecase.ReconcileInput{
		Channel:   model.PaymentChannelWebhook,
		Reference: "ORDER_1_100",
		Code:      "0",
	})
	s.Require().NoError(err)

	s.True(res.Transitioned)
	s.Equal(model.OrderStatusCancelled, s.status())
	s.Equal(1, s.cartSize())
	s.notifier.AssertNotCalled(s.T(), "SendCustomerConfirmation", mock.Anything, mock.Anything)
	s.notifier.AssertNotCalled(s.T(), "SendCompanyNotification", mock.Anything, mock.Anything)
}

func (s *ReconcileSuite) TestDeclinedViaBrowserReturn_LeftPending() {
	res, err := s.rec.Reconcile(context.Background(), usecase.ReconcileInput{
		Channel:   model.PaymentChannelRedirect,
		Reference: "ORDER_1_100",
		Code:      "0",
	})
	s.Require().NoError(err)

	s.False(res.Transitioned)
	s.Equal(model.PaymentOutcomeDeclined, res.Outcome)
	s.Equal(model.OrderStatusPending, res.Status)
	s.Equal(model.OrderStatusPending, s.status())

	evs := s.eventsFor()
	s.Require().Len(evs, 1)
	s.Equal(model.PaymentEventDeclineDeferred, evs[0].Result)

	// 同じ取消がwebhookで届けば反映される
	res, err = s.rec.Reconcile(context.Background(), usecase.ReconcileInput{
		Channel:   model.PaymentChannelWebhook,
		Reference: "ORDER_1_100",
		Code:      "0",
	})
	s.Require().NoError(err)
	s.True(res.Transitioned)
	s.Equal(model.OrderStatusCancelled, s.status())
}

func (s *ReconcileSuite) TestUnknownCode_LeavesPendingForReview() {
	res, err := s.rec.Reconcile(context.Background(), usecase.ReconcileInput{
		Channel:   model.PaymentChannelWebhook,
		Reference: "ORDER_1_100",
		Code:      "99",
	})
	s.Require().NoError(err)

	s.True(res.NeedsReview)
	s.False(res.Transitioned)
	s.Equal(model.OrderStatusPending, s.status())
	s.Equal(1, s.cartSize())

	review, err := s.orders.ListNeedsReview(context.Background(), 10)
	s.Require().NoError(err)
	s.Require().Len(review, 1)
	s.Equal(s.order.ID, review[0].ID)
}

func (s *ReconcileSuite) TestEmptyCode_IsNotSuccess() {
	res, err := s.rec.Reconcile(context.Background(), usecase.ReconcileInput{
		Channel:   model.PaymentChannelRedirect,
		Reference: "ORDER_1_100",
	})
	s.Require().NoError(err)
	s.True(res.NeedsReview)
	s.Equal(model.OrderStatusPending, s.status())
}

// =====================
// 注文の特定
// =====================

// 注文・カートは変えない。受信ログ（注文なしのnot_found）だけは残す。
func (s *ReconcileSuite) TestUnknownOrder_404OnlyAuditEventWritten() {
	_, err := s.rec.Reconcile(context.Background(), usecase.ReconcileInput{
		Channel:   model.PaymentChannelRedirect,
		Reference: "ORDER_404",
		Code:      "1",
	})
	s.Require().Error(err)
	s.True(errors.Is(err, usecase.ErrOrderNotFound))
	s.Equal(http.StatusNotFound, httpStatus(err))

	s.Equal(model.OrderStatusPending, s.status())
	s.Equal(1, s.cartSize())
	s.Empty(s.eventsFor())

	outcome := model.PaymentOutcomeApproved
	evs, err := s.events.List(context.Background(), repo.PaymentEventFilter{Outcome: &outcome})
	s.Require().NoError(err)
	s.Require().Len(evs, 1)
	s.Nil(evs[0].OrderID)
	s.Equal(model.PaymentEventNotFound, evs[0].Result)
}

func (s *ReconcileSuite) TestMissingReference_400() {
	_, err := s.rec.Reconcile(context.Background(), usecase.ReconcileInput{Channel: model.PaymentChannelConfirm, Code: "1"})
	s.Equal(http.StatusBadRequest, httpStatus(err))
}

func (s *ReconcileSuite) TestFindsOrderByGatewayOrderID() {
	s.Require().NoError(s.orders.SetGatewayOrderID(context.Background(), s.order.ID, "TP-777"))
	s.expectEmails()

	res, err := s.rec.Reconcile(context.Background(), usecase.ReconcileInput{
		Channel:       model.PaymentChannelWebhook,
		TransactionID: "TP-777",
		Code:          "1",
	})
	s.Require().NoError(err)
	s.Equal(s.order.ID, res.OrderID)
	s.Equal(model.OrderStatusPaid, s.status())
}

func (s *ReconcileSuite) TestConfirmByAnotherUser_403() {
	other := testutil.CreateUser(s.T(), s.db, "Luis Soto", "luis@example.com")

	_, err := s.rec.Reconcile(context.Background(), usecase.ReconcileInput{
		Channel:   model.PaymentChannelConfirm,
		Reference: "ORDER_1_100",
		Code:      "1",
		UserID:    &other.ID,
	})
	s.Equal(http.StatusForbidden, httpStatus(err))
	s.Equal(model.OrderStatusPending, s.status())
}

// =====================
// 重複・同時
// =====================

func (s *ReconcileSuite) TestDoubleConfirm_SideEffectsOnce() {
	s.expectEmails()
	in := usecase.ReconcileInput{
		Channel:       model.PaymentChannelConfirm,
		Reference:     "ORDER_1_100",
		TransactionID: "TX-1",
		Code:          "1",
		UserID:        &s.user.ID,
	}

	first, err := s.rec.Reconcile(context.Background(), in)
	s.Require().NoError(err)
	s.True(first.Transitioned)

	second, err := s.rec.Reconcile(context.Background(), in)
	s.Require().NoError(err)
	s.False(second.Transitioned)
	s.True(second.AlreadyConfirmed)
	s.Equal(model.OrderStatusPaid, second.Status)

	s.notifier.AssertNumberOfCalls(s.T(), "SendCustomerConfirmation", 1)
	s.notifier.AssertNumberOfCalls(s.T(), "SendCompanyNotification", 1)
	s.Len(s.eventsFor(), 2)
}

func (s *ReconcileSuite) TestDeclineAfterPaid_StaysPaid() {
	s.expectEmails()
	_, err := s.rec.Reconcile(context.Background(), usecase.ReconcileInput{Channel: model.PaymentChannelRedirect, Reference: "ORDER_1_100", Code: "1"})
	s.Require().NoError(err)

	res, err := s.rec.Reconcile(context.Background(), usecase.ReconcileInput{Channel: model.PaymentChannelWebhook, Reference: "ORDER_1_100", Code: "0"})
	s.Require().NoError(err)
	s.True(res.AlreadyConfirmed)
	s.Equal(model.OrderStatusPaid, s.status())
}

func (s *ReconcileSuite) TestConcurrentApprovals_OneTransition() {
	s.expectEmails()

	const n = 6
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		transitions int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch := model.PaymentChannelRedirect
			if i%2 == 0 {
				ch = model.PaymentChannelWebhook
			}
			res, err := s.rec.Reconcile(context.Background(), usecase.ReconcileInput{
				Channel:   ch,
				Reference: "ORDER_1_100",
				Code:      "1",
			})
			s.NoError(err)
			if res.Transitioned {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	s.Equal(1, transitions)
	s.Equal(model.OrderStatusPaid, s.status())
	s.notifier.AssertNumberOfCalls(s.T(), "SendCustomerConfirmation", 1)
}

func (s *ReconcileSuite) TestEmailFailure_DoesNotChangeResult() {
	s.notifier.On("SendCustomerConfirmation", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()
	s.notifier.On("SendCompanyNotification", mock.Anything, mock.Anything).Return(nil).Once()

	res, err := s.rec.Reconcile(context.Background(), usecase.ReconcileInput{Channel: model.PaymentChannelRedirect, Reference: "ORDER_1_100", Code: "1"})
	s.Require().NoError(err)
	s.True(res.Transitioned)
	s.Equal(model.OrderStatusPaid, s.status())
	// 顧客メールが失敗しても会社メールは送る
	s.notifier.AssertExpectations(s.T())
}

// どんな順番で結果が届いても、状態は最初の確定結果から動かない
func (s *ReconcileSuite) TestRandomSequences_TerminalStatusNeverChanges() {
	s.notifier.On("SendCustomerConfirmation", mock.Anything, mock.Anything).Return(nil)
	s.notifier.On("SendCompanyNotification", mock.Anything, mock.Anything).Return(nil)

	codes := []string{"1", "0", "99", ""}
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		o := testutil.CreatePendingOrder(s.T(), s.db, s.user.ID, usecase.GatewayReference(s.user.ID, int64(round)), "1000")

		var first model.OrderStatus
		for step := 0; step < 8; step++ {
			res, err := s.rec.Reconcile(context.Background(), usecase.ReconcileInput{
				Channel:   model.PaymentChannelWebhook,
				Reference: o.GatewayReference,
				Code:      codes[rng.Intn(len(codes))],
			})
			s.Require().NoError(err)

			if first == "" && res.Status.IsTerminal() {
				first = res.Status
			}
			if first != "" {
				s.Equal(first, res.Status, "round %d step %d", round, step)
			}
		}
	}
}
