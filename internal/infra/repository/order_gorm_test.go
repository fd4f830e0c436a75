package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"coffeeshop/internal/domain/model"
	infraRepo "coffeeshop/internal/infra/repository"
	repo "coffeeshop/internal/repository"
	"coffeeshop/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRepo_TransitionStatus_OnlyFromExpectedStatus(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewSQLite(t)
	orders := infraRepo.NewOrderGormRepository(gdb)

	u := testutil.CreateUser(t, gdb, "Ana Mora", "ana@example.com")
	o := testutil.CreatePendingOrder(t, gdb, u.ID, "ORDER_1_1", "5000")

	tx := "TX-1"
	ok, err := orders.TransitionStatus(ctx, o.ID, model.OrderStatusPending, model.OrderStatusPaid, &tx)
	require.NoError(t, err)
	assert.True(t, ok)

	// 2回目は変わらない
	ok, err = orders.TransitionStatus(ctx, o.ID, model.OrderStatusPending, model.OrderStatusPaid, &tx)
	require.NoError(t, err)
	assert.False(t, ok)

	// paidからcancelledにもならない
	ok, err = orders.TransitionStatus(ctx, o.ID, model.OrderStatusPending, model.OrderStatusCancelled, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := orders.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, got.Status)
	require.NotNil(t, got.GatewayTransactionID)
	assert.Equal(t, "TX-1", *got.GatewayTransactionID)
}

func TestOrderRepo_TransitionStatus_ConcurrentOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewSQLite(t)
	orders := infraRepo.NewOrderGormRepository(gdb)

	u := testutil.CreateUser(t, gdb, "Ana Mora", "ana@example.com")
	o := testutil.CreatePendingOrder(t, gdb, u.ID, "ORDER_1_2", "5000")

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := orders.TransitionStatus(ctx, o.ID, model.OrderStatusPending, model.OrderStatusPaid, nil)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestOrderRepo_FindByGatewayKey(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewSQLite(t)
	orders := infraRepo.NewOrderGormRepository(gdb)

	u := testutil.CreateUser(t, gdb, "Ana Mora", "ana@example.com")
	o := testutil.CreatePendingOrder(t, gdb, u.ID, "ORDER_1_3", "5000")
	require.NoError(t, orders.SetGatewayOrderID(ctx, o.ID, "TP-99"))

	got, err := orders.FindByGatewayKey(ctx, "TP-99")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = orders.FindByGatewayKey(ctx, "nope")
	assert.True(t, errors.Is(err, repo.ErrNotFound))

	_, err = orders.FindByGatewayReference(ctx, "ORDER_404")
	assert.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestOrderRepo_SetGatewayOrderID_NotFound(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	orders := infraRepo.NewOrderGormRepository(gdb)

	err := orders.SetGatewayOrderID(context.Background(), 12345, "TP-1")
	assert.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestOrderRepo_ListNeedsReview(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewSQLite(t)
	orders := infraRepo.NewOrderGormRepository(gdb)
	events := infraRepo.NewPaymentEventGormRepository(gdb)

	u := testutil.CreateUser(t, gdb, "Ana Mora", "ana@example.com")
	unknown := testutil.CreatePendingOrder(t, gdb, u.ID, "ORDER_1_10", "1000")
	declined := testutil.CreatePendingOrder(t, gdb, u.ID, "ORDER_1_11", "1000")
	resolved := testutil.CreatePendingOrder(t, gdb, u.ID, "ORDER_1_12", "1000")

	record := func(orderID int64, outcome model.PaymentOutcome) {
		id := orderID
		require.NoError(t, events.Create(ctx, model.PaymentEvent{
			OrderID: &id,
			Channel: model.PaymentChannelWebhook,
			Outcome: outcome,
			Result:  model.PaymentEventNeedsReview,
		}))
	}
	record(unknown.ID, model.PaymentOutcomeUnknown)
	record(declined.ID, model.PaymentOutcomeDeclined)
	record(resolved.ID, model.PaymentOutcomeUnknown)

	// 後から支払いが確定したものは出さない
	_, err := orders.TransitionStatus(ctx, resolved.ID, model.OrderStatusPending, model.OrderStatusPaid, nil)
	require.NoError(t, err)

	got, err := orders.ListNeedsReview(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, unknown.ID, got[0].ID)
}

func TestOrderRepo_ListAdmin_FilterByStatus(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewSQLite(t)
	orders := infraRepo.NewOrderGormRepository(gdb)

	u := testutil.CreateUser(t, gdb, "Ana Mora", "ana@example.com")
	a := testutil.CreatePendingOrder(t, gdb, u.ID, "ORDER_1_20", "1000")
	testutil.CreatePendingOrder(t, gdb, u.ID, "ORDER_1_21", "1000")
	_, err := orders.TransitionStatus(ctx, a.ID, model.OrderStatusPending, model.OrderStatusCancelled, nil)
	require.NoError(t, err)

	items, total, err := orders.ListAdmin(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 10, Status: "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, a.ID, items[0].ID)
}

func TestTxManager_RollbackLeavesNothing(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewSQLite(t)
	txm := infraRepo.NewTxManagerGorm(gdb)

	u := testutil.CreateUser(t, gdb, "Ana Mora", "ana@example.com")
	p := testutil.CreateProduct(t, gdb, "Tarrazú", "4500")

	boom := errors.New("boom")
	err := txm.WithinTx(ctx, func(r repo.TxRepos) error {
		id, err := r.Orders().Create(ctx, model.Order{
			UserID:           u.ID,
			Total:            decimal.RequireFromString("4500"),
			Currency:         "CRC",
			Status:           model.OrderStatusPending,
			GatewayReference: "ORDER_1_30",
			Address:          "a",
			City:             "b",
			PostalCode:       "c",
		})
		require.NoError(t, err)
		require.NoError(t, r.OrderItems().CreateBulk(ctx, id, []model.OrderItem{
			{ProductID: p.ID, ProductNameSnapshot: p.Name, Price: p.Price, Quantity: 1},
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var orderCount, itemCount int64
	require.NoError(t, gdb.Model(&model.Order{}).Count(&orderCount).Error)
	require.NoError(t, gdb.Model(&model.OrderItem{}).Count(&itemCount).Error)
	assert.Zero(t, orderCount)
	assert.Zero(t, itemCount)
}
