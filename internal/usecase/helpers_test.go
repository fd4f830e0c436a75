package usecase_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"coffeeshop/internal/usecase"

	"github.com/stretchr/testify/mock"
)

// =====================
// 共通のテスト部品
// =====================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

// 呼ぶたびに1秒進める（参照キーが重ならないように）
func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendCustomerConfirmation(ctx context.Context, mail usecase.OrderMail) error {
	args := m.Called(ctx, mail)
	return args.Error(0)
}

func (m *mockNotifier) SendCompanyNotification(ctx context.Context, mail usecase.OrderMail) error {
	args := m.Called(ctx, mail)
	return args.Error(0)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreatePayment(ctx context.Context, req usecase.PaymentRequest) (usecase.PaymentSession, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(usecase.PaymentSession), args.Error(1)
}

func httpStatus(err error) int {
	he, ok := usecase.AsHTTPError(err)
	if !ok {
		return 0
	}
	return he.Status
}
