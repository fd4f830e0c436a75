package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"coffeeshop/internal/domain/model"
	repo "coffeeshop/internal/repository"
	"coffeeshop/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// =====================
// モック
// =====================

type mockProductRepo struct {
	mock.Mock
}

func (m *mockProductRepo) List(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]model.Product), args.Get(1).(int64), args.Error(2)
}

func (m *mockProductRepo) ListFeatured(ctx context.Context, limit int) ([]model.Product, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *mockProductRepo) FindByID(ctx context.Context, id int64) (model.Product, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Product), args.Error(1)
}

func (m *mockProductRepo) FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(map[int64]model.Product), args.Error(1)
}

// =====================
// テスト
// =====================

func TestProductList_InvalidInput(t *testing.T) {
	pr := new(mockProductRepo)
	uc := usecase.NewProductUsecase(pr)

	cases := []usecase.ListProductsInput{
		{Page: 0, Limit: 10},
		{Page: 1, Limit: 0},
		{Page: 1, Limit: 10, Sort: "random"},
	}
	for _, in := range cases {
		_, err := uc.List(context.Background(), in)
		assert.Equal(t, http.StatusBadRequest, httpStatus(err))
	}
	pr.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestProductList_TrimsQuery(t *testing.T) {
	pr := new(mockProductRepo)
	uc := usecase.NewProductUsecase(pr)

	pr.On("List", mock.Anything, repo.ProductListQuery{Page: 2, Limit: 5, Q: "tarrazu", Sort: "price_desc"}).
		Return([]model.Product{{ID: 7, Name: "Tarrazú"}}, int64(6), nil).Once()

	out, err := uc.List(context.Background(), usecase.ListProductsInput{Page: 2, Limit: 5, Q: "  tarrazu ", Sort: "price_desc"})
	require.NoError(t, err)
	assert.Equal(t, int64(6), out.Total)
	assert.Len(t, out.Items, 1)
	pr.AssertExpectations(t)
}

func TestProductGet_NotFound(t *testing.T) {
	pr := new(mockProductRepo)
	uc := usecase.NewProductUsecase(pr)
	pr.On("FindByID", mock.Anything, int64(3)).Return(model.Product{}, repo.ErrNotFound).Once()

	_, err := uc.Get(context.Background(), 3)
	assert.Equal(t, http.StatusNotFound, httpStatus(err))
}

func TestProductGet_DBError(t *testing.T) {
	pr := new(mockProductRepo)
	uc := usecase.NewProductUsecase(pr)
	pr.On("FindByID", mock.Anything, int64(3)).Return(model.Product{}, errors.New("conn reset")).Once()

	_, err := uc.Get(context.Background(), 3)
	assert.Equal(t, http.StatusInternalServerError, httpStatus(err))
}
