package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"coffeeshop/internal/handler"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthz(t *testing.T) {
	for name, tc := range map[string]struct {
		ping pingFunc
		want int
	}{
		"up":   {func(context.Context) error { return nil }, http.StatusOK},
		"down": {func(context.Context) error { return errors.New("refused") }, http.StatusServiceUnavailable},
	} {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			handler.NewHealthHandler(tc.ping).RegisterRoutes(e)

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
