// Package testutil はテスト用のDBと初期データを作る。
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"coffeeshop/internal/config"
	"coffeeshop/internal/domain/model"
	"coffeeshop/internal/infra/db"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// テストごとに一時ファイルのsqliteを作ってmigrateする
func NewSQLite(t testing.TB) *gorm.DB {
	t.Helper()

	gdb, err := db.Connect(config.DBConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
		LogLevel:   "silent",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func CreateUser(t testing.TB, gdb *gorm.DB, name string, email string) model.User {
	t.Helper()

	u := model.User{
		Name:         name,
		Email:        email,
		PasswordHash: "x",
		Role:         model.RoleUser,
	}
	require.NoError(t, gdb.WithContext(context.Background()).Create(&u).Error)
	return u
}

func CreateProduct(t testing.TB, gdb *gorm.DB, name string, price string) model.Product {
	t.Helper()

	p := model.Product{
		Name:  name,
		Price: decimal.RequireFromString(price),
		Line:  "clasica",
		Stock: 10,
	}
	require.NoError(t, gdb.WithContext(context.Background()).Create(&p).Error)
	return p
}

// pendingの注文を1件作る
func CreatePendingOrder(t testing.TB, gdb *gorm.DB, userID int64, reference string, total string) model.Order {
	t.Helper()

	o := model.Order{
		UserID:           userID,
		Total:            decimal.RequireFromString(total),
		Currency:         "CRC",
		Status:           model.OrderStatusPending,
		GatewayReference: reference,
		Address:          "Calle 1",
		City:             "San José",
		PostalCode:       "10101",
		Country:          "CR",
	}
	require.NoError(t, gdb.WithContext(context.Background()).Create(&o).Error)
	return o
}
