package repository

import (
	"context"

	"coffeeshop/internal/domain/model"
)

// 保存・取得を約束
type UserRepository interface {
	//新規ユーザー作成
	Create(ctx context.Context, user *model.User) error
	// IDからユーザーを1件取得する。無ければErrNotFound
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	//メールからユーザーを一件取得する。無ければErrNotFound
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	//トークンのバージョンを＋１
	IncrementTokenVersion(ctx context.Context, userID int64) (int, error)
	// メールを変更する。無ければErrNotFound、他人と重複ならErrConflict
	UpdateEmail(ctx context.Context, userID int64, email string) error
	// パスワードを変更し、同時にトークンのバージョンを＋１して新しい値を返す
	UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) (int, error)
}
