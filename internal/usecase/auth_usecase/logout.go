package auth

import (
	"context"

	"coffeeshop/internal/repository"
)

type LogoutOutput struct {
	UserID          int64 `json:"user_id"`
	NewTokenVersion int   `json:"new_token_version"`
}

// token_versionを上げて、発行済みのトークンを全部無効にする。
type LogoutUsecase struct {
	userRepo repository.UserRepository
}

func NewLogoutUsecase(userRepo repository.UserRepository) *LogoutUsecase {
	return &LogoutUsecase{userRepo: userRepo}
}

func (u *LogoutUsecase) Execute(ctx context.Context, userID int64) (LogoutOutput, error) {
	v, err := u.userRepo.IncrementTokenVersion(ctx, userID)
	if err != nil {
		return LogoutOutput{}, err
	}
	return LogoutOutput{UserID: userID, NewTokenVersion: v}, nil
}
