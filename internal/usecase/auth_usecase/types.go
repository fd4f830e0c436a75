package auth

import (
	"time"

	"coffeeshop/internal/domain/model"
)

// 現在の時間
type Clock interface {
	Now() time.Time
}

// レスポンス用のユーザー（password_hashは含めない）
type UserDTO struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	TokenVersion int    `json:"token_version"`
}

func toUserDTO(u *model.User) UserDTO {
	return UserDTO{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Role:         string(u.Role),
		TokenVersion: u.TokenVersion,
	}
}
