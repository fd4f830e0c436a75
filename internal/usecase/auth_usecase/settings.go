package auth

import (
	"context"
	"errors"
	"strings"

	"coffeeshop/internal/repository"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrPasswordRequired       = errors.New("current and new password are required")
	ErrInvalidCurrentPassword = errors.New("current password is incorrect")
)

// =====================
// メール変更
// =====================

type ChangeEmailInput struct {
	Email string
}

type ChangeEmailOutput struct {
	User UserDTO `json:"user"`
}

type ChangeEmailUsecase struct {
	userRepo repository.UserRepository
}

func NewChangeEmailUsecase(userRepo repository.UserRepository) *ChangeEmailUsecase {
	return &ChangeEmailUsecase{userRepo: userRepo}
}

func (u *ChangeEmailUsecase) Execute(ctx context.Context, userID int64, in ChangeEmailInput) (ChangeEmailOutput, error) {
	var out ChangeEmailOutput

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !isValidEmailFormat(email) {
		return out, ErrInvalidEmailFormat
	}

	// 他人が使っているメールは不可（自分のメールなら何もしない）
	existing, err := u.userRepo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return out, err
	}
	found := err == nil
	if found && existing.ID != userID {
		return out, ErrEmailAlreadyExists
	}

	if !found {
		if err := u.userRepo.UpdateEmail(ctx, userID, email); err != nil {
			switch {
			case errors.Is(err, repository.ErrNotFound):
				return out, ErrUserNotFound
			case errors.Is(err, repository.ErrConflict):
				// チェックの後に他の人が登録した
				return out, ErrEmailAlreadyExists
			default:
				return out, err
			}
		}
	}

	user, err := u.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return out, ErrUserNotFound
		}
		return out, err
	}
	out.User = toUserDTO(user)
	return out, nil
}

// =====================
// パスワード変更
// =====================

type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
}

// 変更後は全端末で再ログインが必要
type ChangePasswordOutput struct {
	UserID          int64 `json:"user_id"`
	NewTokenVersion int   `json:"new_token_version"`
}

type ChangePasswordUsecase struct {
	userRepo repository.UserRepository
	verifier PasswordVerifier
	hasher   PasswordHasher
}

func NewChangePasswordUsecase(userRepo repository.UserRepository, verifier PasswordVerifier, hasher PasswordHasher) *ChangePasswordUsecase {
	return &ChangePasswordUsecase{
		userRepo: userRepo,
		verifier: verifier,
		hasher:   hasher,
	}
}

func (u *ChangePasswordUsecase) Execute(ctx context.Context, userID int64, in ChangePasswordInput) (ChangePasswordOutput, error) {
	var out ChangePasswordOutput

	if in.CurrentPassword == "" || in.NewPassword == "" {
		return out, ErrPasswordRequired
	}
	// 新しいパスワードは会員登録と同じ基準
	if len(in.NewPassword) < minPasswordLength {
		return out, ErrPasswordTooShort
	}
	if isWeakPassword(in.NewPassword) {
		return out, ErrWeakPassword
	}

	user, err := u.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return out, ErrUserNotFound
		}
		return out, err
	}

	//今のパスワード照合
	if !u.verifier.Verify(in.CurrentPassword, user.PasswordHash) {
		return out, ErrInvalidCurrentPassword
	}

	hashed, err := u.hasher.Hash(in.NewPassword)
	if err != nil {
		return out, err
	}

	v, err := u.userRepo.UpdatePasswordHash(ctx, userID, hashed)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return out, ErrUserNotFound
		}
		return out, err
	}

	out.UserID = userID
	out.NewTokenVersion = v
	return out, nil
}
