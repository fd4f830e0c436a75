package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"coffeeshop/internal/domain/model"

	"github.com/golang-jwt/jwt/v4"
)

var ErrInvalidToken = errors.New("invalid token")

// JWTのclaims。subはユーザーID、tvはtoken_version。
type Claims struct {
	Role         string `json:"role"`
	TokenVersion int    `json:"tv"`
	jwt.RegisteredClaims
}

// セッション用のJWTを発行・検証する（HS256）。
type JWTService struct {
	secret []byte
	ttl    time.Duration
}

func NewJWTService(secret string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTService{secret: []byte(secret), ttl: ttl}
}

// Issue は auth.AccessTokenIssuer の実装。
func (s *JWTService) Issue(userID int64, role model.Role, tokenVersion int, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.ttl)
	claims := Claims{
		Role:         string(role),
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// 署名と有効期限を検証して中身を返す
func (s *JWTService) Verify(raw string) (userID int64, role model.Role, tokenVersion int, err error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || tok == nil || !tok.Valid {
		return 0, "", 0, ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return 0, "", 0, ErrInvalidToken
	}

	userID, err = strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, "", 0, ErrInvalidToken
	}
	if claims.Role == "" || claims.TokenVersion < 0 {
		return 0, "", 0, ErrInvalidToken
	}
	return userID, model.Role(claims.Role), claims.TokenVersion, nil
}
