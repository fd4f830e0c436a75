package validator

import (
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"coffeeshop/internal/usecase"
)

// 数字・空白・+-()のみ、数字は7〜15桁
var phonePattern = regexp.MustCompile(`^\+?[0-9 ()\-]{7,20}$`)

const maxCheckoutItems = 100

type checkoutValidator struct{}

// Usecaseは interface を依存注入
func NewCheckoutValidator() usecase.CheckoutValidator {
	return &checkoutValidator{}
}

// 注文の入力を検証。NGなら400のHTTPErrorを返す。
func (v *checkoutValidator) ValidateCheckout(in usecase.CheckoutInput) error {
	if len(in.Items) == 0 {
		return badRequest("cart is empty")
	}
	if len(in.Items) > maxCheckoutItems {
		return badRequest("too many items")
	}

	seen := make(map[int64]struct{}, len(in.Items))
	for _, it := range in.Items {
		if it.ProductID <= 0 {
			return badRequest("invalid product id")
		}
		if it.Quantity <= 0 {
			return badRequest("quantity must be positive")
		}
		if _, dup := seen[it.ProductID]; dup {
			return badRequest("duplicate product")
		}
		seen[it.ProductID] = struct{}{}
	}

	if !in.Amount.IsPositive() {
		return badRequest("invalid amount")
	}

	// 配送先
	if isBlank(in.Address) || isBlank(in.City) || isBlank(in.PostalCode) {
		return badRequest("shipping address is required")
	}
	if tooLong(in.Address, 255) || tooLong(in.City, 100) || tooLong(in.PostalCode, 20) || tooLong(in.Country, 60) {
		return badRequest("shipping address too long")
	}

	// 電話は任意。あれば形式チェック
	if phone := strings.TrimSpace(in.Phone); phone != "" && !isPhoneLike(phone) {
		return badRequest("invalid phone")
	}

	return nil
}

func badRequest(msg string) error {
	return usecase.NewHTTPError(http.StatusBadRequest, msg)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func tooLong(s string, max int) bool {
	return utf8.RuneCountInString(s) > max
}

func isPhoneLike(s string) bool {
	if !phonePattern.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 7 && digits <= 15
}
