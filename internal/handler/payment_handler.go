package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"coffeeshop/internal/config"
	"coffeeshop/internal/domain/model"
	"coffeeshop/internal/middleware"
	"coffeeshop/internal/repository"
	"coffeeshop/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const maxWebhookBody = 64 << 10

// 注文作成（usecase.CheckoutUsecase）
type Checkouter interface {
	Checkout(ctx context.Context, userID int64, in usecase.CheckoutInput) (usecase.CheckoutOutput, error)
}

// 決済結果の照合（usecase.PaymentReconciler）
type Reconciler interface {
	Reconcile(ctx context.Context, in usecase.ReconcileInput) (usecase.ReconcileResult, error)
}

// 戻り値・webhookのフィールド名（先頭から順に探す）
type PaymentFields struct {
	Code        []string
	Reference   []string
	Transaction []string
}

type PaymentHandlerConfig struct {
	Fields          PaymentFields
	WebhookSecret   string
	SignatureHeader string
	SuccessURL      string
	FailureURL      string
}

// Tilopay の設定から組み立てる
func NewPaymentHandlerConfig(cfg config.Config) PaymentHandlerConfig {
	return PaymentHandlerConfig{
		Fields: PaymentFields{
			Code:        cfg.Tilopay.CodeFields,
			Reference:   cfg.Tilopay.ReferenceFields,
			Transaction: cfg.Tilopay.TransactionFields,
		},
		WebhookSecret:   cfg.Tilopay.WebhookSecret,
		SignatureHeader: cfg.Tilopay.SignatureHeader,
		SuccessURL:      cfg.CheckoutSuccessURL,
		FailureURL:      cfg.CheckoutFailureURL,
	}
}

// /payment のHTTP
type PaymentHandler struct {
	checkout   Checkouter
	reconciler Reconciler
	cfg        PaymentHandlerConfig
	log        *slog.Logger
}

func NewPaymentHandler(checkout Checkouter, reconciler Reconciler, cfg PaymentHandlerConfig, log *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		checkout:   checkout,
		reconciler: reconciler,
		cfg:        cfg,
		log:        log,
	}
}

type checkoutItemRequest struct {
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type checkoutRequest struct {
	CartItems  []checkoutItemRequest `json:"cartItems"`
	Amount     decimal.Decimal       `json:"amount"`
	Phone      string                `json:"phone"`
	Address    string                `json:"address"`
	City       string                `json:"city"`
	PostalCode string                `json:"postal_code"`
	Country    string                `json:"country"`
}

type confirmRequest struct {
	OrderNumber    string `json:"orderNumber"`
	Code           string `json:"code"`
	TransactionID  string `json:"transactionId"`
	TilopayOrderID string `json:"tilopayOrderId"`
}

type confirmResponse struct {
	Success          bool              `json:"success"`
	OrderID          int64             `json:"orderId"`
	Status           model.OrderStatus `json:"status"`
	AlreadyConfirmed bool              `json:"alreadyConfirmed,omitempty"`
	NeedsReview      bool              `json:"needsReview,omitempty"`
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Result   string `json:"result"`
	Status   string `json:"status,omitempty"`
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo, verifier middleware.TokenVerifier, userRepo repository.UserRepository) {
	g := e.Group("/payment")

	authed := []echo.MiddlewareFunc{middleware.AuthJWT(verifier), middleware.TokenVersionGuard(userRepo)}
	g.POST("/process", h.process, authed...)
	g.POST("/confirm", h.confirm, authed...)

	// 決済代行・ブラウザから直接来る
	g.GET("/return", h.browserReturn)
	g.POST("/webhook", h.webhook)
}

// POST /payment/process
func (h *PaymentHandler) process(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	items := make([]usecase.CheckoutItemInput, 0, len(req.CartItems))
	for _, it := range req.CartItems {
		items = append(items, usecase.CheckoutItemInput{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}

	out, err := h.checkout.Checkout(c.Request().Context(), userID, usecase.CheckoutInput{
		Items:      items,
		Amount:     req.Amount,
		Phone:      strings.TrimSpace(req.Phone),
		Address:    strings.TrimSpace(req.Address),
		City:       strings.TrimSpace(req.City),
		PostalCode: strings.TrimSpace(req.PostalCode),
		Country:    strings.TrimSpace(req.Country),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// POST /payment/confirm（ログイン中のユーザーが自分の注文を確定する）
func (h *PaymentHandler) confirm(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	txID := req.TransactionID
	if txID == "" {
		txID = req.TilopayOrderID
	}

	res, err := h.reconciler.Reconcile(c.Request().Context(), usecase.ReconcileInput{
		Channel:       model.PaymentChannelConfirm,
		Reference:     req.OrderNumber,
		TransactionID: txID,
		Code:          req.Code,
		UserID:        &userID,
		Payload: map[string]string{
			"orderNumber":   req.OrderNumber,
			"code":          req.Code,
			"transactionId": txID,
		},
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, confirmResponse{
		Success:          res.Status == model.OrderStatusPaid,
		OrderID:          res.OrderID,
		Status:           res.Status,
		AlreadyConfirmed: res.AlreadyConfirmed,
		NeedsReview:      res.NeedsReview,
	})
}

// GET /payment/return（決済画面から戻ってきたブラウザ）
func (h *PaymentHandler) browserReturn(c echo.Context) error {
	params := make(map[string]string)
	for k, v := range c.QueryParams() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	in := h.reconcileInput(model.PaymentChannelRedirect, params)

	res, err := h.reconciler.Reconcile(c.Request().Context(), in)
	if err != nil {
		h.log.WarnContext(c.Request().Context(), "payment return not reconciled",
			slog.String("reference", in.Reference),
			slog.Any("err", err),
		)
		return c.Redirect(http.StatusFound, withQuery(h.cfg.FailureURL, url.Values{
			"orderNumber": {in.Reference},
			"error":       {"not_found"},
		}))
	}

	target := h.cfg.FailureURL
	if res.Status == model.OrderStatusPaid {
		target = h.cfg.SuccessURL
	}
	return c.Redirect(http.StatusFound, withQuery(target, url.Values{
		"orderNumber": {res.Reference},
		"orderId":     {fmt.Sprint(res.OrderID)},
		"status":      {string(res.Status)},
	}))
}

// POST /payment/webhook（決済代行からのサーバー間通知）
// 形式が正しければ注文が無くても200を返す（再送を止めるため）。
func (h *PaymentHandler) webhook(c echo.Context) error {
	ctx := c.Request().Context()

	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	if h.cfg.WebhookSecret != "" {
		sig := c.Request().Header.Get(h.cfg.SignatureHeader)
		if !validSignature(h.cfg.WebhookSecret, raw, sig) {
			h.log.WarnContext(ctx, "webhook signature mismatch", slog.String("remote_ip", c.RealIP()))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid signature"})
		}
	}

	params, err := parseWebhookBody(c.Request().Header.Get(echo.HeaderContentType), raw)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	in := h.reconcileInput(model.PaymentChannelWebhook, params)
	if in.Reference == "" && in.TransactionID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing order reference"})
	}

	res, err := h.reconciler.Reconcile(ctx, in)
	if err != nil {
		he, ok := usecase.AsHTTPError(err)
		if ok && he.Status < http.StatusInternalServerError {
			return c.JSON(http.StatusOK, webhookResponse{Received: true, Result: he.Message})
		}
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, webhookResponse{
		Received: true,
		Result:   webhookResult(res),
		Status:   string(res.Status),
	})
}

func (h *PaymentHandler) reconcileInput(ch model.PaymentChannel, params map[string]string) usecase.ReconcileInput {
	return usecase.ReconcileInput{
		Channel:       ch,
		Reference:     pick(params, h.cfg.Fields.Reference),
		TransactionID: pick(params, h.cfg.Fields.Transaction),
		Code:          pick(params, h.cfg.Fields.Code),
		Payload:       params,
	}
}

func webhookResult(res usecase.ReconcileResult) string {
	switch {
	case res.Transitioned:
		return "transitioned"
	case res.AlreadyConfirmed:
		return "already_confirmed"
	case res.NeedsReview:
		return "needs_review"
	default:
		return "no_change"
	}
}

// 別名の中で最初に値があるもの
func pick(params map[string]string, names []string) string {
	for _, n := range names {
		if v := strings.TrimSpace(params[n]); v != "" {
			return v
		}
	}
	return ""
}

// JSONかフォームを map にする。数値はそのままの文字列にする。
func parseWebhookBody(contentType string, raw []byte) (map[string]string, error) {
	out := make(map[string]string)
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}

	if strings.HasPrefix(contentType, echo.MIMEApplicationForm) {
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, err
		}
		for k, v := range values {
			if len(v) > 0 {
				out[k] = v[0]
			}
		}
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	for k, v := range body {
		switch t := v.(type) {
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case bool:
			out[k] = fmt.Sprint(t)
		case nil:
		default:
			// ネストした値は受信ログ用にJSONのまま残す
			b, err := json.Marshal(t)
			if err == nil {
				out[k] = string(b)
			}
		}
	}
	return out, nil
}

// HMAC-SHA256(本文) の16進
func validSignature(secret string, body []byte, sig string) bool {
	sig = strings.TrimPrefix(strings.TrimSpace(sig), "sha256=")
	if sig == "" {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func withQuery(base string, q url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	merged := u.Query()
	for k, v := range q {
		if len(v) > 0 && v[0] != "" {
			merged.Set(k, v[0])
		}
	}
	u.RawQuery = merged.Encode()
	return u.String()
}
