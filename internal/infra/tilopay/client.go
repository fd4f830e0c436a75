package tilopay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"coffeeshop/internal/config"
	"coffeeshop/internal/usecase"
)

var (
	// ログインできない（到達不可・認証情報が違う）
	ErrAuth = errors.New("tilopay: authentication failed")
	// processPaymentが2xx以外
	ErrRejected = errors.New("tilopay: payment request rejected")
	// 2xxだがurlが無い・JSONでない
	ErrMalformedResponse = errors.New("tilopay: malformed response")
)

const (
	loginPath   = "/api/v1/login"
	processPath = "/api/v1/processPayment"

	// エラー本文はログ用に先頭だけ読む
	maxErrorBody = 2048
)

// Client は Tilopay のREST APIクライアント。usecase.PaymentGateway を実装する。
// リトライはしない（同じ参照キーで2回決済リンクを作らないため）。
type Client struct {
	baseURL     string
	apiUser     string
	apiPassword string
	apiKey      string
	platform    string
	redirectURL string
	webhookURL  string
	http        *http.Client
	log         *slog.Logger
}

func NewClient(cfg config.TilopayConfig, log *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiUser:     cfg.APIUser,
		apiPassword: cfg.APIPassword,
		apiKey:      cfg.APIKey,
		platform:    cfg.Platform,
		redirectURL: cfg.RedirectURL,
		webhookURL:  cfg.WebhookURL,
		http:        &http.Client{Timeout: timeout},
		log:         log,
	}
}

type loginRequest struct {
	APIUser  string `json:"apiuser"`
	Password string `json:"password"`
}

// トークンのキー名はバージョンによって違う
type loginResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	AuthToken   string `json:"auth_token"`
}

type processPaymentRequest struct {
	Key         string `json:"key"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	OrderNumber string `json:"orderNumber"`
	Redirect    string `json:"redirect"`
	Webhook     string `json:"webhook,omitempty"`
	ReturnData  string `json:"returnData"`

	BillToFirstName   string `json:"billToFirstName"`
	BillToLastName    string `json:"billToLastName"`
	BillToAddress     string `json:"billToAddress"`
	BillToAddress2    string `json:"billToAddress2"`
	BillToCity        string `json:"billToCity"`
	BillToState       string `json:"billToState"`
	BillToZipPostCode string `json:"billToZipPostCode"`
	BillToCountry     string `json:"billToCountry"`
	BillToTelephone   string `json:"billToTelephone"`
	BillToEmail       string `json:"billToEmail"`

	ShipToFirstName   string `json:"shipToFirstName"`
	ShipToLastName    string `json:"shipToLastName"`
	ShipToAddress     string `json:"shipToAddress"`
	ShipToCity        string `json:"shipToCity"`
	ShipToState       string `json:"shipToState"`
	ShipToZipPostCode string `json:"shipToZipPostCode"`
	ShipToCountry     string `json:"shipToCountry"`
	ShipToTelephone   string `json:"shipToTelephone"`

	Capture      int    `json:"capture"`
	Subscription int    `json:"subscription"`
	Platform     string `json:"platform"`
}

type processPaymentResponse struct {
	URL         string          `json:"url"`
	ID          json.RawMessage `json:"id"`
	OrderNumber string          `json:"orderNumber"`
}

// CreatePayment はログインしてから決済リンクを作る。
func (c *Client) CreatePayment(ctx context.Context, req usecase.PaymentRequest) (usecase.PaymentSession, error) {
	token, err := c.login(ctx)
	if err != nil {
		return usecase.PaymentSession{}, err
	}

	body := c.buildProcessRequest(req)
	resp, err := c.postJSON(ctx, processPath, token, body)
	if err != nil {
		return usecase.PaymentSession{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.ErrorContext(ctx, "tilopay processPayment rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("reference", req.Reference),
			slog.String("body", string(detail)),
		)
		return usecase.PaymentSession{}, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var out processPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return usecase.PaymentSession{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(out.URL) == "" {
		return usecase.PaymentSession{}, fmt.Errorf("%w: missing url", ErrMalformedResponse)
	}

	gatewayID := rawID(out.ID)
	if gatewayID == "" {
		gatewayID = out.OrderNumber
	}
	return usecase.PaymentSession{URL: out.URL, GatewayOrderID: gatewayID}, nil
}

func (c *Client) login(ctx context.Context) (string, error) {
	resp, err := c.postJSON(ctx, loginPath, "", loginRequest{APIUser: c.apiUser, Password: c.apiPassword})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	for _, t := range []string{out.Token, out.AccessToken, out.AuthToken} {
		if t != "" {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: no token in response", ErrAuth)
}

func (c *Client) postJSON(ctx context.Context, path string, bearer string, body interface{}) (*http.Response, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	return c.http.Do(httpReq)
}

func (c *Client) buildProcessRequest(req usecase.PaymentRequest) processPaymentRequest {
	first := orDefault(req.FirstName, "Cliente")
	last := orDefault(req.LastName, "Comprador")
	address := orDefault(req.Address, "No especificada")
	city := orDefault(req.City, "San José")
	zip := orDefault(req.PostalCode, "00000")
	phone := orDefault(req.Phone, "00000000")
	country := countryCode(req.Country)

	return processPaymentRequest{
		Key:         c.apiKey,
		Amount:      req.Amount.StringFixed(2),
		Currency:    req.Currency,
		OrderNumber: req.Reference,
		Redirect:    c.redirectURL,
		Webhook:     c.webhookURL,
		ReturnData:  req.Reference,

		BillToFirstName:   first,
		BillToLastName:    last,
		BillToAddress:     address,
		BillToAddress2:    "Apartado",
		BillToCity:        city,
		BillToState:       "CR-SJ",
		BillToZipPostCode: zip,
		BillToCountry:     country,
		BillToTelephone:   phone,
		BillToEmail:       req.Email,

		ShipToFirstName:   first,
		ShipToLastName:    last,
		ShipToAddress:     address,
		ShipToCity:        city,
		ShipToState:       "CR-SJ",
		ShipToZipPostCode: zip,
		ShipToCountry:     country,
		ShipToTelephone:   phone,

		Capture:      1,
		Subscription: 0,
		Platform:     c.platform,
	}
}

// 2文字の国コードならそのまま、それ以外はCR
func countryCode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) == 2 {
		return s
	}
	return "CR"
}

func orDefault(s string, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// idは数値でも文字列でも返ってくる
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
