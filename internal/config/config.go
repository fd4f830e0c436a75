package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Configはアプリ全体の設定
type Config struct {
	Port      string // サーバーポート（8080）
	GoEnv     string // dev/prod
	APIDomain string // APIドメイン（webhook URLの組み立てで使う）
	FEURL     string // フロントURL（CORSなどで使う）

	JWTSecret string        // JWT署名シークレット
	JWTTTL    time.Duration // セッショントークンの有効期限

	DB      DBConfig
	Tilopay TilopayConfig
	Mail    MailConfig

	// 決済から戻ったブラウザを送る先
	CheckoutSuccessURL string
	CheckoutFailureURL string

	// カート削除・メール送信の上限時間
	SideEffectTimeout time.Duration
}

type DBConfig struct {
	Driver string // postgres / mysql / sqlite
	URL    string // DATABASE_URL（あれば最優先）

	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	MySQLParams string
	SQLitePath  string

	LogLevel string // silent / error / warn / info
}

type TilopayConfig struct {
	BaseURL     string
	APIUser     string
	APIPassword string
	APIKey      string
	Currency    string
	Platform    string
	RedirectURL string // ブラウザの戻り先
	WebhookURL  string // サーバー間通知の受け口
	Timeout     time.Duration

	SuccessCodes []string
	DeclineCodes []string

	// 空ならwebhookの署名チェックをしない
	WebhookSecret   string
	SignatureHeader string

	// 戻り値のフィールド名（先頭から順に探す）
	CodeFields        []string
	ReferenceFields   []string
	TransactionFields []string
}

type MailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	From         string
	CompanyName  string
	CompanyEmail string
}

// SMTPが設定されているか
func (m MailConfig) Enabled() bool {
	return m.SMTPHost != "" && m.From != ""
}

func (c Config) IsProd() bool {
	return c.GoEnv == "prod"
}

// LoadEnvFileは.envを読み込む。ファイルが無いのはエラーにしない。
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Loadは環境変数
func Load() (Config, error) {
	jwtTTL, err := durationEnv("JWT_TTL", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	tilopayTimeout, err := durationEnv("TILOPAY_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	sideEffectTimeout, err := durationEnv("SIDE_EFFECT_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	smtpPort, err := intEnv("SMTP_PORT", 587)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:      getenv("PORT", "8080"),
		GoEnv:     getenv("GO_ENV", "dev"),
		APIDomain: getenv("API_DOMAIN", "http://localhost:8080"),
		FEURL:     getenv("FE_URL", "http://localhost:5173"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTTTL:    jwtTTL,

		DB: DBConfig{
			Driver:      getenv("DB_DRIVER", "postgres"),
			URL:         os.Getenv("DATABASE_URL"),
			SSLMode:     getenv("POSTGRES_SSLMODE", "disable"),
			MySQLParams: getenv("MYSQL_PARAMS", "charset=utf8mb4&parseTime=True&loc=Local"),
			SQLitePath:  getenv("SQLITE_PATH", "coffeeshop.db"),
			LogLevel:    getenv("DB_LOG_LEVEL", "warn"),
		},

		Tilopay: TilopayConfig{
			BaseURL:         getenv("TILOPAY_BASE_URL", "https://app.tilopay.com"),
			APIUser:         os.Getenv("TILOPAY_API_USER"),
			APIPassword:     os.Getenv("TILOPAY_API_PASSWORD"),
			APIKey:          os.Getenv("TILOPAY_API_KEY"),
			Currency:        getenv("TILOPAY_CURRENCY", "CRC"),
			Platform:        getenv("TILOPAY_PLATFORM", "SIRCOF Cafe"),
			Timeout:         tilopayTimeout,
			SuccessCodes:    listEnv("TILOPAY_SUCCESS_CODES", "1"),
			DeclineCodes:    listEnv("TILOPAY_DECLINE_CODES", "0"),
			WebhookSecret:   os.Getenv("TILOPAY_WEBHOOK_SECRET"),
			SignatureHeader: getenv("TILOPAY_SIGNATURE_HEADER", "X-Tilopay-Signature"),

			CodeFields:        listEnv("TILOPAY_FIELD_CODE", "code"),
			ReferenceFields:   listEnv("TILOPAY_FIELD_REFERENCE", "orderNumber,order,reference,returnData"),
			TransactionFields: listEnv("TILOPAY_FIELD_TRANSACTION", "tpt,tilopayOrderId,transactionId"),
		},

		Mail: MailConfig{
			SMTPHost:     os.Getenv("SMTP_HOST"),
			SMTPPort:     smtpPort,
			SMTPUser:     os.Getenv("SMTP_USER"),
			SMTPPassword: os.Getenv("SMTP_PASSWORD"),
			From:         os.Getenv("SMTP_FROM"),
			CompanyName:  getenv("COMPANY_NAME", "SIRCOF Cafe"),
			CompanyEmail: os.Getenv("COMPANY_EMAIL"),
		},

		SideEffectTimeout: sideEffectTimeout,
	}

	//DB接続情報（ドライバごとの既定値）
	switch cfg.DB.Driver {
	case "postgres":
		cfg.DB.Host = getenv("POSTGRES_HOST", "localhost")
		cfg.DB.Port = getenv("POSTGRES_PORT", "5432")
		cfg.DB.User = getenv("POSTGRES_USER", "postgres")
		cfg.DB.Password = getenv("POSTGRES_PASSWORD", "postgres")
		cfg.DB.Name = getenv("POSTGRES_DB", "coffeeshop")
	case "mysql":
		cfg.DB.Host = getenv("MYSQL_HOST", "127.0.0.1")
		cfg.DB.Port = getenv("MYSQL_PORT", "3306")
		cfg.DB.User = getenv("MYSQL_USER", "root")
		cfg.DB.Password = os.Getenv("MYSQL_PASSWORD")
		cfg.DB.Name = getenv("MYSQL_DATABASE", "coffeeshop")
	case "sqlite":
	default:
		return Config{}, fmt.Errorf("DB_DRIVER must be postgres, mysql or sqlite: %q", cfg.DB.Driver)
	}

	//戻り先とwebhookはAPI/フロントのURLから組み立てる
	cfg.Tilopay.RedirectURL = getenv("CALLBACK_URL", strings.TrimRight(cfg.APIDomain, "/")+"/payment/return")
	cfg.Tilopay.WebhookURL = getenv("WEBHOOK_URL", strings.TrimRight(cfg.APIDomain, "/")+"/payment/webhook")
	cfg.CheckoutSuccessURL = getenv("CHECKOUT_SUCCESS_URL", strings.TrimRight(cfg.FEURL, "/")+"/checkout/success")
	cfg.CheckoutFailureURL = getenv("CHECKOUT_FAILURE_URL", strings.TrimRight(cfg.FEURL, "/")+"/checkout/failure")

	//必須チェック
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.Tilopay.SuccessCodes) == 0 {
		return Config{}, fmt.Errorf("TILOPAY_SUCCESS_CODES must not be empty")
	}
	for _, c := range cfg.Tilopay.SuccessCodes {
		for _, d := range cfg.Tilopay.DeclineCodes {
			if c == d {
				return Config{}, fmt.Errorf("code %q is both success and decline", c)
			}
		}
	}
	if cfg.IsProd() {
		if cfg.Tilopay.APIUser == "" {
			return Config{}, fmt.Errorf("TILOPAY_API_USER is required")
		}
		if cfg.Tilopay.APIPassword == "" {
			return Config{}, fmt.Errorf("TILOPAY_API_PASSWORD is required")
		}
		if cfg.Tilopay.APIKey == "" {
			return Config{}, fmt.Errorf("TILOPAY_API_KEY is required")
		}
	}

	return cfg, nil
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	return d, nil
}

// カンマ区切りを配列にする（空要素は捨てる）
func listEnv(key string, def string) []string {
	raw := getenv(key, def)
	out := []string{}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
