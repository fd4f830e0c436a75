package main

import (
	"fmt"
	"log/slog"
	"os"

	"coffeeshop/internal/config"
	"coffeeshop/internal/handler"
	"coffeeshop/internal/infra/db"
	"coffeeshop/internal/infra/mailer"
	infraRepo "coffeeshop/internal/infra/repository"
	"coffeeshop/internal/infra/tilopay"
	"coffeeshop/internal/infra/token"
	"coffeeshop/internal/repository"
	"coffeeshop/internal/server"
	"coffeeshop/internal/usecase"
	auth "coffeeshop/internal/usecase/auth_usecase"
	"coffeeshop/internal/validator"

	"gorm.io/gorm"
)

const bcryptCost = 12

// 設定とログを読み込む
func loadConfig() (config.Config, *slog.Logger, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config: %w", err)
	}
	return cfg, newLogger(cfg), nil
}

// prodはJSON、それ以外はテキスト
func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if !cfg.IsProd() {
		opts.Level = slog.LevelDebug
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

type app struct {
	cfg        config.Config
	log        *slog.Logger
	db         *gorm.DB
	users      repository.UserRepository
	jwt        *token.JWTService
	dispatcher *usecase.GoroutineDispatcher

	cart       *usecase.CartUsecase
	adminOrder *usecase.AdminOrderUsecase
	checkout   *usecase.CheckoutUsecase
	reconciler *usecase.PaymentReconciler
	products   *usecase.ProductUsecase
	orders     *usecase.OrderUsecase

	register       *auth.RegisterUserUsecase
	login          *auth.LoginUsecase
	logout         *auth.LogoutUsecase
	changeEmail    *auth.ChangeEmailUsecase
	changePassword *auth.ChangePasswordUsecase
}

// 依存を組み立てる
func newApp(cfg config.Config, log *slog.Logger) (*app, error) {
	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		return nil, err
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	orderItemRepo := infraRepo.NewOrderItemGormRepository(gormDB)
	eventRepo := infraRepo.NewPaymentEventGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//usecaseに渡す部品
	clock := usecase.SystemClock{}
	jwtSvc := token.NewJWTService(cfg.JWTSecret, cfg.JWTTTL)
	gateway := tilopay.NewClient(cfg.Tilopay, log.With(slog.String("component", "tilopay")))
	dispatcher := usecase.NewGoroutineDispatcher(log.With(slog.String("component", "dispatcher")), cfg.SideEffectTimeout)

	var notifier usecase.Notifier
	if cfg.Mail.Enabled() {
		notifier = mailer.NewSMTPMailer(cfg.Mail, log.With(slog.String("component", "mailer")))
	} else {
		log.Warn("SMTP not configured, emails are logged only")
		notifier = mailer.NewLogMailer(log.With(slog.String("component", "mailer")))
	}

	//Usecase生成
	cartUC := usecase.NewCartUsecase(cartRepo, cartRepo, productRepo, log)
	a := &app{
		cfg:        cfg,
		log:        log,
		db:         gormDB,
		users:      userRepo,
		jwt:        jwtSvc,
		dispatcher: dispatcher,

		cart:       cartUC,
		adminOrder: usecase.NewAdminOrderUsecase(orderRepo, orderItemRepo, eventRepo, cartUC, log),
		checkout: usecase.NewCheckoutUsecase(
			txm, orderRepo, userRepo, gateway, validator.NewCheckoutValidator(),
			clock, cfg.Tilopay.Currency, log,
		),
		reconciler: usecase.NewPaymentReconciler(
			orderRepo, orderItemRepo, userRepo, eventRepo, cartUC, notifier, dispatcher,
			usecase.NewOutcomeClassifier(cfg.Tilopay.SuccessCodes, cfg.Tilopay.DeclineCodes),
			clock, log,
		),
		products: usecase.NewProductUsecase(productRepo),
		orders:   usecase.NewOrderUsecase(orderRepo, orderItemRepo),

		//bcrypt（会員登録：Hash / ログイン：Verify）
		register:    auth.NewRegisterUserUsecase(userRepo, auth.NewBcryptPasswordHasher(bcryptCost)),
		login:       auth.NewLoginUsecase(userRepo, auth.NewBcryptPasswordVerifier(), jwtSvc, clock),
		logout:      auth.NewLogoutUsecase(userRepo),
		changeEmail: auth.NewChangeEmailUsecase(userRepo),
		changePassword: auth.NewChangePasswordUsecase(
			userRepo, auth.NewBcryptPasswordVerifier(), auth.NewBcryptPasswordHasher(bcryptCost),
		),
	}
	return a, nil
}

func (a *app) server() (*server.Server, error) {
	sqlDB, err := a.db.DB()
	if err != nil {
		return nil, err
	}

	//Handler生成
	h := server.Handlers{
		Health:     handler.NewHealthHandler(sqlDB),
		Auth:       handler.NewAuthHandler(a.register, a.login, a.logout, a.changeEmail, a.changePassword),
		Product:    handler.NewProductHandler(a.products),
		Cart:       handler.NewCartHandler(a.cart),
		Order:      handler.NewOrderHandler(a.orders),
		Payment:    handler.NewPaymentHandler(a.checkout, a.reconciler, handler.NewPaymentHandlerConfig(a.cfg), a.log),
		AdminOrder: handler.NewAdminOrderHandler(a.adminOrder),
	}
	return server.New(a.cfg, a.log, h, a.jwt, a.users, a.dispatcher), nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
