// Package routes wires services, repositories and middleware into the HTTP
// surface. Repositories fall back to their in-memory versions when no
// database is configured, which only development mode allows.
package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atlas-pay/atlas_pay/internal/audit"
	"github.com/atlas-pay/atlas_pay/internal/card"
	"github.com/atlas-pay/atlas_pay/internal/config"
	"github.com/atlas-pay/atlas_pay/internal/engine"
	"github.com/atlas-pay/atlas_pay/internal/fraud"
	"github.com/atlas-pay/atlas_pay/internal/gateway"
	"github.com/atlas-pay/atlas_pay/internal/identity"
	"github.com/atlas-pay/atlas_pay/internal/jobs"
	"github.com/atlas-pay/atlas_pay/internal/ledger"
	"github.com/atlas-pay/atlas_pay/internal/logging"
	"github.com/atlas-pay/atlas_pay/internal/merchant"
	"github.com/atlas-pay/atlas_pay/internal/middleware"
	"github.com/atlas-pay/atlas_pay/internal/rates"
	"github.com/atlas-pay/atlas_pay/internal/storage"
	"github.com/atlas-pay/atlas_pay/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middleware and every application route. The returned
// worker drains the durable job queue; the caller runs it.
func Setup(app *fiber.App, d Deps) (*jobs.Worker, error) {
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLog(d.Logger))

	var (
		runner       storage.Runner
		userRepo     identity.Repository
		walletRepo   wallet.Repository
		txRepo       engine.Repository
		ledgerRepo   ledger.Repository
		rateRepo     rates.Repository
		auditRepo    audit.Repository
		merchantRepo merchant.Repository
		cardRepo     card.Repository
		sessionRepo  gateway.Repository
		jobRepo      jobs.Repository
		vault        engine.Vault
	)
	if d.DB != nil {
		runner = storage.NewPgxRunner(d.DB)
		userRepo = identity.NewPostgresRepository(d.DB)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		txRepo = engine.NewPostgresRepository(d.DB)
		ledgerRepo = ledger.NewPostgresRepository(d.DB)
		rateRepo = rates.NewPostgresRepository(d.DB)
		auditRepo = audit.NewPostgresRepository(d.DB)
		merchantRepo = merchant.NewPostgresRepository(d.DB)
		cardRepo = card.NewPostgresRepository(d.DB)
		sessionRepo = gateway.NewPostgresRepository(d.DB)
		jobRepo = jobs.NewPostgresRepository(d.DB)
		vault = engine.NewPostgresVault(d.DB)
	} else {
		runner = storage.NewMemoryRunner()
		userRepo = identity.NewMemoryRepository()
		walletRepo = wallet.NewMemoryRepository()
		txRepo = engine.NewMemoryRepository()
		ledgerRepo = ledger.NewMemoryRepository()
		rateRepo = rates.NewMemoryRepository()
		auditRepo = audit.NewMemoryRepository()
		merchantRepo = merchant.NewMemoryRepository()
		cardRepo = card.NewMemoryRepository()
		sessionRepo = gateway.NewMemoryRepository()
		jobRepo = jobs.NewMemoryRepository()
		vault = engine.NewMemoryVault()
	}

	identitySvc := identity.NewService(userRepo)
	walletSvc := wallet.NewService(walletRepo, runner)
	rateSvc := rates.NewService(rateRepo, logging.Component(d.Logger, "rates"))
	sink := audit.NewSink(auditRepo, logging.Component(d.Logger, "audit"))
	queue := jobs.NewService(jobRepo, logging.Component(d.Logger, "jobs"))
	recorder := ledger.NewRecorder(ledgerRepo)
	merchantSvc := merchant.NewService(merchantRepo, txRepo)
	cardSvc := card.NewService(cardRepo)
	fraudSvc := fraud.NewService(txRepo, userRepo, sink, d.Cache, fraud.Limits{
		MaxSingleTransfer:  d.Cfg.MaxSingleTransfer,
		DailyTransferLimit: d.Cfg.DailyTransferLimit,
		MaxLoginAttempts:   d.Cfg.MaxLoginAttempts,
		APIRateLimit:       d.Cfg.APIRateLimit,
		APIRateWindow:      d.Cfg.APIRateWindow,
	})
	eng := engine.New(engine.Deps{
		Runner:  runner,
		Txs:     txRepo,
		Wallets: walletRepo,
		Balance: walletSvc,
		Rates:   rateSvc,
		Fraud:   fraudSvc,
		Ledger:  recorder,
		Vault:   vault,
		Audit:   sink,
		Queue:   queue,
		Users:   userRepo,
		Logger:  logging.Component(d.Logger, "engine"),
		Limits: engine.Limits{
			ApprovalThreshold: d.Cfg.ApprovalThreshold,
			MaxSingleTransfer: d.Cfg.MaxSingleTransfer,
		},
	})
	gatewaySvc := gateway.NewService(gateway.Deps{
		Runner:    runner,
		Sessions:  sessionRepo,
		Merchants: merchantSvc,
		Cards:     cardSvc,
		Wallets:   walletSvc,
		Txs:       txRepo,
		Vault:     vault,
		Ledger:    recorder,
		Audit:     sink,
		Queue:     queue,
		Logger:    logging.Component(d.Logger, "gateway"),
		Config: gateway.Config{
			BaseURL:    d.Cfg.BaseURL,
			SessionTTL: d.Cfg.SessionTTL,
			OTPTTL:     d.Cfg.OTPTTL,
		},
	})

	registerHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	registerAuthRoutes(api, identitySvc, walletSvc, fraudSvc)
	registerWalletRoutes(api, wallet.NewHandler(walletSvc))
	registerCardRoutes(api, cardSvc)
	registerRateRoutes(api, rateSvc)
	registerMerchantRoutes(api, merchantSvc)

	var idem fiber.Handler
	if d.Cache != nil {
		idem = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	engineHandler := engine.NewHandler(eng)
	registerTransactionRoutes(api, engineHandler, idem)
	registerAdminRoutes(api, engineHandler, fraudSvc, userRepo)
	registerPaymentRoutes(api, gateway.NewHandler(gatewaySvc),
		middleware.APIKeyAuth(merchantSvc, fraudSvc))

	worker := jobs.NewWorker(jobRepo, logging.Component(d.Logger, "worker"))
	jobs.RegisterDeliveryHandlers(worker, logging.Component(d.Logger, "worker"))
	return worker, nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
