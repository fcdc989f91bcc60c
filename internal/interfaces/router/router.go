package router

import (
	"net/http"

	"boneboard-backend/internal/application/cascade"
	"boneboard-backend/internal/application/ledger"
	"boneboard-backend/internal/application/lifecycle"
	"boneboard-backend/internal/application/pricing"
	"boneboard-backend/internal/config"
	adminhandler "boneboard-backend/internal/interfaces/handlers/admin"
	fundinghandler "boneboard-backend/internal/interfaces/handlers/funding"
	healthhandler "boneboard-backend/internal/interfaces/handlers/health"
	jobhandler "boneboard-backend/internal/interfaces/handlers/jobs"
	pricinghandler "boneboard-backend/internal/interfaces/handlers/pricing"
	paymenthandler "boneboard-backend/internal/interfaces/handlers/payments"
	projecthandler "boneboard-backend/internal/interfaces/handlers/projects"
	"boneboard-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Deps are the wired services behind the HTTP routes. Redis may be nil.
type Deps struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Pricing   *pricing.Engine
	Lifecycle *lifecycle.Service
	Ledger    *ledger.Service
	Cascade   *cascade.Service
	Sweeper   adminhandler.SweepRunner
}

func CreateApp(cfg *config.Config, d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler(d.Redis),
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix:  cfg.FrontendURLEndsWith,
		AllowLocalhost: !cfg.IsProduction(),
	}))
	app.Use(middleware.HealthMarker(d.Redis))
	app.Use(middleware.Tracing())
	app.Use(middleware.WalletIdentity())
	app.Use(middleware.RouteLogger())

	requireAdmin := middleware.RequireAdmin(cfg.AdminKeyHash)
	requireWallet := middleware.RequireWallet()

	hh := &healthhandler.Handlers{Rdb: d.Redis}
	if d.DB != nil {
		hh.DB = &gormDBPinger{db: d.DB}
	}
	app.Get("/", hh.Dashboard)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", requireAdmin, hh.Errors)
	app.Post("/health/reset", requireAdmin, hh.Reset)

	api := app.Group("/api/v1")

	ph := &pricinghandler.Handlers{Engine: d.Pricing}
	api.Get("/pricing/quote", ph.Quote)
	api.Get("/pricing/breakdown", ph.Breakdown)

	projh := &projecthandler.Handlers{Lifecycle: d.Lifecycle, Cascade: d.Cascade}
	pg := api.Group("/projects")
	pg.Post("/", requireWallet, projh.Create)
	pg.Get("/:id", projh.Get)
	pg.Patch("/:id/verify", requireAdmin, projh.Verify)
	pg.Patch("/:id/reject", requireAdmin, projh.Reject)
	pg.Delete("/:id", requireAdmin, projh.Delete)

	jh := &jobhandler.Handlers{Lifecycle: d.Lifecycle}
	jg := api.Group("/jobs")
	jg.Post("/", requireWallet, jh.Create)
	jg.Get("/", jh.List)
	jg.Get("/:id", jh.Get)
	jg.Post("/:id/confirm", requireAdmin, jh.Confirm)
	jg.Post("/:id/renew", requireAdmin, jh.Renew)
	jg.Post("/:id/reactivate", requireAdmin, jh.Reactivate)
	jg.Post("/:id/reject", requireAdmin, jh.Reject)

	fh := &fundinghandler.Handlers{Lifecycle: d.Lifecycle, Ledger: d.Ledger}
	fg := api.Group("/funding")
	fg.Post("/", requireWallet, fh.Create)
	fg.Get("/:id", fh.Get)
	fg.Post("/:id/contributions", requireAdmin, fh.Contribute)
	fg.Delete("/:id/contributions", requireAdmin, fh.PurgeContributions)
	fg.Get("/:id/reconcile", requireAdmin, fh.Reconcile)
	fg.Post("/:id/repair", requireAdmin, fh.Repair)
	fg.Get("/:id/audit", requireAdmin, fh.Audit)

	wh := &paymenthandler.WebhookHandler{Lifecycle: d.Lifecycle, Ledger: d.Ledger, Secret: cfg.WebhookSecret}
	api.Post("/webhooks/payments", wh.HandleWebhook)

	ah := &adminhandler.Handlers{Sweeper: d.Sweeper, Cascade: d.Cascade}
	ag := api.Group("/admin", requireAdmin)
	ag.Post("/sweep", ah.Sweep)
	ag.Get("/orphans", ah.Orphans)

	return app
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
