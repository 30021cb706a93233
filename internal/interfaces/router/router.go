package router

import (
	"net/http"

	approvalsvc "budget-tracker/internal/application/approval"
	auditsvc "budget-tracker/internal/application/audit"
	authsvc "budget-tracker/internal/application/auth"
	budgetsvc "budget-tracker/internal/application/budgets"
	healthsvc "budget-tracker/internal/application/health"
	importsvc "budget-tracker/internal/application/imports"
	ledgersvc "budget-tracker/internal/application/ledger"
	requestsvc "budget-tracker/internal/application/requests"
	"budget-tracker/internal/config"
	"budget-tracker/internal/infrastructure/database"
	"budget-tracker/internal/infrastructure/lock"
	audithandler "budget-tracker/internal/interfaces/handlers/audit"
	authhandler "budget-tracker/internal/interfaces/handlers/auth"
	budgethandler "budget-tracker/internal/interfaces/handlers/budgets"
	healthhandler "budget-tracker/internal/interfaces/handlers/health"
	importhandler "budget-tracker/internal/interfaces/handlers/imports"
	ledgerhandler "budget-tracker/internal/interfaces/handlers/ledger"
	requesthandler "budget-tracker/internal/interfaces/handlers/requests"
	"budget-tracker/internal/middleware"
	"budget-tracker/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// CreateApp opens Postgres and Redis from cfg and builds the app on top of them.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			return nil, nil, nil, err
		}
	}
	rdb, err := middleware.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	locker := lock.NewRedisLocker(rdb, lock.DefaultOptions())
	return New(cfg, db, rdb, locker), db, rdb, nil
}

// New registers middleware and every route against the given stores.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, locker lock.Locker) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler(rdb),
		EnableTrustedProxyCheck: true,
		BodyLimit:               16 * 1024 * 1024,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())
	app.Use(middleware.Session(rdb))
	app.Use(middleware.HealthMarker(rdb))

	hh := &healthhandler.Handlers{
		Rdb:            rdb,
		DB:             healthsvc.GormPinger{DB: db},
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/", hh.JSON)
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)

	sessionCfg := middleware.SessionConfig{
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	}
	ah := &authhandler.Handlers{
		UserFinder: &authsvc.GormUserFinder{DB: db},
		Rdb:        rdb,
		Config:     sessionCfg,
	}
	authGroup := app.Group("/api/v1/auth")
	authGroup.Post("/login", ah.Login)
	authGroup.Get("/me", ah.Me)
	authGroup.Delete("/logout", ah.Logout)

	ledger := ledgersvc.NewService(db, cfg.Approval)
	requests := &requestsvc.Service{
		DB:                db,
		Engine:            &approvalsvc.Engine{Source: ledger, Policy: ledger.Policy},
		Ledger:            ledger,
		AutoApproveAction: cfg.Approval.AutoApproveAction,
	}

	// Budgets: ledger operations, admin and per-budget audit share the prefix.
	// /check is registered before /:id so it is never taken for an id.
	lh := &ledgerhandler.Handlers{Service: ledger}
	bh := &budgethandler.Handlers{Service: &budgetsvc.Service{DB: db}}
	adh := &audithandler.Handlers{Service: &auditsvc.Service{DB: db}}
	bg := app.Group("/api/v1/budgets", middleware.RequireAuth())
	bg.Post("/check", middleware.AuthorizePermission(constants.ViewData), lh.Check)
	bg.Post("/", middleware.AuthorizePermission(constants.ManageBudgets), bh.Create)
	bg.Get("/", middleware.AuthorizePermission(constants.ViewData), bh.List)
	bg.Get("/:id", middleware.AuthorizePermission(constants.ViewData), bh.Get)
	bg.Patch("/:id", middleware.AuthorizePermission(constants.ManageBudgets), bh.Amend)
	bg.Delete("/:id", middleware.AuthorizePermission(constants.ManageBudgets), bh.Delete)
	bg.Get("/:id/status", middleware.AuthorizePermission(constants.ViewData), lh.Status)
	bg.Post("/:id/reserve", middleware.AuthorizePermission(constants.OperateLedger), lh.Reserve)
	bg.Post("/:id/commit", middleware.AuthorizePermission(constants.OperateLedger), lh.Commit)
	bg.Post("/:id/release", middleware.AuthorizePermission(constants.OperateLedger), lh.Release)
	bg.Get("/:id/audit", middleware.AuthorizePermission(constants.ViewAudit), adh.ForBudget)

	ag := app.Group("/api/v1/audit", middleware.RequireAuth())
	ag.Get("/", middleware.AuthorizePermission(constants.ViewAudit), adh.List)

	rh := &requesthandler.Handlers{Service: requests}
	rg := app.Group("/api/v1/requests", middleware.RequireAuth())
	rg.Post("/", middleware.AuthorizePermission(constants.SubmitRequest), rh.Submit)
	rg.Get("/", middleware.AuthorizePermission(constants.ViewData), rh.List)
	rg.Get("/:id", middleware.AuthorizePermission(constants.ViewData), rh.Get)
	rg.Post("/:id/approve", middleware.AuthorizePermission(constants.ReviewRequests), rh.Approve)
	rg.Post("/:id/reject", middleware.AuthorizePermission(constants.ReviewRequests), rh.Reject)

	ih := &importhandler.Handlers{Service: importsvc.NewService(db, locker, cfg.Import)}
	ig := app.Group("/api/v1/imports", middleware.RequireAuth(), middleware.AuthorizePermission(constants.ImportBudgets))
	ig.Post("/", ih.Run)
	ig.Get("/", ih.List)
	ig.Get("/:id", ih.Get)

	return app
}

// Handler adapts the app to net/http for serverless hosts.
func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
