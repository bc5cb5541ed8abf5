package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/custody-service/internal/api/http"
	"github.com/spec-kit/custody-service/internal/api/http/handlers"
	"github.com/spec-kit/custody-service/internal/auth"
	"github.com/spec-kit/custody-service/internal/config"
	"github.com/spec-kit/custody-service/internal/events"
	"github.com/spec-kit/custody-service/internal/observability"
	"github.com/spec-kit/custody-service/internal/persistence"
	"github.com/spec-kit/custody-service/internal/repository"
	"github.com/spec-kit/custody-service/internal/repository/memory"
	"github.com/spec-kit/custody-service/internal/service"
	"github.com/spec-kit/custody-service/internal/worker"
)

// stores is the repository set the services run on.
type stores struct {
	tx           repository.Transactor
	users        repository.UserRepository
	departments  repository.DepartmentRepository
	employees    repository.EmployeeRepository
	keys         repository.KeyRepository
	cards        repository.AccessCardRepository
	transactions repository.TransactionRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	deps := map[string]handlers.Pinger{}

	var st stores
	pg, err := persistence.OpenPostgres(ctx, cfg.Postgres, logger)
	switch {
	case err == nil:
		defer pg.Close()
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		pool := pg.Pool()
		st = stores{
			tx:           repository.NewTxManager(pool),
			users:        repository.NewUserRepository(pool),
			departments:  repository.NewDepartmentRepository(pool),
			employees:    repository.NewEmployeeRepository(pool),
			keys:         repository.NewKeyRepository(pool),
			cards:        repository.NewAccessCardRepository(pool),
			transactions: repository.NewTransactionRepository(pool),
		}
		deps["postgres"] = pg
	case err == persistence.ErrNoDSN:
		logger.Warn("POSTGRES_DSN not provided; using in-memory store")
		mem := memory.New(nil)
		st = stores{
			tx:           mem,
			users:        mem.Users(),
			departments:  mem.Departments(),
			employees:    mem.Employees(),
			keys:         mem.Keys(),
			cards:        mem.AccessCards(),
			transactions: mem.Transactions(),
		}
	default:
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}

	var (
		revoker    service.TokenRevoker
		revocation auth.RevocationChecker
		statsCache service.StatsCache
	)
	rdb, err := persistence.OpenRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("redis unavailable; logout revocation and dashboard cache disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		denylist := rdb.Denylist()
		revoker, revocation, statsCache = denylist, denylist, rdb.StatsCache()
		deps["redis"] = rdb
	}

	dispatcher := events.NewInMemoryDispatcher()

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo: st.users,
		Revoker:  revoker,
		Logger:   logger,
	})
	custodyService := service.NewCustodyService(service.CustodyDependencies{
		Tx:             st.tx,
		Transactions:   st.transactions,
		Employees:      st.employees,
		Keys:           st.keys,
		Cards:          st.cards,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger,
		MaxReturnHours: cfg.Custody.MaxReturnHours,
	})
	assetService := service.NewAssetService(service.AssetDependencies{
		Tx:           st.tx,
		Keys:         st.keys,
		Cards:        st.cards,
		Departments:  st.departments,
		Employees:    st.employees,
		Transactions: st.transactions,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})
	orgService := service.NewOrgService(service.OrgDependencies{
		Departments:  st.departments,
		Employees:    st.employees,
		Transactions: st.transactions,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})
	reportService := service.NewReportService(service.ReportDependencies{
		Transactions:        st.transactions,
		Employees:           st.employees,
		Departments:         st.departments,
		Keys:                st.keys,
		Cards:               st.cards,
		Cache:               statsCache,
		Metrics:             metrics,
		Logger:              logger,
		StatsTTL:            cfg.Custody.StatsCacheTTL(),
		RecentActivityLimit: cfg.Custody.RecentActivityLimit,
		UsageWindowDays:     cfg.Custody.UsageWindowDays,
		CardExpiryAlertDays: cfg.Custody.CardExpiryAlertDays,
	})
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, reportService))

	if cfg.Auth.HasBootstrapAdmin() {
		admin, err := authService.Bootstrap(ctx, cfg.Auth.BootstrapUsername, cfg.Auth.BootstrapEmail, cfg.Auth.BootstrapPassword)
		if err != nil {
			logger.Fatal("failed to bootstrap admin", zap.Error(err))
		}
		if admin != nil {
			logger.Info("bootstrap admin created", zap.String("username", admin.Username))
		}
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Auth:           handlers.NewAuthHandler(authService),
		Transactions:   handlers.NewTransactionsHandler(custodyService),
		Keys:           handlers.NewKeysHandler(assetService, custodyService.Now),
		Cards:          handlers.NewCardsHandler(assetService, custodyService.Now),
		Employees:      handlers.NewEmployeesHandler(orgService, custodyService.Now),
		Departments:    handlers.NewDepartmentsHandler(orgService),
		Reports:        handlers.NewReportsHandler(reportService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), st.users, revocation, logger),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}
