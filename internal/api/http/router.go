package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/custody-service/internal/api/http/handlers"
	"github.com/spec-kit/custody-service/internal/auth"
	"github.com/spec-kit/custody-service/internal/domain"
	"github.com/spec-kit/custody-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Transactions   *handlers.TransactionsHandler
	Keys           *handlers.KeysHandler
	Cards          *handlers.CardsHandler
	Employees      *handlers.EmployeesHandler
	Departments    *handlers.DepartmentsHandler
	Reports        *handlers.ReportsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/refresh", cfg.Auth.Refresh)

	protected := api.Group("", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	auditor := auth.RequireRole(domain.RoleAuditor)
	staff := auth.RequireRole(domain.RoleSecurityStaff)
	admin := auth.RequireRole(domain.RoleAdmin)

	me := protected.Group("/auth")
	me.Get("/me", cfg.Auth.Me)
	me.Post("/logout", cfg.Auth.Logout)
	me.Post("/2fa/setup", cfg.Auth.SetupTwoFA)
	me.Post("/2fa/disable", cfg.Auth.DisableTwoFA)
	me.Post("/password/change", cfg.Auth.ChangePassword)

	users := protected.Group("/users", admin)
	users.Get("", cfg.Auth.ListUsers)
	users.Post("", cfg.Auth.CreateUser)

	tx := protected.Group("/transactions")
	tx.Post("/checkout", staff, cfg.Transactions.Checkout)
	tx.Post("/checkin", staff, cfg.Transactions.CheckIn)
	tx.Get("", auditor, cfg.Transactions.History)
	tx.Get("/active", auditor, cfg.Transactions.ListActive)
	tx.Get("/overdue", auditor, cfg.Transactions.ListOverdue)
	tx.Get("/:number", auditor, cfg.Transactions.Get)
	tx.Post("/:number/extend", staff, cfg.Transactions.Extend)
	tx.Post("/:number/lost", staff, cfg.Transactions.ReportLost)

	keys := protected.Group("/keys")
	keys.Get("", auditor, cfg.Keys.List)
	keys.Post("", admin, cfg.Keys.Create)
	keys.Get("/:id", auditor, cfg.Keys.Get)
	keys.Put("/:id", admin, cfg.Keys.Update)
	keys.Delete("/:id", admin, cfg.Keys.Retire)
	keys.Get("/:id/permissions", auditor, cfg.Keys.Permissions)
	keys.Put("/:id/permissions", admin, cfg.Keys.SetPermissions)
	keys.Get("/:id/history", auditor, cfg.Keys.History)
	keys.Post("/:id/maintenance", admin, cfg.Keys.Maintenance)

	cards := protected.Group("/access-cards")
	cards.Get("", auditor, cfg.Cards.List)
	cards.Post("", admin, cfg.Cards.Create)
	cards.Get("/:id", auditor, cfg.Cards.Get)
	cards.Put("/:id", admin, cfg.Cards.Update)
	cards.Delete("/:id", admin, cfg.Cards.Deactivate)
	cards.Post("/:id/activate", admin, cfg.Cards.Activate)
	cards.Post("/:id/extend", admin, cfg.Cards.Extend)
	cards.Get("/:id/history", auditor, cfg.Cards.History)

	emps := protected.Group("/employees")
	emps.Get("", auditor, cfg.Employees.List)
	emps.Post("", admin, cfg.Employees.Create)
	emps.Get("/:id", auditor, cfg.Employees.Get)
	emps.Put("/:id", admin, cfg.Employees.Update)
	emps.Get("/:id/transactions", auditor, cfg.Employees.Transactions)
	emps.Get("/:id/active-items", auditor, cfg.Employees.ActiveItems)

	depts := protected.Group("/departments")
	depts.Get("", auditor, cfg.Departments.List)
	depts.Post("", admin, cfg.Departments.Create)
	depts.Get("/:id", auditor, cfg.Departments.Get)
	depts.Put("/:id", admin, cfg.Departments.Update)
	depts.Get("/:id/employees", auditor, cfg.Departments.Employees)

	dash := protected.Group("/dashboard", auditor)
	dash.Get("/stats", cfg.Reports.Stats)
	dash.Get("/alerts", cfg.Reports.Alerts)

	reports := protected.Group("/reports", auditor)
	reports.Get("/daily", cfg.Reports.Daily)
	reports.Get("/lost-items", cfg.Reports.LostItems)
	reports.Get("/employee/:id", cfg.Reports.Employee)
	reports.Get("/department/:id", cfg.Reports.Department)
	reports.Get("/export", cfg.Reports.Export)
}
