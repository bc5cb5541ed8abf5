package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/custody-service/internal/api/dto"
	"github.com/spec-kit/custody-service/internal/service"
)

// ReportsHandler serves the dashboard and read-only reports.
type ReportsHandler struct {
	reports *service.ReportService
}

// NewReportsHandler constructs handler.
func NewReportsHandler(reports *service.ReportService) *ReportsHandler {
	return &ReportsHandler{reports: reports}
}

// Stats GET /dashboard/stats.
func (h *ReportsHandler) Stats(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	stats, err := h.reports.DashboardStats(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return data(c, stats)
}

// Alerts GET /dashboard/alerts.
func (h *ReportsHandler) Alerts(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	alerts, err := h.reports.Alerts(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return data(c, alerts)
}

// Daily GET /reports/daily?date=YYYY-MM-DD.
func (h *ReportsHandler) Daily(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	day, err := parseTime(c.Query("date"))
	if err != nil {
		return err
	}
	report, err := h.reports.Daily(c.UserContext(), actor, day)
	if err != nil {
		return err
	}
	return data(c, report)
}

// LostItems GET /reports/lost-items.
func (h *ReportsHandler) LostItems(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	report, err := h.reports.LostItems(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return data(c, report)
}

// Employee GET /reports/employee/:id.
func (h *ReportsHandler) Employee(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	report, err := h.reports.EmployeeReport(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, report)
}

// Department GET /reports/department/:id.
func (h *ReportsHandler) Department(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	report, err := h.reports.DepartmentReport(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, report)
}

// Export GET /reports/export.
func (h *ReportsHandler) Export(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	snap, err := h.reports.Export(c.UserContext(), actor)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="custody-export.json"`)
	return data(c, dto.NewExportResponse(snap))
}
