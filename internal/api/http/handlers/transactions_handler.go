package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/custody-service/internal/api/dto"
	"github.com/spec-kit/custody-service/internal/domain"
	"github.com/spec-kit/custody-service/internal/repository"
	"github.com/spec-kit/custody-service/internal/service"
	apperrors "github.com/spec-kit/custody-service/pkg/util/errorutil"
)

// TransactionsHandler exposes the custody ledger.
type TransactionsHandler struct {
	custody *service.CustodyService
}

// NewTransactionsHandler constructs handler.
func NewTransactionsHandler(custody *service.CustodyService) *TransactionsHandler {
	return &TransactionsHandler{custody: custody}
}

// Checkout POST /transactions/checkout.
func (h *TransactionsHandler) Checkout(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CheckoutRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	tx, err := h.custody.Checkout(c.UserContext(), actor, service.CheckoutInput{
		EmployeeID:          strings.TrimSpace(req.EmployeeID),
		KeyID:               req.KeyID,
		AccessCardID:        req.AccessCardID,
		Purpose:             req.Purpose,
		ExpectedReturnHours: req.ExpectedReturnHours,
	})
	if err != nil {
		return err
	}
	return created(c, dto.NewTransactionResponse(tx, h.custody.Now()))
}

// CheckIn POST /transactions/checkin.
func (h *TransactionsHandler) CheckIn(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CheckinRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	number := strings.TrimSpace(req.TransactionNumber)
	if number == "" {
		return apperrors.NewValidationError("transaction_number required", nil)
	}
	tx, err := h.custody.CheckIn(c.UserContext(), actor, number, req.Notes)
	if err != nil {
		return err
	}
	return data(c, dto.NewTransactionResponse(tx, h.custody.Now()))
}

// Extend POST /transactions/:number/extend.
func (h *TransactionsHandler) Extend(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.ExtendRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	tx, err := h.custody.Extend(c.UserContext(), actor, c.Params("number"), service.ExtendInput{
		AdditionalHours: req.AdditionalHours,
		NewReturnTime:   req.NewReturnTime,
	})
	if err != nil {
		return err
	}
	return data(c, dto.NewTransactionResponse(tx, h.custody.Now()))
}

// ReportLost POST /transactions/:number/lost.
func (h *TransactionsHandler) ReportLost(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.NotesRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	tx, err := h.custody.ReportLost(c.UserContext(), actor, c.Params("number"), req.Notes)
	if err != nil {
		return err
	}
	return data(c, dto.NewTransactionResponse(tx, h.custody.Now()))
}

// Get GET /transactions/:number.
func (h *TransactionsHandler) Get(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	tx, err := h.custody.Get(c.UserContext(), actor, c.Params("number"))
	if err != nil {
		return err
	}
	return data(c, dto.NewTransactionResponse(tx, h.custody.Now()))
}

// ListActive GET /transactions/active.
func (h *TransactionsHandler) ListActive(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	kind, err := parseItemType(c.Query("item_type"))
	if err != nil {
		return err
	}
	txs, err := h.custody.ListActive(c.UserContext(), actor, service.ActiveFilter{
		EmployeeID: c.Query("employee_id"),
		Kind:       kind,
	})
	if err != nil {
		return err
	}
	return data(c, dto.NewTransactionResponses(txs, h.custody.Now()))
}

// ListOverdue GET /transactions/overdue.
func (h *TransactionsHandler) ListOverdue(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	txs, err := h.custody.ListOverdue(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return data(c, dto.NewTransactionResponses(txs, h.custody.Now()))
}

// History GET /transactions.
func (h *TransactionsHandler) History(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	filter, err := parseTransactionQuery(c, h.custody.Now())
	if err != nil {
		return err
	}
	txs, err := h.custody.History(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	return data(c, dto.NewTransactionResponses(txs, h.custody.Now()))
}

func parseTransactionQuery(c *fiber.Ctx, now time.Time) (repository.TransactionFilter, error) {
	kind, err := parseItemType(c.Query("item_type"))
	if err != nil {
		return repository.TransactionFilter{}, err
	}
	from, err := parseTime(c.Query("from"))
	if err != nil {
		return repository.TransactionFilter{}, err
	}
	to, err := parseTime(c.Query("to"))
	if err != nil {
		return repository.TransactionFilter{}, err
	}
	filter := repository.TransactionFilter{
		EmployeeID:   c.Query("employee_id"),
		DepartmentID: c.Query("department_id"),
		Kind:         kind,
		From:         from,
		To:           to,
		Limit:        parseInt(c.Query("limit"), 100),
	}
	if status := c.Query("status"); status != "" {
		switch s := domain.TransactionStatus(status); s {
		case domain.TransactionStatusActive, domain.TransactionStatusCompleted, domain.TransactionStatusLost:
			filter.Status = s
		case domain.TransactionStatusOverdue:
			filter.OverdueAt = &now
		default:
			return filter, apperrors.NewValidationError("unknown status", map[string]any{"status": status})
		}
	}
	return filter, nil
}
