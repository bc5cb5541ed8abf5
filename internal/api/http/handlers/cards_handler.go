package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/custody-service/internal/api/dto"
	"github.com/spec-kit/custody-service/internal/domain"
	"github.com/spec-kit/custody-service/internal/repository"
	"github.com/spec-kit/custody-service/internal/service"
	apperrors "github.com/spec-kit/custody-service/pkg/util/errorutil"
)

// CardsHandler manages the access card registry.
type CardsHandler struct {
	assets *service.AssetService
	clock  Clock
}

// NewCardsHandler constructs handler.
func NewCardsHandler(assets *service.AssetService, clock Clock) *CardsHandler {
	return &CardsHandler{assets: assets, clock: clock}
}

// List GET /access-cards.
func (h *CardsHandler) List(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	filter := repository.AccessCardFilter{
		Status:     domain.CardStatus(c.Query("status")),
		CardType:   domain.CardType(c.Query("card_type")),
		EmployeeID: c.Query("employee_id"),
		Search:     c.Query("search"),
	}
	if days := parseInt(c.Query("expiring_within_days"), 0); days > 0 {
		until := h.clock.now().AddDate(0, 0, days)
		filter.ExpiresBefore = &until
	}
	cards, err := h.assets.ListCards(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	return data(c, dto.NewAccessCardResponses(cards, h.clock.now()))
}

// Get GET /access-cards/:id.
func (h *CardsHandler) Get(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	card, err := h.assets.GetCard(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, dto.NewAccessCardResponse(card, h.clock.now()))
}

// Create POST /access-cards.
func (h *CardsHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.AccessCardRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	card, err := h.assets.CreateCard(c.UserContext(), actor, service.AccessCardInput{
		CardNumber:  req.CardNumber,
		CardType:    req.CardType,
		IssueDate:   req.IssueDate,
		ExpiryDate:  req.ExpiryDate,
		AccessZones: req.AccessZones,
		EmployeeID:  req.EmployeeID,
	})
	if err != nil {
		return err
	}
	return created(c, dto.NewAccessCardResponse(card, h.clock.now()))
}

// Update PUT /access-cards/:id.
func (h *CardsHandler) Update(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.AccessCardUpdateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	card, err := h.assets.UpdateCard(c.UserContext(), actor, c.Params("id"), service.AccessCardUpdateInput{
		CardType:    req.CardType,
		Status:      req.Status,
		ExpiryDate:  req.ExpiryDate,
		AccessZones: req.AccessZones,
		EmployeeID:  req.EmployeeID,
	})
	if err != nil {
		return err
	}
	return data(c, dto.NewAccessCardResponse(card, h.clock.now()))
}

// Deactivate DELETE /access-cards/:id.
func (h *CardsHandler) Deactivate(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	card, err := h.assets.DeactivateCard(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, dto.NewAccessCardResponse(card, h.clock.now()))
}

// Activate POST /access-cards/:id/activate.
func (h *CardsHandler) Activate(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	card, err := h.assets.ActivateCard(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, dto.NewAccessCardResponse(card, h.clock.now()))
}

// Extend POST /access-cards/:id/extend.
func (h *CardsHandler) Extend(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CardExtendRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.ExpiryDate == nil {
		return apperrors.NewValidationError("new_expiry_date required", nil)
	}
	card, err := h.assets.ExtendCardExpiry(c.UserContext(), actor, c.Params("id"), *req.ExpiryDate)
	if err != nil {
		return err
	}
	return data(c, dto.NewAccessCardResponse(card, h.clock.now()))
}

// History GET /access-cards/:id/history.
func (h *CardsHandler) History(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	txs, err := h.assets.CardHistory(c.UserContext(), actor, c.Params("id"), parseInt(c.Query("limit"), 50))
	if err != nil {
		return err
	}
	return data(c, dto.NewTransactionResponses(txs, h.clock.now()))
}
