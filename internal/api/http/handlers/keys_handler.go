package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/custody-service/internal/api/dto"
	"github.com/spec-kit/custody-service/internal/domain"
	"github.com/spec-kit/custody-service/internal/repository"
	"github.com/spec-kit/custody-service/internal/service"
)

// KeysHandler manages the key registry.
type KeysHandler struct {
	assets *service.AssetService
	clock  Clock
}

// NewKeysHandler constructs handler.
func NewKeysHandler(assets *service.AssetService, clock Clock) *KeysHandler {
	return &KeysHandler{assets: assets, clock: clock}
}

// List GET /keys.
func (h *KeysHandler) List(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	keys, err := h.assets.ListKeys(c.UserContext(), actor, repository.KeyFilter{
		Status:       domain.KeyStatus(c.Query("status")),
		KeyType:      domain.KeyType(c.Query("key_type")),
		DepartmentID: c.Query("department_id"),
		Search:       c.Query("search"),
	})
	if err != nil {
		return err
	}
	return data(c, dto.NewKeyResponses(keys))
}

// Get GET /keys/:id.
func (h *KeysHandler) Get(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	key, err := h.assets.GetKey(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, dto.NewKeyResponse(key))
}

// Create POST /keys.
func (h *KeysHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.KeyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	key, err := h.assets.CreateKey(c.UserContext(), actor, service.KeyInput{
		KeyNumber:               req.KeyNumber,
		Name:                    req.Name,
		Location:                req.Location,
		Description:             req.Description,
		KeyType:                 req.KeyType,
		AuthorizedDepartmentIDs: req.AuthorizedDepartmentIDs,
	})
	if err != nil {
		return err
	}
	return created(c, dto.NewKeyResponse(key))
}

// Update PUT /keys/:id.
func (h *KeysHandler) Update(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.KeyUpdateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	key, err := h.assets.UpdateKey(c.UserContext(), actor, c.Params("id"), service.KeyUpdateInput{
		Name:        req.Name,
		Location:    req.Location,
		Description: req.Description,
		KeyType:     req.KeyType,
		Status:      req.Status,
	})
	if err != nil {
		return err
	}
	return data(c, dto.NewKeyResponse(key))
}

// Retire DELETE /keys/:id.
func (h *KeysHandler) Retire(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	key, err := h.assets.RetireKey(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, dto.NewKeyResponse(key))
}

// Permissions GET /keys/:id/permissions.
func (h *KeysHandler) Permissions(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	depts, err := h.assets.KeyPermissions(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, dto.NewDepartmentResponses(depts))
}

// SetPermissions PUT /keys/:id/permissions.
func (h *KeysHandler) SetPermissions(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.KeyPermissionsRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	key, err := h.assets.SetKeyPermissions(c.UserContext(), actor, c.Params("id"), req.DepartmentIDs)
	if err != nil {
		return err
	}
	return data(c, dto.NewKeyResponse(key))
}

// History GET /keys/:id/history.
func (h *KeysHandler) History(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	txs, err := h.assets.KeyHistory(c.UserContext(), actor, c.Params("id"), parseInt(c.Query("limit"), 50))
	if err != nil {
		return err
	}
	return data(c, dto.NewTransactionResponses(txs, h.clock.now()))
}

// Maintenance POST /keys/:id/maintenance.
func (h *KeysHandler) Maintenance(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.MaintenanceRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	key, err := h.assets.RecordMaintenance(c.UserContext(), actor, c.Params("id"), req.PerformedAt)
	if err != nil {
		return err
	}
	return data(c, dto.NewKeyResponse(key))
}
