package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/custody-service/internal/api/dto"
	"github.com/spec-kit/custody-service/internal/auth"
	"github.com/spec-kit/custody-service/internal/service"
	apperrors "github.com/spec-kit/custody-service/pkg/util/errorutil"
)

// AuthHandler exposes login, token and credential endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := h.auth.Login(c.UserContext(), strings.TrimSpace(req.Username), req.Password, strings.TrimSpace(req.TwoFACode))
	if err != nil {
		return err
	}
	if res.Requires2FA {
		return data(c, dto.LoginResponse{Requires2FA: true})
	}
	return data(c, dto.LoginResponse{
		User:   dto.NewUserResponse(res.User),
		Tokens: dto.NewTokenResponse(res.Tokens),
	})
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.RefreshToken == "" {
		return apperrors.NewValidationError("refresh_token required", nil)
	}
	pair, err := h.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return data(c, dto.NewTokenResponse(pair))
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.LogoutRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	if err := h.auth.Logout(c.UserContext(), principal.Token, req.RefreshToken); err != nil {
		return err
	}
	return data(c, fiber.Map{"status": "logged_out"})
}

// SetupTwoFA handles POST /auth/2fa/setup.
func (h *AuthHandler) SetupTwoFA(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	setup, err := h.auth.SetupTwoFA(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return data(c, dto.TwoFASetupResponse{Secret: setup.Secret, QRURL: setup.URL})
}

// DisableTwoFA handles POST /auth/2fa/disable.
func (h *AuthHandler) DisableTwoFA(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.auth.DisableTwoFA(c.UserContext(), actor); err != nil {
		return err
	}
	return data(c, fiber.Map{"status": "2fa_disabled"})
}

// ChangePassword handles POST /auth/password/change.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.PasswordChangeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return apperrors.NewValidationError("current and new password required", nil)
	}
	if err := h.auth.ChangePassword(c.UserContext(), actor, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return data(c, fiber.Map{"status": "password_changed"})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return data(c, dto.NewUserResponse(principal.User))
}

// CreateUser handles POST /users.
func (h *AuthHandler) CreateUser(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateUserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := h.auth.CreateUser(c.UserContext(), actor, service.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}
	return created(c, dto.NewUserResponse(user))
}

// ListUsers handles GET /users.
func (h *AuthHandler) ListUsers(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	users, err := h.auth.ListUsers(c.UserContext(), actor)
	if err != nil {
		return err
	}
	items := make([]*dto.UserResponse, 0, len(users))
	for i := range users {
		items = append(items, dto.NewUserResponse(&users[i]))
	}
	return data(c, items)
}
