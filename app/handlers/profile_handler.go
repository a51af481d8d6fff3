package handlers

import (
	"github.com/amirphl/nexus-communicator/app/dto"
	businessflow "github.com/amirphl/nexus-communicator/business_flow"
	"github.com/gofiber/fiber/v3"
)

// ProfileHandlerInterface defines the contract for profile handlers
type ProfileHandlerInterface interface {
	GetProfile(c fiber.Ctx) error
	UpdateProfile(c fiber.Ctx) error
	ChangePassword(c fiber.Ctx) error
	GetAPIKeys(c fiber.Ctx) error
	DeleteAccount(c fiber.Ctx) error
}

// ProfileHandler handles profile-related HTTP requests
type ProfileHandler struct {
	baseHandler
	profileFlow businessflow.ProfileFlow
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profileFlow businessflow.ProfileFlow) *ProfileHandler {
	return &ProfileHandler{
		baseHandler: newBaseHandler(),
		profileFlow: profileFlow,
	}
}

// GetProfile returns the caller's profile
// @Summary Get profile
// @Tags Profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.UserDTO}
// @Router /api/v1/profile [get]
func (h *ProfileHandler) GetProfile(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/profile")
	defer cancel()

	user, err := h.profileFlow.GetProfile(ctx, uc)
	if err != nil {
		return h.handleError(c, err, "Failed to load profile", "PROFILE_FETCH_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", fiber.Map{"user": user})
}

// UpdateProfile patches the caller's profile
// @Summary Update profile
// @Tags Profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.UpdateProfileRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.UserDTO}
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/profile [put]
func (h *ProfileHandler) UpdateProfile(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	var req dto.UpdateProfileRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/profile")
	defer cancel()

	user, err := h.profileFlow.UpdateProfile(ctx, uc, &req)
	if err != nil {
		return h.handleError(c, err, "Failed to update profile", "PROFILE_UPDATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Perfil actualizado exitosamente", fiber.Map{"user": user})
}

// ChangePassword rotates the account password
// @Summary Change password
// @Tags Profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.ChangePasswordRequest true "Current and new password"
// @Success 200 {object} dto.APIResponse
// @Failure 400 {object} dto.APIResponse "Current password incorrect"
// @Router /api/v1/profile/change-password [post]
func (h *ProfileHandler) ChangePassword(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	var req dto.ChangePasswordRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/profile/change-password")
	defer cancel()

	if err := h.profileFlow.ChangePassword(ctx, uc, &req); err != nil {
		return h.handleError(c, err, "Failed to change password", "PASSWORD_CHANGE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Contraseña actualizada exitosamente", nil)
}

// GetAPIKeys reports the configured credentials in masked form
// @Summary Get API keys
// @Tags Profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.APIKeysResponse}
// @Router /api/v1/profile/api-keys [get]
func (h *ProfileHandler) GetAPIKeys(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/profile/api-keys")
	defer cancel()

	keys, err := h.profileFlow.GetAPIKeys(ctx, uc)
	if err != nil {
		return h.handleError(c, err, "Failed to load API keys", "API_KEYS_FETCH_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", keys)
}

// DeleteAccount removes the account and everything it owns
// @Summary Delete account
// @Tags Profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.DeleteAccountRequest true "Password confirmation"
// @Success 200 {object} dto.APIResponse{data=dto.DeleteAccountResponse}
// @Failure 400 {object} dto.APIResponse "Password incorrect"
// @Router /api/v1/profile/delete-account [delete]
func (h *ProfileHandler) DeleteAccount(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	var req dto.DeleteAccountRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/profile/delete-account")
	defer cancel()

	result, err := h.profileFlow.DeleteAccount(ctx, uc, &req)
	if err != nil {
		return h.handleError(c, err, "Failed to delete account", "ACCOUNT_DELETE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}
