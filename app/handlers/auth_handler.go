package handlers

import (
	"time"

	"github.com/amirphl/nexus-communicator/app/dto"
	"github.com/amirphl/nexus-communicator/app/middleware"
	businessflow "github.com/amirphl/nexus-communicator/business_flow"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/gofiber/fiber/v3"
)

// AuthHandlerInterface defines the contract for authentication handlers
type AuthHandlerInterface interface {
	Register(c fiber.Ctx) error
	Login(c fiber.Ctx) error
	Logout(c fiber.Ctx) error
	Refresh(c fiber.Ctx) error
	Me(c fiber.Ctx) error
	CheckSession(c fiber.Ctx) error
	Captcha(c fiber.Ctx) error
}

// SessionCookieConfig controls the cookie that mirrors the access token for browser clients
type SessionCookieConfig struct {
	Secure   bool
	SameSite string
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	baseHandler
	authFlow businessflow.AuthFlow
	cookie   SessionCookieConfig
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authFlow businessflow.AuthFlow, cookie SessionCookieConfig) *AuthHandler {
	return &AuthHandler{
		baseHandler: newBaseHandler(),
		authFlow:    authFlow,
		cookie:      cookie,
	}
}

func (h *AuthHandler) setSessionCookie(c fiber.Ctx, auth *dto.AuthResponse) {
	c.Cookie(&fiber.Cookie{
		Name:     utils.SessionCookieName,
		Value:    auth.AccessToken,
		Path:     "/",
		MaxAge:   auth.ExpiresIn,
		Secure:   h.cookie.Secure,
		HTTPOnly: true,
		SameSite: h.cookie.SameSite,
	})
}

func (h *AuthHandler) clearSessionCookie(c fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     utils.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		Secure:   h.cookie.Secure,
		HTTPOnly: true,
		SameSite: h.cookie.SameSite,
	})
}

// Register creates a new account
// @Summary Register
// @Description Create an account and open a session
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "Registration data"
// @Success 201 {object} dto.APIResponse{data=dto.AuthResponse} "Account created"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 409 {object} dto.APIResponse "Email already registered"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c fiber.Ctx) error {
	var req dto.RegisterRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/auth/register")
	defer cancel()

	result, err := h.authFlow.Register(ctx, &req, h.clientMetadata(c))
	if err != nil {
		return h.handleError(c, err, "Registration failed", "REGISTRATION_FAILED")
	}

	h.setSessionCookie(c, result)
	return h.SuccessResponse(c, fiber.StatusCreated, "Usuario registrado exitosamente", result)
}

// Login authenticates with email and password
// @Summary Login
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Credentials"
// @Success 200 {object} dto.APIResponse{data=dto.AuthResponse} "Logged in"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Invalid credentials"
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var req dto.LoginRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/auth/login")
	defer cancel()

	result, err := h.authFlow.Login(ctx, &req, h.clientMetadata(c))
	if err != nil {
		return h.handleError(c, err, "Login failed", "LOGIN_FAILED")
	}

	h.setSessionCookie(c, result)
	return h.SuccessResponse(c, fiber.StatusOK, "Inicio de sesión exitoso", result)
}

// Logout revokes the presented token
// @Summary Logout
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse "Logged out"
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/auth/logout")
	defer cancel()

	if err := h.authFlow.Logout(ctx, uc, middleware.GetRawTokenFromContext(c)); err != nil {
		return h.handleError(c, err, "Logout failed", "LOGOUT_FAILED")
	}

	h.clearSessionCookie(c)
	return h.SuccessResponse(c, fiber.StatusOK, "Sesión cerrada exitosamente", nil)
}

// Refresh rotates a refresh token
// @Summary Refresh tokens
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.RefreshTokenRequest true "Refresh token"
// @Success 200 {object} dto.APIResponse{data=dto.AuthResponse} "New token pair"
// @Failure 401 {object} dto.APIResponse "Invalid refresh token"
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	var req dto.RefreshTokenRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/auth/refresh")
	defer cancel()

	result, err := h.authFlow.Refresh(ctx, req.RefreshToken, h.clientMetadata(c))
	if err != nil {
		return h.handleError(c, err, "Token refresh failed", "REFRESH_FAILED")
	}

	h.setSessionCookie(c, result)
	return h.SuccessResponse(c, fiber.StatusOK, "Token renovado", result)
}

// Me returns the authenticated user
// @Summary Current user
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.UserDTO}
// @Failure 401 {object} dto.APIResponse
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) Me(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/auth/me")
	defer cancel()

	user, err := h.authFlow.Me(ctx, uc)
	if err != nil {
		if businessflow.IsUserNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Usuario no encontrado", "USER_NOT_FOUND", nil)
		}
		return h.handleError(c, err, "Failed to load user", "ME_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", fiber.Map{"user": user})
}

// CheckSession reports whether the request carries a live session; it never fails
// @Summary Check session
// @Tags Authentication
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.SessionResponse}
// @Router /api/v1/auth/check-session [get]
func (h *AuthHandler) CheckSession(c fiber.Ctx) error {
	token, _ := middleware.ExtractToken(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/auth/check-session")
	defer cancel()

	return h.SuccessResponse(c, fiber.StatusOK, "", h.authFlow.CheckSession(ctx, token))
}

// Captcha issues a rotate captcha challenge for the registration form
// @Summary Registration captcha
// @Tags Authentication
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.CaptchaResponse}
// @Failure 404 {object} dto.APIResponse "Captcha disabled"
// @Router /api/v1/auth/captcha [get]
func (h *AuthHandler) Captcha(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, "/api/v1/auth/captcha")
	defer cancel()

	challenge, err := h.authFlow.Captcha(ctx)
	if err != nil {
		return h.handleError(c, err, "Failed to generate captcha", "CAPTCHA_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", challenge)
}
