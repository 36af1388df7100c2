package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/cpo-backoffice-api/pkg/errors"
	"github.com/noah-isme/cpo-backoffice-api/pkg/response"
)

type authService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.Driver, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, callerID, refreshToken string) error
	Profile(ctx context.Context, claims *models.JWTClaims) (*models.UserInfo, error)
}

const refreshTokenHeader = "X-Refresh-Token"

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service authService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Register godoc
// @Summary Register driver
// @Description Self-service sign-up; new accounts get the conductor role
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if !bindJSON(c, &req, "invalid registration payload") {
		return
	}

	driver, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, driver)
}

// Login godoc
// @Summary Authenticate driver
// @Description Authenticate by email and password and receive a token pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req, "invalid login payload") {
		return
	}

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Refresh godoc
// @Summary Refresh token pair
// @Description Exchange a refresh token for a brand-new access and refresh token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param X-Refresh-Token header string false "Refresh token"
// @Param payload body models.RefreshTokenRequest false "Refresh payload when the header is absent"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, ok := refreshTokenFrom(c, "invalid refresh payload")
	if !ok {
		return
	}

	res, err := h.service.Refresh(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary Logout
// @Description Revoke the refresh token until it expires
// @Tags Authentication
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param X-Refresh-Token header string false "Refresh token"
// @Param payload body models.RefreshTokenRequest false "Refresh token when the header is absent"
// @Success 204
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	token, ok := refreshTokenFrom(c, "refresh token required")
	if !ok {
		return
	}

	if err := h.service.Logout(c.Request.Context(), claims.UserID, token); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Profile godoc
// @Summary Current driver profile
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/perfil [get]
func (h *AuthHandler) Profile(c *gin.Context) {
	info, err := h.service.Profile(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, info)
}

// refreshTokenFrom prefers the X-Refresh-Token header and falls back to the
// JSON body.
func refreshTokenFrom(c *gin.Context, message string) (string, bool) {
	if token := strings.TrimSpace(c.GetHeader(refreshTokenHeader)); token != "" {
		return token, true
	}
	var req models.RefreshTokenRequest
	if !bindJSON(c, &req, message) {
		return "", false
	}
	return req.RefreshToken, true
}
