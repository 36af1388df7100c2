package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cpo-backoffice-api/internal/middleware"
	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/cpo-backoffice-api/pkg/errors"
	"github.com/noah-isme/cpo-backoffice-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext is the audit actor for the request.
func actorFromContext(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil && claims.UserID != "" {
		return claims.UserID
	}
	return models.SystemActor
}

func pageFromQuery(c *gin.Context) models.PageRequest {
	var page models.PageRequest
	if v, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		page.Page = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		page.PageSize = v
	}
	return page.Normalize()
}

// bindJSON decodes the body and writes a 400 when it is malformed.
func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func includeDeleted(c *gin.Context) bool {
	v, _ := strconv.ParseBool(c.Query("incluir_eliminados"))
	return v
}
