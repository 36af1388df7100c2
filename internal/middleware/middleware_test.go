package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	"github.com/noah-isme/cpo-backoffice-api/internal/service"
	appErrors "github.com/noah-isme/cpo-backoffice-api/pkg/errors"
	"github.com/noah-isme/cpo-backoffice-api/pkg/logger"
)

type stubValidator struct {
	claims *models.JWTClaims
	token  string
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != s.token {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	return s.claims, nil
}

func newProtectedRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/conductores/:id", append(mw, func(c *gin.Context) {
		claims, _ := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"user": claims.UserID, "actor": c.GetString(logger.ActorKey)})
	})...)
	return router
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload.Error.Code
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	router := newProtectedRouter(JWT(stubValidator{token: "good"}))

	for _, header := range []string{"", "good", "Basic good", "Bearer ", "Bearer bad"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/conductores/1", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
		assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec.Body.Bytes()))
	}
}

func TestJWTAttachesClaims(t *testing.T) {
	claims := &models.JWTClaims{UserID: "drv-1", Role: models.RoleConductor}
	router := newProtectedRouter(JWT(stubValidator{token: "good", claims: claims}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/conductores/1", nil)
	req.Header.Set("Authorization", "bearer good")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":"drv-1","actor":"drv-1"}`, rec.Body.String())
}

func TestRBACRolesAndSelf(t *testing.T) {
	cases := []struct {
		name   string
		claims *models.JWTClaims
		path   string
		want   int
	}{
		{"admin any id", &models.JWTClaims{UserID: "adm", Role: models.RoleAdminCPO}, "/conductores/other", http.StatusOK},
		{"conductor own id", &models.JWTClaims{UserID: "drv-1", Role: models.RoleConductor}, "/conductores/drv-1", http.StatusOK},
		{"conductor other id", &models.JWTClaims{UserID: "drv-1", Role: models.RoleConductor}, "/conductores/drv-2", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newProtectedRouter(JWT(stubValidator{token: "t", claims: tc.claims}), AdminOrSelf())
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			req.Header.Set("Authorization", "Bearer t")
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRBACWithoutClaimsIsUnauthorized(t *testing.T) {
	router := newProtectedRouter(RequireRoles(models.RoleAdminCPO))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conductores/1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsLabelsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/tarifas/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"a", "b"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tarifas/"+id, nil))
	}
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	expected := `
# HELP http_requests_total Total number of HTTP requests
# TYPE http_requests_total counter
http_requests_total{method="GET",path="/tarifas/:id",status="204"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "http_requests_total"))
}
