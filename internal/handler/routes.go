package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cpo-backoffice-api/internal/middleware"
	"github.com/noah-isme/cpo-backoffice-api/internal/models"
)

// Handlers groups every resource handler mounted under the API prefix.
type Handlers struct {
	Auth     *AuthHandler
	Drivers  *DriverHandler
	Tariffs  *TariffHandler
	Payments *PaymentHandler
	Invoices *InvoiceHandler
	Cards    *CardHandler
	Audit    *AuditHandler
	System   *SystemHandler
}

// RegisterRoutes mounts the API. authLimiter guards the public credential
// endpoints and may be nil.
func RegisterRoutes(api gin.IRouter, h Handlers, tokens middleware.TokenValidator, authLimiter gin.HandlerFunc) {
	authenticated := middleware.JWT(tokens)
	admin := middleware.RequireRoles(models.RoleAdminCPO)
	anyRole := middleware.RequireRoles(models.RoleAdminCPO, models.RoleConductor)

	public := []gin.HandlerFunc{}
	if authLimiter != nil {
		public = append(public, authLimiter)
	}

	auth := api.Group("/auth")
	auth.POST("/register", append(public, h.Auth.Register)...)
	auth.POST("/login", append(public, h.Auth.Login)...)
	auth.POST("/refresh", append(public, h.Auth.Refresh)...)
	auth.POST("/logout", authenticated, h.Auth.Logout)
	auth.GET("/perfil", authenticated, h.Auth.Profile)

	api.GET("/pagos/enlace/:token", append(public, h.Payments.ResolveLink)...)

	drivers := api.Group("/conductores", authenticated)
	drivers.GET("", admin, h.Drivers.List)
	drivers.POST("", admin, h.Drivers.Create)
	drivers.GET("/:id", middleware.AdminOrSelf(), h.Drivers.Get)
	drivers.PUT("/:id", middleware.AdminOrSelf(), h.Drivers.Update)
	drivers.PUT("/:id/password", middleware.RBAC(middleware.Self), h.Drivers.ChangePassword)
	drivers.DELETE("/:id", admin, h.Drivers.Delete)
	drivers.GET("/:id/auditoria", admin, h.Drivers.History)

	tariffs := api.Group("/tarifas", authenticated)
	tariffs.GET("", anyRole, h.Tariffs.List)
	tariffs.GET("/:id", anyRole, h.Tariffs.Get)
	tariffs.POST("", admin, h.Tariffs.Create)
	tariffs.PUT("/:id", admin, h.Tariffs.Update)
	tariffs.DELETE("/:id", admin, h.Tariffs.Delete)
	tariffs.GET("/:id/auditoria", admin, h.Tariffs.History)

	payments := api.Group("/pagos", authenticated)
	payments.GET("", anyRole, h.Payments.List)
	payments.POST("", anyRole, h.Payments.Create)
	payments.GET("/:id", anyRole, h.Payments.Get)
	payments.PATCH("/:id/estado", admin, h.Payments.UpdateStatus)
	payments.POST("/:id/qr", anyRole, h.Payments.GenerateQR)

	invoices := api.Group("/facturas", authenticated)
	invoices.GET("", anyRole, h.Invoices.List)
	invoices.GET("/:id", anyRole, h.Invoices.Get)
	invoices.GET("/:id/historial", anyRole, h.Invoices.History)
	invoices.GET("/:id/pdf", anyRole, h.Invoices.PDF)
	invoices.POST("", admin, h.Invoices.Create)
	invoices.PUT("/:id", admin, h.Invoices.Update)
	invoices.DELETE("/:id", admin, h.Invoices.Annul)

	cards := api.Group("/tarjetas", authenticated)
	cards.GET("", anyRole, h.Cards.List)
	cards.GET("/:id", anyRole, h.Cards.Get)
	cards.POST("", admin, h.Cards.Create)
	cards.PUT("/:id", admin, h.Cards.Update)
	cards.PATCH("/:id/desactivar", admin, h.Cards.Deactivate)
	cards.DELETE("/:id", admin, h.Cards.Delete)
	cards.GET("/:id/auditoria", admin, h.Cards.History)

	audit := api.Group("/auditoria", authenticated, admin)
	audit.GET("", h.Audit.List)
	audit.GET("/tabla/:tabla", h.Audit.ByTable)
	audit.GET("/tabla/:tabla/:id", h.Audit.ByEntity)
	audit.GET("/filtros", h.Audit.Search)
	audit.GET("/exportar", h.Audit.Export)
	audit.DELETE("/limpiar-registros", h.Audit.Purge)

	api.GET("/sistema/db-stats", authenticated, admin, h.System.DBStats)
}
