package http

import "github.com/gin-gonic/gin"

// RegisterProductRoutes registra las rutas HTTP del catálogo.
func RegisterProductRoutes(r *gin.Engine, handler *ProductHandler) {
	products := r.Group("/products")
	{
		products.POST("", handler.CreateProduct)
		products.GET("/:id", handler.GetProduct)
		products.PATCH("/:id/name", handler.RenameProduct)
		products.PATCH("/:id/price", handler.ChangePrice)
		products.PATCH("/:id/stock", handler.AdjustStock)
		products.DELETE("/:id", handler.DiscontinueProduct) // descatalogar; los eventos no se borran
	}

	r.GET("/analytics/activity", handler.DailyActivity)
	r.GET("/outbox/summary", handler.OutboxSummary)
	r.POST("/outbox/requeue", handler.RequeueFailed)
	r.GET("/health", handler.Health)
}
