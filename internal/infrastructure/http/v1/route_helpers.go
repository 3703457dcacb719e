// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"catreg/internal/infrastructure/http/v1/middleware"
)

// MasterDataRouteHandler is the full master-data surface for one :type.
type MasterDataRouteHandler interface {
	List(c *gin.Context)
	All(c *gin.Context)
	Options(c *gin.Context)
	Form(c *gin.Context)
	Export(c *gin.Context)
	Get(c *gin.Context)
	History(c *gin.Context)
	Create(c *gin.Context)
	QuickAdd(c *gin.Context)
	Reorder(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	Restore(c *gin.Context)
	Toggle(c *gin.Context)
}

// ChildRouteHandler manages the children of one parent record.
type ChildRouteHandler interface {
	ListChildren(c *gin.Context)
	CreateChild(c *gin.Context)
	UpdateChild(c *gin.Context)
	DeleteChild(c *gin.Context)
	ToggleChild(c *gin.Context)
	ReorderChildren(c *gin.Context)
}

// RegisterMasterDataRoutes registers read routes for any authenticated user
// and mutating routes behind RequireAdmin. CSRF is enforced on the group.
//
// Usage:
//
//	handler := handlers.NewMasterDataHandler(base, service, audit)
//	RegisterMasterDataRoutes(api.Group("/masterdata/:type"), handler)
func RegisterMasterDataRoutes(group *gin.RouterGroup, handler MasterDataRouteHandler) {
	admin := middleware.RequireAdmin()

	group.GET("", handler.List)
	group.GET("/all", handler.All)
	group.GET("/options", handler.Options)
	group.GET("/form", handler.Form)
	group.GET("/export", handler.Export)
	group.GET("/:id", handler.Get)
	group.GET("/:id/history", admin, handler.History)

	group.POST("", admin, handler.Create)
	group.POST("/quick-add", admin, handler.QuickAdd)
	group.POST("/reorder", admin, handler.Reorder)
	group.PUT("/:id", admin, handler.Update)
	group.DELETE("/:id", admin, handler.Delete)
	group.POST("/:id/restore", admin, handler.Restore)
	group.POST("/:id/toggle", admin, handler.Toggle)

	// Child management is registered only if the handler supports it.
	if children, ok := handler.(ChildRouteHandler); ok {
		group.GET("/:id/children", children.ListChildren)
		group.POST("/:id/children", admin, children.CreateChild)
		group.POST("/:id/children/reorder", admin, children.ReorderChildren)
		group.PUT("/:id/children/:childId", admin, children.UpdateChild)
		group.DELETE("/:id/children/:childId", admin, children.DeleteChild)
		group.POST("/:id/children/:childId/toggle", admin, children.ToggleChild)
	}
}
