package handlers

import (
	"github.com/gin-gonic/gin"

	"catreg/internal/infrastructure/http/v1/dto"
	"catreg/internal/metadata"
)

// EntityTypeInfo is a registered entity type plus its discovered hierarchy.
type EntityTypeInfo struct {
	metadata.EntityDef
	ParentType string `json:"parentType,omitempty"`
	ParentKey  string `json:"parentForeignKey,omitempty"`
	ChildType  string `json:"childType,omitempty"`
}

// MetadataHandler exposes entity-type definitions so clients can render forms.
type MetadataHandler struct {
	*BaseHandler
	registry *metadata.Registry
}

func NewMetadataHandler(base *BaseHandler, registry *metadata.Registry) *MetadataHandler {
	return &MetadataHandler{BaseHandler: base, registry: registry}
}

// ListEntities handles GET /meta
func (h *MetadataHandler) ListEntities(c *gin.Context) {
	defs := h.registry.List()
	out := make([]EntityTypeInfo, 0, len(defs))
	for _, def := range defs {
		out = append(out, h.describe(def))
	}
	h.OK(c, dto.NewListResponse(out))
}

// GetEntity handles GET /meta/:type
func (h *MetadataHandler) GetEntity(c *gin.Context) {
	def, err := h.registry.Resolve(c.Param("type"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, h.describe(def))
}

func (h *MetadataHandler) describe(def metadata.EntityDef) EntityTypeInfo {
	info := EntityTypeInfo{EntityDef: def}
	if parent, ok := h.registry.FindParentType(def.Key); ok {
		info.ParentType = parent
		info.ParentKey, _ = h.registry.FindParentForeignKey(def.Key)
	}
	if child, _, ok := h.registry.ChildrenOf(def.Key); ok {
		info.ChildType = child.Key
	}
	return info
}
