package handlers

import (
	"github.com/gin-gonic/gin"

	"catreg/internal/infrastructure/http/v1/dto"
)

// ListChildren handles GET /masterdata/:type/:id/children
func (h *MasterDataHandler) ListChildren(c *gin.Context) {
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.ActiveOnlyRequest
	if !h.BindQuery(c, &req) {
		return
	}

	list, err := h.service.ListChildren(c.Request.Context(), entityType(c), id, req.ActiveOnly)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, list)
}

// CreateChild handles POST /masterdata/:type/:id/children
func (h *MasterDataHandler) CreateChild(c *gin.Context) {
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	input, ok := h.BindInput(c)
	if !ok {
		return
	}

	childID, ref, err := h.service.CreateChild(c.Request.Context(), entityType(c), id, input)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.MutationResponse{
		Success:  true,
		Message:  "Record created successfully",
		ID:       childID,
		Redirect: &ref,
	})
}

// UpdateChild handles PUT /masterdata/:type/:id/children/:childId
func (h *MasterDataHandler) UpdateChild(c *gin.Context) {
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	childID, ok := h.ParamID(c, "childId")
	if !ok {
		return
	}
	input, ok := h.BindInput(c)
	if !ok {
		return
	}

	ref, err := h.service.UpdateChild(c.Request.Context(), entityType(c), id, childID, input)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.MutationResponse{
		Success:  true,
		Message:  "Record updated successfully",
		ID:       childID,
		Redirect: &ref,
	})
}

// DeleteChild handles DELETE /masterdata/:type/:id/children/:childId[?hard=true]
func (h *MasterDataHandler) DeleteChild(c *gin.Context) {
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	childID, ok := h.ParamID(c, "childId")
	if !ok {
		return
	}

	ref, err := h.service.DeleteChild(c.Request.Context(), entityType(c), id, childID, c.Query("hard") == "true")
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.MutationResponse{
		Success:  true,
		Message:  "Record deleted successfully",
		ID:       childID,
		Redirect: &ref,
	})
}

// ToggleChild handles POST /masterdata/:type/:id/children/:childId/toggle
func (h *MasterDataHandler) ToggleChild(c *gin.Context) {
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	childID, ok := h.ParamID(c, "childId")
	if !ok {
		return
	}

	active, ref, err := h.service.ToggleChild(c.Request.Context(), entityType(c), id, childID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ToggleResponse{
		Success:  true,
		Message:  "Status updated successfully",
		Active:   active,
		Redirect: &ref,
	})
}

// ReorderChildren handles POST /masterdata/:type/:id/children/reorder
func (h *MasterDataHandler) ReorderChildren(c *gin.Context) {
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.ReorderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if _, err := h.service.ReorderChildren(c.Request.Context(), entityType(c), id, req.Order); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "Order updated successfully")
}
