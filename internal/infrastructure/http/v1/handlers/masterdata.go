package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"catreg/internal/domain/masterdata"
	"catreg/internal/infrastructure/http/v1/dto"
	"catreg/internal/infrastructure/storage/postgres"
)

// HistoryReader reads the audit trail of one record.
type HistoryReader interface {
	GetEntityHistory(ctx context.Context, entityType string, entityID int64, limit int) ([]postgres.AuditEntry, error)
}

// MasterDataHandler serves every lookup entity type through the :type path
// parameter.
type MasterDataHandler struct {
	*BaseHandler
	service *masterdata.Service
	history HistoryReader
}

// NewMasterDataHandler creates the handler. history may be nil when auditing is off.
func NewMasterDataHandler(base *BaseHandler, service *masterdata.Service, history HistoryReader) *MasterDataHandler {
	return &MasterDataHandler{BaseHandler: base, service: service, history: history}
}

func entityType(c *gin.Context) string {
	return c.Param("type")
}

// List handles GET /masterdata/:type
func (h *MasterDataHandler) List(c *gin.Context) {
	var req dto.PageRequest
	if !h.BindQuery(c, &req) {
		return
	}

	page, err := h.service.Paginate(c.Request.Context(), entityType(c), req.Page, req.PerPage, req.Search)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewPageResponse(page, req.Search))
}

// All handles GET /masterdata/:type/all
func (h *MasterDataHandler) All(c *gin.Context) {
	var req dto.ActiveOnlyRequest
	if !h.BindQuery(c, &req) {
		return
	}

	recs, err := h.service.List(c.Request.Context(), entityType(c), req.ActiveOnly)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(recs))
}

// Options handles GET /masterdata/:type/options
func (h *MasterDataHandler) Options(c *gin.Context) {
	var req dto.ActiveOnlyRequest
	if !h.BindQuery(c, &req) {
		return
	}

	opts, err := h.service.DropdownOptions(c.Request.Context(), entityType(c), req.ActiveOnly)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(opts))
}

// Form handles GET /masterdata/:type/form
func (h *MasterDataHandler) Form(c *gin.Context) {
	form, err := h.form(c.Request.Context(), entityType(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, form)
}

func (h *MasterDataHandler) form(ctx context.Context, key string) (dto.FormResponse, error) {
	def, err := h.service.Resolve(key)
	if err != nil {
		return dto.FormResponse{}, err
	}
	opts, err := h.service.FormOptions(ctx, key)
	if err != nil {
		return dto.FormResponse{}, err
	}
	return dto.FormResponse{Definition: def, Options: opts}, nil
}

// Get handles GET /masterdata/:type/:id
func (h *MasterDataHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	rec, err := h.service.Get(ctx, entityType(c), id)
	if err != nil {
		h.Error(c, err)
		return
	}
	form, err := h.form(ctx, entityType(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	form.Record = rec
	if ref, ok, err := h.service.ParentOf(ctx, entityType(c), id); err == nil && ok {
		form.Parent = &ref
	}
	h.OK(c, form)
}

// Create handles POST /masterdata/:type
func (h *MasterDataHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	input, ok := h.BindInput(c)
	if !ok {
		return
	}

	id, err := h.service.Create(ctx, entityType(c), input)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.MutationResponse{
		Success:  true,
		Message:  "Record created successfully",
		ID:       id,
		Redirect: h.parentOf(ctx, entityType(c), id),
	})
}

// Update handles PUT /masterdata/:type/:id
func (h *MasterDataHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	input, ok := h.BindInput(c)
	if !ok {
		return
	}

	if err := h.service.Update(ctx, entityType(c), id, input); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.MutationResponse{
		Success:  true,
		Message:  "Record updated successfully",
		ID:       id,
		Redirect: h.parentOf(ctx, entityType(c), id),
	})
}

// Delete handles DELETE /masterdata/:type/:id
func (h *MasterDataHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	// Resolved first: the record is gone from live reads afterwards.
	redirect := h.parentOf(ctx, entityType(c), id)
	if err := h.service.Delete(ctx, entityType(c), id); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.MutationResponse{
		Success:  true,
		Message:  "Record deleted successfully",
		ID:       id,
		Redirect: redirect,
	})
}

// Restore handles POST /masterdata/:type/:id/restore
func (h *MasterDataHandler) Restore(c *gin.Context) {
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Restore(c.Request.Context(), entityType(c), id); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "Record restored successfully")
}

// Toggle handles POST /masterdata/:type/:id/toggle
func (h *MasterDataHandler) Toggle(c *gin.Context) {
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	active, err := h.service.ToggleActive(c.Request.Context(), entityType(c), id)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ToggleResponse{Success: true, Message: "Status updated successfully", Active: active})
}

// Reorder handles POST /masterdata/:type/reorder
func (h *MasterDataHandler) Reorder(c *gin.Context) {
	var req dto.ReorderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if err := h.service.Reorder(c.Request.Context(), entityType(c), req.Order); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "Order updated successfully")
}

// QuickAdd handles POST /masterdata/:type/quick-add
func (h *MasterDataHandler) QuickAdd(c *gin.Context) {
	var req dto.QuickAddRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.QuickAdd(c.Request.Context(), entityType(c), req.Name, req.ParentID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.QuickAddResponse{Success: true, ID: res.ID, Label: res.Label})
}

// Export handles GET /masterdata/:type/export
func (h *MasterDataHandler) Export(c *gin.Context) {
	var req dto.ExportRequest
	if !h.BindQuery(c, &req) {
		return
	}

	key := entityType(c)
	w := &attachmentWriter{
		c:        c,
		filename: fmt.Sprintf("%s_%s.csv", key, time.Now().Format("20060102")),
	}
	if err := h.service.Export(c.Request.Context(), key, SplitList(req.Columns), w); err != nil {
		h.Error(c, err)
		return
	}
	w.finish()
}

// History handles GET /masterdata/:type/:id/history
func (h *MasterDataHandler) History(c *gin.Context) {
	def, err := h.service.Resolve(entityType(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	if h.history == nil {
		h.OK(c, dto.NewListResponse[postgres.AuditEntry](nil))
		return
	}

	entries, err := h.history.GetEntityHistory(c.Request.Context(), def.Key, id, h.ParseIntQuery(c, "limit", 50))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(entries))
}

// parentOf is best-effort: a failed lookup only drops the redirect hint.
func (h *MasterDataHandler) parentOf(ctx context.Context, key string, id int64) *masterdata.ParentRef {
	ref, ok, err := h.service.ParentOf(ctx, key, id)
	if err != nil || !ok {
		return nil
	}
	return &ref
}

// attachmentWriter sends CSV headers on the first write so that an error
// raised before any output can still be rendered as JSON.
type attachmentWriter struct {
	c        *gin.Context
	filename string
	started  bool
}

func (w *attachmentWriter) start() {
	if w.started {
		return
	}
	w.started = true
	w.c.Header("Content-Type", "text/csv; charset=utf-8")
	w.c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, w.filename))
	w.c.Status(http.StatusOK)
}

func (w *attachmentWriter) Write(p []byte) (int, error) {
	w.start()
	return w.c.Writer.Write(p)
}

// finish handles an export that wrote nothing at all.
func (w *attachmentWriter) finish() {
	w.start()
	w.c.Writer.WriteHeaderNow()
}
