package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"rental-marketplace/internal/auth"
	"rental-marketplace/internal/verification"
)

// VerificationHandler serves owner and admin verification actions
type VerificationHandler struct {
	processor *verification.Processor
	validate  *validator.Validate
}

// NewVerificationHandler creates a new verification handler
func NewVerificationHandler(processor *verification.Processor) *VerificationHandler {
	return &VerificationHandler{
		processor: processor,
		validate:  validator.New(),
	}
}

// RequestVerificationRequest is the optional body of a manual request
type RequestVerificationRequest struct {
	ExpirationDays int `json:"expiration_days" validate:"gte=0"`
}

// RespondRequest is an owner's answer
type RespondRequest struct {
	Status   string                 `json:"status" validate:"required"`
	Notes    string                 `json:"notes" validate:"max=2000"`
	Evidence map[string]interface{} `json:"evidence"`
}

// AdminUpdateRequest is an admin decision on a verification or property
type AdminUpdateRequest struct {
	Status string `json:"status" validate:"required,oneof=verified rejected pending_changes"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// StatusUpdateRequest changes a property's availability
type StatusUpdateRequest struct {
	Status string `json:"status" validate:"required"`
}

// caller is always present behind auth.Middleware
func caller(c *gin.Context) verification.Caller {
	cl, _ := auth.CallerFrom(c)
	return cl
}

// RequestVerification handles POST /api/verifications/request/:property_id
func (h *VerificationHandler) RequestVerification(c *gin.Context) {
	propertyID, ok := paramID(c, "property_id")
	if !ok {
		return
	}

	var req RequestVerificationRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, h.validate, &req) {
		return
	}

	view, err := h.processor.RequestVerification(c.Request.Context(), caller(c), propertyID,
		verification.RequestOptions{ExpirationDays: req.ExpirationDays})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// ListPending handles GET /api/verifications/pending
func (h *VerificationHandler) ListPending(c *gin.Context) {
	views, err := h.processor.ListPendingFor(c.Request.Context(), caller(c), pageFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"verifications": views,
		"count":         len(views),
	})
}

// Get handles GET /api/verifications/:id
func (h *VerificationHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	view, err := h.processor.Get(c.Request.Context(), caller(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ListForProperty handles GET /api/verifications/property/:property_id
func (h *VerificationHandler) ListForProperty(c *gin.Context) {
	propertyID, ok := paramID(c, "property_id")
	if !ok {
		return
	}
	views, err := h.processor.ListForProperty(c.Request.Context(), caller(c), propertyID, pageFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"property_id":   propertyID,
		"verifications": views,
		"count":         len(views),
	})
}

// Respond handles POST /api/verifications/:id/respond
func (h *VerificationHandler) Respond(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req RespondRequest
	if !bindJSON(c, h.validate, &req) {
		return
	}

	view, err := h.processor.RespondAsOwner(c.Request.Context(), caller(c), id, verification.OwnerResponse{
		Status:   req.Status,
		Notes:    req.Notes,
		Evidence: req.Evidence,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// AdminUpdate handles PUT /api/verifications/:id
func (h *VerificationHandler) AdminUpdate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req AdminUpdateRequest
	if !bindJSON(c, h.validate, &req) {
		return
	}

	view, err := h.processor.RespondAsAdmin(c.Request.Context(), caller(c), id, verification.AdminDecision{
		Status: req.Status,
		Notes:  req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// History handles GET /api/verifications/history/:property_id
func (h *VerificationHandler) History(c *gin.Context) {
	propertyID, ok := paramID(c, "property_id")
	if !ok {
		return
	}
	entries, err := h.processor.History(c.Request.Context(), propertyID, pageFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"property_id": propertyID,
		"history":     entries,
		"count":       len(entries),
	})
}

// UpdatePropertyStatus handles PUT /api/properties/:property_id/status
func (h *VerificationHandler) UpdatePropertyStatus(c *gin.Context) {
	propertyID, ok := paramID(c, "property_id")
	if !ok {
		return
	}
	var req StatusUpdateRequest
	if !bindJSON(c, h.validate, &req) {
		return
	}

	summary, err := h.processor.UpdateAvailability(c.Request.Context(), caller(c), propertyID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// VerifyProperty handles PUT /api/admin/properties/:property_id/verify
func (h *VerificationHandler) VerifyProperty(c *gin.Context) {
	propertyID, ok := paramID(c, "property_id")
	if !ok {
		return
	}
	var req AdminUpdateRequest
	if !bindJSON(c, h.validate, &req) {
		return
	}

	summary, err := h.processor.VerifyProperty(c.Request.Context(), caller(c), propertyID, verification.AdminDecision{
		Status: req.Status,
		Notes:  req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
