package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"rental-marketplace/internal/logger"
	"rental-marketplace/internal/verification"
)

// ValidationErrorDetail describes one rejected request field
type ValidationErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// respondError maps engine error kinds to HTTP status codes
func respondError(c *gin.Context, err error) {
	var status int
	switch verification.KindOf(err) {
	case verification.KindNotFound:
		status = http.StatusNotFound
	case verification.KindConflict:
		status = http.StatusConflict
	case verification.KindForbidden:
		status = http.StatusForbidden
	case verification.KindValidation:
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusInternalServerError
	}

	body := gin.H{"error": verification.KindOf(err).String(), "message": err.Error()}
	if status == http.StatusInternalServerError {
		logger.Log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		// persistence details stay in the log
		var e *verification.Error
		if errors.As(err, &e) && e.Message != "" {
			body["message"] = e.Message
		} else {
			body["message"] = "internal error"
		}
	}
	c.JSON(status, body)
}

// bindJSON decodes and validates a request body, writing the error response on failure
func bindJSON(c *gin.Context, v *validator.Validate, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "message": err.Error()})
		return false
	}
	if err := v.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   verification.ErrValidation.Error(),
				"details": formatValidationErrors(verrs),
			})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "message": err.Error()})
		return false
	}
	return true
}

func formatValidationErrors(errs validator.ValidationErrors) []ValidationErrorDetail {
	details := make([]ValidationErrorDetail, 0, len(errs))
	for _, err := range errs {
		var message string
		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("Field '%s' is required", err.Field())
		case "min", "gte":
			message = fmt.Sprintf("Field '%s' must be at least %s", err.Field(), err.Param())
		case "max", "lte":
			message = fmt.Sprintf("Field '%s' must not exceed %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("Field '%s' must be one of [%s]", err.Field(), err.Param())
		default:
			message = fmt.Sprintf("Field validation for '%s' failed on the '%s' tag", err.Field(), err.Tag())
		}
		details = append(details, ValidationErrorDetail{
			Field:   err.Field(),
			Message: message,
			Code:    "validation_" + err.Tag(),
		})
	}
	return details
}

// paramID parses a positive numeric path parameter
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id", "message": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return uint(id), true
}

// pageFromQuery reads limit and offset; the store clamps out-of-range values
func pageFromQuery(c *gin.Context) verification.Page {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return verification.Page{Limit: limit, Offset: offset}
}
