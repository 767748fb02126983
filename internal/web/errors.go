package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse representa la estructura estándar de errores
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp string      `json:"timestamp"`
	Path      string      `json:"path"`
	Method    string      `json:"method"`
	Message   string      `json:"message,omitempty"`
	Data      string      `json:"data,omitempty"`
}

// ErrorDetail contiene los detalles del error
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Hint    string      `json:"hint,omitempty"`
}

// SuccessResponse representa la estructura estándar de respuestas exitosas
type SuccessResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Message   string      `json:"message,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// Códigos de error estandarizados
const (
	// Client Errors (4xx)
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeConflict   = "CONFLICT"

	// Server Errors (5xx)
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
	ErrCodeServiceUnavail = "SERVICE_UNAVAILABLE"

	// Business Logic Errors
	ErrCodeChannelNotFound = "CHANNEL_NOT_FOUND"
	ErrCodeItemNotFound    = "ITEM_NOT_FOUND"
	ErrCodeLaneNotFound    = "LANE_NOT_FOUND"
	ErrCodeDatabaseError   = "DATABASE_ERROR"
	ErrCodeValidationError = "VALIDATION_ERROR"
)

// RespondWithError envía una respuesta de error estandarizada
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}, hint string) {
	c.JSON(statusCode, ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Message: message,
			Code:    errorCode,
			Details: details,
			Hint:    hint,
		},
		Data:      errorCode,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      c.Request.URL.Path,
		Method:    c.Request.Method,
	})
}

// RespondWithSuccess envía una respuesta exitosa estandarizada
func RespondWithSuccess(c *gin.Context, statusCode int, data interface{}, message string) {
	c.JSON(statusCode, SuccessResponse{
		Success:   true,
		Data:      data,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Funciones helper para errores comunes

// BadRequest - Error 400
func BadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, ErrCodeBadRequest, message, details,
		"Verifica que los parámetros de la solicitud sean correctos")
}

// NotFound - Error 404
func NotFound(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusNotFound, ErrCodeNotFound, message, details,
		"Verifica que el recurso existe o que el ID sea correcto")
}

// InternalServerError - Error 500
func InternalServerError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, ErrCodeInternalServer, message, details,
		"Contacta al equipo de desarrollo si el error persiste")
}
