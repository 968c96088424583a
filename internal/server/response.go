package server

import (
	"github.com/gofiber/fiber/v2"
)

// Error types reported in the error envelope.
const (
	GeneralErrorType            = "GeneralError"
	ValidationErrorType         = "ValidationError"
	NotFoundErrorType           = "NotFoundError"
	ServiceUnavailableErrorType = "ServiceUnavailableError"
)

// Response is the JSON envelope every API endpoint returns.
type Response struct {
	Status    string `json:"status"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}

// SendSuccess writes data inside a success envelope.
func SendSuccess(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(Response{Status: "success", Data: data})
}

// SendErrorWithType writes an error envelope.
func SendErrorWithType(c *fiber.Ctx, status int, message, errorType string) error {
	return c.Status(status).JSON(Response{Status: "error", Message: message, ErrorType: errorType})
}

// apiError is returned by helpers that fail a request. The error handler
// renders it as an error envelope.
type apiError struct {
	status    int
	message   string
	errorType string
}

func newAPIError(status int, message, errorType string) *apiError {
	return &apiError{status: status, message: message, errorType: errorType}
}

func (e *apiError) Error() string {
	return e.message
}
