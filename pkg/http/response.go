package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler registers one group of routes on the server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// APIResponse is the envelope of every JSON answer. Status repeats the
// HTTP status code.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError is one failed request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"reference[0].price"`
	Message string                 `json:"message,omitempty" example:"price is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// BadRequestResponse answers 400 with the validation errors in data.
func BadRequestResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

func TooManyRequestsResponse(c echo.Context) error {
	return DataResponse(c, http.StatusTooManyRequests, "Too many requests, retry later")
}

// AppErrorResponse answers with the status of an *AppError. A request that
// ran out of time answers 504; anything else is a 500 without details.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return DataResponse(c, appErr.Status, []*AppError{appErr})
	case errors.Is(err, context.DeadlineExceeded):
		return DataResponse(c, http.StatusGatewayTimeout, "Upstream timed out")
	default:
		return DataResponse(c, http.StatusInternalServerError, "Something went wrong")
	}
}
