package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse is the envelope every endpoint answers with. Status
// carries the application-level code; the transport status stays 200
// so clients always receive a parseable body.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListDataResponse is the payload shape for list endpoints.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

// DataResponse writes the envelope with the given application status.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	body := APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	}
	return c.JSON(http.StatusOK, body)
}

// ListResponse writes rows with their total count.
func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return DataResponse(c, http.StatusOK, &ListDataResponse{Rows: rows, Total: total})
}

// SuccessResponse writes data with status 200.
func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// CreatedResponse writes data with status 201.
func CreatedResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusCreated, data)
}

// BadRequestResponse writes validation details with status 400.
func BadRequestResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

// InternalServerErrorResponse writes a generic 500 without leaking the
// cause.
func InternalServerErrorResponse(c echo.Context) error {
	return DataResponse(c, http.StatusInternalServerError, "internal error")
}

// AppErrorResponse writes an AppError with its own status; any other
// error becomes a generic 500.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return InternalServerErrorResponse(c)
	}
	return DataResponse(c, appErr.Status, []*AppError{appErr})
}
