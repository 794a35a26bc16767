package middleware

import (
	"fmt"
	"log"
	"net/http"
	"runtime/debug"

	applogger "SeriesPrep/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover converts handler panics into 500 responses instead of
// killing the connection. With a nil logger the panic goes to the
// process log.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("%v", r)
				}
				if l != nil {
					l.Error("http handler panic",
						applogger.String("path", c.Request().URL.Path),
						applogger.Error(err),
						applogger.String("stack", string(debug.Stack())),
					)
				} else {
					log.Printf("PANIC: %v\n%s", err, debug.Stack())
				}
				_ = c.JSON(http.StatusInternalServerError, map[string]interface{}{
					"status":  http.StatusInternalServerError,
					"message": "Internal Server Error",
				})
			}()
			return next(c)
		}
	}
}
