package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	applogger "ParityBot/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover answers a panicking handler with the 500 envelope and logs the
// stack. A response already committed is left as is.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				perr, ok := r.(error)
				if !ok {
					perr = fmt.Errorf("panic: %v", r)
				}
				req := c.Request()
				l.Error("http handler panic",
					applogger.Error(perr),
					applogger.String("method", req.Method),
					applogger.String("route", c.Path()),
					applogger.String("remote", c.RealIP()),
					applogger.String("stack", string(debug.Stack())),
				)
				if c.Response().Committed {
					return
				}
				err = c.JSON(http.StatusInternalServerError, map[string]interface{}{
					"status":  http.StatusInternalServerError,
					"message": http.StatusText(http.StatusInternalServerError),
				})
			}()
			return next(c)
		}
	}
}
