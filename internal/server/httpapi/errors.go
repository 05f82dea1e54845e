package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/gin-gonic/gin"
)

const msgSomethingWrong = "Something went wrong!"

// ErrorHandler renders the last error a handler attached with c.Error.
// Operational errors (*common.AppError) keep their status and message;
// anything else is logged and answered with a generic 500. Outside
// production the underlying error is included under "error".
func ErrorHandler(log logging.Logger, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		ctx := c.Request.Context()

		status := http.StatusInternalServerError
		message := msgSomethingWrong

		var ae *common.AppError
		if errors.As(err, &ae) {
			status = ae.Status
			message = ae.Message
			if status >= http.StatusInternalServerError {
				log.Error(ctx, "request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
			}
		} else {
			log.Error(ctx, "unhandled error", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		}

		body := gin.H{"status": common.StatusText(status), "message": message}
		if !production {
			body["error"] = err.Error()
		}
		c.AbortWithStatusJSON(status, body)
	}
}

// fail attaches err for ErrorHandler and stops the chain.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
