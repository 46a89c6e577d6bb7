package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/victornm/keiko/internal/errors"
)

// abort renders err as the JSON body of an *errors.Error. Causes of internal errors are
// logged, never sent.
func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}

func badRequest(c *gin.Context, err error) {
	abort(c, errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("invalid request: %v", err),
		errors.WithCause(err),
	))
}
