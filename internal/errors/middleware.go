// Package errors provides standardized error handling for the relay API.
//
// This file implements Gin middleware that converts AppErrors raised by
// handlers into consistent JSON responses and recovers from panics so a
// single bad request can never crash a connection (§4.6).
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/consortium/relay/internal/logger"
)

// ErrorHandler converts the last error attached to the Gin context into
// a JSON response, logging 5xx at error level and 4xx at debug level
// per §7's propagation policy.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last()
		log := logger.HTTP()

		if appErr, ok := err.Err.(*AppError); ok {
			if appErr.StatusCode >= http.StatusInternalServerError {
				log.Error().Str("code", appErr.Code).Str("details", appErr.Details).Msg(appErr.Message)
			} else {
				log.Debug().Str("code", appErr.Code).Msg(appErr.Message)
			}
			c.JSON(appErr.StatusCode, appErr.ToResponse())
			return
		}

		log.Error().Err(err.Err).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   ErrCodeInternalServer,
			Message: "an internal error occurred",
			Code:    ErrCodeInternalServer,
		})
	}
}

// Recovery recovers from a panic in any handler so the connection
// serving it degrades to a 500 instead of taking the process down
// (§4.6: "the server never crashes a connection on a handler error").
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.HTTP().Error().Interface("panic", r).Msg("recovered from panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Error:   ErrCodeInternalServer,
					Message: "an internal error occurred",
					Code:    ErrCodeInternalServer,
				})
			}
		}()
		c.Next()
	}
}

// HandleError records err on the context and writes its JSON response.
func HandleError(c *gin.Context, err error) {
	if appErr, ok := err.(*AppError); ok {
		c.Error(appErr)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}
	internalErr := InternalServer(err.Error())
	c.Error(internalErr)
	c.JSON(internalErr.StatusCode, internalErr.ToResponse())
}

// AbortWithError aborts the request immediately with err's response.
func AbortWithError(c *gin.Context, err *AppError) {
	c.Error(err)
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}
