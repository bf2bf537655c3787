package ginserver

import (
	"errors"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"github.com/DanielNoblero/consultorios-app/internal/app/apperr"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindInvalidArgument:    http.StatusBadRequest,
	apperr.KindUnauthenticated:    http.StatusUnauthorized,
	apperr.KindPermissionDenied:   http.StatusForbidden,
	apperr.KindNotFound:           http.StatusNotFound,
	apperr.KindFailedPrecondition: http.StatusConflict,
	apperr.KindDeadlineExceeded:   http.StatusGatewayTimeout,
	apperr.KindInternal:           http.StatusInternalServerError,
}

func statusFor(kind apperr.Kind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error", "code"}. Internal failures never leak
// their cause.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	msg := "internal error"
	if kind != apperr.KindInternal {
		msg = err.Error()
		var appErr *apperr.Error
		if errors.As(err, &appErr) && appErr.Message != "" {
			msg = appErr.Message
		}
	}
	c.AbortWithStatusJSON(statusFor(kind), gin.H{"error": msg, "code": string(kind)})
}

func badRequest(c *gin.Context, msg string) {
	writeError(c, apperr.InvalidArgument(msg))
}
