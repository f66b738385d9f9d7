package server

import (
	"net/http"

	"github.com/dividis/backend/internal/apperrors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func writeError(c *gin.Context, status int, reason, code string) {
	c.JSON(status, gin.H{"error": reason, "code": code})
}

// writeServiceError maps a classified service error onto its HTTP status.
func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status := statusForKind(kind)
	reason := apperrors.ReasonOf(err)
	code := apperrors.CodeOf(err)
	if reason == "" {
		reason = string(kind)
	}
	if code == "" {
		code = "internal"
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("code", code),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": reason, "code": code})
}

func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindPersistence:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
