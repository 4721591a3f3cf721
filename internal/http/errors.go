package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"secondchance/internal/service"
)

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation, service.KindDuplicate:
		return http.StatusBadRequest
	case service.KindAuthentication:
		return http.StatusUnauthorized
	case service.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// writeError translates a service failure into a JSON response. Internal
// causes are logged and never sent to the client.
func (h *Handler) writeError(c *gin.Context, err error) {
	typed, ok := service.AsError(err)
	if !ok {
		typed = service.Internal(err)
	}

	status := statusFor(typed.Kind)
	if status == http.StatusInternalServerError {
		loggerFrom(c, h.log).WithError(err).Error("request failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}

	body := gin.H{"error": typed.Message}
	if len(typed.Details) > 0 {
		body["errors"] = typed.Details
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
