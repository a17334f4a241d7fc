// README: HTTP helpers for JSON errors and sentinel-to-status mapping.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"relay/internal/modules/assignment"
	"relay/internal/modules/availability"
	"relay/internal/modules/driver"
	"relay/internal/modules/matching"
)

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// writeDispatchError maps module sentinels onto HTTP statuses. Unknown
// errors are masked as 500 so internals never leak to clients.
func writeDispatchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, matching.ErrMissingPickup),
		errors.Is(err, matching.ErrUnknownKind),
		errors.Is(err, assignment.ErrInvalidResponse),
		errors.Is(err, availability.ErrInvalidStatus):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, assignment.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, matching.ErrRequestNotFound),
		errors.Is(err, assignment.ErrNotFound),
		errors.Is(err, availability.ErrDriverNotFound),
		errors.Is(err, driver.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, assignment.ErrAlreadyResolved),
		errors.Is(err, assignment.ErrDriverBusy):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
