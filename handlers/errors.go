package handlers

import (
	"errors"
	"net/http"

	"roadalert/lifecycle"
	"roadalert/models"

	"github.com/gin-gonic/gin"
)

// failWith maps the lifecycle error taxonomy onto HTTP statuses and
// writes the uniform failure envelope.
func failWith(c *gin.Context, err error) {
	var verr *lifecycle.ValidationError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr), errors.Is(err, lifecycle.ErrInvalidKind):
		status = http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, lifecycle.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, lifecycle.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, lifecycle.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, models.ErrorResponse{Message: err.Error()})
}
