package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"kkn/internal/apperror"
)

func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindParse:
		return http.StatusBadRequest
	case apperror.KindValidation:
		return http.StatusUnprocessableEntity
	case apperror.KindPermission:
		return http.StatusForbidden
	case apperror.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps typed failures to status codes. Untyped errors are logged
// and reported as internal errors without their details.
func (h *Handler) writeError(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.AbortWithStatusJSON(status, gin.H{"error": "internal", "message": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": string(kind), "message": apperror.Message(err)})
}

// bindError reports request binding failures. Tag violations are validation
// errors naming the offending fields; anything else is a malformed body.
func (h *Handler) bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field())+" ("+fe.Tag()+")")
		}
		h.writeError(c, apperror.Validation("invalid fields: %s", strings.Join(fields, ", ")))
		return
	}
	h.writeError(c, apperror.Wrap(apperror.KindParse, err, "malformed request body"))
}
