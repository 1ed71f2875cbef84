package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/examcourse-backend/internal/modules/coursegen"
	"github.com/yungbote/examcourse-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Phase   string `json:"phase,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondErr picks status and code from err: *apierr.Error and *coursegen.RunError carry
// their own; anything else is a 500.
func RespondErr(c *gin.Context, err error) {
	var (
		ae     *apierr.Error
		runErr *coursegen.RunError
	)
	switch {
	case errors.As(err, &runErr):
		status, code := runErr.Status()
		c.JSON(status, ErrorEnvelope{Error: APIError{
			Message: runErr.Error(),
			Code:    code,
			Phase:   runErr.Phase,
			RunID:   runErr.RunID,
		}})
	case errors.As(err, &ae):
		status := ae.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		RespondError(c, status, ae.Code, ae)
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
