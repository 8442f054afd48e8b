package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tnqbao/gau-ml-service/infra"
	"github.com/tnqbao/gau-ml-service/orchestrator"
	"github.com/tnqbao/gau-ml-service/utils"
)

func (ctrl *Controller) principal(c *gin.Context, area string) (orchestrator.Principal, bool) {
	userID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(c.Request.Context(), err, "[%s] user_id not found in context", area)
		utils.JSON401(c, "Unauthorized: user_id not found")
		return orchestrator.Principal{}, false
	}
	return orchestrator.Principal{ID: userID, OwnerKey: utils.GetEmailFromContext(c)}, true
}

func (ctrl *Controller) modelIDParam(c *gin.Context, area string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		ctrl.Infra.Logger.WarningWithContextf(c.Request.Context(), "[%s] Invalid model_id: %q", area, c.Param("id"))
		utils.JSON400(c, "Invalid model_id format")
		return 0, false
	}
	return uint(id), true
}

// respondError maps orchestrator and compute errors onto HTTP statuses. Fields
// in extra are added to the error body.
func (ctrl *Controller) respondError(c *gin.Context, area string, err error, extra ...gin.H) {
	ctx := c.Request.Context()

	var rejected *orchestrator.RemoteRejectedError
	var transport *infra.RemoteTransportError
	var inconsistent *orchestrator.InconsistencyError

	status := http.StatusInternalServerError
	body := gin.H{"error": "Internal server error"}

	switch {
	case errors.Is(err, orchestrator.ErrModelNotFound):
		status, body["error"] = http.StatusNotFound, "Model not found"
	case errors.Is(err, orchestrator.ErrForbidden):
		status, body["error"] = http.StatusForbidden, "Access denied"
	case errors.Is(err, orchestrator.ErrNotSubmitted), errors.Is(err, orchestrator.ErrInvalidTransition):
		status, body["error"] = http.StatusConflict, err.Error()
	case errors.As(err, &inconsistent):
		body["error"] = "Failed to delete the model from the database"
		body["response"] = inconsistent.Response
	case errors.As(err, &rejected):
		status, body["error"] = http.StatusBadGateway, "Compute provider did not accept the job"
		body["response"] = rejected.Response
	case errors.As(err, &transport):
		status, body["error"] = http.StatusBadGateway, "Compute provider request failed"
	}

	if status < http.StatusInternalServerError {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[%s] %v", area, err)
	} else {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[%s] %v", area, err)
	}

	for _, fields := range extra {
		for k, v := range fields {
			body[k] = v
		}
	}
	c.JSON(status, body)
}
