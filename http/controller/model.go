package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tnqbao/gau-ml-service/http/controller/dto"
	"github.com/tnqbao/gau-ml-service/orchestrator"
	"github.com/tnqbao/gau-ml-service/utils"
)

func (ctrl *Controller) TrainModel(c *gin.Context) {
	ctx := c.Request.Context()
	p, ok := ctrl.principal(c, "Model")
	if !ok {
		return
	}

	var req dto.TrainModelRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Model] Failed to bind JSON: %v", err)
		utils.JSON400(c, "Invalid request payload")
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Model] Training requested by user %d with %d labels", p.ID, req.NumLabels)

	out, err := ctrl.Orchestrator.Train(ctx, p, orchestrator.TrainRequest{
		DatasetRef:  req.File,
		TextColumn:  req.TextColumn,
		LabelColumn: req.LabelColumn,
		LabelCount:  req.NumLabels,
	})
	if err != nil {
		if out != nil {
			ctrl.respondError(c, "Model", err, gin.H{"model_id": out.ModelID})
			return
		}
		ctrl.respondError(c, "Model", err)
		return
	}

	utils.JSON200(c, dto.SubmitResponseDTO{
		JobID:    out.CorrelationID,
		ModelID:  out.ModelID,
		Response: out.Response,
	})
}

func (ctrl *Controller) ResubmitModel(c *gin.Context) {
	ctx := c.Request.Context()
	p, ok := ctrl.principal(c, "Model")
	if !ok {
		return
	}
	id, ok := ctrl.modelIDParam(c, "Model")
	if !ok {
		return
	}

	out, err := ctrl.Orchestrator.Resubmit(ctx, p, id)
	if err != nil {
		ctrl.respondError(c, "Model", err)
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Model] Model %d resubmitted by user %d", id, p.ID)
	utils.JSON200(c, dto.SubmitResponseDTO{
		JobID:    out.CorrelationID,
		ModelID:  out.ModelID,
		Response: out.Response,
	})
}

func (ctrl *Controller) Predict(c *gin.Context) {
	ctx := c.Request.Context()
	p, ok := ctrl.principal(c, "Predict")
	if !ok {
		return
	}

	var req dto.PredictRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Predict] Failed to bind JSON: %v", err)
		utils.JSON400(c, "Invalid request payload")
		return
	}

	raw, err := ctrl.Orchestrator.Predict(ctx, p, uint(req.ModelID), req.Text)
	if err != nil {
		ctrl.respondError(c, "Predict", err)
		return
	}

	utils.RawJSON(c, http.StatusOK, raw)
}

func (ctrl *Controller) DeleteModel(c *gin.Context) {
	ctx := c.Request.Context()
	p, ok := ctrl.principal(c, "Model")
	if !ok {
		return
	}

	var req dto.DeleteModelRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Model] Failed to bind JSON: %v", err)
		utils.JSON400(c, "Invalid request payload")
		return
	}

	raw, err := ctrl.Orchestrator.Delete(ctx, p, uint(req.ModelID))
	if err != nil {
		ctrl.respondError(c, "Model", err)
		return
	}

	utils.RawJSON(c, http.StatusOK, raw)
}

func (ctrl *Controller) GetModelStatus(c *gin.Context) {
	ctx := c.Request.Context()
	p, ok := ctrl.principal(c, "Status")
	if !ok {
		return
	}
	id, ok := ctrl.modelIDParam(c, "Status")
	if !ok {
		return
	}

	out, err := ctrl.Orchestrator.Status(ctx, p, id)
	if err != nil {
		ctrl.respondError(c, "Status", err)
		return
	}

	utils.RawJSON(c, http.StatusOK, out.Response)
}

func (ctrl *Controller) GetLatestModel(c *gin.Context) {
	ctx := c.Request.Context()
	p, ok := ctrl.principal(c, "Model")
	if !ok {
		return
	}

	model, err := ctrl.Orchestrator.Latest(ctx, p)
	if err != nil {
		ctrl.respondError(c, "Model", err)
		return
	}
	if model == nil {
		utils.JSON200(c, gin.H{"status": "no_model"})
		return
	}

	utils.JSON200(c, dto.LatestModelResponseDTO{ModelID: model.ID, Status: model.Status})
}

func (ctrl *Controller) ListModels(c *gin.Context) {
	ctx := c.Request.Context()
	p, ok := ctrl.principal(c, "Model")
	if !ok {
		return
	}

	models, err := ctrl.Orchestrator.List(ctx, p)
	if err != nil {
		ctrl.respondError(c, "Model", err)
		return
	}

	utils.JSON200(c, gin.H{"models": dto.NewModelSummaries(models)})
}

func (ctrl *Controller) GetModelDetails(c *gin.Context) {
	ctx := c.Request.Context()
	p, ok := ctrl.principal(c, "Model")
	if !ok {
		return
	}
	id, ok := ctrl.modelIDParam(c, "Model")
	if !ok {
		return
	}

	model, err := ctrl.Orchestrator.Details(ctx, p, id)
	if err != nil {
		ctrl.respondError(c, "Model", err)
		return
	}

	utils.JSON200(c, dto.NewModelDetails(model))
}

func (ctrl *Controller) GetModelEvents(c *gin.Context) {
	ctx := c.Request.Context()
	p, ok := ctrl.principal(c, "Model")
	if !ok {
		return
	}
	id, ok := ctrl.modelIDParam(c, "Model")
	if !ok {
		return
	}

	events, err := ctrl.Orchestrator.History(ctx, p, id)
	if err != nil {
		ctrl.respondError(c, "Model", err)
		return
	}

	utils.JSON200(c, gin.H{"model_id": id, "events": events})
}
