package controller

import (
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tnqbao/gau-ml-service/utils"
)

const maxDatasetSize = 512 << 20

var allowedDatasetExtensions = map[string]bool{
	".csv":     true,
	".tsv":     true,
	".json":    true,
	".jsonl":   true,
	".parquet": true,
}

// UploadDataset stores a training file and returns the reference to pass as
// "file" when requesting training.
func (ctrl *Controller) UploadDataset(c *gin.Context) {
	ctx := c.Request.Context()
	p, ok := ctrl.principal(c, "Dataset")
	if !ok {
		return
	}

	if ctrl.Datasets == nil {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Dataset] Upload rejected, dataset storage is not configured")
		utils.JSON503(c, "Dataset storage is not available")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Dataset] Missing file in form: %v", err)
		utils.JSON400(c, "file is required")
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedDatasetExtensions[ext] {
		utils.JSON400(c, "Unsupported dataset format: "+ext)
		return
	}
	if fileHeader.Size <= 0 || fileHeader.Size > maxDatasetSize {
		utils.JSON400(c, "Dataset must be between 1 byte and 512MB")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Dataset] Failed to open uploaded file: %v", err)
		utils.JSON500(c, "Failed to read uploaded file")
		return
	}
	defer file.Close()

	object, err := ctrl.Datasets.UploadDataset(ctx, p.ID, fileHeader.Filename, file, fileHeader.Size, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Dataset] Failed to store dataset for user %d: %v", p.ID, err)
		utils.JSON500(c, "Failed to store dataset")
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Dataset] Stored %s for user %d (%d bytes)", object.ObjectKey, p.ID, object.Size)
	utils.JSON201(c, object)
}
