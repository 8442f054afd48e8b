package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/tnqbao/gau-ml-service/http/controller"
	middlewares "github.com/tnqbao/gau-ml-service/http/middleware"
)

func SetupRouter(ctrl *controller.Controller) *gin.Engine {
	r := gin.Default()
	middles, err := middlewares.NewMiddlewares(ctrl)
	if err != nil {
		panic(err)
	}
	r.Use(middles.CORSMiddleware)

	apiRoutes := r.Group("/api/v1/ml")
	{
		apiRoutes.GET("/health", ctrl.Health)

		authed := apiRoutes.Group("/")
		authed.Use(middles.AuthMiddleware)

		modelRoutes := authed.Group("/models")
		{
			modelRoutes.POST("/train", ctrl.TrainModel)
			modelRoutes.POST("/predict", ctrl.Predict)
			modelRoutes.POST("/delete", ctrl.DeleteModel)
			modelRoutes.GET("/status/:id", ctrl.GetModelStatus)
			modelRoutes.GET("/latest-model", ctrl.GetLatestModel)
			modelRoutes.GET("", ctrl.ListModels)
			modelRoutes.GET("/:id", ctrl.GetModelDetails)
			modelRoutes.GET("/:id/events", ctrl.GetModelEvents)
			modelRoutes.POST("/:id/resubmit", ctrl.ResubmitModel)
		}

		authed.POST("/datasets", ctrl.UploadDataset)
	}
	return r
}
