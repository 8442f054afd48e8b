package middlewares

import (
	"github.com/gin-gonic/gin"

	"github.com/tnqbao/gau-ml-service/http/controller"
	"github.com/tnqbao/gau-ml-service/infra"
)

type Middlewares struct {
	CORSMiddleware gin.HandlerFunc
	AuthMiddleware gin.HandlerFunc
}

func NewMiddlewares(ctrl *controller.Controller) (*Middlewares, error) {
	cors := CORSMiddleware(ctrl.Config.EnvConfig)

	var authService *infra.AuthorizationService
	if ctrl.Infra != nil {
		authService = ctrl.Infra.AuthorizationService
	}
	auth := AuthMiddleware(authService, ctrl.Config.EnvConfig)

	return &Middlewares{
		CORSMiddleware: cors,
		AuthMiddleware: auth,
	}, nil
}
