package server

import (
	"proledger/docs"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SetupSwagger points the generated spec at the serving host and mounts the
// UI.
func SetupSwagger(r *gin.Engine, host string) {
	if host != "" {
		docs.SwaggerInfo.Host = host
	}
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
