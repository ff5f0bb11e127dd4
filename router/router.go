// router/router.go

package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dealflowhq/dealflow/core/controller"
	"github.com/dealflowhq/dealflow/core/middleware"
	"github.com/dealflowhq/dealflow/core/service"
)

func SetupRouter(
	controllers *controller.Controllers,
	authService service.IAuthService,
	rateLimitRequests int,
	rateLimitDuration time.Duration,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.RateLimiter(rateLimitRequests, rateLimitDuration))

	api := router.Group("/api/v1")

	// Credential endpoints carry their own proof; no session required.
	controllers.Auth.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(middleware.Auth(authService))
	controllers.Permission.RegisterRoutes(protected)

	return router
}
