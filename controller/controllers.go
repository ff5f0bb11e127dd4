// controller/controllers.go
package controller

import "github.com/dealflowhq/dealflow/core/service"

type Controllers struct {
	Permission *PermissionController
	Auth       *AuthController
}

func InitializeControllers(services *service.Services) *Controllers {
	return &Controllers{
		Permission: NewPermissionController(services.Permission),
		Auth:       NewAuthController(services.Auth),
	}
}
