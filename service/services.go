// service/services.go
package service

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"

	"github.com/dealflowhq/dealflow/core/audit"
	"github.com/dealflowhq/dealflow/core/cache"
	"github.com/dealflowhq/dealflow/core/dao"
	"github.com/dealflowhq/dealflow/core/token"
	"github.com/dealflowhq/dealflow/core/util"
)

type Services struct {
	Permission IPermissionService
	Auth       IAuthService
}

func InitializeServices(
	driver neo4j.Driver,
	redisClient *redis.Client,
	coordinator *cache.Coordinator,
	auditService audit.Service,
	validationUtil *util.ValidationUtil,
	eventBus *util.EventBus,
) (*Services, error) {
	aclDAO := dao.NewACLDAO(driver)
	tokenStore := token.NewStore(redisClient)

	services := &Services{
		Permission: NewPermissionService(aclDAO, coordinator, validationUtil, auditService, eventBus),
		Auth:       NewAuthService(tokenStore, coordinator, auditService, eventBus),
	}

	return services, nil
}
