// util/validation_util.go

package util

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/dealflowhq/dealflow/core/model"
)

type ValidationUtil struct {
	validate *validator.Validate
}

func NewValidationUtil() *ValidationUtil {
	return &ValidationUtil{validate: validator.New()}
}

func (v *ValidationUtil) ValidateGrant(grant model.ACLGrant) error {
	if grant.TenantID == "" {
		return fmt.Errorf("grant tenant ID cannot be empty")
	}
	if grant.ResourceID == "" {
		return fmt.Errorf("grant resource ID cannot be empty")
	}
	if grant.Principal.ID == "" {
		return fmt.Errorf("grant principal ID cannot be empty")
	}
	if grant.Principal.Kind != model.PrincipalUser && grant.Principal.Kind != model.PrincipalRole {
		return fmt.Errorf("grant principal kind must be 'user' or 'role'")
	}
	if len(grant.Permissions) == 0 {
		return fmt.Errorf("grant must carry at least one permission level")
	}
	for _, p := range grant.Permissions {
		if !p.Valid() {
			return fmt.Errorf("unknown permission level: %s", p)
		}
	}
	return nil
}

func (v *ValidationUtil) ValidatePermissionLevel(level model.PermissionLevel) error {
	if !level.Valid() {
		return fmt.Errorf("unknown permission level: %s", level)
	}
	return nil
}

// ValidateStruct runs tag-based validation on request payloads.
func (v *ValidationUtil) ValidateStruct(s interface{}) error {
	return v.validate.Struct(s)
}
