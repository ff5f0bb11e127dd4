// model/acl_test.go
package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPermissionSetSatisfies(t *testing.T) {
	t.Run("AdminSatisfiesEverything", func(t *testing.T) {
		set := PermissionSet{PermissionAdmin}
		assert.True(t, set.Satisfies(PermissionRead))
		assert.True(t, set.Satisfies(PermissionWrite))
		assert.True(t, set.Satisfies(PermissionDelete))
		assert.True(t, set.Satisfies(PermissionAdmin))
	})

	t.Run("LevelsAreNotImplied", func(t *testing.T) {
		set := PermissionSet{PermissionWrite}
		assert.True(t, set.Satisfies(PermissionWrite))
		assert.False(t, set.Satisfies(PermissionRead), "WRITE does not imply READ")
		assert.False(t, set.Satisfies(PermissionDelete))
	})

	t.Run("DeleteDoesNotImplyWrite", func(t *testing.T) {
		set := PermissionSet{PermissionDelete}
		assert.False(t, set.Satisfies(PermissionWrite))
	})

	t.Run("EmptySetSatisfiesNothing", func(t *testing.T) {
		var set PermissionSet
		assert.False(t, set.Satisfies(PermissionRead))
	})
}

func TestPermissionSetHighest(t *testing.T) {
	assert.Equal(t, PermissionDelete, PermissionSet{PermissionRead, PermissionDelete, PermissionWrite}.Highest())
	assert.Equal(t, PermissionAdmin, PermissionSet{PermissionAdmin, PermissionRead}.Highest())
	assert.Equal(t, PermissionLevel(""), PermissionSet{}.Highest())
}

func TestPermissionSetUnion(t *testing.T) {
	a := PermissionSet{PermissionRead, PermissionWrite}
	b := PermissionSet{PermissionWrite, PermissionDelete}
	merged := a.Union(b)

	assert.Len(t, merged, 3)
	assert.True(t, merged.Contains(PermissionRead))
	assert.True(t, merged.Contains(PermissionWrite))
	assert.True(t, merged.Contains(PermissionDelete))
}

func TestPermissionLevelValid(t *testing.T) {
	assert.True(t, PermissionRead.Valid())
	assert.True(t, PermissionAdmin.Valid())
	assert.False(t, PermissionLevel("OWNER").Valid())
	assert.False(t, PermissionLevel("").Valid())
}

func TestACLGrantExpired(t *testing.T) {
	now := time.Now().UTC()

	assert.False(t, ACLGrant{}.Expired(now), "no expiry never expires")

	past := now.Add(-time.Minute)
	assert.True(t, ACLGrant{ExpiresAt: &past}.Expired(now))

	future := now.Add(time.Minute)
	assert.False(t, ACLGrant{ExpiresAt: &future}.Expired(now))
}
