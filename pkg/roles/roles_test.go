package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleCan(t *testing.T) {
	tests := []struct {
		name       string
		role       Role
		permission Permission
		expected   bool
	}{
		{"admin can do anything", SystemAdmin, AuthorizeAsset, true},
		{"finance director authorizes", FinanceDirector, AuthorizeAsset, true},
		{"project manager cannot authorize", ProjectManager, AuthorizeAsset, false},
		{"project manager verifies", ProjectManager, VerifyAsset, true},
		{"site engineer initiates transfer", SiteEngineer, InitiateTransfer, true},
		{"site engineer cannot approve transfer", SiteEngineer, ApproveTransfer, false},
		{"viewer has nothing", Viewer, CreateAsset, false},
		{"unknown role has nothing", Role("intern"), CreateAsset, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.role.Can(tt.permission))
		})
	}
}

func TestIsDirector(t *testing.T) {
	assert.True(t, FinanceDirector.IsDirector())
	assert.True(t, AssetDirector.IsDirector())
	assert.False(t, ProjectManager.IsDirector())
	assert.False(t, SystemAdmin.IsDirector())
	assert.True(t, SystemAdmin.HasGlobalProjectAccess())
}

func TestIsValid(t *testing.T) {
	assert.True(t, Warehouseman.IsValid())
	assert.False(t, Role("intern").IsValid())
}
