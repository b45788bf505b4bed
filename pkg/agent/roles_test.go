package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecForKnownRoles(t *testing.T) {
	for _, role := range SpecialistTypes() {
		spec, err := SpecFor(role)
		require.NoError(t, err, role)
		assert.Equal(t, role, spec.Type)
		assert.NotEmpty(t, spec.SystemPrompt, role)
		assert.Greater(t, spec.LoopLimit, 0, role)
	}
}

func TestSpecForUnknown(t *testing.T) {
	_, err := SpecFor("wizard")
	assert.ErrorContains(t, err, `unknown agent type "wizard"`)
}

func TestPlannerAndAggregatorAreNotSpecialists(t *testing.T) {
	assert.False(t, IsSpecialist(RolePlanner))
	assert.False(t, IsSpecialist(RoleAggregator))
	assert.False(t, IsSpecialist("wizard"))
	assert.True(t, IsSpecialist(RoleFileOps))
	assert.True(t, IsSpecialist(RoleShell))
}

func TestPlannerAndAggregatorRunOnce(t *testing.T) {
	for _, role := range []string{RolePlanner, RoleAggregator} {
		spec, err := SpecFor(role)
		require.NoError(t, err)
		assert.Equal(t, 1, spec.LoopLimit, role)
		// Both reply from the prompt alone; no tools.
		assert.NotNil(t, spec.AllowedTools, role)
		assert.Empty(t, spec.AllowedTools, role)
	}
}

func TestReadOnlyRolesCannotWrite(t *testing.T) {
	writeTools := map[string]bool{
		"write_file": true, "patch_file": true, "delete_file": true,
		"create_directory": true, "execute_bash_command": true,
		"execute_python_code": true, "set_system_prompt": true,
		"update_config_section": true,
	}
	for _, role := range []string{RoleFileOps, RoleTestRunner, RoleCodeReader} {
		spec, err := SpecFor(role)
		require.NoError(t, err)
		for _, name := range spec.AllowedTools {
			assert.False(t, writeTools[name], "%s whitelists write tool %s", role, name)
		}
	}
}

func TestPartialOutputAcceptance(t *testing.T) {
	accepts := map[string]bool{
		RoleFileOps:    true,
		RoleMemory:     true,
		RoleCodeReader: true,
		RoleResearcher: true,
	}
	for _, role := range SpecialistTypes() {
		spec, err := SpecFor(role)
		require.NoError(t, err)
		assert.Equal(t, accepts[role], spec.AcceptsPartial, role)
	}
}
