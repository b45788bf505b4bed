package memory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.json")
	s, err := NewStore(path)
	require.NoError(t, err)
	return s, path
}

func TestNewStoreMissingFileIsEmpty(t *testing.T) {
	s, path := newTestStore(t)
	assert.Contains(t, s.Summary(), "Goals: 0, Features: 0")

	// No file is created until the first write.
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestUpdateFeatureStatusCreatesAndPersists(t *testing.T) {
	s, path := newTestStore(t)

	require.NoError(t, s.UpdateFeatureStatus("auth", "in_progress", "started on login flow"))
	require.NoError(t, s.UpdateFeatureStatus("auth", "completed", ""))

	details, err := s.FeatureDetails("auth")
	require.NoError(t, err)
	assert.Contains(t, details, "Feature auth: auth")
	assert.Contains(t, details, "Status: completed")
	assert.Contains(t, details, "started on login flow")

	// A fresh store sees the persisted state.
	reloaded, err := NewStore(path)
	require.NoError(t, err)
	details, err = reloaded.FeatureDetails("auth")
	require.NoError(t, err)
	assert.Contains(t, details, "Status: completed")
}

func TestUpdateFeatureStatusRejectsUnknownStatus(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.UpdateFeatureStatus("auth", "done", "")
	assert.ErrorContains(t, err, `invalid status "done"`)
}

func TestFeatureDetailsUnknown(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.FeatureDetails("ghost")
	assert.ErrorContains(t, err, `feature "ghost" not found`)
}

func TestGoalDetails(t *testing.T) {
	s, _ := newTestStore(t)

	out, err := s.GoalDetails("")
	require.NoError(t, err)
	assert.Equal(t, "No goals recorded.\n", out)

	_, err = s.GoalDetails("g1")
	assert.ErrorContains(t, err, `goal "g1" not found`)
}

func TestGoalDetailsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"goals": [
			{"id": "g1", "title": "Ship the MVP"},
			{"id": "g2", "title": "Harden the API"}
		],
		"features": [
			{"id": "f1", "title": "Login", "status": "completed", "goal_id": "g1"},
			{"id": "f2", "title": "Rate limits", "status": "pending", "goal_id": "g2"}
		]
	}`), 0644))

	s, err := NewStore(path)
	require.NoError(t, err)

	out, err := s.GoalDetails("g1")
	require.NoError(t, err)
	assert.Contains(t, out, "Goal g1: Ship the MVP")
	assert.Contains(t, out, "[completed] f1: Login")
	assert.NotContains(t, out, "Rate limits")

	all, err := s.GoalDetails("")
	require.NoError(t, err)
	assert.Contains(t, all, "Goal g1")
	assert.Contains(t, all, "Goal g2")
}

func TestSummaryCountsAndRecentProgress(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.UpdateFeatureStatus("a", "pending", ""))
	require.NoError(t, s.UpdateFeatureStatus("b", "pending", ""))
	require.NoError(t, s.UpdateFeatureStatus("c", "completed", ""))
	for i := 0; i < 7; i++ {
		require.NoError(t, s.LogProgress("note", ""))
	}
	require.NoError(t, s.LogProgress("the last note", ""))

	summary := s.Summary()
	assert.Contains(t, summary, "Goals: 0, Features: 3")
	assert.Contains(t, summary, "completed: 1")
	assert.Contains(t, summary, "pending: 2")
	assert.Contains(t, summary, "Recent progress:")
	assert.Contains(t, summary, "the last note")
	// Only the five most recent entries appear.
	assert.Equal(t, 5, strings.Count(summary, "] "), summary)
}

func TestAddTestResultShowsInFeatureDetails(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.UpdateFeatureStatus("auth", "in_progress", ""))
	require.NoError(t, s.AddTestResult("auth", "test_login", "passed", "all assertions held"))

	details, err := s.FeatureDetails("auth")
	require.NoError(t, err)
	assert.Contains(t, details, "Test test_login: passed")
}
