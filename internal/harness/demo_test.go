package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDemoScenarios runs the scenarios shipped under testdata/scenarios
// against the editor manifest. They double as usage examples for the
// scenario format and as golden regression fixtures.
func TestDemoScenarios(t *testing.T) {
	paths, err := filepath.Glob("../../testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := filepath.Base(path)
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err, "failed to load scenario from %s", path)

			assert.NotEmpty(t, scenario.Description, "scenario should have description")
			assert.NotEmpty(t, scenario.FlowToken, "scenario should have flow_token")

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario failed: %v", result.Errors)

			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}
