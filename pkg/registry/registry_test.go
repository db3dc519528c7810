package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRegistry = `{
  "version": "1.0.0",
  "lastUpdated": "2025-08-01T12:00:00Z",
  "activities": [
    {
      "id": "score-listing",
      "displayName": "Score Listing",
      "description": "Computes quality and ranking scores for a marketplace listing",
      "category": "marketplace",
      "version": "1.0.0",
      "taskType": "score-listing",
      "implementationStatus": "completed",
      "inputSchema": {
        "type": "object",
        "required": ["listing"],
        "properties": {
          "listing": {"type": "object"}
        }
      },
      "outputSchema": {
        "type": "object",
        "properties": {
          "rankingScore": {"type": "integer"}
        }
      },
      "errorCodes": ["SCORE_PERSIST_FAILED"],
      "timeout": "15s",
      "retries": 3,
      "workflows": ["listing-lifecycle"],
      "tags": ["scoring"]
    }
  ]
}`

func writeSampleRegistry(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "activity-registry.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleRegistry), 0644))
	return path
}

func TestLoadRegistry(t *testing.T) {
	reg, err := LoadRegistry(writeSampleRegistry(t))
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", reg.Version)
	require.Len(t, reg.Activities, 1)
	assert.Equal(t, "score-listing", reg.Activities[0].ID)
	assert.Equal(t, 3, reg.Activities[0].Retries)
}

func TestLoadRegistry_MissingFile(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "nope.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestFindByTaskType(t *testing.T) {
	reg, err := LoadRegistry(writeSampleRegistry(t))
	require.NoError(t, err)

	activity, ok := reg.FindByTaskType("score-listing")
	require.True(t, ok)
	assert.Equal(t, "Score Listing", activity.DisplayName)

	_, ok = reg.FindByTaskType("unknown-task")
	assert.False(t, ok)
}

func TestValidateInput(t *testing.T) {
	reg, err := LoadRegistry(writeSampleRegistry(t))
	require.NoError(t, err)

	activity, ok := reg.FindByTaskType("score-listing")
	require.True(t, ok)

	err = activity.ValidateInput(map[string]interface{}{
		"listing": map[string]interface{}{"id": "listing-1"},
	})
	assert.NoError(t, err)

	err = activity.ValidateInput(map[string]interface{}{"other": true})
	assert.ErrorContains(t, err, "listing")
}

func TestValidateOutput_EmptySchemaAcceptsAnything(t *testing.T) {
	activity := &Activity{ID: "anything"}
	assert.NoError(t, activity.ValidateOutput(map[string]interface{}{"whatever": 1}))
}
