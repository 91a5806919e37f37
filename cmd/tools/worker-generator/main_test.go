package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateStructFields(t *testing.T) {
	props := map[string]interface{}{
		"notificationIds": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"applicationId":   map[string]interface{}{"type": "string"},
		"limit":           map[string]interface{}{"type": "integer"},
		"all":             map[string]interface{}{"type": "boolean"},
	}

	got := generateStructFields(props)
	assert.Equal(t,
		"\tAll bool `json:\"all\"`\n"+
			"\tApplicationID string `json:\"applicationId\"`\n"+
			"\tLimit int `json:\"limit\"`\n"+
			"\tNotificationIDs []string `json:\"notificationIds\"`",
		got)
}

func TestTimeoutMS(t *testing.T) {
	tests := map[string]int{
		"10s":   10000,
		"2m":    120000,
		"500ms": 500,
		"":      10000,
		"abc":   10000,
	}
	for in, want := range tests {
		assert.Equal(t, want, timeoutMS(in), in)
	}
}

func TestRender_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.go")
	data := WorkerData{PackageName: "revokecertificate", TaskType: "revoke-certificate", Category: "certificate", TimeoutMS: 5000}

	require.NoError(t, render(path, configTemplate, data, false))
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "package revokecertificate")
	assert.Contains(t, string(body), "5000 * time.Millisecond")

	assert.Error(t, render(path, configTemplate, data, false))
	assert.NoError(t, render(path, configTemplate, data, true))
}
