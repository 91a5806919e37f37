package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistry_ShippedFileIsValid(t *testing.T) {
	reg, err := LoadRegistry(filepath.Join("..", "..", "configs", "activity-registry.json"))
	require.NoError(t, err)
	require.NoError(t, reg.Validate())

	for _, taskType := range []string{
		"transition-application-status",
		"dispatch-payment-outcome",
		"issue-certificate",
		"verify-certificate",
		"list-notifications",
		"mark-notifications-read",
		"delete-notifications",
		"evaluate-sla-breach",
		"run-expiry-sweep",
	} {
		_, ok := reg.Find(taskType)
		assert.True(t, ok, "missing activity for %s", taskType)
	}
}

func TestLoadRegistry_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadRegistry(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Activity {
		return Activity{ID: "a", DisplayName: "A", TaskType: "a", Category: "c"}
	}

	tests := []struct {
		name    string
		mutate  func(r *ActivityRegistry)
		wantErr string
	}{
		{name: "valid", mutate: func(r *ActivityRegistry) {}},
		{name: "empty", mutate: func(r *ActivityRegistry) { r.Activities = nil }, wantErr: "no activities"},
		{name: "duplicate id", mutate: func(r *ActivityRegistry) {
			dup := valid()
			dup.TaskType = "b"
			r.Activities = append(r.Activities, dup)
		}, wantErr: "duplicate activity ID"},
		{name: "duplicate task type", mutate: func(r *ActivityRegistry) {
			dup := valid()
			dup.ID = "b"
			r.Activities = append(r.Activities, dup)
		}, wantErr: "duplicate task type"},
		{name: "missing category", mutate: func(r *ActivityRegistry) { r.Activities[0].Category = "" }, wantErr: "Category"},
		{name: "unknown status", mutate: func(r *ActivityRegistry) { r.Activities[0].ImplementationStatus = "done" }, wantErr: "implementation status"},
		{name: "bad timeout", mutate: func(r *ActivityRegistry) { r.Activities[0].Timeout = "soon" }, wantErr: "invalid timeout"},
		{name: "lowercase error code", mutate: func(r *ActivityRegistry) { r.Activities[0].ErrorCodes = []string{"not_found"} }, wantErr: "UPPER_SNAKE_CASE"},
		{name: "negative retries", mutate: func(r *ActivityRegistry) { r.Activities[0].Retries = -1 }, wantErr: "retries"},
		{name: "broken schema", mutate: func(r *ActivityRegistry) {
			r.Activities[0].InputSchema = map[string]interface{}{"type": 12}
		}, wantErr: "input schema"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := &ActivityRegistry{Activities: []Activity{valid()}}
			tt.mutate(reg)

			err := reg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAddAndUpdate(t *testing.T) {
	reg := New()
	revoke := Activity{
		ID:                   "revoke-certificate",
		DisplayName:          "Revoke Certificate",
		Category:             "certificate",
		TaskType:             "revoke-certificate",
		ImplementationStatus: StatusPlanned,
		ErrorCodes:           []string{"NOT_FOUND"},
		Timeout:              "10s",
	}
	require.NoError(t, reg.Add(revoke))

	err := reg.Add(revoke)
	assert.ErrorContains(t, err, "already exists")

	clash := revoke
	clash.ID = "revoke-certificate-v2"
	assert.ErrorContains(t, reg.Add(clash), "task type")

	require.NoError(t, reg.Update("revoke-certificate", "status", StatusInProgress))
	require.NoError(t, reg.Update("revoke-certificate", "retries", "3"))
	a, ok := reg.Find("revoke-certificate")
	require.True(t, ok)
	assert.Equal(t, StatusInProgress, a.ImplementationStatus)
	assert.Equal(t, 3, a.Retries)

	assert.ErrorContains(t, reg.Update("revoke-certificate", "status", "shipped"), "implementation status")
	assert.Equal(t, StatusInProgress, a.ImplementationStatus, "rejected update leaves activity unchanged")
	assert.ErrorContains(t, reg.Update("revoke-certificate", "colour", "red"), "unknown field")
	assert.ErrorContains(t, reg.Update("missing", "version", "2.0.0"), "not found")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "registry.json")
	reg := New()
	require.NoError(t, reg.Add(Activity{ID: "b", DisplayName: "B", Category: "notification", TaskType: "b"}))
	require.NoError(t, reg.Add(Activity{ID: "a", DisplayName: "A", Category: "certificate", TaskType: "a", ImplementationStatus: StatusVerified}))
	require.NoError(t, reg.Save(path))

	loaded, err := LoadRegistry(path)
	require.NoError(t, err)
	require.NoError(t, loaded.Validate())

	sorted := loaded.Sorted()
	assert.Equal(t, "a", sorted[0].TaskType)
	assert.Equal(t, "b", sorted[1].TaskType)
	assert.Equal(t, map[string]int{StatusVerified: 1, "": 1}, loaded.Summary())
}
