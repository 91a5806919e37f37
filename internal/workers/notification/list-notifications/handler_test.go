// internal/workers/notification/list-notifications/handler_test.go
package listnotifications

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/validation"
	"certification-workers/internal/models"
	"certification-workers/internal/notification"
	"certification-workers/internal/store"
	"certification-workers/internal/workers/workertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestHandler(t *testing.T) *Handler {
	mem := store.NewMemory()
	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	priorities := []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityCritical}
	for i := 0; i < 8; i++ {
		require.NoError(t, mem.CreateNotification(context.Background(), &models.Notification{
			ID:          fmt.Sprintf("n-%d", i),
			Type:        notification.TypeApplicationCreated,
			Title:       "Application submitted",
			Audience:    models.AudienceVendor,
			RecipientID: "vendor-1",
			Priority:    priorities[i%4],
			IsRead:      i < 3,
			CreatedAt:   created.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, mem.CreateNotification(context.Background(), &models.Notification{
		ID: "other", Type: notification.TypeApplicationCreated, Title: "x",
		Audience: models.AudienceVendor, RecipientID: "vendor-2", Priority: models.PriorityCritical, CreatedAt: created,
	}))

	log := logger.NewTestLogger(t)
	service := notification.NewService(mem, notification.StoreDirectory{Users: mem}, nil, 20, log)
	validator, err := validation.Load(filepath.Join("..", "..", "..", "..", "configs", "activity-registry.json"))
	require.NoError(t, err)

	return NewHandler(&Config{Timeout: 5 * time.Second}, service, validator, log)
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_CountsIgnoreReadFilter(t *testing.T) {
	handler := createTestHandler(t)
	unread := false

	output, err := handler.Execute(context.Background(), &Input{Audience: "vendor", RecipientID: "vendor-1", IsRead: &unread})

	require.NoError(t, err)
	assert.Len(t, output.Notifications, 5)
	assert.Equal(t, 8, output.Total)
	assert.Equal(t, 5, output.Unread)
	assert.Equal(t, 2, output.Critical)
	assert.Equal(t, 2, output.High)
}

func TestHandler_Execute_Paging(t *testing.T) {
	handler := createTestHandler(t)

	output, err := handler.Execute(context.Background(), &Input{Audience: "vendor", RecipientID: "vendor-1", Limit: 3, Offset: 3})

	require.NoError(t, err)
	require.Len(t, output.Notifications, 3)
	assert.Equal(t, "n-4", output.Notifications[0].ID)
	assert.Equal(t, 8, output.Total)
}

func TestHandler_Execute_EmptyScope(t *testing.T) {
	output, err := createTestHandler(t).Execute(context.Background(), &Input{Audience: "admin", RecipientID: "admin-9"})

	require.NoError(t, err)
	assert.NotNil(t, output.Notifications)
	assert.Empty(t, output.Notifications)
	assert.Zero(t, output.Total)
}

// ==========================
// Job Handling Tests
// ==========================

func TestHandler_Handle_CompletesJob(t *testing.T) {
	client := workertest.NewJobClient()

	createTestHandler(t).Handle(client, workertest.Job(t, TaskType, map[string]interface{}{
		"audience": "vendor", "recipientId": "vendor-1", "limit": 2,
	}))

	vars := client.Completed(t)
	assert.Len(t, vars["notifications"], 2)
	assert.Equal(t, float64(8), vars["total"])
	assert.Equal(t, float64(2), vars["critical"])
}

func TestHandler_Handle_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]interface{}
	}{
		{name: "unknown audience", vars: map[string]interface{}{"audience": "public"}},
		{name: "limit too large", vars: map[string]interface{}{"audience": "vendor", "recipientId": "vendor-1", "limit": 500}},
		{name: "negative offset", vars: map[string]interface{}{"audience": "vendor", "recipientId": "vendor-1", "offset": -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := workertest.NewJobClient()

			createTestHandler(t).Handle(client, workertest.Job(t, TaskType, tt.vars))

			assert.Equal(t, "VALIDATION_FAILED", client.ThrownCode(t))
		})
	}
}
