// internal/workers/notification/delete-notifications/handler_test.go
package deletenotifications

import (
	"context"
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

var vendorScope = models.NotificationScope{Audience: models.AudienceVendor, RecipientID: "vendor-1"}

func createTestHandler(t *testing.T) (*Handler, *notification.Service, []string) {
	mem := store.NewMemory()
	log := logger.NewTestLogger(t)
	service := notification.NewService(mem, notification.StoreDirectory{Users: mem}, nil, 20, log)

	var ids []string
	for i := 0; i < 4; i++ {
		n, err := service.Create(context.Background(), notification.NewNotification{
			Audience: vendorScope.Audience, RecipientID: vendorScope.RecipientID,
			Type: notification.TypeCertificateExpiring, Title: "Certificate expiring soon", Priority: models.PriorityHigh,
		})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}
	foreign, err := service.Create(context.Background(), notification.NewNotification{
		Audience: models.AudienceVendor, RecipientID: "vendor-2",
		Type: notification.TypeCertificateExpiring, Title: "Certificate expiring soon", Priority: models.PriorityHigh,
	})
	require.NoError(t, err)
	ids = append(ids, foreign.ID)

	validator, err := validation.Load(filepath.Join("..", "..", "..", "..", "configs", "activity-registry.json"))
	require.NoError(t, err)

	return NewHandler(&Config{Timeout: 5 * time.Second}, service, validator, log), service, ids
}

func remaining(t *testing.T, service *notification.Service, scope models.NotificationScope) int {
	page, err := service.List(context.Background(), scope, models.NotificationFilter{})
	require.NoError(t, err)
	return page.Total
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_SelectedIDs(t *testing.T) {
	handler, service, ids := createTestHandler(t)

	// ids[4] belongs to vendor-2 and must survive.
	output, err := handler.Execute(context.Background(), &Input{
		Audience: "vendor", RecipientID: "vendor-1", NotificationIDs: []string{ids[0], ids[1], ids[4]},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(2), output.Deleted)
	assert.Equal(t, 2, remaining(t, service, vendorScope))
	assert.Equal(t, 1, remaining(t, service, models.NotificationScope{Audience: models.AudienceVendor, RecipientID: "vendor-2"}))
}

func TestHandler_Execute_All(t *testing.T) {
	handler, service, _ := createTestHandler(t)

	output, err := handler.Execute(context.Background(), &Input{Audience: "vendor", RecipientID: "vendor-1", All: true})

	require.NoError(t, err)
	assert.Equal(t, int64(4), output.Deleted)
	assert.Zero(t, remaining(t, service, vendorScope))
}

// ==========================
// Job Handling Tests
// ==========================

func TestHandler_Handle_CompletesJob(t *testing.T) {
	handler, _, ids := createTestHandler(t)
	client := workertest.NewJobClient()

	handler.Handle(client, workertest.Job(t, TaskType, map[string]interface{}{
		"audience": "vendor", "recipientId": "vendor-1", "notificationIds": []string{ids[2]},
	}))

	assert.Equal(t, float64(1), client.Completed(t)["deleted"])
}

func TestHandler_Handle_NothingSelected(t *testing.T) {
	handler, _, _ := createTestHandler(t)
	client := workertest.NewJobClient()

	handler.Handle(client, workertest.Job(t, TaskType, map[string]interface{}{"audience": "vendor", "recipientId": "vendor-1"}))

	assert.Equal(t, "VALIDATION_FAILED", client.ThrownCode(t))
}
