// internal/workers/payment/dispatch-payment-outcome/handler_test.go
package dispatchpaymentoutcome

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"certification-workers/internal/application"
	"certification-workers/internal/certificate"
	"certification-workers/internal/common/lock"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/validation"
	"certification-workers/internal/models"
	"certification-workers/internal/notification"
	"certification-workers/internal/payment"
	"certification-workers/internal/store"
	"certification-workers/internal/workers/workertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestHandler(t *testing.T) (*Handler, *store.Memory) {
	mem := store.NewMemory()
	mem.AddCompany(&models.Company{ID: "co-1", Name: "Acme Builders", Grade: "B"})
	mem.AddVendor(&models.Vendor{ID: "vendor-1", CompanyID: "co-1", Progress: map[string]string{}})

	log := logger.NewTestLogger(t)
	locker := lock.NewLocalLocker()
	issuer := certificate.NewIssuer(mem, certificate.DefaultConfig(), log)
	notifier := notification.NewService(mem, notification.StoreDirectory{Users: mem}, nil, 20, log)
	machine := application.NewStateMachine(mem, locker, issuer, notifier, nil, application.Config{}, log)
	dispatcher := payment.NewDispatcher(mem, locker, machine, issuer, notifier, nil, log)

	validator, err := validation.Load(filepath.Join("..", "..", "..", "..", "configs", "activity-registry.json"))
	require.NoError(t, err)

	return NewHandler(&Config{Timeout: 5 * time.Second}, dispatcher, validator, log), mem
}

func addPayment(mem *store.Memory, id, purpose string, status models.PaymentStatus) {
	mem.AddPayment(&models.Payment{
		ID: id, Number: "PAY-" + id, CompanyID: "co-1", Amount: 50000, Currency: "NGN",
		Status: status, Purpose: purpose, TransactionRef: "txn-" + id, PaymentDate: time.Now().UTC(),
	})
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_ProcessingFee(t *testing.T) {
	handler, mem := createTestHandler(t)
	addPayment(mem, "p-1", models.PurposeProcessingFee, models.PaymentVerified)

	output, err := handler.Execute(context.Background(), &Input{PaymentID: "p-1"})

	require.NoError(t, err)
	assert.False(t, output.AlreadyProcessed)
	assert.Equal(t, models.PurposeProcessingFee, output.Purpose)
	assert.NotEmpty(t, output.ApplicationID)
	assert.Len(t, mem.ListApplications("co-1"), 1)
}

func TestHandler_Execute_Redelivery(t *testing.T) {
	handler, mem := createTestHandler(t)
	addPayment(mem, "p-1", models.PurposeRenewal, models.PaymentVerified)

	first, err := handler.Execute(context.Background(), &Input{PaymentID: "p-1"})
	require.NoError(t, err)
	second, err := handler.Execute(context.Background(), &Input{PaymentID: "p-1"})
	require.NoError(t, err)

	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.ApplicationID, second.ApplicationID)
	assert.Len(t, mem.ListApplications("co-1"), 1)
}

// ==========================
// Job Handling Tests
// ==========================

func TestHandler_Handle_CompletesJob(t *testing.T) {
	handler, mem := createTestHandler(t)
	addPayment(mem, "p-1", models.PurposeOther, models.PaymentVerified)
	client := workertest.NewJobClient()

	handler.Handle(client, workertest.Job(t, TaskType, map[string]interface{}{"paymentId": "p-1"}))

	vars := client.Completed(t)
	assert.Equal(t, models.PurposeOther, vars["purpose"])
	assert.Equal(t, false, vars["alreadyProcessed"])
}

func TestHandler_Handle_Errors(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]interface{}
		want string
	}{
		{name: "missing payment id", vars: map[string]interface{}{}, want: "VALIDATION_FAILED"},
		{name: "unknown payment", vars: map[string]interface{}{"paymentId": "nope"}, want: "NOT_FOUND"},
		{name: "pending payment", vars: map[string]interface{}{"paymentId": "pending"}, want: "CONFLICT"},
		{name: "unknown purpose", vars: map[string]interface{}{"paymentId": "odd"}, want: "VALIDATION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, mem := createTestHandler(t)
			addPayment(mem, "pending", models.PurposeProcessingFee, models.PaymentPending)
			addPayment(mem, "odd", "donation", models.PaymentVerified)
			client := workertest.NewJobClient()

			handler.Handle(client, workertest.Job(t, TaskType, tt.vars))

			assert.Equal(t, tt.want, client.ThrownCode(t))
		})
	}
}
