// internal/workers/certificate/verify-certificate/handler_test.go
package verifycertificate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"certification-workers/internal/certificate"
	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/validation"
	"certification-workers/internal/models"
	"certification-workers/internal/store"
	"certification-workers/internal/workers/workertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var checkedAt = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

func createTestHandler(t *testing.T) *Handler {
	mem := store.NewMemory()
	mem.AddCertificate(&models.Certificate{
		ID: "c-1", Number: "CERT-2025-AB12CD", CompanyID: "co-1",
		Snapshot: models.CertificateSnapshot{CompanyName: "Acme Builders", Grade: "A", ApprovedSectors: []string{"roads"}},
		Status:   models.CertificateApproved,
		IssuedAt: checkedAt.AddDate(0, -6, 0), ValidUntil: checkedAt.AddDate(0, 6, 0),
	})
	mem.AddCertificate(&models.Certificate{
		ID: "c-2", Number: "CERT-2023-ZZ99ZZ", CompanyID: "co-2",
		Snapshot: models.CertificateSnapshot{CompanyName: "Old Works"},
		Status:   models.CertificateExpired,
		IssuedAt: checkedAt.AddDate(-2, 0, 0), ValidUntil: checkedAt.AddDate(-1, 0, 0),
	})

	log := logger.NewTestLogger(t)
	issuer := certificate.NewIssuer(mem, certificate.DefaultConfig(), log)
	validator, err := validation.Load(filepath.Join("..", "..", "..", "..", "configs", "activity-registry.json"))
	require.NoError(t, err)

	h := NewHandler(&Config{Timeout: 5 * time.Second}, issuer, validator, log)
	h.now = func() time.Time { return checkedAt }
	return h
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	tests := []struct {
		name      string
		number    string
		wantValid bool
		status    string
		company   string
	}{
		{name: "active certificate", number: "CERT-2025-AB12CD", wantValid: true, status: "approved", company: "Acme Builders"},
		{name: "expired certificate", number: "CERT-2023-ZZ99ZZ", wantValid: false, status: "expired", company: "Old Works"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := createTestHandler(t).Execute(context.Background(), &Input{CertificateID: tt.number})

			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, output.Valid)
			assert.Equal(t, tt.status, output.Status)
			assert.Equal(t, tt.company, output.CompanyName)
			assert.Equal(t, tt.number, output.CertificateID)
		})
	}
}

func TestHandler_Execute_Unknown(t *testing.T) {
	_, err := createTestHandler(t).Execute(context.Background(), &Input{CertificateID: "CERT-2025-NOPE00"})

	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

// ==========================
// Job Handling Tests
// ==========================

func TestHandler_Handle_CompletesJob(t *testing.T) {
	client := workertest.NewJobClient()

	createTestHandler(t).Handle(client, workertest.Job(t, TaskType, map[string]interface{}{"certificateId": "CERT-2025-AB12CD"}))

	vars := client.Completed(t)
	assert.Equal(t, true, vars["valid"])
	assert.Equal(t, "2026-03-01T00:00:00Z", vars["validUntil"])
}

func TestHandler_Handle_RejectsMalformedNumber(t *testing.T) {
	client := workertest.NewJobClient()

	createTestHandler(t).Handle(client, workertest.Job(t, TaskType, map[string]interface{}{"certificateId": "cert 12"}))

	assert.Equal(t, "VALIDATION_FAILED", client.ThrownCode(t))
}
