// internal/workers/certificate/issue-certificate/handler_test.go
package issuecertificate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"certification-workers/internal/certificate"
	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/idgen"
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

var issuedAt = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func createTestHandler(t *testing.T, opts ...certificate.Option) (*Handler, *store.Memory) {
	mem := store.NewMemory()
	mem.AddCompany(&models.Company{ID: "co-1", Name: "Acme Builders", Grade: "A", Sectors: []string{"roads", "bridges"}})

	log := logger.NewTestLogger(t)
	opts = append([]certificate.Option{certificate.WithClock(func() time.Time { return issuedAt })}, opts...)
	issuer := certificate.NewIssuer(mem, certificate.DefaultConfig(), log, opts...)

	validator, err := validation.Load(filepath.Join("..", "..", "..", "..", "configs", "activity-registry.json"))
	require.NoError(t, err)

	return NewHandler(&Config{Timeout: 5 * time.Second}, issuer, validator, log), mem
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	handler, mem := createTestHandler(t)

	output, err := handler.Execute(context.Background(), &Input{CompanyID: "co-1", ApplicationID: "app-1"})

	require.NoError(t, err)
	assert.Regexp(t, `^CERT-2025-[A-Z0-9]{6}$`, output.CertificateID)
	assert.Equal(t, "2025-03-10T12:00:00Z", output.IssuedAt)
	assert.Equal(t, "2026-03-10T12:00:00Z", output.ValidUntil)

	stored, err := mem.GetCertificate(context.Background(), output.CertificateRecordID)
	require.NoError(t, err)
	assert.Equal(t, output.CertificateID, stored.Number)
	assert.Equal(t, []string{"roads", "bridges"}, stored.Snapshot.ApprovedSectors)
}

func TestHandler_Execute_ExhaustedIDs(t *testing.T) {
	handler, mem := createTestHandler(t, certificate.WithGenerator(idgen.GeneratorFunc(func(int) (string, error) {
		return "AAAAAA", nil
	})))
	mem.AddCertificate(&models.Certificate{ID: "taken", Number: "CERT-2025-AAAAAA", CompanyID: "co-1", Status: models.CertificateApproved})

	_, err := handler.Execute(context.Background(), &Input{CompanyID: "co-1"})

	assert.True(t, errors.HasCode(err, errors.ErrCodeConflict))
}

// ==========================
// Job Handling Tests
// ==========================

func TestHandler_Handle_CompletesJob(t *testing.T) {
	handler, _ := createTestHandler(t)
	client := workertest.NewJobClient()

	handler.Handle(client, workertest.Job(t, TaskType, map[string]interface{}{"companyId": "co-1"}))

	vars := client.Completed(t)
	assert.NotEmpty(t, vars["certificateId"])
	assert.NotEmpty(t, vars["certificateRecordId"])
}

func TestHandler_Handle_UnknownCompany(t *testing.T) {
	handler, _ := createTestHandler(t)
	client := workertest.NewJobClient()

	handler.Handle(client, workertest.Job(t, TaskType, map[string]interface{}{"companyId": "ghost"}))

	assert.Equal(t, "NOT_FOUND", client.ThrownCode(t))
}
