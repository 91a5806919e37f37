// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certification-workers/internal/application"
	"certification-workers/internal/audit"
	"certification-workers/internal/certificate"
	"certification-workers/internal/common/config"
	"certification-workers/internal/common/database"
	"certification-workers/internal/common/lock"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/validation"
	"certification-workers/internal/expiry"
	"certification-workers/internal/notification"
	"certification-workers/internal/payment"
	"certification-workers/internal/sla"
	"certification-workers/internal/store"
	"certification-workers/internal/workers/workertest"

	transitionapplicationstatus "certification-workers/internal/workers/application/transition-application-status"
	verifycertificate "certification-workers/internal/workers/certificate/verify-certificate"
	evaluateslabreach "certification-workers/internal/workers/lifecycle/evaluate-sla-breach"
	runexpirysweep "certification-workers/internal/workers/lifecycle/run-expiry-sweep"
	listnotifications "certification-workers/internal/workers/notification/list-notifications"
	marknotificationsread "certification-workers/internal/workers/notification/mark-notifications-read"
	dispatchpaymentoutcome "certification-workers/internal/workers/payment/dispatch-payment-outcome"
)

// E2E runs against the services from configs/config.yaml. Set E2E=1 and the
// DB_* and REDIS_ADDRESS variables it references. ZEEBE_ADDRESS additionally
// checks the broker.
func TestMain(m *testing.M) {
	if os.Getenv("E2E") != "1" {
		fmt.Println("skipping e2e tests: set E2E=1 to run against real services")
		os.Exit(0)
	}
	os.Exit(m.Run())
}

type env struct {
	cfg      *config.Config
	db       *sql.DB
	repo     *store.Postgres
	handlers handlers
}

type handlers struct {
	transition *transitionapplicationstatus.Handler
	dispatch   *dispatchpaymentoutcome.Handler
	verify     *verifycertificate.Handler
	list       *listnotifications.Handler
	markRead   *marknotificationsread.Handler
	sla        *evaluateslabreach.Handler
	sweep      *runexpirysweep.Handler
}

func TestFullE2E(t *testing.T) {
	e := setup(t)

	t.Log("Starting certification lifecycle E2E against real services...")

	companyID, vendorID := seedCompany(t, e.db)
	paymentID := seedPayment(t, e.db, companyID)

	// 1. Processing fee payment opens an application
	client := workertest.NewJobClient()
	e.handlers.dispatch.Handle(client, workertest.Job(t, dispatchpaymentoutcome.TaskType, map[string]interface{}{
		"paymentId": paymentID,
	}))
	dispatched := client.Completed(t)
	applicationID, _ := dispatched["applicationId"].(string)
	require.NotEmpty(t, applicationID)
	assert.Equal(t, false, dispatched["alreadyProcessed"])

	// Redelivery replays the stored outcome
	client = workertest.NewJobClient()
	e.handlers.dispatch.Handle(client, workertest.Job(t, dispatchpaymentoutcome.TaskType, map[string]interface{}{
		"paymentId": paymentID,
	}))
	assert.Equal(t, true, client.Completed(t)["alreadyProcessed"])

	// 2. Desk review forwards, registrar approves
	transition(t, e, applicationID, "forwarded_to_registrar")
	approved := transition(t, e, applicationID, "approved")
	certNumber, _ := approved["certificateId"].(string)
	require.NotEmpty(t, certNumber)
	t.Logf("Certificate issued: %s", certNumber)

	// Terminal status refuses further moves
	client = workertest.NewJobClient()
	e.handlers.transition.Handle(client, workertest.Job(t, transitionapplicationstatus.TaskType, map[string]interface{}{
		"applicationId": applicationID,
		"newStatus":     "rejected",
	}))
	assert.Equal(t, "INVALID_TRANSITION", client.ThrownCode(t))

	// 3. Public verification
	client = workertest.NewJobClient()
	e.handlers.verify.Handle(client, workertest.Job(t, verifycertificate.TaskType, map[string]interface{}{
		"certificateId": certNumber,
	}))
	verified := client.Completed(t)
	assert.Equal(t, true, verified["valid"])
	assert.Equal(t, "E2E Builders Ltd", verified["companyName"])

	// 4. Vendor inbox received the lifecycle notifications
	client = workertest.NewJobClient()
	e.handlers.list.Handle(client, workertest.Job(t, listnotifications.TaskType, map[string]interface{}{
		"audience":    "vendor",
		"recipientId": vendorID,
	}))
	inbox := client.Completed(t)
	assert.Greater(t, inbox["total"], float64(0))
	assert.Equal(t, inbox["total"], inbox["unread"])

	client = workertest.NewJobClient()
	e.handlers.markRead.Handle(client, workertest.Job(t, marknotificationsread.TaskType, map[string]interface{}{
		"audience":    "vendor",
		"recipientId": vendorID,
	}))
	assert.Equal(t, inbox["total"], client.Completed(t)["updated"])

	// 5. Scheduled jobs run clean over the shared database
	client = workertest.NewJobClient()
	e.handlers.sla.Handle(client, workertest.Job(t, evaluateslabreach.TaskType, map[string]interface{}{}))
	assert.NotContains(t, client.Completed(t)["breachedApplicationIds"], applicationID)

	client = workertest.NewJobClient()
	e.handlers.sweep.Handle(client, workertest.Job(t, runexpirysweep.TaskType, map[string]interface{}{}))
	client.Completed(t)

	t.Log("ALL TESTS PASSED: certification lifecycle E2E successful")
}

func TestZeebeConnectivity(t *testing.T) {
	address := os.Getenv("ZEEBE_ADDRESS")
	if address == "" {
		t.Skip("ZEEBE_ADDRESS not set")
	}

	client, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         address,
		UsePlaintextConnection: true,
	})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = client.NewTopologyCommand().Send(ctx)
	assert.NoError(t, err, "Zeebe topology request failed")
}

// ==========================
// Setup
// ==========================

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	cfg, err := config.LoadFromFile(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err, "PostgreSQL connection failed")
	require.NoError(t, pg.Ping(ctx), "PostgreSQL ping failed")
	t.Cleanup(func() { pg.Close() })

	repo := store.NewPostgres(pg.DB, config.GetDuration(cfg.Database.Postgres.TxTimeout))
	require.NoError(t, repo.Migrate(ctx))

	log := logger.NewTestLogger(t)

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Locking.Backend == "redis" {
		rdb := database.NewRedis(cfg.Database.Redis)
		require.NoError(t, rdb.Ping(ctx), "Redis ping failed")
		t.Cleanup(func() { rdb.Close() })
		locker = lock.NewRedisLocker(rdb.Client, lock.RedisConfig{
			TTL:          config.GetDuration(cfg.Locking.TTL),
			WaitTimeout:  config.GetDuration(cfg.Locking.WaitTimeout),
			PollInterval: config.GetDuration(cfg.Locking.PollInterval),
		}, log)
	}

	validator, err := validation.Load(filepath.Join("..", "..", "configs", "activity-registry.json"))
	require.NoError(t, err)

	sink := audit.NewPostgresSink(pg.DB)
	recorder := audit.NewRecorder(sink, sink, log)
	issuer := certificate.NewIssuer(repo, certificate.ConfigFrom(cfg.Lifecycle), log)
	notifier := notification.NewService(repo, notification.StoreDirectory{Users: repo}, nil, cfg.Notifications.DefaultPageSize, log)
	machine := application.NewStateMachine(repo, locker, issuer, notifier, recorder, application.ConfigFrom(cfg.Lifecycle), log)
	dispatcher := payment.NewDispatcher(repo, locker, machine, issuer, notifier, recorder, log)
	evaluator := sla.NewEvaluator(repo, machine, sla.StaticSettings(cfg.SLA.Thresholds), notifier, log)
	sweeper := expiry.NewSweeper(repo, notifier, issuer, expiry.ConfigFrom(cfg.Expiry), log)

	timeout := 30 * time.Second
	return &env{
		cfg:  cfg,
		db:   pg.DB,
		repo: repo,
		handlers: handlers{
			transition: transitionapplicationstatus.NewHandler(&transitionapplicationstatus.Config{Timeout: timeout}, machine, validator, log),
			dispatch:   dispatchpaymentoutcome.NewHandler(&dispatchpaymentoutcome.Config{Timeout: timeout}, dispatcher, validator, log),
			verify:     verifycertificate.NewHandler(&verifycertificate.Config{Timeout: timeout}, issuer, validator, log),
			list:       listnotifications.NewHandler(&listnotifications.Config{Timeout: timeout}, notifier, validator, log),
			markRead:   marknotificationsread.NewHandler(&marknotificationsread.Config{Timeout: timeout}, notifier, validator, log),
			sla:        evaluateslabreach.NewHandler(&evaluateslabreach.Config{Timeout: timeout}, evaluator, validator, log),
			sweep:      runexpirysweep.NewHandler(&runexpirysweep.Config{Timeout: timeout}, sweeper, validator, log),
		},
	}
}

// ==========================
// Test Data
// ==========================

func seedCompany(t *testing.T, db *sql.DB) (companyID, vendorID string) {
	t.Helper()
	suffix := uuid.NewString()[:8]
	companyID = "e2e-co-" + suffix
	vendorID = "e2e-vendor-" + suffix

	_, err := db.Exec(`INSERT INTO companies (id, name, sectors, grade, vendor_id)
		VALUES ($1, 'E2E Builders Ltd', '{building,roads}', 'A', $2)`, companyID, vendorID)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO vendors (id, company_id, email) VALUES ($1, $2, 'vendor@e2e.test')`, vendorID, companyID)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users (id, name, role, email) VALUES ($1, 'E2E Admin', 'admin', 'admin@e2e.test')
		ON CONFLICT (id) DO NOTHING`, "e2e-admin")
	require.NoError(t, err)

	return companyID, vendorID
}

func seedPayment(t *testing.T, db *sql.DB, companyID string) string {
	t.Helper()
	id := "e2e-pay-" + uuid.NewString()[:8]
	_, err := db.Exec(`INSERT INTO payments
		(id, payment_number, company_id, amount, currency, status, purpose, transaction_ref, payment_date)
		VALUES ($1, $2, $3, 50000, 'NGN', 'verified', 'processing-fee', $4, now())`,
		id, "PAY-"+id, companyID, "txn-"+id)
	require.NoError(t, err)
	return id
}

func transition(t *testing.T, e *env, applicationID, status string) map[string]interface{} {
	t.Helper()
	client := workertest.NewJobClient()
	e.handlers.transition.Handle(client, workertest.Job(t, transitionapplicationstatus.TaskType, map[string]interface{}{
		"applicationId": applicationID,
		"newStatus":     status,
		"actor":         map[string]interface{}{"id": "e2e-registrar", "name": "E2E Registrar", "role": "registrar"},
	}))
	out := client.Completed(t)
	assert.Equal(t, status, out["currentStatus"])
	return out
}
