package notification

import (
	"context"
	stderrors "errors"
	"testing"

	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/models"
	"certification-workers/internal/store"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	calls         int
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.calls++
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	calls       int
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls++
	return m.PublishFunc(ctx, params, optFns...)
}

func okSES() *MockSESService {
	return &MockSESService{SendEmailFunc: func(context.Context, *ses.SendEmailInput, ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
		return &ses.SendEmailOutput{}, nil
	}}
}

func okSNS() *MockSNSService {
	return &MockSNSService{PublishFunc: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
		return &sns.PublishOutput{}, nil
	}}
}

func enabledConfig() DeliveryConfig {
	return DeliveryConfig{
		EmailEnabled: true,
		FromEmail:    "noreply@registry.example",
		SMSEnabled:   true,
		SenderID:     "REGISTRY",
		Threshold:    models.PriorityHigh,
		SMSThreshold: models.PriorityCritical,
	}
}

var contact = Recipient{ID: "v-1", Email: "ops@acme.example", Phone: "+15550100"}

// ==========================
// Deliverer Tests
// ==========================

func TestDeliverer_Thresholds(t *testing.T) {
	tests := []struct {
		name      string
		priority  models.Priority
		wantEmail int
		wantSMS   int
	}{
		{name: "critical goes everywhere", priority: models.PriorityCritical, wantEmail: 1, wantSMS: 1},
		{name: "high is e-mail only", priority: models.PriorityHigh, wantEmail: 1},
		{name: "medium stays in-app", priority: models.PriorityMedium},
		{name: "low stays in-app", priority: models.PriorityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sesMock, snsMock := okSES(), okSNS()
			d := NewDeliverer(sesMock, snsMock, enabledConfig(), logger.NewTestLogger(t))

			err := d.Deliver(context.Background(), &models.Notification{Title: "t", Message: "m", Priority: tt.priority}, contact)

			require.NoError(t, err)
			assert.Equal(t, tt.wantEmail, sesMock.calls)
			assert.Equal(t, tt.wantSMS, snsMock.calls)
		})
	}
}

func TestDeliverer_BuildsRequests(t *testing.T) {
	var gotEmail *ses.SendEmailInput
	var gotSMS *sns.PublishInput
	sesMock := &MockSESService{SendEmailFunc: func(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
		gotEmail = in
		return &ses.SendEmailOutput{}, nil
	}}
	snsMock := &MockSNSService{PublishFunc: func(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
		gotSMS = in
		return &sns.PublishOutput{}, nil
	}}
	d := NewDeliverer(sesMock, snsMock, enabledConfig(), logger.NewTestLogger(t))

	err := d.Deliver(context.Background(), &models.Notification{
		Title: "Certificate expired", Message: "CERT-2025-ABC123 expired", Priority: models.PriorityCritical,
	}, contact)
	require.NoError(t, err)

	require.NotNil(t, gotEmail)
	assert.Equal(t, []string{"ops@acme.example"}, gotEmail.Destination.ToAddresses)
	assert.Equal(t, "Certificate expired", *gotEmail.Message.Subject.Data)
	assert.Equal(t, "noreply@registry.example", *gotEmail.Source)

	require.NotNil(t, gotSMS)
	assert.Equal(t, "+15550100", *gotSMS.PhoneNumber)
	assert.Equal(t, "Certificate expired: CERT-2025-ABC123 expired", *gotSMS.Message)
	assert.Equal(t, "REGISTRY", *gotSMS.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue)
}

func TestDeliverer_DisabledOrNoContact(t *testing.T) {
	sesMock, snsMock := okSES(), okSNS()
	cfg := enabledConfig()
	cfg.SMSEnabled = false
	d := NewDeliverer(sesMock, snsMock, cfg, logger.NewTestLogger(t))

	n := &models.Notification{Title: "t", Priority: models.PriorityCritical}
	require.NoError(t, d.Deliver(context.Background(), n, Recipient{ID: "v-1"}))
	assert.Zero(t, sesMock.calls)

	require.NoError(t, d.Deliver(context.Background(), n, contact))
	assert.Equal(t, 1, sesMock.calls)
	assert.Zero(t, snsMock.calls)
}

func TestDeliverer_ReportsChannelFailures(t *testing.T) {
	sesMock := &MockSESService{SendEmailFunc: func(context.Context, *ses.SendEmailInput, ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
		return nil, stderrors.New("throttled")
	}}
	snsMock := okSNS()
	d := NewDeliverer(sesMock, snsMock, enabledConfig(), logger.NewTestLogger(t))

	err := d.Deliver(context.Background(), &models.Notification{Title: "t", Priority: models.PriorityCritical}, contact)

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotificationSendFailed))
	assert.Equal(t, 1, snsMock.calls, "sms still attempted")
}

func TestService_Notify_DeliveryFailureIsNotFatal(t *testing.T) {
	mem := store.NewMemory()
	sesMock := &MockSESService{SendEmailFunc: func(context.Context, *ses.SendEmailInput, ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
		return nil, stderrors.New("throttled")
	}}
	d := NewDeliverer(sesMock, nil, enabledConfig(), logger.NewTestLogger(t))
	svc := NewService(mem, StoreDirectory{Users: mem}, d, 20, logger.NewTestLogger(t))

	n, err := svc.Notify(context.Background(), NewNotification{
		Audience: models.AudienceVendor, RecipientID: "v-1", Type: TypeCertificateExpired,
		Title: "Certificate expired", Priority: models.PriorityCritical,
	}, contact)

	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, 1, sesMock.calls)
}
