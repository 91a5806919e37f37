package notification

import (
	"context"
	stderrors "errors"
	"fmt"

	awsclient "certification-workers/internal/common/aws"
	"certification-workers/internal/common/config"
	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/metrics"
	"certification-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

const (
	deliverySent    = "sent"
	deliveryFailed  = "failed"
	deliverySkipped = "skipped"
)

type DeliveryConfig struct {
	EmailEnabled bool
	FromEmail    string
	SMSEnabled   bool
	SenderID     string
	// Threshold is the lowest priority sent by e-mail; SMSThreshold the
	// lowest sent by SMS.
	Threshold    models.Priority
	SMSThreshold models.Priority
}

func DeliveryConfigFrom(cfg config.NotificationConfig) DeliveryConfig {
	return DeliveryConfig{
		EmailEnabled: cfg.Email.Enabled,
		FromEmail:    cfg.Email.FromEmail,
		SMSEnabled:   cfg.SMS.Enabled,
		SenderID:     cfg.SMS.SenderID,
		Threshold:    models.Priority(cfg.DeliveryThreshold),
		SMSThreshold: models.Priority(cfg.SMS.PriorityThreshold),
	}
}

// Deliverer sends stored notifications out over SES and SNS.
type Deliverer struct {
	ses    awsclient.SESAPI
	sns    awsclient.SNSAPI
	config DeliveryConfig
	logger logger.Logger
}

func NewDeliverer(sesClient awsclient.SESAPI, snsClient awsclient.SNSAPI, cfg DeliveryConfig, log logger.Logger) *Deliverer {
	if cfg.Threshold == "" {
		cfg.Threshold = models.PriorityHigh
	}
	if cfg.SMSThreshold == "" {
		cfg.SMSThreshold = models.PriorityCritical
	}
	return &Deliverer{
		ses:    sesClient,
		sns:    snsClient,
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"component": "notification-delivery"}),
	}
}

// Deliver sends n to the recipient on every enabled channel whose threshold
// n meets. It returns a NOTIFICATION_SEND_FAILED error when any channel
// failed.
func (d *Deliverer) Deliver(ctx context.Context, n *models.Notification, to Recipient) error {
	var errs []error

	if d.config.EmailEnabled && d.ses != nil && to.Email != "" && n.Priority.AtLeast(d.config.Threshold) {
		if err := d.sendEmail(ctx, to.Email, n.Title, n.Message); err != nil {
			d.record(ChannelEmail, deliveryFailed)
			errs = append(errs, errors.NewNotificationSendFailedError(ChannelEmail, err))
		} else {
			d.record(ChannelEmail, deliverySent)
		}
	} else {
		d.record(ChannelEmail, deliverySkipped)
	}

	if d.config.SMSEnabled && d.sns != nil && to.Phone != "" && n.Priority.AtLeast(d.config.SMSThreshold) {
		if err := d.sendSMS(ctx, to.Phone, fmt.Sprintf("%s: %s", n.Title, n.Message)); err != nil {
			d.record(ChannelSMS, deliveryFailed)
			errs = append(errs, errors.NewNotificationSendFailedError(ChannelSMS, err))
		} else {
			d.record(ChannelSMS, deliverySent)
		}
	} else {
		d.record(ChannelSMS, deliverySkipped)
	}

	return stderrors.Join(errs...)
}

func (d *Deliverer) record(channel, result string) {
	metrics.NotificationDeliveries.WithLabelValues(channel, result).Inc()
}

func (d *Deliverer) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := d.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{
			ToAddresses: []string{to},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(d.config.FromEmail),
	})
	return err
}

func (d *Deliverer) sendSMS(ctx context.Context, to, message string) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	}
	if d.config.SenderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(d.config.SenderID),
			},
		}
	}
	_, err := d.sns.Publish(ctx, input)
	return err
}
