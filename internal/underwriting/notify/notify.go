// internal/underwriting/notify/notify.go
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"

	awsclients "mortgage-underwriting/internal/common/aws"
	"mortgage-underwriting/internal/common/config"
	"mortgage-underwriting/internal/common/logger"
	"mortgage-underwriting/internal/underwriting/casestate"
)

var ErrNotificationSendFailed = errors.New("NOTIFICATION_SEND_FAILED")

// Statuses
const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
	StatusSkipped  = "skipped"
)

// Channels
const (
	ChannelEmail = "email"
	ChannelSNS   = "sns"
)

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier tells reviewers about cases that need a human decision.
type Notifier interface {
	NotifyReview(ctx context.Context, s casestate.State) (Result, error)
}

type Result struct {
	NotificationID string   `json:"notificationId"`
	Status         string   `json:"status"`
	Channels       []string `json:"channels"`
	SentAt         string   `json:"sentAt"`
}

type Config struct {
	EmailEnabled bool
	FromEmail    string
	Recipients   []string
	SNSEnabled   bool
	TopicARN     string
}

func ConfigFrom(cfg config.NotificationConfig) Config {
	return Config{
		EmailEnabled: cfg.Email.Enabled,
		FromEmail:    cfg.Email.FromEmail,
		Recipients:   append([]string(nil), cfg.Email.Recipients...),
		SNSEnabled:   cfg.SNS.Enabled,
		TopicARN:     cfg.SNS.TopicARN,
	}
}

type ReviewNotifier struct {
	config    Config
	sesClient SESService
	snsClient SNSService
	logger    logger.Logger
	now       func() time.Time
}

func NewReviewNotifier(cfg Config, sesClient SESService, snsClient SNSService, log logger.Logger) *ReviewNotifier {
	return &ReviewNotifier{
		config:    cfg,
		sesClient: sesClient,
		snsClient: snsClient,
		logger:    log.WithFields(map[string]interface{}{"component": "review-notifier"}),
		now:       time.Now,
	}
}

// NewFromConfig builds AWS clients only when at least one channel is enabled.
func NewFromConfig(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*ReviewNotifier, error) {
	nc := ConfigFrom(cfg)
	if !nc.EmailEnabled && !nc.SNSEnabled {
		return NewReviewNotifier(nc, nil, nil, log), nil
	}

	awsCfg, err := awsclients.LoadConfig(ctx, cfg.AWS.Region)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewReviewNotifier(nc, awsclients.NewSESClient(awsCfg), awsclients.NewSNSClient(awsCfg), log), nil
}

// NotifyReview sends the case summary over every enabled channel. Cases that
// do not require review are skipped.
func (n *ReviewNotifier) NotifyReview(ctx context.Context, s casestate.State) (Result, error) {
	result := Result{
		NotificationID: uuid.New().String(),
		Status:         StatusSkipped,
		Channels:       []string{},
		SentAt:         n.now().UTC().Format(time.RFC3339),
	}
	if !s.HumanReviewRequired {
		return result, nil
	}

	subject := Subject(s)
	body := Body(s)

	if n.config.EmailEnabled && n.sesClient != nil && len(n.config.Recipients) > 0 {
		if err := n.sendEmail(ctx, subject, body); err != nil {
			n.logger.Error("email send failed", map[string]interface{}{
				"error":  err,
				"caseId": s.CaseID,
			})
			result.Status = StatusFailed
			return result, fmt.Errorf("%w: email: %v", ErrNotificationSendFailed, err)
		}
		result.Channels = append(result.Channels, ChannelEmail)
	}

	if n.config.SNSEnabled && n.snsClient != nil && n.config.TopicARN != "" {
		if err := n.publish(ctx, subject, body); err != nil {
			n.logger.Error("SNS publish failed", map[string]interface{}{
				"error":  err,
				"caseId": s.CaseID,
			})
			result.Status = StatusFailed
			return result, fmt.Errorf("%w: sns: %v", ErrNotificationSendFailed, err)
		}
		result.Channels = append(result.Channels, ChannelSNS)
	}

	result.Status = StatusDisabled
	if len(result.Channels) > 0 {
		result.Status = StatusSent
	}

	n.logger.Info("review notification processed", map[string]interface{}{
		"caseId":   s.CaseID,
		"status":   result.Status,
		"channels": result.Channels,
	})
	return result, nil
}

func (n *ReviewNotifier) sendEmail(ctx context.Context, subject, body string) error {
	_, err := n.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: n.config.Recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.config.FromEmail),
	})
	return err
}

// SNS subjects are limited to 100 characters.
const maxSNSSubject = 100

func (n *ReviewNotifier) publish(ctx context.Context, subject, body string) error {
	if len(subject) > maxSNSSubject {
		subject = subject[:maxSNSSubject]
	}
	_, err := n.snsClient.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.config.TopicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(body),
	})
	return err
}

func Subject(s casestate.State) string {
	return fmt.Sprintf("Human review required: case %s (%s, risk %s)", s.CaseID, s.FinalDecision, riskText(s.RiskScore))
}

// Body renders the plain text review summary.
func Body(s casestate.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Case: %s\n", s.CaseID)
	fmt.Fprintf(&b, "Decision: %s\n", s.FinalDecision)
	fmt.Fprintf(&b, "Risk score: %s\n", riskText(s.RiskScore))
	writeList(&b, "Reasons", s.Reasons)
	writeList(&b, "Conditions", s.Conditions)
	writeList(&b, "Bias flags", s.BiasFlags)
	return strings.TrimRight(b.String(), "\n")
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func riskText(score *int) string {
	if score == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d", *score)
}
