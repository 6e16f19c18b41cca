package sms

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/smallbiznis/directory/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.sms",
	fx.Provide(NewFromConfig),
)

type Provider interface {
	Send(ctx context.Context, phone string, message string) error
}

// SNSAPI is the part of the SNS client the provider uses.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSProvider struct {
	client   SNSAPI
	senderID string
}

func NewSNS(client SNSAPI, senderID string) *SNSProvider {
	return &SNSProvider{client: client, senderID: senderID}
}

func (p *SNSProvider) Send(ctx context.Context, phone string, message string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return fmt.Errorf("sns: empty phone number")
	}
	input := &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(message),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String("Transactional"),
			},
		},
	}
	if p.senderID != "" {
		input.MessageAttributes["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(p.senderID),
		}
	}
	if _, err := p.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

type LogProvider struct {
	log *zap.Logger
}

func (p *LogProvider) Send(ctx context.Context, phone string, message string) error {
	p.log.Info("sms suppressed", zap.Int("message_bytes", len(message)))
	return nil
}

func NewFromConfig(cfg config.Config, log *zap.Logger) (Provider, error) {
	switch cfg.Notify.SMSProvider {
	case config.ProviderSNS:
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Notify.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return NewSNS(sns.NewFromConfig(awsCfg), cfg.Notify.SNSSender), nil
	case config.ProviderLog, "":
		return &LogProvider{log: log.Named("sms.log")}, nil
	default:
		return nil, fmt.Errorf("unsupported sms provider %q", cfg.Notify.SMSProvider)
	}
}
