package cloud

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog/log"
)

type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Alerter sends operator notifications to an SNS topic.
type Alerter struct {
	svc      snsAPI
	topicArn string
}

func NewAlerter(ctx context.Context, region, topicArn string) (*Alerter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Alerter{svc: sns.NewFromConfig(cfg), topicArn: topicArn}, nil
}

// SNS rejects subjects longer than this.
const maxSubjectLen = 100

func (a *Alerter) Alert(ctx context.Context, subject, message string) error {
	subject = truncateSubject(subject)
	out, err := a.svc.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	log.Info().Str("message_id", aws.ToString(out.MessageId)).Str("subject", subject).Msg("alert sent")
	return nil
}

// truncateSubject cuts subject to maxSubjectLen bytes on a rune boundary.
func truncateSubject(subject string) string {
	if len(subject) <= maxSubjectLen {
		return subject
	}
	n := maxSubjectLen
	for n > 0 && !utf8.RuneStart(subject[n]) {
		n--
	}
	return subject[:n]
}
