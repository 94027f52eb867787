package repositories

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"analysis-worker/domain"
)

type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSClient receives analysis messages one at a time from a single queue
type SQSClient struct {
	client   SQSAPI
	queueURL string
	waitTime int32
}

func NewSQSClient(client SQSAPI, queueURL string, waitTime int32) *SQSClient {
	return &SQSClient{
		client:   client,
		queueURL: queueURL,
		waitTime: waitTime,
	}
}

// ReceiveMessage long-polls for one message. It returns nil when the wait
// window elapsed without a delivery.
func (s *SQSClient) ReceiveMessage(ctx context.Context) (*domain.InboundMessage, error) {
	output, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     s.waitTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	if len(output.Messages) == 0 {
		return nil, nil
	}

	msg := output.Messages[0]
	return &domain.InboundMessage{
		ID:            aws.ToString(msg.MessageId),
		Body:          aws.ToString(msg.Body),
		ReceiptHandle: aws.ToString(msg.ReceiptHandle),
	}, nil
}

func (s *SQSClient) DeleteMessage(ctx context.Context, receiptHandle string) error {
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}
