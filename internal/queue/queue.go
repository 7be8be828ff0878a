// Package queue publishes messages to the SQS work queues.
package queue

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// API is the slice of the SQS client the publisher needs.
type API interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, opts ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher sends message bodies to SQS queues.
type Publisher struct {
	Client API
}

// Send publishes a raw body to the queue at queueURL.
func (p *Publisher) Send(ctx context.Context, queueURL, body string) error {
	_, err := p.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &queueURL,
		MessageBody: &body,
	})
	return err
}

// SendJSON marshals v and publishes it to the queue at queueURL.
func (p *Publisher) SendJSON(ctx context.Context, queueURL string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.Send(ctx, queueURL, string(b))
}
