package sqsbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
)

// Backend delivers notifications by sending the payload to SQS.
type Backend struct {
	svc *sqs.SQS
}

// notification is the message payload sent to the queue.
type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ID returns "sqs".
func (b *Backend) ID() string {
	return "sqs"
}

// Start starts the sink by creating an SQS client, given a set of
// options provided by the configuration.
func (b *Backend) Start(ctx context.Context, cfg map[string]interface{}) error {
	region, ok := cfg["region"].(string)
	if !ok {
		return errors.New("region must be a string")
	}

	// Create a session that gets credential values from ~/.aws/credentials
	// and the default region from ~/.aws/config
	sqsSession, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return err
	}

	b.svc = sqs.New(sqsSession)
	return nil
}

// Notify sends an SQS message to the queue identified by key (a queue
// URL).
func (b *Backend) Notify(key, title, body string) error {
	payload, err := json.Marshal(notification{Title: title, Body: body})
	if err != nil {
		return err
	}

	_, err = b.svc.SendMessage(&sqs.SendMessageInput{
		MessageBody: aws.String(string(payload)),
		QueueUrl:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("Got an error sending the message: %s", err.Error())
	}
	return nil
}

// Stop shuts down the sink.
func (b *Backend) Stop() error {
	return nil
}
