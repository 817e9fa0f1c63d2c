package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"shopbridge/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// CommandMessage is the JSON body placed on the command queue. The
// game-server-side agent consumes these and runs each command on the server
// console. Commands for the same identity carry no ordering key; the agent
// processes the queue serially.
type CommandMessage struct {
	MessageID    string    `json:"message_id"`
	Command      string    `json:"command"`
	Identity     string    `json:"identity"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// SQSDispatcher sends substituted commands to an SQS queue consumed by the
// game-server agent.
type SQSDispatcher struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   *slog.Logger
}

// NewSQSDispatcher creates an SQSDispatcher for the given queue.
func NewSQSDispatcher(client SQSSender, queueURL string, logger *slog.Logger) *SQSDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSDispatcher{
		client:   client,
		queueURL: queueURL,
		clock:    types.RealClock{},
		logger:   logger,
	}
}

// Dispatch serializes the command into a CommandMessage and enqueues it.
func (d *SQSDispatcher) Dispatch(ctx context.Context, command string, identity string) error {
	msg := CommandMessage{
		MessageID:    uuid.New().String(),
		Command:      command,
		Identity:     identity,
		DispatchedAt: d.clock.Now(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("actions: failed to marshal CommandMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"identity": {
				DataType:    aws.String("String"),
				StringValue: aws.String(identity),
			},
		},
	}

	if _, err := d.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("actions: failed to send command to %s: %w", d.queueURL, err)
	}

	d.logger.InfoContext(ctx, "command enqueued",
		"queue_url", d.queueURL,
		"message_id", msg.MessageID,
		"identity", identity,
	)
	return nil
}
