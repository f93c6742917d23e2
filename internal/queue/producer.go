package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Field names used in stream messages.
const (
	// CheckDataField is the field name for the serialized check message.
	CheckDataField = "check"

	// EnqueuedAtField is the field name for the enqueue timestamp.
	EnqueuedAtField = "enqueued_at"
)

// CheckMessage is one unit of work: verify one scan link. Carrying the scan
// ID alongside the link ID lets workers short-circuit checks for scans that
// were stopped after the message was enqueued.
type CheckMessage struct {
	LinkID string `json:"link_id"`
	ScanID string `json:"scan_id"`
}

// Producer enqueues link-check work items to the check stream.
type Producer struct {
	client *StreamsClient
}

// NewProducer creates a new check producer.
func NewProducer(client *StreamsClient) *Producer {
	return &Producer{client: client}
}

// Enqueue adds a check work item to the stream.
func (p *Producer) Enqueue(ctx context.Context, msg CheckMessage) (string, error) {
	if msg.LinkID == "" {
		return "", errors.New("link ID is required")
	}

	data, marshalErr := json.Marshal(msg)
	if marshalErr != nil {
		return "", fmt.Errorf("failed to serialize check message: %w", marshalErr)
	}

	values := map[string]any{
		CheckDataField:  string(data),
		EnqueuedAtField: time.Now().UTC().Format(time.RFC3339),
	}

	messageID, addErr := p.client.XAdd(ctx, p.client.CheckStream(), values)
	if addErr != nil {
		return "", fmt.Errorf("failed to enqueue check: %w", addErr)
	}

	return messageID, nil
}

// EnqueueCheck enqueues a check for one scan link. Satisfies the checker's
// Enqueuer contract.
func (p *Producer) EnqueueCheck(ctx context.Context, scanID, linkID string) error {
	_, err := p.Enqueue(ctx, CheckMessage{LinkID: linkID, ScanID: scanID})
	return err
}

// Depth returns the current length of the check stream.
func (p *Producer) Depth(ctx context.Context) (int64, error) {
	return p.client.XLen(ctx, p.client.CheckStream())
}
