package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Default consumer group name.
	defaultConsumerGroup = "checkers"

	// Default block timeout for reading from the stream.
	defaultBlockTimeout = 5 * time.Second

	// Default count of messages to read per batch.
	defaultBatchSize = 10

	// Default minimum idle time before claiming pending messages left by a
	// crashed consumer.
	defaultClaimMinIdle = 5 * time.Minute

	// Maximum pending messages to inspect per reclaim pass.
	maxPendingCheck = 100
)

// Consumer reads link-check work items from the check stream.
type Consumer struct {
	client        *StreamsClient
	consumerGroup string
	consumerID    string
	blockTimeout  time.Duration
	batchSize     int64
	claimMinIdle  time.Duration
}

// ConsumerConfig holds configuration for the Consumer.
type ConsumerConfig struct {
	ConsumerGroup string        // Consumer group name
	ConsumerID    string        // Unique consumer identifier
	BlockTimeout  time.Duration // Block timeout for reads (0 = default)
	BatchSize     int64         // Number of messages per read (0 = default)
	ClaimMinIdle  time.Duration // Min idle time before claiming (0 = default)
}

// ConsumedCheck is a check work item read from the queue.
type ConsumedCheck struct {
	MessageID  string
	Check      CheckMessage
	EnqueuedAt time.Time
}

// NewConsumer creates a new check consumer.
func NewConsumer(client *StreamsClient, cfg ConsumerConfig) (*Consumer, error) {
	if cfg.ConsumerID == "" {
		return nil, errors.New("consumer ID is required")
	}

	group := cfg.ConsumerGroup
	if group == "" {
		group = defaultConsumerGroup
	}

	blockTimeout := cfg.BlockTimeout
	if blockTimeout <= 0 {
		blockTimeout = defaultBlockTimeout
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	claimMinIdle := cfg.ClaimMinIdle
	if claimMinIdle <= 0 {
		claimMinIdle = defaultClaimMinIdle
	}

	return &Consumer{
		client:        client,
		consumerGroup: group,
		consumerID:    cfg.ConsumerID,
		blockTimeout:  blockTimeout,
		batchSize:     batchSize,
		claimMinIdle:  claimMinIdle,
	}, nil
}

// Initialize creates the consumer group for the check stream.
func (c *Consumer) Initialize(ctx context.Context) error {
	stream := c.client.CheckStream()
	if err := c.client.CreateConsumerGroup(ctx, stream, c.consumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", stream, err)
	}
	return nil
}

// Read returns the next batch of check work items. Pending messages whose
// consumer went idle past the claim threshold are reclaimed first, so a
// crashed worker's work items are eventually re-executed.
func (c *Consumer) Read(ctx context.Context) ([]*ConsumedCheck, error) {
	if reclaimed := c.reclaimPending(ctx); len(reclaimed) > 0 {
		return reclaimed, nil
	}

	stream := c.client.CheckStream()
	streams, err := c.client.XReadGroup(
		ctx, c.consumerGroup, c.consumerID, stream, c.batchSize, c.blockTimeout,
	)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // No messages available
		}
		return nil, fmt.Errorf("failed to read from stream %s: %w", stream, err)
	}

	var checks []*ConsumedCheck
	for _, s := range streams {
		for _, msg := range s.Messages {
			check, parseErr := parseMessage(msg)
			if parseErr != nil {
				continue // Skip malformed messages
			}
			checks = append(checks, check)
		}
	}

	return checks, nil
}

// Acknowledge acknowledges successful processing of a check.
func (c *Consumer) Acknowledge(ctx context.Context, check *ConsumedCheck) error {
	if check == nil {
		return errors.New("check cannot be nil")
	}
	return c.client.XAck(ctx, c.client.CheckStream(), c.consumerGroup, check.MessageID)
}

// reclaimPending claims messages left pending past the idle threshold.
func (c *Consumer) reclaimPending(ctx context.Context) []*ConsumedCheck {
	stream := c.client.CheckStream()

	pending, err := c.client.XPendingExt(ctx, stream, c.consumerGroup, "-", "+", maxPendingCheck)
	if err != nil {
		return nil
	}

	var idsToReclaim []string
	for _, entry := range pending {
		if entry.Idle >= c.claimMinIdle {
			idsToReclaim = append(idsToReclaim, entry.ID)
		}
	}

	if len(idsToReclaim) == 0 {
		return nil
	}

	claimed, claimErr := c.client.XClaim(
		ctx, stream, c.consumerGroup, c.consumerID, c.claimMinIdle, idsToReclaim...,
	)
	if claimErr != nil {
		return nil
	}

	var checks []*ConsumedCheck
	for _, msg := range claimed {
		check, parseErr := parseMessage(msg)
		if parseErr != nil {
			continue
		}
		checks = append(checks, check)
	}

	return checks
}

// parseMessage parses a single stream message into a ConsumedCheck.
func parseMessage(msg redis.XMessage) (*ConsumedCheck, error) {
	data, ok := msg.Values[CheckDataField].(string)
	if !ok {
		return nil, errors.New("missing or invalid check data")
	}

	var check CheckMessage
	if err := json.Unmarshal([]byte(data), &check); err != nil {
		return nil, fmt.Errorf("failed to unmarshal check message: %w", err)
	}

	consumed := &ConsumedCheck{
		MessageID: msg.ID,
		Check:     check,
	}

	if enqueuedStr, hasEnqueued := msg.Values[EnqueuedAtField].(string); hasEnqueued {
		if t, parseErr := time.Parse(time.RFC3339, enqueuedStr); parseErr == nil {
			consumed.EnqueuedAt = t
		}
	}

	return consumed, nil
}

// ConsumerGroup returns the consumer group name.
func (c *Consumer) ConsumerGroup() string {
	return c.consumerGroup
}

// ConsumerID returns the consumer ID.
func (c *Consumer) ConsumerID() string {
	return c.consumerID
}
