package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/roundtable/internal/model"
	"github.com/capitalize-ai/roundtable/pkg/logger"
)

const (
	// StreamName is the name of the realtime events stream.
	StreamName = "ROUNDTABLE_EVENTS"

	// SubjectPrefix is the prefix for all event subjects.
	SubjectPrefix = "roundtable"

	// globalScope replaces the conversation segment for events that belong
	// to no conversation.
	globalScope = "global"
)

// EventJournal appends every broadcast event to a JetStream stream so other
// services can replay conversation activity.
type EventJournal struct {
	client *Client
	logger *logger.Logger
}

// NewEventJournal creates a journal backed by client.
func NewEventJournal(client *Client, log *logger.Logger) *EventJournal {
	return &EventJournal{client: client, logger: log.Named("journal")}
}

// EnsureStream creates the events stream if it does not exist.
func (j *EventJournal) EnsureStream(ctx context.Context) error {
	js := j.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", StreamName, err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Roundtable realtime events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", StreamName, err)
	}

	j.logger.Info("created event stream", zap.String("stream", StreamName))
	return nil
}

// EventSubject returns the subject for an event of type t in a conversation.
func EventSubject(conversationID string, t model.EventType) string {
	if conversationID == "" {
		conversationID = globalScope
	}
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, conversationID, t)
}

// ConversationFilter returns the filter subject for all events of a
// conversation.
func ConversationFilter(conversationID string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, conversationID)
}

// conversationOf extracts the conversation an event belongs to.
func conversationOf(evt model.Event) string {
	switch d := evt.Data.(type) {
	case model.NewMessageEvent:
		return d.Message.ConversationID
	case *model.NewMessageEvent:
		return d.Message.ConversationID
	case model.EndConversationEvent:
		return d.ConversationID
	case *model.EndConversationEvent:
		return d.ConversationID
	case model.OrchestrationErrorEvent:
		return d.ConversationID
	case *model.OrchestrationErrorEvent:
		return d.ConversationID
	case model.Conversation:
		return d.ID
	case *model.Conversation:
		return d.ID
	default:
		return ""
	}
}

// PublishEvent appends evt to the stream.
func (j *EventJournal) PublishEvent(ctx context.Context, evt model.Event) error {
	subject := EventSubject(conversationOf(evt), evt.Type)

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := j.client.JetStream().Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", subject, err)
	}
	return nil
}

// Replay returns up to limit journaled events for a conversation, oldest
// first.
func (j *EventJournal) Replay(ctx context.Context, conversationID string, limit int) ([]model.Event, error) {
	consumer, err := j.client.JetStream().CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: ConversationFilter(conversationID),
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	var events []model.Event
	for msg := range batch.Messages() {
		var evt model.Event
		if err := json.Unmarshal(msg.Data(), &evt); err != nil {
			j.logger.Warn("skipping malformed journal entry",
				zap.String("subject", msg.Subject()),
				zap.Error(err),
			)
			continue
		}
		events = append(events, evt)
	}
	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("batch error: %w", err)
	}
	return events, nil
}
