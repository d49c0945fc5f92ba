package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the name of the classification stream.
	StreamName = "CLASSIFICATION"

	// SubjectPrefix is the prefix for all classification subjects.
	SubjectPrefix = "classify"
)

// ClassificationJob is the payload handed to the topic classifier.
type ClassificationJob struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	TeenID         string    `json:"teen_id"`
	Content        string    `json:"content"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// Publisher is the hand-off point for classification jobs.
type Publisher interface {
	PublishClassificationJob(ctx context.Context, job *ClassificationJob) error
}

// JetStreamPublisher publishes classification jobs to JetStream.
type JetStreamPublisher struct {
	client *Client
}

// NewJetStreamPublisher creates a publisher on an established client.
func NewJetStreamPublisher(client *Client) *JetStreamPublisher {
	return &JetStreamPublisher{client: client}
}

// EnsureStream ensures the classification stream exists.
func (p *JetStreamPublisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Messages awaiting topic classification",
	})
	if err != nil {
		return fmt.Errorf("creating stream: %w", err)
	}
	return nil
}

// JobSubject returns the subject a job is published on.
func JobSubject(teenID string) string {
	return fmt.Sprintf("%s.request.%s", SubjectPrefix, teenID)
}

// PublishClassificationJob publishes one job to the stream.
func (p *JetStreamPublisher) PublishClassificationJob(ctx context.Context, job *ClassificationJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}

	if _, err := p.client.JetStream().Publish(ctx, JobSubject(job.TeenID), data); err != nil {
		return fmt.Errorf("publishing job: %w", err)
	}
	return nil
}

// NoopPublisher drops every job. Used when no classifier queue is
// configured and in tests.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that discards jobs.
func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

// PublishClassificationJob discards the job.
func (*NoopPublisher) PublishClassificationJob(ctx context.Context, job *ClassificationJob) error {
	return nil
}
