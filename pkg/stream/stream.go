package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/mosaicchat/mosaic/pkg/model"
)

// Bus wraps the durable log's producers. One writer per topic; the save
// and events topics are keyed by channel UUID so everything about one
// channel stays on one partition and arrives in send order.
type Bus struct {
	save    *kafka.Writer
	preview *kafka.Writer
	events  *kafka.Writer
}

func NewBus(brokers []string) *Bus {
	writer := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		}
	}
	return &Bus{
		save:    writer(model.TopicSave),
		preview: writer(model.TopicPreview),
		events:  writer(model.TopicEvents),
	}
}

func (b *Bus) Close() error {
	for _, w := range []*kafka.Writer{b.save, b.preview, b.events} {
		if err := w.Close(); err != nil {
			return err
		}
	}
	return nil
}

// PublishSave appends one message-creation event, keyed by channel.
func (b *Bus) PublishSave(ctx context.Context, ev model.SaveEvent) error {
	ev.V = model.SchemaVersion
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.save.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ChannelUUID),
		Value: value,
		Time:  time.Now(),
	})
}

// PublishPreviewJob appends one link-preview job, keyed by message.
func (b *Bus) PublishPreviewJob(ctx context.Context, job model.PreviewJob) error {
	job.V = model.SchemaVersion
	value, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return b.preview.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.MessageUUID),
		Value: value,
		Time:  time.Now(),
	})
}

// PublishEvent appends one fanout event for channel subscribers. Payloads
// are full denormalized views; clients replace by UUID.
func (b *Bus) PublishEvent(ctx context.Context, appUUID, channelUUID, event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ev := model.Event{
		V:               model.SchemaVersion,
		ApplicationUUID: appUUID,
		ChannelUUID:     channelUUID,
		Event:           event,
		Payload:         raw,
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.events.WriteMessages(ctx, kafka.Message{
		Key:   []byte(channelUUID),
		Value: value,
		Time:  time.Now(),
	})
}

// NewGroupReader builds a consumer-group reader for a worker topic. The
// group tracks offsets; callers commit explicitly after the unit of work.
func NewGroupReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
}

// NewFanoutReader builds a reader with a unique group id so that every
// gateway instance sees every event and can route it to its own local
// subscribers.
func NewFanoutReader(brokers []string, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     fmt.Sprintf("gateway-fanout-%s", uuid.NewString()),
		StartOffset: kafka.LastOffset,
		MinBytes:    10e3,
		MaxBytes:    10e6,
	})
}
