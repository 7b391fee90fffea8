package main

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mosaicchat/mosaic/pkg/logger"
)

// Handler processes one log record. A nil return commits the offset; an
// error keeps the consumer on the same record until it lands.
type Handler interface {
	Handle(ctx context.Context, raw []byte) error
}

// logReader is the slice of kafka.Reader the loop drives; tests substitute
// an in-memory feed.
type logReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer runs one handler against one consumer-group reader. Offsets are
// committed only after the unit of work finishes, and the loop never
// fetches the next record while the current one is unacknowledged: group
// offsets are a single per-partition watermark, so committing a later
// record would also acknowledge the failed one and lose it. At-least-once
// therefore means retrying the held record in place; handlers are
// idempotent to absorb the duplicates that entails.
type Consumer struct {
	reader  logReader
	handler Handler
	name    string
	backoff time.Duration
}

func NewConsumer(reader logReader, handler Handler, name string) *Consumer {
	return &Consumer{reader: reader, handler: handler, name: name, backoff: time.Second}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Error("fetch failed", "consumer", c.name, "err", err)
			if !c.wait(ctx) {
				return
			}
			continue
		}

		for {
			if err := c.handler.Handle(ctx, m.Value); err == nil {
				break
			} else {
				logger.Log.Error("handle failed, retrying record",
					"consumer", c.name, "partition", m.Partition, "offset", m.Offset, "err", err)
			}
			if !c.wait(ctx) {
				return
			}
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Error("commit failed", "consumer", c.name, "err", err)
		}
	}
}

func (c *Consumer) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.backoff):
		return true
	}
}
