package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"eventbus/internal/config"
	"eventbus/internal/logging"
	"eventbus/internal/telemetry"
	"eventbus/serde"
)

// Sink receives one deserialized record at a time. Implementations must not
// panic on well-formed input and should log what they cannot use.
type Sink interface {
	Handle(msg map[string]any)
}

type Config struct {
	GroupID   string
	Topics    []string
	StartFrom string // oldest|newest (default newest)
}

type Consumer struct {
	cfg   Config
	cl    sarama.Client
	group sarama.ConsumerGroup
	ser   serde.Serializer
	sink  Sink

	closeOnce sync.Once
	closeErr  error
}

func New(conn config.Connection, cfg Config, ser serde.Serializer, sink Sink) (*Consumer, error) {
	if cfg.GroupID == "" || len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("%w: consumer needs a group id and topics", config.ErrInvalid)
	}
	if ser == nil || sink == nil {
		return nil, fmt.Errorf("%w: consumer needs a serializer and a sink", config.ErrInvalid)
	}
	sc, err := conn.Sarama()
	if err != nil {
		return nil, err
	}
	switch cfg.StartFrom {
	case "oldest":
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	c := &Consumer{cfg: cfg, ser: ser, sink: sink}
	if c.cl, err = sarama.NewClient(conn.Brokers, sc); err != nil {
		return nil, err
	}
	if c.group, err = sarama.NewConsumerGroupFromClient(cfg.GroupID, c.cl); err != nil {
		_ = c.cl.Close()
		return nil, err
	}
	return c, nil
}

// Run consumes until ctx is done, rejoining the group after each rebalance.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			logging.L().Warn("consumer group error", "group", c.cfg.GroupID, "err", err)
		}
	}()

	handler := &groupHandler{consumer: c}
	logging.L().Info("consumer started", "group", c.cfg.GroupID, "topics", c.cfg.Topics)
	for {
		if err := c.group.Consume(ctx, c.cfg.Topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.group.Close()
		if err := c.cl.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}

// handle decodes one record and hands it to the sink. Records that cannot be
// decoded into a field map are logged and skipped.
func (c *Consumer) handle(msg *sarama.ConsumerMessage) bool {
	log := logging.Topic(msg.Topic, "consume")
	native, err := c.ser.Deserialize(msg.Value)
	if err != nil {
		telemetry.MessagesConsumed.WithLabelValues(msg.Topic, "malformed").Inc()
		log.Warn("skipping undecodable record", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return false
	}
	rec, ok := native.(map[string]any)
	if !ok {
		telemetry.MessagesConsumed.WithLabelValues(msg.Topic, "malformed").Inc()
		log.Warn("skipping non-record value", "partition", msg.Partition, "offset", msg.Offset, "type", fmt.Sprintf("%T", native))
		return false
	}
	c.sink.Handle(rec)
	telemetry.MessagesConsumed.WithLabelValues(msg.Topic, "handled").Inc()
	return true
}

type groupHandler struct {
	consumer *Consumer
}

func (*groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (*groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks every record, handled or skipped, so a malformed record
// is not redelivered forever.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-sess.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.consumer.handle(msg)
			sess.MarkMessage(msg, "")
		}
	}
}
