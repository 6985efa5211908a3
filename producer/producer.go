package producer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"eventbus/internal/config"
	"eventbus/internal/logging"
	"eventbus/internal/telemetry"
	"eventbus/serde"
)

// TopicConfig binds a producer to one topic. ValueSchema may be empty, in
// which case values are sent as raw bytes.
type TopicConfig struct {
	Name        string
	KeySchema   string
	ValueSchema string
	Partitions  int32
	Replication int16
}

func (c *TopicConfig) applyDefaults() {
	if c.Partitions == 0 {
		c.Partitions = 1
	}
	if c.Replication == 0 {
		c.Replication = 1
	}
}

func (c TopicConfig) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: topic name is empty", config.ErrInvalid)
	}
	if strings.TrimSpace(c.KeySchema) == "" {
		return fmt.Errorf("%w: topic %s: key schema required", config.ErrInvalid, c.Name)
	}
	if c.Partitions < 1 || c.Replication < 1 {
		return fmt.Errorf("%w: topic %s: partitions and replication must be positive", config.ErrInvalid, c.Name)
	}
	return nil
}

func (c TopicConfig) spec() TopicSpec {
	return TopicSpec{Name: c.Name, Partitions: c.Partitions, Replication: c.Replication}
}

// Backend carries the handles shared by every producer of a process.
type Backend struct {
	Topics       *Provisioner
	Serializer   serde.Serializer
	NewSender    func() (sarama.AsyncProducer, error)
	FlushTimeout time.Duration
	// OnDelivery, when set, observes every settled record.
	OnDelivery func(Report, error)
}

type Producer struct {
	cfg          TopicConfig
	ser          serde.Serializer
	out          sarama.AsyncProducer
	onDelivery   func(Report, error)
	flushTimeout time.Duration
	provisionErr error
	log          *slog.Logger

	mu      sync.RWMutex // guards closed and sending.Add
	closed  bool
	closing chan struct{}  // closed first thing in Close; unblocks pending sends
	sending sync.WaitGroup // Publish calls between the closed check and the send
	flight  *inflight
	drained chan struct{}
	once    sync.Once
}

// New provisions cfg's topic and returns a producer for it. A provisioning
// failure does not fail construction; see ProvisionErr.
func New(ctx context.Context, b Backend, cfg TopicConfig) (*Producer, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if b.Serializer == nil || b.NewSender == nil {
		return nil, fmt.Errorf("%w: producer %s: serializer and sender are required", config.ErrInvalid, cfg.Name)
	}
	if b.FlushTimeout <= 0 {
		b.FlushTimeout = 10 * time.Second
	}

	p := &Producer{
		cfg:          cfg,
		ser:          b.Serializer,
		onDelivery:   b.OnDelivery,
		flushTimeout: b.FlushTimeout,
		log:          logging.Topic(cfg.Name, "produce"),
		flight:       newInflight(),
		closing:      make(chan struct{}),
		drained:      make(chan struct{}),
	}

	if b.Topics != nil {
		if err := b.Topics.Ensure(ctx, cfg.spec()); err != nil {
			p.provisionErr = err
			p.log.Warn("continuing without confirmed topic", "err", err)
		}
	}

	out, err := b.NewSender()
	if err != nil {
		return nil, fmt.Errorf("producer %s: %w", cfg.Name, err)
	}
	p.out = out
	go p.dispatch()
	return p, nil
}

func (p *Producer) Topic() string { return p.cfg.Name }

// ProvisionErr is the soft error from topic provisioning, nil if the topic
// was found or created.
func (p *Producer) ProvisionErr() error { return p.provisionErr }

// Publish serializes key and value and hands the record to the broker client.
// It does not wait for the broker: the returned Delivery settles later.
// A *serde.SerializationError means nothing was sent.
func (p *Producer) Publish(ctx context.Context, key, value any) (*Delivery, error) {
	select {
	case <-p.closing:
		return nil, ErrClosed
	default:
	}

	k, err := p.ser.Serialize(serde.KeySubject(p.cfg.Name), p.cfg.KeySchema, key)
	if err != nil {
		return nil, p.rejected(err)
	}
	v, err := p.encodeValue(value)
	if err != nil {
		return nil, p.rejected(err)
	}

	d := newDelivery()
	msg := &sarama.ProducerMessage{
		Topic:     p.cfg.Name,
		Key:       sarama.ByteEncoder(k),
		Timestamp: time.UnixMilli(TimeMillis()),
		Metadata:  d,
	}
	if v != nil {
		msg.Value = sarama.ByteEncoder(v)
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrClosed
	}
	p.sending.Add(1)
	p.flight.add()
	p.mu.RUnlock()
	defer p.sending.Done()

	// the send itself runs without the lock so a full input buffer cannot
	// hold Close up
	select {
	case p.out.Input() <- msg:
	case <-ctx.Done():
		p.flight.done()
		return nil, ctx.Err()
	case <-p.closing:
		p.flight.done()
		return nil, ErrClosed
	}
	telemetry.RecordsPublished.WithLabelValues(p.cfg.Name).Inc()
	return d, nil
}

func (p *Producer) encodeValue(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	if p.cfg.ValueSchema != "" {
		return p.ser.Serialize(serde.ValueSubject(p.cfg.Name), p.cfg.ValueSchema, value)
	}
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, &serde.SerializationError{
			Subject: serde.ValueSubject(p.cfg.Name),
			Err:     fmt.Errorf("no value schema: raw value must be []byte or string, got %T", value),
		}
	}
}

func (p *Producer) rejected(err error) error {
	telemetry.SerializationErrors.WithLabelValues(p.cfg.Name).Inc()
	p.log.Warn("record rejected", "err", err)
	return err
}

// Flush waits until every published record has settled or ctx is done.
func (p *Producer) Flush(ctx context.Context) error {
	select {
	case <-p.flight.wait():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting records and waits up to the flush timeout for the
// outstanding ones. Only the first call does work; a *ShutdownError from it
// is logged and returned, later calls return nil.
func (p *Producer) Close() error {
	var err error
	p.once.Do(func() {
		timer := time.NewTimer(p.flushTimeout)
		defer timer.Stop()

		close(p.closing)
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		// every sender now either completes its send or sees closing, so
		// nothing touches Input after AsyncClose
		p.sending.Wait()

		log := logging.Topic(p.cfg.Name, "close")
		log.Debug("flush", "pending", p.flight.pending())
		p.out.AsyncClose()

		select {
		case <-p.drained:
			log.Info("producer close complete")
		case <-timer.C:
			err = &ShutdownError{Topic: p.cfg.Name, Pending: p.flight.pending(), Timeout: p.flushTimeout}
			log.Error("flush did not complete", "err", err)
		}
	})
	return err
}

/* ───────────────────────── delivery dispatch ─────────────────────────── */

// dispatch drains the sender's result channels until both are closed, which
// happens after AsyncClose has flushed everything.
func (p *Producer) dispatch() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for msg := range p.out.Successes() {
			p.settle(msg, nil)
		}
	}()
	go func() {
		defer wg.Done()
		for perr := range p.out.Errors() {
			p.settle(perr.Msg, perr.Err)
		}
	}()
	wg.Wait()
	close(p.drained)
}

func (p *Producer) settle(msg *sarama.ProducerMessage, err error) {
	if msg == nil {
		if err != nil {
			p.log.Error("delivery failed", "err", err)
		}
		return
	}
	rep := Report{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset, Timestamp: msg.Timestamp}
	if err != nil {
		err = &DeliveryError{Topic: msg.Topic, Partition: msg.Partition, Err: err}
		telemetry.DeliveryErrors.WithLabelValues(p.cfg.Name).Inc()
		p.log.Error("delivery failed", "partition", msg.Partition, "err", err)
	} else {
		telemetry.RecordsDelivered.WithLabelValues(p.cfg.Name).Inc()
		p.log.Debug("delivered", "partition", msg.Partition, "offset", msg.Offset)
	}

	if p.onDelivery != nil {
		p.onDelivery(rep, err)
	}
	if d, ok := msg.Metadata.(*Delivery); ok {
		d.settle(rep, err)
		p.flight.done()
	}
}

// TimeMillis is the record timestamp source, milliseconds since the epoch.
func TimeMillis() int64 { return time.Now().UnixMilli() }
