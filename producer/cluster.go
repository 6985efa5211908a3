package producer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"eventbus/internal/config"
	"eventbus/internal/logging"
	"eventbus/serde"
)

// Cluster owns the connection state shared by all producers of a process:
// the broker client, the admin client, the schema registry serializer and
// the topic registry.
type Cluster struct {
	conn   config.Connection
	client sarama.Client
	admin  Admin
	topics *Provisioner
	ser    serde.Serializer

	closeOnce sync.Once
	closeErr  error
}

// Dial validates conn and connects. Errors wrap config.ErrInvalid when the
// connection parameters themselves are wrong.
func Dial(conn config.Connection) (*Cluster, error) {
	config.ApplyConnectionDefaults(&conn)
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	sc, err := conn.Sarama()
	if err != nil {
		return nil, err
	}

	reg, err := serde.Open(conn.SchemaRegistryURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	ser, err := serde.New(conn.Producer.Format, reg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	client, err := sarama.NewClient(conn.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	// closing the admin closes client as well
	ca, err := sarama.NewClusterAdminFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("kafka admin: %w", err)
	}

	admin := NewSaramaAdmin(ca)
	c := &Cluster{
		conn:   conn,
		client: client,
		admin:  admin,
		ser:    ser,
		topics: NewProvisioner(admin, NewTopicRegistry(), ProvisionOptions{
			Timeout: conn.Admin.Timeout,
			Retries: *conn.Admin.Retries,
		}),
	}
	logging.L().Info("kafka connected", "brokers", conn.Brokers, "registry", conn.SchemaRegistryURL, "format", conn.Producer.Format)
	return c, nil
}

// NewProducer builds a producer for tc on the shared client.
func (c *Cluster) NewProducer(ctx context.Context, tc TopicConfig, onDelivery func(Report, error)) (*Producer, error) {
	return New(ctx, Backend{
		Topics:     c.topics,
		Serializer: c.ser,
		NewSender: func() (sarama.AsyncProducer, error) {
			return sarama.NewAsyncProducerFromClient(c.client)
		},
		FlushTimeout: c.conn.Producer.FlushTimeout,
		OnDelivery:   onDelivery,
	}, tc)
}

func (c *Cluster) Client() sarama.Client         { return c.client }
func (c *Cluster) Serializer() serde.Serializer  { return c.ser }
func (c *Cluster) Topics() *TopicRegistry        { return c.topics.Registry() }
func (c *Cluster) Connection() config.Connection { return c.conn }

// Close releases the admin and broker clients. Producers built on the
// cluster must be closed first.
func (c *Cluster) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.admin.Close()
		if c.closeErr != nil && !errors.Is(c.closeErr, sarama.ErrClosedClient) {
			logging.L().Warn("kafka admin close", "err", c.closeErr)
		}
	})
	return c.closeErr
}
