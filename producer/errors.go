package producer

import (
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

var (
	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("producer: closed")
	// ErrTopicMissing matches delivery failures caused by a topic that does
	// not exist on the broker (provisioning failed and nobody else created it).
	ErrTopicMissing = errors.New("producer: topic does not exist on broker")
)

// ProvisioningError is soft: it is logged and kept on the producer, it never
// fails construction.
type ProvisioningError struct {
	Topic string
	Op    string // list-topics|create-topics
	Err   error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provision %s: %s: %v", e.Topic, e.Op, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// DeliveryError is reported asynchronously through Delivery and OnDelivery.
type DeliveryError struct {
	Topic     string
	Partition int32
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s[%d]: %v", e.Topic, e.Partition, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool {
	return target == ErrTopicMissing && errors.Is(e.Err, sarama.ErrUnknownTopicOrPartition)
}

// ShutdownError means Close gave up waiting for outstanding records.
type ShutdownError struct {
	Topic   string
	Pending int
	Timeout time.Duration
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("close %s: %d records still in flight after %s", e.Topic, e.Pending, e.Timeout)
}
