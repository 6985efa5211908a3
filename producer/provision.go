package producer

import (
	"context"
	"errors"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"eventbus/internal/logging"
	"eventbus/internal/telemetry"
)

type ProvisionOptions struct {
	Timeout       time.Duration // bound on each list/create call
	Retries       uint64        // extra list-topics attempts
	RetryInterval time.Duration // first backoff step
}

func (o *ProvisionOptions) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 200 * time.Millisecond
	}
}

// Provisioner makes sure a topic exists before it is published to. Calls for
// the same name share one in-flight attempt; once a name is in the registry
// no broker call is made for it again.
type Provisioner struct {
	admin    Admin
	registry *TopicRegistry
	opts     ProvisionOptions
	flights  singleflight.Group
}

func NewProvisioner(admin Admin, registry *TopicRegistry, opts ProvisionOptions) *Provisioner {
	opts.applyDefaults()
	if registry == nil {
		registry = NewTopicRegistry()
	}
	return &Provisioner{admin: admin, registry: registry, opts: opts}
}

func (p *Provisioner) Registry() *TopicRegistry { return p.registry }

// Ensure returns nil once spec.Name is known to exist. Failures come back as
// *ProvisioningError and leave the registry untouched, so a later call retries.
func (p *Provisioner) Ensure(ctx context.Context, spec TopicSpec) error {
	if p.registry.Has(spec.Name) {
		return nil
	}
	_, err, _ := p.flights.Do(spec.Name, func() (any, error) {
		// a flight that finished just before this one started may have added it
		if p.registry.Has(spec.Name) {
			return nil, nil
		}
		return nil, p.provision(ctx, spec)
	})
	return err
}

func (p *Provisioner) provision(ctx context.Context, spec TopicSpec) error {
	log := logging.Topic(spec.Name, "provision")

	var existing map[string]struct{}
	list := func() error {
		lctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
		topics, err := p.admin.ListTopics(lctx)
		if err != nil {
			log.Debug("list topics failed", "err", err)
			return err
		}
		existing = topics
		return nil
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.opts.RetryInterval
	eb.MaxInterval = p.opts.Timeout
	if err := backoff.Retry(list, backoff.WithContext(backoff.WithMaxRetries(eb, p.opts.Retries), ctx)); err != nil {
		return p.fail(spec, "list-topics", err)
	}

	if _, ok := existing[spec.Name]; ok {
		p.record(spec.Name, "existing")
		log.Info("topic already exists")
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	results := p.admin.CreateTopics(cctx, []TopicSpec{spec})
	cancel()

	err, ok := results[spec.Name]
	switch {
	case !ok:
		return p.fail(spec, "create-topics", errors.New("no result returned for topic"))
	case err == nil:
		p.record(spec.Name, "created")
		log.Info("topic created", "partitions", spec.Partitions, "replication", spec.Replication)
		return nil
	case errors.Is(err, sarama.ErrTopicAlreadyExists):
		p.record(spec.Name, "existing")
		log.Info("topic created concurrently elsewhere")
		return nil
	default:
		return p.fail(spec, "create-topics", err)
	}
}

func (p *Provisioner) record(name, outcome string) {
	if p.registry.add(name) {
		telemetry.TopicsProvisioned.WithLabelValues(name, outcome).Inc()
	}
}

func (p *Provisioner) fail(spec TopicSpec, op string, err error) error {
	telemetry.ProvisioningErrors.WithLabelValues(spec.Name).Inc()
	perr := &ProvisioningError{Topic: spec.Name, Op: op, Err: err}
	logging.Topic(spec.Name, op).Warn("failed to provision topic", "err", err)
	return perr
}
